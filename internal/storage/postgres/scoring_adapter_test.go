package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestApplyScore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryApplyScore)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "total_score"}).AddRow("vs-1", 35))
	mock.ExpectExec(regexp.QuoteMeta(queryAppendHistory)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	adapter := NewScoringAdapter(db)
	score, err := adapter.ApplyScore(context.Background(), "site-1", "client-1", "sess-1", "purchase", "evt-1", 25)
	require.NoError(t, err)
	require.Equal(t, "vs-1", score.ID)
	require.Equal(t, 35, score.TotalScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyScore_HistoryFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryApplyScore)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "total_score"}).AddRow("vs-1", 35))
	mock.ExpectExec(regexp.QuoteMeta(queryAppendHistory)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	adapter := NewScoringAdapter(db)
	_, err = adapter.ApplyScore(context.Background(), "site-1", "client-1", "sess-1", "purchase", "evt-1", 25)
	require.ErrorContains(t, err, "append score history")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveRuleValue_NoRuleIsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryActiveRuleValue)).
		WithArgs("site-1", "page_view").
		WillReturnRows(sqlmock.NewRows([]string{"score_value"}))

	adapter := NewScoringAdapter(db)
	value, err := adapter.ActiveRuleValue(context.Background(), "site-1", "page_view")
	require.NoError(t, err)
	require.Zero(t, value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveRuleValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryActiveRuleValue)).
		WithArgs("site-1", "purchase").
		WillReturnRows(sqlmock.NewRows([]string{"score_value"}).AddRow(25))

	adapter := NewScoringAdapter(db)
	value, err := adapter.ActiveRuleValue(context.Background(), "site-1", "purchase")
	require.NoError(t, err)
	require.Equal(t, 25, value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitorScore_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryVisitorScore)).
		WithArgs("site-1", "nobody").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "site_id", "client_id", "session_id", "total_score", "score_breakdown", "last_updated",
		}))

	adapter := NewScoringAdapter(db)
	score, err := adapter.VisitorScore(context.Background(), "site-1", "nobody")
	require.NoError(t, err)
	require.Nil(t, score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitorScore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	updated := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(queryVisitorScore)).
		WithArgs("site-1", "client-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "site_id", "client_id", "session_id", "total_score", "score_breakdown", "last_updated",
		}).AddRow("vs-1", "site-1", "client-1", "sess-1", 35, []byte(`{"purchase":1,"page_view":1}`), updated))

	adapter := NewScoringAdapter(db)
	score, err := adapter.VisitorScore(context.Background(), "site-1", "client-1")
	require.NoError(t, err)
	require.Equal(t, 35, score.TotalScore)
	require.Equal(t, map[string]int{"purchase": 1, "page_view": 1}, score.Breakdown)
	require.Equal(t, updated, score.LastUpdated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRule(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryDeleteRule)).
		WithArgs("rule-1", "site-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryDeleteRule)).
		WithArgs("rule-2", "site-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	adapter := NewScoringAdapter(db)

	deleted, err := adapter.DeleteRule(context.Background(), "rule-1", "site-1")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = adapter.DeleteRule(context.Background(), "rule-2", "site-1")
	require.NoError(t, err)
	require.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
