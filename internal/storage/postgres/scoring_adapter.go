package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/beaconhq/beacon-collector/internal/scoring"
	"github.com/google/uuid"
)

// ScoringAdapter implements scoring.Store. It shares the event adapter's
// connection pool.
type ScoringAdapter struct {
	db *sql.DB
}

func NewScoringAdapter(db *sql.DB) *ScoringAdapter {
	return &ScoringAdapter{db: db}
}

// ActiveRuleValue returns the configured point value, or zero when no active
// rule exists for the event name.
func (a *ScoringAdapter) ActiveRuleValue(ctx context.Context, siteID, eventName string) (int, error) {
	var value int
	err := a.db.QueryRowContext(ctx, queryActiveRuleValue, siteID, eventName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rule lookup: %w", err)
	}
	return value, nil
}

// ApplyScore increments the visitor's running total and appends the history
// row in one transaction. The upsert is a single-row atomic
// increment-and-read, so concurrent scoring calls for the same visitor
// serialize on the row and every history entry's total_score_after matches
// the stored total.
func (a *ScoringAdapter) ApplyScore(ctx context.Context, siteID, clientID, sessionID, eventName, eventID string, delta int) (*scoring.VisitorScore, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin score update: %w", err)
	}
	defer tx.Rollback()

	score := &scoring.VisitorScore{
		SiteID:    siteID,
		ClientID:  clientID,
		SessionID: sessionID,
	}
	err = tx.QueryRowContext(ctx, queryApplyScore,
		uuid.NewString(), siteID, clientID, nullable(sessionID), delta, eventName,
	).Scan(&score.ID, &score.TotalScore)
	if err != nil {
		return nil, fmt.Errorf("upsert visitor score: %w", err)
	}

	_, err = tx.ExecContext(ctx, queryAppendHistory,
		uuid.NewString(), score.ID, eventName, delta, score.TotalScore, nullable(eventID),
	)
	if err != nil {
		return nil, fmt.Errorf("append score history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit score update: %w", err)
	}
	return score, nil
}

func (a *ScoringAdapter) UpsertRule(ctx context.Context, rule *scoring.Rule) (*scoring.Rule, error) {
	out := &scoring.Rule{}
	err := a.db.QueryRowContext(ctx, queryUpsertRule,
		uuid.NewString(), rule.SiteID, rule.EventName, rule.ScoreValue,
		nullable(rule.Description), rule.Active,
	).Scan(&out.ID, &out.SiteID, &out.EventName, &out.ScoreValue, &out.Description, &out.Active)
	if err != nil {
		return nil, fmt.Errorf("upsert rule: %w", err)
	}
	return out, nil
}

func (a *ScoringAdapter) ListRules(ctx context.Context, siteID string) ([]*scoring.Rule, error) {
	rows, err := a.db.QueryContext(ctx, queryListRules, siteID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []*scoring.Rule
	for rows.Next() {
		r := &scoring.Rule{}
		if err := rows.Scan(&r.ID, &r.SiteID, &r.EventName, &r.ScoreValue, &r.Description, &r.Active); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

func (a *ScoringAdapter) DeleteRule(ctx context.Context, ruleID, siteID string) (bool, error) {
	res, err := a.db.ExecContext(ctx, queryDeleteRule, ruleID, siteID)
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	return n > 0, nil
}

func (a *ScoringAdapter) VisitorScore(ctx context.Context, siteID, clientID string) (*scoring.VisitorScore, error) {
	score, err := scanVisitorScore(a.db.QueryRowContext(ctx, queryVisitorScore, siteID, clientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return score, err
}

func (a *ScoringAdapter) ScoreHistory(ctx context.Context, siteID, clientID string, limit int) ([]*scoring.HistoryEntry, error) {
	rows, err := a.db.QueryContext(ctx, queryScoreHistory, siteID, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query score history: %w", err)
	}
	defer rows.Close()

	var history []*scoring.HistoryEntry
	for rows.Next() {
		h := &scoring.HistoryEntry{}
		err := rows.Scan(&h.ID, &h.VisitorScoreID, &h.EventName, &h.ScoreChange,
			&h.TotalAfter, &h.EventID, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

func (a *ScoringAdapter) TopVisitors(ctx context.Context, siteID string, limit int) ([]*scoring.VisitorScore, error) {
	rows, err := a.db.QueryContext(ctx, queryTopVisitors, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("query top visitors: %w", err)
	}
	defer rows.Close()

	var visitors []*scoring.VisitorScore
	for rows.Next() {
		score, err := scanVisitorScore(rows)
		if err != nil {
			return nil, err
		}
		visitors = append(visitors, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top visitors: %w", err)
	}
	return visitors, nil
}

func scanVisitorScore(row scanner) (*scoring.VisitorScore, error) {
	score := &scoring.VisitorScore{}
	var breakdownJSON []byte

	err := row.Scan(&score.ID, &score.SiteID, &score.ClientID, &score.SessionID,
		&score.TotalScore, &breakdownJSON, &score.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan visitor score: %w", err)
	}

	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &score.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal score breakdown: %w", err)
		}
	}
	return score, nil
}
