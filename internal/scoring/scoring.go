// Package scoring maintains a running engagement score per visitor, driven
// by configurable per-event-name point values.
package scoring

import (
	"context"
	"time"
)

// Rule assigns a point value to a named event for one site. Rules are owned
// by dashboard CRUD; an absent rule means zero contribution.
type Rule struct {
	ID          string `json:"id"`
	SiteID      string `json:"site_id"`
	EventName   string `json:"event_name"`
	ScoreValue  int    `json:"score_value"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// VisitorScore is the one mutable row per (site, client id).
type VisitorScore struct {
	ID          string         `json:"id"`
	SiteID      string         `json:"site_id"`
	ClientID    string         `json:"client_id"`
	SessionID   string         `json:"session_id,omitempty"`
	TotalScore  int            `json:"total_score"`
	Breakdown   map[string]int `json:"score_breakdown"`
	LastUpdated time.Time      `json:"last_updated"`
}

// HistoryEntry is one immutable append-only scoring record. TotalAfter
// always equals the visitor's stored total at the moment the entry was
// written, even under concurrent scoring for the same visitor.
type HistoryEntry struct {
	ID             string    `json:"id"`
	VisitorScoreID string    `json:"visitor_score_id"`
	EventName      string    `json:"event_name"`
	ScoreChange    int       `json:"score_change"`
	TotalAfter     int       `json:"total_score_after"`
	EventID        string    `json:"event_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the persistence boundary for scoring. ApplyScore performs the
// total-score increment and the history append consistently: the history
// row's TotalAfter must equal the value actually stored.
type Store interface {
	// ActiveRuleValue returns the point value for (siteID, eventName), or
	// zero when no active rule exists.
	ActiveRuleValue(ctx context.Context, siteID, eventName string) (int, error)

	// ApplyScore atomically increments the visitor's total and breakdown and
	// appends the history row, serialized per (site, client) key.
	ApplyScore(ctx context.Context, siteID, clientID, sessionID, eventName, eventID string, delta int) (*VisitorScore, error)

	UpsertRule(ctx context.Context, rule *Rule) (*Rule, error)
	ListRules(ctx context.Context, siteID string) ([]*Rule, error)
	DeleteRule(ctx context.Context, ruleID, siteID string) (bool, error)

	VisitorScore(ctx context.Context, siteID, clientID string) (*VisitorScore, error)
	ScoreHistory(ctx context.Context, siteID, clientID string, limit int) ([]*HistoryEntry, error)
	TopVisitors(ctx context.Context, siteID string, limit int) ([]*VisitorScore, error)
}
