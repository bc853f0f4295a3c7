package scoring

import (
	"context"
	"fmt"
	"log/slog"
)

// Engine applies scoring rules to events. It is fire-and-forget relative to
// the write path: callers run Score in a detached goroutine and log the
// returned error; nothing here ever affects event persistence.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	if store == nil {
		panic("scoring: store must not be nil")
	}
	return &Engine{store: store}
}

// Score looks up the active rule for (siteID, eventName) and, when one
// exists with a non-zero value, increments the visitor's running total and
// appends a history row. Events without a client id are not scoreable.
func (e *Engine) Score(ctx context.Context, siteID, clientID, sessionID, eventName, eventID string) error {
	if siteID == "" || clientID == "" || eventName == "" {
		return nil
	}

	value, err := e.store.ActiveRuleValue(ctx, siteID, eventName)
	if err != nil {
		return fmt.Errorf("scoring rule lookup: %w", err)
	}
	if value == 0 {
		return nil
	}

	score, err := e.store.ApplyScore(ctx, siteID, clientID, sessionID, eventName, eventID, value)
	if err != nil {
		return fmt.Errorf("apply score: %w", err)
	}

	slog.Debug("[Scoring] Visitor scored",
		"site_id", siteID,
		"client_id", clientID,
		"event_name", eventName,
		"delta", value,
		"total", score.TotalScore)
	return nil
}
