package scoring

import (
	"context"
	"fmt"
	"sync"
)

// fakeStore is an in-memory scoring store used by engine and handler tests.
type fakeStore struct {
	mu       sync.Mutex
	rules    map[string]*Rule         // keyed by siteID/eventName
	scores   map[string]*VisitorScore // keyed by siteID/clientID
	history  []*HistoryEntry
	applyErr error
	ruleErr  error
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rules:  make(map[string]*Rule),
		scores: make(map[string]*VisitorScore),
	}
}

func (f *fakeStore) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeStore) ActiveRuleValue(_ context.Context, siteID, eventName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ruleErr != nil {
		return 0, f.ruleErr
	}
	r, ok := f.rules[siteID+"/"+eventName]
	if !ok || !r.Active {
		return 0, nil
	}
	return r.ScoreValue, nil
}

func (f *fakeStore) ApplyScore(_ context.Context, siteID, clientID, sessionID, eventName, eventID string, delta int) (*VisitorScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}

	key := siteID + "/" + clientID
	score, ok := f.scores[key]
	if !ok {
		score = &VisitorScore{
			ID:        f.id(),
			SiteID:    siteID,
			ClientID:  clientID,
			Breakdown: make(map[string]int),
		}
		f.scores[key] = score
	}
	score.SessionID = sessionID
	score.TotalScore += delta
	score.Breakdown[eventName]++

	f.history = append(f.history, &HistoryEntry{
		ID:             f.id(),
		VisitorScoreID: score.ID,
		EventName:      eventName,
		ScoreChange:    delta,
		TotalAfter:     score.TotalScore,
		EventID:        eventID,
	})

	out := *score
	return &out, nil
}

func (f *fakeStore) UpsertRule(_ context.Context, rule *Rule) (*Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rule.SiteID + "/" + rule.EventName
	stored, ok := f.rules[key]
	if !ok {
		stored = &Rule{ID: f.id(), SiteID: rule.SiteID, EventName: rule.EventName}
		f.rules[key] = stored
	}
	stored.ScoreValue = rule.ScoreValue
	stored.Description = rule.Description
	stored.Active = rule.Active
	out := *stored
	return &out, nil
}

func (f *fakeStore) ListRules(_ context.Context, siteID string) ([]*Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Rule
	for _, r := range f.rules {
		if r.SiteID == siteID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteRule(_ context.Context, ruleID, siteID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, r := range f.rules {
		if r.ID == ruleID && r.SiteID == siteID {
			delete(f.rules, key)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) VisitorScore(_ context.Context, siteID, clientID string) (*VisitorScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	score, ok := f.scores[siteID+"/"+clientID]
	if !ok {
		return nil, nil
	}
	out := *score
	return &out, nil
}

func (f *fakeStore) ScoreHistory(_ context.Context, siteID, clientID string, limit int) ([]*HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	score, ok := f.scores[siteID+"/"+clientID]
	if !ok {
		return nil, nil
	}
	var out []*HistoryEntry
	for i := len(f.history) - 1; i >= 0 && len(out) < limit; i-- {
		if f.history[i].VisitorScoreID == score.ID {
			c := *f.history[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeStore) TopVisitors(_ context.Context, siteID string, limit int) ([]*VisitorScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*VisitorScore
	for _, s := range f.scores {
		if s.SiteID == siteID && len(out) < limit {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}
