package destinations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
)

const defaultDeliveryTimeout = 5 * time.Second

// Outcome statuses recorded per destination.
const (
	StatusDelivered = "delivered"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Outcome is the result of one destination's delivery attempt.
type Outcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"` // populated for skipped
	Error  string `json:"error,omitempty"`  // populated for failed
}

// Router fans one canonical event out to every configured destination.
// Deliveries run concurrently and are isolated from each other: a panic or
// error in one adapter is recorded in that destination's outcome only.
type Router struct {
	destinations []Destination
	timeout      time.Duration
}

// NewRouter builds a router over the fixed destination set (GA4, Meta,
// Google Ads) sharing one HTTP client.
func NewRouter(timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	client := &http.Client{Timeout: timeout}
	return &Router{
		destinations: []Destination{
			NewGA4(client),
			NewMeta(client),
			NewGoogleAds(client),
		},
		timeout: timeout,
	}
}

// NewRouterWith is used by tests to inject stub destinations.
func NewRouterWith(timeout time.Duration, dests ...Destination) *Router {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Router{destinations: dests, timeout: timeout}
}

// Route attempts delivery to every configured destination and returns the
// per-destination outcome map. It never returns an error: delivery failures
// are recorded, logged, and absorbed.
func (r *Router) Route(ctx context.Context, evt *v1.Event, site Config, agency *AgencyConfig) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(r.destinations))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, d := range r.destinations {
		st := d.Settings(site)
		// Delivery goroutines from earlier iterations may already be
		// writing outcomes; skip records take the same lock.
		if st == nil || !st.Enabled {
			mu.Lock()
			outcomes[d.Name()] = Outcome{Status: StatusSkipped, Reason: "disabled"}
			mu.Unlock()
			continue
		}
		if !eventAllowed(evt.Name, st.Events) {
			mu.Lock()
			outcomes[d.Name()] = Outcome{Status: StatusSkipped, Reason: "filtered"}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(d Destination) {
			defer wg.Done()
			outcome := r.deliver(ctx, d, evt, site, agency)

			mu.Lock()
			outcomes[d.Name()] = outcome
			mu.Unlock()
		}(d)
	}

	wg.Wait()

	for name, o := range outcomes {
		switch o.Status {
		case StatusDelivered:
			slog.Info("[Router] Delivered", "destination", name, "event_id", evt.ID, "event_name", evt.Name)
		case StatusFailed:
			slog.Warn("[Router] Delivery failed", "destination", name, "event_id", evt.ID, "error", o.Error)
		}
	}

	return outcomes
}

// deliver runs one adapter with its own timeout and converts panics and
// errors into outcomes, so no destination can throw out of the router.
func (r *Router) deliver(ctx context.Context, d Destination, evt *v1.Event, site Config, agency *AgencyConfig) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = Outcome{Status: StatusFailed, Error: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := d.Send(callCtx, evt, site, agency)
	if err == nil {
		return Outcome{Status: StatusDelivered}
	}
	var skip *SkipError
	if errors.As(err, &skip) {
		return Outcome{Status: StatusSkipped, Reason: skip.Reason}
	}
	return Outcome{Status: StatusFailed, Error: err.Error()}
}
