package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/txn2/factcheck-bot/pkg/audit"
	"github.com/txn2/factcheck-bot/pkg/metrics"
)

// maxBodyBytes caps a webhook delivery.
const maxBodyBytes = 1 << 20

// ErrShuttingDown is returned by Dispatch once Shutdown has started.
var ErrShuttingDown = errors.New("webhook: ingress is shutting down")

// Config configures an Ingress.
type Config struct {
	Handler Handler
	// Audit receives one record per finished event. Optional.
	Audit  audit.Logger
	Logger *slog.Logger
}

// Ingress acknowledges webhook deliveries and runs their events asynchronously.
type Ingress struct {
	handler Handler
	audit   audit.Logger
	logger  *slog.Logger

	mu       sync.Mutex
	inflight sync.WaitGroup
	closing  bool
}

// New creates an Ingress.
func New(cfg Config) (*Ingress, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("webhook ingress requires a handler")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingress{handler: cfg.Handler, audit: cfg.Audit, logger: logger}, nil
}

// Routes returns the ingress router. Mount it behind signature verification.
func (in *Ingress) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", in.ServeHTTP)
	return r
}

// ServeHTTP parses the delivery, starts dispatch and answers 200 without
// waiting for any handler.
func (in *Ingress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload Payload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		in.logger.Warn("rejecting unparseable webhook body", "error", err)
		http.Error(w, "invalid webhook body", http.StatusBadRequest)
		return
	}

	events := decodeEvents(payload.Events)

	// Handlers outlive the request.
	ctx := context.WithoutCancel(r.Context())
	if _, err := in.Dispatch(ctx, events); err != nil {
		in.logger.Error("webhook events dropped", "count", len(events), "error", err)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Batch tracks the events of one delivery.
type Batch struct {
	done chan struct{}
}

// Done is closed when every event of the batch has finished.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch is done or ctx ends.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch starts handling events and returns immediately. Events of one user
// run in array order on a single goroutine; different users run concurrently.
func (in *Ingress) Dispatch(ctx context.Context, events []Event) (*Batch, error) {
	in.mu.Lock()
	if in.closing {
		in.mu.Unlock()
		return nil, ErrShuttingDown
	}
	in.inflight.Add(1)
	in.mu.Unlock()

	batch := &Batch{done: make(chan struct{})}
	groups := groupByUser(events)

	var wg sync.WaitGroup
	wg.Add(len(groups))
	for _, group := range groups {
		go func(group []Event) {
			defer wg.Done()
			for _, ev := range group {
				in.run(ctx, ev)
			}
		}(group)
	}

	go func() {
		wg.Wait()
		close(batch.done)
		in.inflight.Done()
	}()
	return batch, nil
}

// Wait blocks until every dispatched batch has finished.
func (in *Ingress) Wait() {
	in.inflight.Wait()
}

// Shutdown stops accepting new batches and waits for in-flight ones until
// ctx ends.
func (in *Ingress) Shutdown(ctx context.Context) error {
	in.mu.Lock()
	in.closing = true
	in.mu.Unlock()

	done := make(chan struct{})
	go func() {
		in.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining webhook events: %w", ctx.Err())
	}
}

// groupByUser splits events by source user, keeping first-seen group order
// and array order inside each group.
func groupByUser(events []Event) [][]Event {
	index := make(map[string]int)
	var groups [][]Event
	for _, ev := range events {
		i, ok := index[ev.Source.UserID]
		if !ok {
			i = len(groups)
			index[ev.Source.UserID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], ev)
	}
	return groups
}

func (in *Ingress) run(ctx context.Context, ev Event) {
	metrics.EventStarted()
	defer metrics.EventFinished()

	start := time.Now()
	var (
		outcome Outcome
		err     error
	)
	if ev.decodeErr != nil {
		in.logger.Warn("ignoring undecodable webhook event", "user_id", ev.Source.UserID, "error", ev.decodeErr)
		outcome = Outcome{Result: Ignored}
	} else {
		outcome, err = in.safeHandle(ctx, ev)
	}
	elapsed := time.Since(start)

	result := string(outcome.Result)
	var panicErr *panicError
	switch {
	case errors.As(err, &panicErr):
		result = metrics.ResultPanic
	case err != nil:
		result = metrics.ResultError
	case result == "":
		result = string(Handled)
	}

	label := typeLabel(ev.Type)
	metrics.ObserveEvent(label, result, elapsed)

	attrs := []any{
		"event_type", label,
		"user_id", ev.Source.UserID,
		"result", result,
		"duration_ms", elapsed.Milliseconds(),
	}
	if err != nil {
		in.logger.Error("webhook event failed", append(attrs, "error", err)...)
	} else {
		in.logger.Debug("webhook event handled", attrs...)
	}

	in.record(ctx, ev, outcome, result, err, elapsed)
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", p.value)
}

func (in *Ingress) safeHandle(ctx context.Context, ev Event) (outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec}
		}
	}()
	return in.handler.Handle(ctx, ev)
}

func (in *Ingress) record(ctx context.Context, ev Event, outcome Outcome, result string, handleErr error, elapsed time.Duration) {
	if in.audit == nil {
		return
	}

	var errMsg string
	switch {
	case handleErr != nil:
		errMsg = handleErr.Error()
	case ev.decodeErr != nil:
		errMsg = ev.decodeErr.Error()
	}

	params := map[string]any{"source_type": ev.Source.Type}
	if ev.Message != nil {
		params["message_type"] = ev.Message.Type
	}
	if ev.Postback != nil {
		params["postback"] = ev.Postback.Data
	}

	event := audit.NewEvent(typeLabel(ev.Type)).
		WithUser(ev.Source.UserID).
		WithSession(outcome.SessionID).
		WithMode(ev.Mode).
		WithParameters(params).
		WithRequestID(middleware.GetReqID(ctx)).
		WithResult(result, errMsg == "", errMsg, elapsed.Milliseconds())

	if err := in.audit.Log(ctx, *event); err != nil {
		in.logger.Warn("audit log failed", "event_type", event.EventType, "error", err)
	}
}
