package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stagehand/stagehand/pkg/txn"
)

// EventType classifies launch lifecycle events.
type EventType string

const (
	EventLaunchStarted     EventType = "launch.started"
	EventLaunchFinished    EventType = "launch.finished"
	EventOperationStarted  EventType = "operation.started"
	EventOperationFinished EventType = "operation.finished"
	EventDriftDetected     EventType = "drift.detected"
	EventPolicyDenied      EventType = "policy.denied"
)

// Event is one launch lifecycle notification.
type Event struct {
	Type      EventType      `json:"type"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher fans events out to subscribers. Slow subscribers drop events
// rather than blocking the launch path.
type Publisher struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe returns a channel receiving future events.
func (p *Publisher) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Publish delivers ev to every subscriber that has buffer space.
func (p *Publisher) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}

// ProgressRecorder bridges transaction progress into metrics, events, and
// operation spans. It implements txn.Progress.
type ProgressRecorder struct {
	Metrics   *Metrics
	Publisher *Publisher
	Tracer    *Tracer

	ctx  context.Context
	span trace.Span
}

// BindContext sets the parent context for operation spans so they nest
// under the enclosing launch span.
func (r *ProgressRecorder) BindContext(ctx context.Context) { r.ctx = ctx }

// OperationStarted implements txn.Progress.
func (r *ProgressRecorder) OperationStarted(op txn.Operation, index, total int) {
	if r.Tracer != nil {
		ctx := r.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		_, r.span = r.Tracer.StartOperationSpan(ctx, op.Name())
	}
	if r.Publisher != nil {
		r.Publisher.Publish(Event{
			Type:    EventOperationStarted,
			Message: op.Describe(),
			Fields:  map[string]any{"operation": op.Name(), "index": index, "total": total},
		})
	}
}

// OperationFinished implements txn.Progress.
func (r *ProgressRecorder) OperationFinished(op txn.Operation, index, total int, err error) {
	if r.span != nil {
		if err != nil {
			RecordError(r.span, err)
		} else {
			RecordSuccess(r.span)
		}
		r.span.End()
		r.span = nil
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	if r.Metrics != nil {
		r.Metrics.OperationExecuted(op.Name(), status)
	}
	if r.Publisher != nil {
		fields := map[string]any{"operation": op.Name(), "index": index, "total": total, "status": status}
		if err != nil {
			fields["error"] = err.Error()
		}
		r.Publisher.Publish(Event{
			Type:    EventOperationFinished,
			Message: op.Describe(),
			Fields:  fields,
		})
	}
}
