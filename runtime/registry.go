package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var _ contract.IRegistry = (*Registry)(nil)

type entry struct {
	session chat.Session
	sink    contract.EventSink
}

// Registry tracks the connected sessions of the relay.
// Entries only live between the transport connect and disconnect hooks.
type Registry struct {
	mu            sync.RWMutex
	log           *slog.Logger
	sessions      map[chat.SessionID]*entry
	telemetryChan chan event.Event
	sinkTimeout   time.Duration
}

func NewRegistry(log *slog.Logger, telemetryChan chan event.Event, sinkTimeout time.Duration) *Registry {
	return &Registry{
		log:           log,
		sessions:      make(map[chat.SessionID]*entry),
		telemetryChan: telemetryChan,
		sinkTimeout:   sinkTimeout,
	}
}

// Register stores a freshly connected, still anonymous session.
func (r *Registry) Register(sessionID chat.SessionID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = &entry{
		session: chat.Session{ID: sessionID, State: chat.SessionConnected},
		sink:    sink,
	}
}

// Unregister removes the session. Calling it twice is harmless.
func (r *Registry) Unregister(sessionID chat.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[sessionID]; ok {
		e.session.State = chat.SessionDisconnected
		delete(r.sessions, sessionID)
	}
}

// Associate records which user a session belongs to.
func (r *Registry) Associate(sessionID chat.SessionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok || !e.session.Join(userID) {
		return errors.ErrSessionNotFound
	}
	return nil
}

// Session returns a copy of the registered session.
func (r *Registry) Session(sessionID chat.SessionID) (chat.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return chat.Session{}, false
	}
	return e.session, true
}

// Sessions returns a snapshot of every connected session.
func (r *Registry) Sessions() []chat.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]chat.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		res = append(res, e.session)
	}
	return res
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) isRegistered(sessionID chat.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sessionID]
	return ok
}

type target struct {
	id   chat.SessionID
	sink contract.EventSink
}

func (r *Registry) snapshot() []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]target, 0, len(r.sessions))
	for id, e := range r.sessions {
		res = append(res, target{id: id, sink: e.sink})
	}
	return res
}

// Broadcast delivers the event to every session registered at call time.
// Each session gets exactly one attempt, in parallel, bounded by sinkTimeout.
// A failing session never prevents delivery to the others.
// It returns once every attempt has completed, so consecutive broadcasts
// reach a given session in issuance order. Sinks are expected to hand the
// event over without waiting (sink.SessionSink drops a full session).
func (r *Registry) Broadcast(ctx context.Context, e event.DomainEvent) contract.BroadcastReport {
	targets := r.snapshot()
	var failed atomic.Int64
	var wg sync.WaitGroup

	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
			defer cancel()

			err := t.sink.Consume(sinkCtx, e)
			if err == nil {
				return
			}
			// The session left while we were delivering: nothing to report
			if stderrors.Is(err, errors.ErrSessionClosed) || !r.isRegistered(t.id) {
				r.log.Debug("Delivery to closed session skipped", "session_id", t.id)
				return
			}
			failed.Add(1)
			r.log.Warn("Delivery failed", "session_id", t.id, "event", e.Name(), "error", err)
			r.emit(event.New(event.DeliveryFailedType, event.DeliveryFailed{
				SessionID: string(t.id),
				EventName: e.Name(),
				Reason:    err.Error(),
			}))
		}(t)
	}
	wg.Wait()

	return contract.BroadcastReport{Attempted: len(targets), Failed: int(failed.Load())}
}

func (r *Registry) emit(evt event.Event) {
	if r.telemetryChan == nil {
		return
	}
	select {
	case r.telemetryChan <- evt:
	default:
		r.log.Debug("Observability telemetry event lost")
	}
}
