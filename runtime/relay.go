// Package runtime wires the chat relay together: session registry, token
// registry and the relay that persists, broadcasts and notifies.
// It orchestrates the system without containing transport concerns.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/runtime/workers"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	notificationQueueName = "notification_queue"
	telemetryChannelName  = "telemetry_channel"
)

type Relay struct {
	order                *sequencer
	log                  *slog.Logger
	supervisor           contract.ISupervisor
	registry             contract.IRegistry
	messageRepository    contract.IMessageRepository
	tokenRegistry        contract.ITokenRegistry
	notifier             contract.Notifier
	imageCleaner         contract.ImageCleaner
	notificationQueue    chan chat.Message
	telemetryChan        chan event.Event
	counter              *event.Counter
	numWorkers           int
	historyLimit         int
	metricInterval       time.Duration
	lowCapacityThreshold int
}

func NewRelay(log *slog.Logger,
	supervisor contract.ISupervisor,
	registry contract.IRegistry,
	messageRepository contract.IMessageRepository,
	tokenRegistry contract.ITokenRegistry,
	notifier contract.Notifier,
	telemetryChan chan event.Event,
	numWorkers, bufferSize, historyLimit int,
	metricInterval time.Duration,
	lowCapacityThreshold int) *Relay {
	return &Relay{
		order:                newSequencer(),
		log:                  log,
		supervisor:           supervisor,
		registry:             registry,
		messageRepository:    messageRepository,
		tokenRegistry:        tokenRegistry,
		notifier:             notifier,
		imageCleaner:         NewLogImageCleaner(log),
		notificationQueue:    make(chan chat.Message, bufferSize),
		telemetryChan:        telemetryChan,
		counter:              event.NewCounter(),
		numWorkers:           numWorkers,
		historyLimit:         historyLimit,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

// WithImageCleaner replaces the cleanup hook run after deleting an image message.
func (r *Relay) WithImageCleaner(cleaner contract.ImageCleaner) *Relay {
	r.imageCleaner = cleaner
	return r
}

// Connect registers a new anonymous session and returns its identifier.
func (r *Relay) Connect(sink contract.EventSink) chat.SessionID {
	sessionID := chat.SessionID(uuid.NewString())
	r.registry.Register(sessionID, sink)
	r.log.Debug("Session connected", "session_id", sessionID)
	return sessionID
}

// Join associates the session with a user identity.
func (r *Relay) Join(sessionID chat.SessionID, userID string) error {
	if err := r.registry.Associate(sessionID, userID); err != nil {
		return err
	}
	r.log.Info("User joined", "session_id", sessionID, "user", userID)
	return nil
}

func (r *Relay) Disconnect(sessionID chat.SessionID) {
	r.registry.Unregister(sessionID)
	r.log.Debug("Session disconnected", "session_id", sessionID)
}

// Submit persists the message, broadcasts it to every session (the sender's
// too) and queues its push notification.
// Nothing is broadcast nor notified when persistence fails.
// Submissions persist concurrently, broadcasts go out in submission order.
func (r *Relay) Submit(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error) {
	ticket := r.order.take()
	defer r.order.done(ticket)

	saved, err := r.messageRepository.Append(ctx, cmd.ToMessage())
	if err != nil {
		r.log.Error("Message not persisted", "sender", cmd.Sender, "error", err)
		return chat.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	r.order.wait(ticket)
	report := r.registry.Broadcast(ctx, event.MessagePosted{Message: saved})
	r.log.Debug("Message broadcast", "message_id", saved.ID,
		"attempted", report.Attempted, "failed", report.Failed)

	r.enqueue(saved)
	return saved, nil
}

// Delete removes a message and tells every session about it.
func (r *Relay) Delete(ctx context.Context, id string) error {
	deleted, err := r.deleteInOrder(ctx, id)
	if err != nil {
		return err
	}

	if deleted.HasImage() {
		if err := r.imageCleaner.Cleanup(ctx, deleted.Image); err != nil {
			r.log.Warn("Image cleanup failed", "message_id", deleted.ID, "error", err)
		}
	}
	return nil
}

func (r *Relay) deleteInOrder(ctx context.Context, id string) (chat.Message, error) {
	ticket := r.order.take()
	defer r.order.done(ticket)

	deleted, err := r.messageRepository.DeleteByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, errors.ErrMessageNotFound) {
			return chat.Message{}, err
		}
		return chat.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	r.order.wait(ticket)
	report := r.registry.Broadcast(ctx, event.MessageDeleted{ID: deleted.ID})
	r.log.Debug("Deletion broadcast", "message_id", deleted.ID,
		"attempted", report.Attempted, "failed", report.Failed)
	return deleted, nil
}

// History returns the last limit messages, oldest first.
// A non-positive limit falls back to the configured history limit.
func (r *Relay) History(ctx context.Context, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = r.historyLimit
	}
	messages, err := r.messageRepository.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return messages, nil
}

func (r *Relay) RegisterToken(ctx context.Context, cmd chat.RegisterTokenCommand) (chat.User, error) {
	return r.tokenRegistry.Upsert(ctx, cmd.Email, cmd.Token, cmd.Name)
}

func (r *Relay) Users(ctx context.Context) ([]chat.User, error) {
	return r.tokenRegistry.Users(ctx)
}

func (r *Relay) PushEnabled() bool {
	return r.notifier.Enabled()
}

// Counters returns a snapshot of the telemetry tallies.
func (r *Relay) Counters() map[event.Type]uint64 {
	return r.counter.Snapshot()
}

// enqueue never blocks: a full queue drops the notification.
func (r *Relay) enqueue(msg chat.Message) {
	if !r.notifier.Enabled() {
		return
	}
	select {
	case r.notificationQueue <- msg:
	default:
		r.log.Warn("Notification queue full, dropping notification", "message_id", msg.ID)
	}
}

// Start registers every supervised worker and blocks until ctx is canceled
// or Stop is called.
func (r *Relay) Start(ctx context.Context) error {
	// Preparation phase, no lock needed
	var supervised []contract.Worker
	for i := 0; i < r.numWorkers; i++ {
		supervised = append(supervised, workers.NewNotificationWorker(r.log, r.notificationQueue, r.notifier))
	}
	supervised = append(supervised,
		workers.NewTelemetryWorker(r.log, r.telemetryChan, r.prepareHandlers()),
		workers.NewChannelCapacityWorker(r.log, []workers.NamedChannel{
			{Name: notificationQueueName, Channel: r.notificationQueue},
			{Name: telemetryChannelName, Channel: r.telemetryChan},
		}, r.telemetryChan, r.metricInterval),
		workers.NewProcessStatsWorker(r.log, r.telemetryChan, r.metricInterval),
	)
	r.supervisor.Add(supervised...)

	r.log.Info("Starting relay and all supervised workers",
		"notification_workers", r.numWorkers, "push_enabled", r.notifier.Enabled())
	r.supervisor.Run(ctx)
	return nil
}

func (r *Relay) prepareHandlers() []event.Handler {
	return []event.Handler{
		event.NewChannelCapacityHandler(r.log, r.lowCapacityThreshold),
		event.NewWorkerRestartedAfterPanicHandler(r.log, r.counter),
		event.NewNotificationHandler(r.log, r.counter),
		event.NewDeliveryHandler(r.log, r.counter),
		event.NewProcessTrackerHandler(r.log),
	}
}

// Stop cancels the supervised workers.
// Queued notifications that were not dispatched yet are dropped.
func (r *Relay) Stop() {
	r.log.Info("Requesting relay shutdown")
	r.supervisor.Stop()
}

var _ contract.ImageCleaner = (*LogImageCleaner)(nil)

// LogImageCleaner only records the orphaned image reference.
type LogImageCleaner struct {
	log *slog.Logger
}

func NewLogImageCleaner(log *slog.Logger) *LogImageCleaner {
	return &LogImageCleaner{log: log}
}

func (c *LogImageCleaner) Cleanup(_ context.Context, imageURL string) error {
	c.log.Info("Image reference released", "image", imageURL)
	return nil
}
