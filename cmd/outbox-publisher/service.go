package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/db/models"
	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10

	publishTimeout = 15 * time.Second
	maxBackoff     = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

// The service depends on thin slices of its collaborators, which keeps the
// loop testable without a live broker or database.
type database interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type broker interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// publisherFactory hands out a publisher per topic. Tests inject scripted
// ones; production wraps the Pub/Sub client.
type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// ServiceParams collect the publisher loop dependencies.
type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               database
	PubSub           broker
	Repository       outboxStore
	Registry         eventResolver
	PublisherFactory publisherFactory
	DLQRepository    deadLetterStore
}

func (p ServiceParams) validate() error {
	switch {
	case p.Config == nil:
		return errors.New("config is required")
	case p.Logger == nil:
		return errors.New("logger is required")
	case p.DB == nil:
		return errors.New("database client is required")
	case p.PubSub == nil:
		return errors.New("pubsub client is required")
	case p.Repository == nil:
		return errors.New("outbox repository is required")
	case p.Registry == nil:
		return errors.New("event registry is required")
	case p.DLQRepository == nil:
		return errors.New("dlq repository is required")
	}
	return nil
}

// Service drains the outbox table: each cycle reads a batch of unpublished
// stock events inside a transaction, publishes them, and records the result
// on the same rows. Rows that cannot ever publish land in the DLQ.
type Service struct {
	logg         *logger.Logger
	db           database
	pubsub       broker
	repo         outboxStore
	registry     eventResolver
	dlq          deadLetterStore
	newPublisher publisherFactory

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			handle := params.PubSub.Publisher(topic)
			if handle == nil {
				return nil
			}
			return &pubsubPublisher{handle: handle}
		}
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		newPublisher: factory,
		batchSize:    orDefault(params.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  orDefault(params.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(orDefault(params.Config.Outbox.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// Run polls until the context ends. An idle batch sleeps one poll interval;
// a failed batch backs off exponentially with jitter so replicas do not
// hammer a struggling dependency in lockstep.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.pingDependencies(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	if interval <= 0 {
		interval = defaultPollMs * time.Millisecond
	}
	backoff := interval

	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "publisher loop stopping")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			backoff = growBackoff(backoff, interval)
			if waitErr := s.wait(ctx, jittered(backoff)); waitErr != nil {
				return waitErr
			}
		case processed:
			backoff = interval
		default:
			backoff = interval
			if waitErr := s.wait(ctx, jittered(interval)); waitErr != nil {
				return waitErr
			}
		}
	}
}

func (s *Service) pingDependencies(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	}
	for _, check := range checks {
		if err := check.ping(ctx); err != nil {
			s.logg.Error(ctx, check.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", check.name, err)
		}
	}
	return nil
}

// processBatch handles one transaction worth of events. The bool reports
// whether any rows were picked up, so Run can tell idle from busy.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var picked int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		picked = len(batch)
		for _, event := range batch {
			if err := s.handleEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return picked > 0, err
}

// handleEvent resolves, publishes, and records the outcome of one row.
func (s *Service) handleEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, nil)
	}

	fields := s.logFields(event, resolved)
	if err := s.publish(ctx, event, resolved); err != nil {
		return s.recordFailure(ctx, tx, event, err, fields)
	}

	if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "event published")
	return nil
}

// recordFailure absorbs one publish failure into the row's retry state.
// Only bookkeeping errors propagate and abort the batch.
func (s *Service) recordFailure(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, cause error, fields map[string]any) error {
	if registry.IsNonRetryable(cause) {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, cause, fields)
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= s.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		exhausted := fmt.Errorf("max publish attempts reached: %w", cause)
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, exhausted, fields)
	}

	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "publish attempt failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, cause); err != nil {
		return fmt.Errorf("record failure %s: %w", event.ID, err)
	}
	return nil
}

// deadLetter copies the row into outbox_dlq and stamps the source row
// terminal, all inside the batch transaction.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	if fields == nil {
		fields = s.logFields(event, nil)
	}
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "event moved to dead letter queue")

	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.Resolved) error {
	topic := resolved.Descriptor.Topic
	pub := s.newPublisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, buildMessage(event, resolved))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// buildMessage carries the stored envelope bytes verbatim and exposes
// routing metadata as attributes so subscribers can filter without decoding.
func buildMessage(event models.OutboxEvent, resolved *registry.Resolved) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) logFields(event models.OutboxEvent, resolved *registry.Resolved) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	if resolved == nil {
		return fields
	}
	fields["topic"] = resolved.Descriptor.Topic
	if id := resolved.Envelope.EventID; id != "" {
		fields["event_id"] = id
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	return fields
}

func (s *Service) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// growBackoff doubles the current delay, starting from base and capping at
// maxBackoff.
func growBackoff(current, base time.Duration) time.Duration {
	if current < base {
		current = base
	}
	return min(2*current, maxBackoff)
}

func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

type pubsubPublisher struct {
	handle *gcppubsub.Publisher
}

func (p *pubsubPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.handle == nil {
		return nil
	}
	return &pubsubResult{result: p.handle.Publish(ctx, msg)}
}

type pubsubResult struct {
	result *gcppubsub.PublishResult
}

func (r *pubsubResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.result == nil {
		return "", errors.New("publish result is nil")
	}
	return r.result.Get(ctx)
}
