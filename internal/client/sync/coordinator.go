// Package sync drives the device side of synchronization.
//
// A Coordinator runs one cycle at a time:
//
//	idle -> draining -> transmitting -> reconciling -> idle
//
// Only transmitting touches the network and only it can be cancelled or time out.
// Reconciling merges the server answer into the local store in one transaction
// and is never interrupted. A transient failure moves the coordinator to the
// failed state, from which it returns to idle after an exponential backoff.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	httpClient "github.com/iudanet/famsync/internal/client/api"
	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/clock"
	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/internal/wire"
	"github.com/iudanet/famsync/pkg/api"
)

const (
	// DefaultBatchSize - размер батча по умолчанию
	DefaultBatchSize = 50
	// MaxBatchSize - верхняя граница, которую принимает сервер
	MaxBatchSize = api.MaxBatchSize
)

var (
	// ErrAlreadyRunning is returned when a second Run or a SyncOnce overlaps Run
	ErrAlreadyRunning = errors.New("sync coordinator is already running")
	// ErrNotEnrolled means the device has no server credentials yet
	ErrNotEnrolled = errors.New("device is not enrolled")
	// ErrTokenExpired means the device token must be reissued
	ErrTokenExpired = errors.New("device token expired")
	// ErrTransient wraps failures that are retried with backoff
	ErrTransient = errors.New("transient sync failure")
	// ErrBatchRejected means the server refused the whole batch
	ErrBatchRejected = httpClient.ErrBatchRejected
)

// Store is the part of the local store the coordinator works with.
type Store interface {
	storage.MutationLog
	storage.SnapshotStorage
	storage.MetadataStorage
	storage.CredentialsStorage
	storage.Reconciler
}

// Config tunes the coordinator. Zero values take defaults.
type Config struct {
	BatchSize      int
	RequestTimeout time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// Coordinator is the device's sync state machine.
type Coordinator struct {
	api         httpClient.ClientAPI
	store       Store
	clock       *clock.Clock
	logger      *slog.Logger
	backoff     *backoff.ExponentialBackOff
	triggers    chan Reason
	subscribers map[int]chan Event
	now         func() time.Time
	state       State
	cfg         Config
	nextSub     int
	cycleMu     stdsync.Mutex // один цикл синхронизации за раз
	mu          stdsync.RWMutex
	running     atomic.Bool
}

// New creates a coordinator.
func New(apiClient httpClient.ClientAPI, store Store, clk *clock.Clock, cfg Config, logger *slog.Logger) *Coordinator {
	cfg = cfg.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff

	return &Coordinator{
		api:         apiClient,
		store:       store,
		clock:       clk,
		logger:      logger,
		backoff:     b,
		cfg:         cfg,
		triggers:    make(chan Reason, 1),
		subscribers: make(map[int]chan Event),
		now:         time.Now,
		state:       StateIdle,
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("Sync state changed", "from", prev, "to", s)
	}
}

// Trigger asks for a sync cycle. Triggers arriving while a cycle is pending
// or running collapse into a single follow-up cycle.
func (c *Coordinator) Trigger(reason Reason) {
	select {
	case c.triggers <- reason:
	default:
		c.logger.Debug("Sync trigger coalesced", "reason", reason)
	}
}

// Subscribe returns a channel of events and a function that stops delivery.
// Slow subscribers miss events rather than block the cycle.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	c.mu.Unlock()

	var once stdsync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Coordinator) emit(e Event) {
	if e.At.IsZero() {
		e.At = c.now()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- e:
		default:
			c.logger.Warn("Sync event dropped, subscriber is slow", "event", e.Type)
		}
	}
}

// Run processes triggers until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.logger.Info("Sync coordinator started", "batch_size", c.cfg.BatchSize)

	for {
		if c.State() == StateFailed {
			delay := c.backoff.NextBackOff()
			c.logger.Info("Sync backing off", "delay", delay)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				c.setState(StateIdle)
				return ctx.Err()
			case <-timer.C:
			}

			c.setState(StateIdle)
			// Накопившийся триггер поглощается повторной попыткой
			select {
			case <-c.triggers:
			default:
			}
			c.attempt(ctx, ReasonRetry)
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Sync coordinator stopped")
			return ctx.Err()
		case reason := <-c.triggers:
			c.attempt(ctx, reason)
		}
	}
}

func (c *Coordinator) attempt(ctx context.Context, reason Reason) {
	stats, err := c.cycle(ctx, reason)
	switch {
	case err == nil:
		c.backoff.Reset()
		c.logger.Info("Sync cycle completed",
			"reason", reason,
			"sent", stats.Sent,
			"applied", stats.Applied,
			"conflicts", stats.Conflicts,
			"dead_lettered", stats.DeadLettered,
			"pulled", stats.Pulled)
	case ctx.Err() != nil:
		c.logger.Info("Sync cycle abandoned", "reason", reason)
	case errors.Is(err, ErrTransient):
		c.logger.Warn("Sync cycle failed, will retry", "reason", reason, "error", err)
	default:
		c.logger.Error("Sync cycle failed", "reason", reason, "error", err)
	}
}

// SyncOnce runs a cycle without backoff, repeating it while the server has
// more changes to deliver. It fails with ErrAlreadyRunning
// while Run is active.
func (c *Coordinator) SyncOnce(ctx context.Context) (*CycleStats, error) {
	if c.running.Load() {
		return nil, ErrAlreadyRunning
	}
	stats, err := c.cycle(ctx, ReasonUser)
	// Дочитываем дельту, пока сервер отдает ее частями
	for err == nil && stats.More {
		var next *CycleStats
		if next, err = c.cycle(ctx, ReasonPaging); err == nil {
			stats.add(next)
		}
	}
	if c.State() == StateFailed {
		c.setState(StateIdle)
	}
	return stats, err
}

// cycle runs one drain-transmit-reconcile round.
func (c *Coordinator) cycle(ctx context.Context, reason Reason) (*CycleStats, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	creds, err := c.store.GetCredentials(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialsNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds.Expired(c.now()) {
		c.emit(Event{Type: EventSyncFailed, Err: ErrTokenExpired})
		return nil, ErrTokenExpired
	}

	deviceID, err := c.store.DeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device id: %w", err)
	}
	cursor, err := c.store.GetCursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync cursor: %w", err)
	}

	// Draining
	c.setState(StateDraining)
	drained, err := c.store.Drain(ctx, c.cfg.BatchSize)
	if err != nil {
		c.setState(StateIdle)
		return nil, fmt.Errorf("failed to drain mutation log: %w", err)
	}
	batch := groupByType(drained)

	req := api.SyncRequest{
		DeviceID:     deviceID,
		LastSyncedAt: cursor.LastSyncedAt,
	}

	// Transmitting
	c.setState(StateTransmitting)
	c.logger.Debug("Sending sync batch", "reason", reason, "mutations", len(batch), "since", cursor.LastSyncedAt)

	resp, sent, err := c.transmit(ctx, creds.Token, req, batch)
	var refused *refusedMutation
	switch {
	case errors.As(err, &refused):
		return c.deadLetterRefused(ctx, refused)
	case err != nil:
		return nil, c.transmitFailed(ctx, sent, err)
	}
	if len(sent) < len(batch) {
		// Остаток батча уйдет следующим циклом
		c.Trigger(ReasonRetry)
	}
	batch = sent

	// Reconciling не прерывается: ответ уже применен на сервере
	c.setState(StateReconciling)
	stats, events, err := c.reconcile(context.WithoutCancel(ctx), deviceID, batch, resp)
	if err != nil {
		c.setState(StateFailed)
		err = fmt.Errorf("%w: reconcile: %w", ErrTransient, err)
		c.emit(Event{Type: EventSyncFailed, Err: err})
		return nil, err
	}

	c.setState(StateIdle)
	for _, e := range events {
		c.emit(e)
	}
	c.emit(Event{Type: EventCycleCompleted, Stats: stats})
	if stats.More {
		c.Trigger(ReasonPaging)
	}
	return stats, nil
}

// transmitFailed classifies a failed request. Cancellation leaves the log untouched.
func (c *Coordinator) transmitFailed(ctx context.Context, batch []*models.MutationRecord, err error) error {
	if ctx.Err() != nil {
		c.setState(StateIdle)
		return ctx.Err()
	}

	if errors.Is(err, ErrBatchRejected) {
		c.setState(StateIdle)
		c.emit(Event{Type: EventSyncFailed, Err: err})
		return err
	}

	if len(batch) > 0 {
		if markErr := c.store.MarkAttempt(context.WithoutCancel(ctx), seqsOf(batch), err.Error()); markErr != nil {
			c.logger.Warn("Failed to record sync attempt", "error", markErr)
		}
	}
	c.setState(StateFailed)
	err = fmt.Errorf("%w: %w", ErrTransient, err)
	c.emit(Event{Type: EventSyncFailed, Err: err})
	return err
}

// refusedMutation is a single mutation the server refused as a whole request.
type refusedMutation struct {
	err      error
	mutation *models.MutationRecord
}

func (e *refusedMutation) Error() string {
	return fmt.Sprintf("mutation %d refused: %v", e.mutation.Seq, e.err)
}

func (e *refusedMutation) Unwrap() error { return e.err }

// transmit sends batch. A request refused for its content (400, 413) is
// halved and sent again, so one bad mutation cannot hold back the log.
// It returns the part of batch that was actually sent.
func (c *Coordinator) transmit(
	ctx context.Context,
	token string,
	req api.SyncRequest,
	batch []*models.MutationRecord,
) (*api.SyncResponse, []*models.MutationRecord, error) {
	for {
		req.Mutations = make([]api.Mutation, 0, len(batch))
		for _, m := range batch {
			req.Mutations = append(req.Mutations, wire.ToMutation(m))
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		resp, err := c.api.Sync(reqCtx, token, req)
		cancel()
		if err == nil || len(batch) == 0 || !refusedForContent(err) {
			return resp, batch, err
		}
		if len(batch) == 1 {
			return nil, batch, &refusedMutation{mutation: batch[0], err: err}
		}

		// Префикс сгруппированного батча сохраняет порядок правок каждого объекта
		c.logger.Warn("Sync batch refused, retrying with half of it",
			"mutations", len(batch),
			"error", err)
		batch = batch[:len(batch)/2]
	}
}

func refusedForContent(err error) bool {
	var statusErr *httpClient.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusBadRequest ||
		statusErr.StatusCode == http.StatusRequestEntityTooLarge
}

// deadLetterRefused sets aside a mutation the server will not accept in any batch.
func (c *Coordinator) deadLetterRefused(ctx context.Context, refused *refusedMutation) (*CycleStats, error) {
	m := refused.mutation
	dl := &models.DeadLetter{
		DeadAt:   c.now(),
		Reason:   refused.err.Error(),
		Code:     models.CodeRejected,
		Mutation: *m.Clone(),
	}
	err := c.store.WithReconcileTx(context.WithoutCancel(ctx), func(tx storage.ReconcileTx) error {
		return tx.DeadLetter(ctx, dl)
	})
	if err != nil {
		c.setState(StateFailed)
		err = fmt.Errorf("%w: failed to dead-letter mutation %d: %w", ErrTransient, m.Seq, err)
		c.emit(Event{Type: EventSyncFailed, Err: err})
		return nil, err
	}

	c.logger.Warn("Mutation refused by server, moved to dead letters",
		"seq", m.Seq,
		"entity_id", m.EntityID,
		"error", refused.err)

	stats := &CycleStats{Sent: 1, DeadLettered: 1}
	c.setState(StateIdle)
	c.emit(Event{
		Type:       EventDeadLettered,
		Seq:        m.Seq,
		EntityID:   m.EntityID,
		EntityType: m.EntityType,
		Reason:     dl.Reason,
		Code:       dl.Code,
	})
	c.emit(Event{Type: EventCycleCompleted, Stats: stats})
	// Остальная очередь больше не заблокирована
	c.Trigger(ReasonRetry)
	return stats, nil
}
