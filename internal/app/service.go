// Package service wires the ranking core together and implements the
// operations the HTTP API and CLI depend on.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/lock"
	taskqueue "github.com/ssherman/the-greatest-sub000/internal/adapters/mq/queue"
	workerpool "github.com/ssherman/the-greatest-sub000/internal/adapters/mq/worker"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/internal/domain/dedupe"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/penalty"
	"github.com/ssherman/the-greatest-sub000/internal/domain/ranking"
	"github.com/ssherman/the-greatest-sub000/internal/domain/registry"
	"github.com/ssherman/the-greatest-sub000/internal/domain/types"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrQueueFull  = errors.New("recalculation queue full")
)

// Trigger is the outcome of an asynchronous recalculation request.
type Trigger struct {
	ConfigurationID int64  `json:"configuration_id"`
	TaskID          string `json:"task_id,omitempty"`
	// Coalesced is true when a run for the configuration was already queued.
	Coalesced bool `json:"coalesced"`
}

// Service implements the API dependencies for the ranking system.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	locker   lock.Locker
	registry *registry.Registry
	recalc   *ranking.Recalculator
	deduper  dedupe.Deduper
	queue    *taskqueue.InMemoryQueue
	pool     *workerpool.Pool

	workerCount     int
	queueSize       int
	pendingSize     int
	bulkParallelism int
	voterThreshold  int
	maxRankedItems  int

	started   bool
	ownsStore bool
	logger    logger.Logger
}

// New constructs a Service. Components are created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     defaultWorkerCount,
		queueSize:       defaultQueueSize,
		pendingSize:     defaultPendingSize,
		bulkParallelism: defaultBulkParallelism,
		voterThreshold:  penalty.DefaultVoterCountThreshold,
		maxRankedItems:  defaultMaxRankedItems,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the components and starts the worker pool. Workers run
// until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting ranking service")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.ownsStore = true
		s.logger.Info(ctx, "using in-memory store")
	}
	s.registry = registry.New(s.store)
	s.recalc = ranking.NewRecalculator(s.store,
		ranking.WithResolver(penalty.NewResolver(penalty.WithVoterCountThreshold(s.voterThreshold))),
		ranking.WithLocker(s.locker),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.pendingSize))
	s.queue = taskqueue.NewInMemoryQueue(taskqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.recalc, s.deduper)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("pending_size", s.pendingSize))
	return nil
}

// Stop drains the workers. A store created by Start is closed; one supplied
// with WithStore stays open for its owner.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping ranking service")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
	}
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "close store", logger.Error(err))
		}
		s.store, s.ownsStore = nil, false
	}

	s.started = false
	s.logger.Info(ctx, "ranking service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Registry returns the configuration registry. It is nil before Start.
func (s *Service) Registry() *registry.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// Store returns the backing store. It is nil before Start unless one was
// supplied with WithStore.
func (s *Service) Store() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// Recalculate queues a recalculation of a configuration and returns
// immediately. A configuration already waiting in the queue is not queued
// twice.
func (s *Service) Recalculate(ctx context.Context, configurationID int64) (Trigger, error) {
	if !s.running() {
		return Trigger{}, ErrNotStarted
	}
	if _, err := s.store.GetConfiguration(ctx, configurationID); err != nil {
		return Trigger{}, err
	}
	return s.trigger(ctx, configurationID)
}

func (s *Service) trigger(ctx context.Context, configurationID int64) (Trigger, error) {
	t := Trigger{ConfigurationID: configurationID}
	if s.deduper.SeenAndRecord(ctx, configurationID) {
		metrics.RecordTriggerCoalesced()
		s.logger.Debug(ctx, "recalculation already queued",
			logger.Int64("configuration_id", configurationID))
		t.Coalesced = true
		return t, nil
	}

	task := taskqueue.NewTask(configurationID)
	if !s.queue.Enqueue(ctx, task) {
		s.deduper.Unrecord(ctx, configurationID)
		return Trigger{}, fmt.Errorf("configuration %d: %w", configurationID, ErrQueueFull)
	}
	s.logger.Debug(ctx, "recalculation queued",
		logger.String("task_id", task.ID),
		logger.Int64("configuration_id", configurationID))
	t.TaskID = task.ID
	return t, nil
}

// RecalculateAll queues every non-archived configuration of a domain, or of
// every domain when d is empty. Each configuration is queued independently;
// one that cannot be queued is reported as a failure and the loop goes on.
func (s *Service) RecalculateAll(ctx context.Context, d model.Domain) ([]Trigger, []types.RecalculationFailure, error) {
	if !s.running() {
		return nil, nil, ErrNotStarted
	}
	cfgs, err := s.store.ListConfigurations(ctx, repository.ConfigurationFilter{Domain: d})
	if err != nil {
		return nil, nil, err
	}
	triggers := make([]Trigger, 0, len(cfgs))
	var failures []types.RecalculationFailure
	for _, c := range cfgs {
		t, err := s.trigger(ctx, c.ID)
		if err != nil {
			s.logger.Warn(ctx, "recalculation not queued",
				logger.Int64("configuration_id", c.ID),
				logger.Error(err))
			failures = append(failures, types.RecalculationFailure{ConfigurationID: c.ID, Error: err.Error()})
			continue
		}
		triggers = append(triggers, t)
	}
	return triggers, failures, nil
}

// RecalculateNow recalculates a configuration synchronously.
func (s *Service) RecalculateNow(ctx context.Context, configurationID int64) (ranking.Summary, error) {
	if !s.running() {
		return ranking.Summary{}, ErrNotStarted
	}
	return s.recalc.Recalculate(ctx, configurationID)
}

// RecalculateAllNow recalculates every non-archived configuration of a
// domain in parallel. One configuration failing does not stop the others;
// failures are returned alongside the summaries of the successful runs.
func (s *Service) RecalculateAllNow(ctx context.Context, d model.Domain) ([]ranking.Summary, []types.RecalculationFailure, error) {
	if !s.running() {
		return nil, nil, ErrNotStarted
	}
	cfgs, err := s.store.ListConfigurations(ctx, repository.ConfigurationFilter{Domain: d})
	if err != nil {
		return nil, nil, err
	}

	var (
		mu        sync.Mutex
		summaries []ranking.Summary
		failures  []types.RecalculationFailure
	)
	var g errgroup.Group
	g.SetLimit(s.bulkParallelism)
	for _, c := range cfgs {
		g.Go(func() error {
			sum, err := s.recalc.Recalculate(ctx, c.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, types.RecalculationFailure{ConfigurationID: c.ID, Error: err.Error()})
				return nil
			}
			summaries = append(summaries, sum)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info(ctx, "bulk recalculation finished",
		logger.String("domain", string(d)),
		logger.Int("succeeded", len(summaries)),
		logger.Int("failed", len(failures)))
	return summaries, failures, nil
}

// RankedItems returns the top limit ranked items of a configuration.
func (s *Service) RankedItems(ctx context.Context, configurationID int64, limit int) ([]types.Entry, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	if limit < 1 || limit > s.maxRankedItems {
		return nil, fmt.Errorf("%w: must be between 1 and %d", repository.ErrInvalidLimit, s.maxRankedItems)
	}
	if _, err := s.store.GetConfiguration(ctx, configurationID); err != nil {
		return nil, err
	}
	items, err := s.store.RankedItems(ctx, configurationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.Entry, 0, len(items))
	for _, ri := range items {
		out = append(out, types.NewEntry(ri, s.title(ctx, ri.ItemID)))
	}
	return out, nil
}

// RankedItem returns one item's materialized rank and score.
func (s *Service) RankedItem(ctx context.Context, configurationID, itemID int64) (types.Entry, error) {
	if !s.running() {
		return types.Entry{}, ErrNotStarted
	}
	ri, err := s.store.RankedItem(ctx, configurationID, itemID)
	if err != nil {
		return types.Entry{}, err
	}
	return types.NewEntry(ri, s.title(ctx, itemID)), nil
}

func (s *Service) title(ctx context.Context, itemID int64) string {
	it, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return ""
	}
	return it.Title
}

// RankedLists returns the lists of a configuration with their weights.
func (s *Service) RankedLists(ctx context.Context, configurationID int64) ([]types.ListEntry, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	if _, err := s.store.GetConfiguration(ctx, configurationID); err != nil {
		return nil, err
	}
	rls, err := s.store.RankedLists(ctx, configurationID)
	if err != nil {
		return nil, err
	}
	out := make([]types.ListEntry, 0, len(rls))
	for _, rl := range rls {
		list, err := s.store.GetList(ctx, rl.ListID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		out = append(out, types.NewListEntry(rl, list))
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"pendingSize": s.pendingSize,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(context.Background())
		stats["pendingTriggers"] = s.deduper.Size()
		stats["workers"] = s.pool.Stats()
	}
	return stats
}

// PendingTriggers returns how many configurations have a run queued.
func (s *Service) PendingTriggers() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}
