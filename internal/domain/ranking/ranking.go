// Package ranking runs a full recalculation of one ranking configuration:
// penalties, list weights, item scores and the transactional write.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/lock"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/penalty"
	"github.com/ssherman/the-greatest-sub000/internal/domain/scoring"
	"github.com/ssherman/the-greatest-sub000/internal/domain/weight"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

// Reasons a list is left out of a recalculation.
const (
	SkipMissingList      = "missing_list"
	SkipDomainMismatch   = "domain_mismatch"
	SkipMalformedSignals = "malformed_signals"
)

// Summary describes one completed recalculation.
type Summary struct {
	ConfigurationID int64         `json:"configuration_id"`
	ListsWeighted   int           `json:"lists_weighted"`
	ListsSkipped    int           `json:"lists_skipped"`
	ListsAggregated int           `json:"lists_aggregated"`
	ItemsRanked     int           `json:"items_ranked"`
	Duration        time.Duration `json:"duration_ns"`
}

// Recalculator recomputes and materializes configurations.
type Recalculator struct {
	store    repository.Store
	resolver *penalty.Resolver
	calc     *weight.Calculator
	agg      *scoring.Aggregator
	mat      Materializer
	locker   lock.Locker
	log      logger.Logger
}

// NewRecalculator creates a Recalculator over store.
func NewRecalculator(store repository.Store, opts ...Option) *Recalculator {
	r := &Recalculator{store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("ranking")
	}
	if r.resolver == nil {
		r.resolver = penalty.NewResolver(penalty.WithLogger(r.log.Named("penalty")))
	}
	if r.calc == nil {
		r.calc = weight.NewCalculator()
	}
	if r.agg == nil {
		r.agg = scoring.NewAggregator(scoring.WithLogger(r.log.Named("scoring")))
	}
	return r
}

// Recalculate re-reads everything a configuration depends on, recomputes
// every list weight and item score, and writes the result in one
// transaction. On failure the previous ranking stays in place.
func (r *Recalculator) Recalculate(ctx context.Context, configurationID int64) (Summary, error) {
	start := time.Now()
	sum, err := r.recalculate(ctx, configurationID)
	sum.ConfigurationID = configurationID
	sum.Duration = time.Since(start)
	metrics.RecordRecalculationDuration(sum.Duration.Seconds())

	if err != nil {
		metrics.RecordRecalculation("failed")
		metrics.RecordErrorByComponent("ranking", "recalculate")
		r.log.Error(ctx, "recalculation failed",
			logger.Int64("configuration_id", configurationID),
			logger.Error(err))
		return sum, err
	}
	metrics.RecordRecalculation("succeeded")
	metrics.RecordItemsRanked(sum.ItemsRanked)
	r.log.Info(ctx, "recalculation completed",
		logger.Int64("configuration_id", configurationID),
		logger.Int("lists_weighted", sum.ListsWeighted),
		logger.Int("lists_skipped", sum.ListsSkipped),
		logger.Int("items_ranked", sum.ItemsRanked),
		logger.Duration("duration", sum.Duration))
	return sum, nil
}

func (r *Recalculator) recalculate(ctx context.Context, configurationID int64) (Summary, error) {
	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, lock.ConfigurationKey(configurationID))
		if err != nil {
			return Summary{}, fmt.Errorf("lock configuration %d: %w", configurationID, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				r.log.Warn(ctx, "release configuration lock",
					logger.Int64("configuration_id", configurationID),
					logger.Error(err))
			}
		}()
	}

	var sum Summary
	err := r.store.InTx(ctx, func(q repository.Queries) error {
		sum = Summary{}
		if err := q.LockConfiguration(ctx, configurationID); err != nil {
			return fmt.Errorf("lock configuration %d: %w", configurationID, err)
		}
		cfg, err := q.GetConfiguration(ctx, configurationID)
		if err != nil {
			return fmt.Errorf("load configuration %d: %w", configurationID, err)
		}
		ranked, err := q.RankedLists(ctx, configurationID)
		if err != nil {
			return fmt.Errorf("load ranked lists: %w", err)
		}
		session, err := r.resolver.ForConfiguration(ctx, q, cfg)
		if err != nil {
			return err
		}

		weights := make([]ListWeight, 0, len(ranked))
		var lists []scoring.WeightedList
		for _, rl := range ranked {
			lw, wl, ok, err := r.weigh(ctx, q, session, cfg, rl)
			if err != nil {
				return err
			}
			if lw.RankedListID != 0 {
				weights = append(weights, lw)
			}
			if !ok {
				sum.ListsSkipped++
				continue
			}
			sum.ListsWeighted++
			if wl != nil {
				lists = append(lists, *wl)
			}
		}

		res := r.agg.Aggregate(ctx, cfg, lists)
		sum.ListsAggregated = res.ListsUsed
		sum.ItemsRanked = len(res.Items)
		return r.mat.Materialize(ctx, q, cfg.ID, weights, res.Items)
	})
	return sum, err
}

// weigh computes one ranked list's weight. ok is false when the list is
// skipped; a skipped list with malformed signals still gets the floor
// weight in lw. wl is nil when the list does not take part in aggregation.
func (r *Recalculator) weigh(ctx context.Context, q repository.Queries, s *penalty.Session, cfg model.RankingConfiguration, rl model.RankedList) (ListWeight, *scoring.WeightedList, bool, error) {
	list, err := q.GetList(ctx, rl.ListID)
	if errors.Is(err, repository.ErrNotFound) {
		r.skipList(ctx, cfg.ID, rl.ListID, SkipMissingList, nil)
		return ListWeight{}, nil, false, nil
	}
	if err != nil {
		return ListWeight{}, nil, false, fmt.Errorf("load list %d: %w", rl.ListID, err)
	}
	if list.Domain != cfg.Domain {
		r.skipList(ctx, cfg.ID, list.ID, SkipDomainMismatch, nil)
		return ListWeight{}, nil, false, nil
	}

	penalties, err := s.Resolve(ctx, list)
	if err != nil {
		return ListWeight{}, nil, false, err
	}
	res, err := r.calc.Calculate(cfg, list, penalties)
	if errors.Is(err, weight.ErrMalformedSignals) {
		r.skipList(ctx, cfg.ID, list.ID, SkipMalformedSignals, err)
		floor := r.calc.Floor(cfg)
		return ListWeight{RankedListID: rl.ID, ListID: list.ID, Weight: floor.Weight, Details: floor.Details}, nil, false, nil
	}
	if err != nil {
		return ListWeight{}, nil, false, err
	}
	metrics.RecordListWeighted()
	lw := ListWeight{RankedListID: rl.ID, ListID: list.ID, Weight: res.Weight, Details: res.Details}

	if list.Status != model.ListApproved {
		return lw, nil, true, nil
	}
	items, err := q.ListItems(ctx, list.ID)
	if err != nil {
		return ListWeight{}, nil, false, fmt.Errorf("load items of list %d: %w", list.ID, err)
	}
	return lw, &scoring.WeightedList{ListID: list.ID, Weight: res.Weight, Items: items}, true, nil
}

func (r *Recalculator) skipList(ctx context.Context, configurationID, listID int64, reason string, err error) {
	metrics.RecordListSkipped(reason)
	fields := []logger.Field{
		logger.Int64("configuration_id", configurationID),
		logger.Int64("list_id", listID),
		logger.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	r.log.Warn(ctx, "list skipped", fields...)
}
