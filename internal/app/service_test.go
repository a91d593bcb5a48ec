package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/ssherman/the-greatest-sub000/internal/app"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/lock"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/mq/worker"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/registry"
	"github.com/ssherman/the-greatest-sub000/internal/seed"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func seededStore() (*repository.MemoryStore, int64) {
	store := repository.NewMemoryStore()
	cfg := seed.DefaultConfig()
	cfg.Items = 40
	cfg.Lists = 6
	cfg.ListSize = 15
	res, err := seed.Run(context.Background(), store, registry.New(store), cfg)
	So(err, ShouldBeNil)
	return store, res.ConfigurationID
}

// eventually polls cond until it holds or two seconds pass.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it is not started", func() {
			So(svc, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.Registry(), ShouldBeNil)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithPendingSize(25_000),
			service.WithBulkParallelism(2),
		)

		Convey("Then the options are reported in its stats", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50_000)
			So(stats["pendingSize"], ShouldEqual, 25_000)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(2))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When starting the service", func() {
			err := svc.Start(ctx)
			defer svc.Stop()

			Convey("Then it starts with an in-memory store", func() {
				So(err, ShouldBeNil)
				So(svc.Store(), ShouldNotBeNil)
				So(svc.Registry(), ShouldNotBeNil)

				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["queueLength"], ShouldEqual, 0)
				So(stats["pendingTriggers"], ShouldEqual, int64(0))
			})

			Convey("And starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})

		Convey("When stopping a started service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()

			Convey("Then it is marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When the service was never started", func() {
			_, err := svc.Recalculate(ctx, 1)
			_, nowErr := svc.RecalculateNow(ctx, 1)
			_, itemsErr := svc.RankedItems(ctx, 1, 10)

			Convey("Then operations report it", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(nowErr, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(itemsErr, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}

func TestService_Recalculate(t *testing.T) {
	Convey("Given a started service over seeded data", t, func() {
		store, cfgID := seededStore()
		svc := service.New(service.WithStore(store), service.WithWorkerCount(2))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a recalculation is triggered", func() {
			trig, err := svc.Recalculate(ctx, cfgID)

			Convey("Then it is queued and eventually materialized", func() {
				So(err, ShouldBeNil)
				So(trig.ConfigurationID, ShouldEqual, cfgID)
				So(trig.TaskID, ShouldNotBeEmpty)
				So(trig.Coalesced, ShouldBeFalse)

				So(eventually(func() bool {
					items, err := svc.RankedItems(ctx, cfgID, 10)
					return err == nil && len(items) > 0
				}), ShouldBeTrue)

				items, err := svc.RankedItems(ctx, cfgID, 10)
				So(err, ShouldBeNil)
				So(items[0].Rank, ShouldEqual, 1)
				So(items[0].Title, ShouldNotBeEmpty)
			})
		})

		Convey("When the configuration does not exist", func() {
			_, err := svc.Recalculate(ctx, 9999)

			Convey("Then the trigger is refused", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(svc.PendingTriggers(), ShouldEqual, int64(0))
			})
		})

		Convey("When recalculating synchronously", func() {
			sum, err := svc.RecalculateNow(ctx, cfgID)

			Convey("Then the summary describes the run", func() {
				So(err, ShouldBeNil)
				So(sum.ConfigurationID, ShouldEqual, cfgID)
				So(sum.ListsWeighted+sum.ListsSkipped, ShouldEqual, 6)
				So(sum.ItemsRanked, ShouldBeGreaterThan, 0)
			})

			Convey("And a single item can be looked up", func() {
				items, err := svc.RankedItems(ctx, cfgID, 1)
				So(err, ShouldBeNil)
				So(len(items), ShouldEqual, 1)

				one, err := svc.RankedItem(ctx, cfgID, items[0].ItemID)
				So(err, ShouldBeNil)
				So(one, ShouldResemble, items[0])
			})

			Convey("And the ranked lists carry their weights", func() {
				lists, err := svc.RankedLists(ctx, cfgID)
				So(err, ShouldBeNil)
				So(len(lists), ShouldEqual, 6)
				So(lists[0].Name, ShouldNotBeEmpty)
			})
		})
	})
}

func TestService_RankedItemsLimit(t *testing.T) {
	Convey("Given a started service with a small limit cap", t, func() {
		store, cfgID := seededStore()
		svc := service.New(service.WithStore(store), service.WithMaxRankedItemsLimit(5))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Then limits outside 1..cap are rejected", func() {
			for _, limit := range []int{0, -1, 6} {
				_, err := svc.RankedItems(ctx, cfgID, limit)
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			}
		})

		Convey("Then a configuration that never ran has no ranked items", func() {
			items, err := svc.RankedItems(ctx, cfgID, 5)
			So(err, ShouldBeNil)
			So(items, ShouldBeEmpty)
		})

		Convey("Then an unknown configuration is not found", func() {
			_, err := svc.RankedItems(ctx, 9999, 5)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Coalescing(t *testing.T) {
	Convey("Given a single worker blocked on a configuration lock", t, func() {
		store, cfgID := seededStore()
		locker := lock.NewLocalLocker()
		svc := service.New(
			service.WithStore(store),
			service.WithLocker(locker),
			service.WithWorkerCount(1),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		unlock, err := locker.Lock(ctx, lock.ConfigurationKey(cfgID))
		So(err, ShouldBeNil)
		// released before Stop drains the worker
		defer func() { _ = unlock(context.Background()) }()

		first, err := svc.Recalculate(ctx, cfgID)
		So(err, ShouldBeNil)
		So(first.Coalesced, ShouldBeFalse)
		// the worker clears the pending mark once it picks the task up
		So(eventually(func() bool { return svc.PendingTriggers() == 0 }), ShouldBeTrue)

		Convey("When triggers arrive during the run", func() {
			second, err := svc.Recalculate(ctx, cfgID)
			So(err, ShouldBeNil)
			third, err := svc.Recalculate(ctx, cfgID)
			So(err, ShouldBeNil)

			Convey("Then one follow-up run is queued and the rest coalesce", func() {
				So(second.Coalesced, ShouldBeFalse)
				So(third.Coalesced, ShouldBeTrue)
				So(third.TaskID, ShouldBeEmpty)
				So(svc.PendingTriggers(), ShouldEqual, int64(1))
			})

			Convey("Then both runs complete once the lock is released", func() {
				So(unlock(ctx), ShouldBeNil)
				So(eventually(func() bool {
					st, ok := svc.GetStats()["workers"].(worker.PoolStats)
					return ok && st.Processed >= 2
				}), ShouldBeTrue)
				So(svc.PendingTriggers(), ShouldEqual, int64(0))
				So(eventually(func() bool {
					items, err := svc.RankedItems(ctx, cfgID, 10)
					return err == nil && len(items) > 0
				}), ShouldBeTrue)
			})
		})
	})
}

func TestService_RecalculateAll(t *testing.T) {
	Convey("Given a started service with two configurations", t, func() {
		store, cfgID := seededStore()
		svc := service.New(service.WithStore(store), service.WithWorkerCount(2))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		clone, err := svc.Registry().CloneConfiguration(ctx, cfgID, "Alternate")
		So(err, ShouldBeNil)

		Convey("When every configuration is queued", func() {
			triggers, failures, err := svc.RecalculateAll(ctx, "")

			Convey("Then each gets a trigger", func() {
				So(err, ShouldBeNil)
				So(failures, ShouldBeEmpty)
				So(len(triggers), ShouldEqual, 2)
			})
		})

		Convey("When one configuration is archived", func() {
			clone.Archived = true
			So(svc.Registry().UpdateConfiguration(ctx, &clone), ShouldBeNil)

			Convey("Then queueing skips it", func() {
				triggers, failures, err := svc.RecalculateAll(ctx, "")
				So(err, ShouldBeNil)
				So(failures, ShouldBeEmpty)
				So(len(triggers), ShouldEqual, 1)
				So(triggers[0].ConfigurationID, ShouldEqual, cfgID)
			})

			Convey("Then synchronous runs skip it", func() {
				sums, failures, err := svc.RecalculateAllNow(ctx, "")
				So(err, ShouldBeNil)
				So(failures, ShouldBeEmpty)
				So(len(sums), ShouldEqual, 1)
				So(sums[0].ConfigurationID, ShouldEqual, cfgID)

				items, err := store.RankedItems(ctx, clone.ID, 0)
				So(err, ShouldBeNil)
				So(items, ShouldBeEmpty)
			})
		})

		Convey("When every configuration runs synchronously", func() {
			sums, failures, err := svc.RecalculateAllNow(ctx, "")

			Convey("Then both succeed", func() {
				So(err, ShouldBeNil)
				So(failures, ShouldBeEmpty)
				So(len(sums), ShouldEqual, 2)

				ids := []int64{sums[0].ConfigurationID, sums[1].ConfigurationID}
				So(ids, ShouldContain, cfgID)
				So(ids, ShouldContain, clone.ID)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, ccancel := context.WithCancel(ctx)
			ccancel()
			sums, failures, err := svc.RecalculateAllNow(cctx, "")

			Convey("Then every run is reported as a failure", func() {
				So(err, ShouldBeNil)
				So(sums, ShouldBeEmpty)
				So(len(failures), ShouldEqual, 2)
				So(failures[0].Error, ShouldNotBeEmpty)
			})
		})
	})
}

// failingStore fails reads of one configuration inside transactions.
type failingStore struct {
	repository.Store
	failID int64
}

func (f *failingStore) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	return f.Store.InTx(ctx, func(q repository.Queries) error {
		return fn(failingQueries{Queries: q, failID: f.failID})
	})
}

type failingQueries struct {
	repository.Queries
	failID int64
}

func (f failingQueries) GetConfiguration(ctx context.Context, id int64) (model.RankingConfiguration, error) {
	if id == f.failID {
		return model.RankingConfiguration{}, errors.New("disk on fire")
	}
	return f.Queries.GetConfiguration(ctx, id)
}

// blockingStore holds every transaction until release is closed.
type blockingStore struct {
	repository.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.Store.InTx(ctx, fn)
}

func TestService_RecalculateAllIsolation(t *testing.T) {
	Convey("Given two configurations where one cannot be read", t, func() {
		store, cfgID := seededStore()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		clone, err := registry.New(store).CloneConfiguration(ctx, cfgID, "Alternate")
		So(err, ShouldBeNil)

		svc := service.New(service.WithStore(&failingStore{Store: store, failID: cfgID}))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When both run synchronously", func() {
			sums, failures, err := svc.RecalculateAllNow(ctx, "")

			Convey("Then the failure is reported and the other still materializes", func() {
				So(err, ShouldBeNil)
				So(len(failures), ShouldEqual, 1)
				So(failures[0].ConfigurationID, ShouldEqual, cfgID)
				So(failures[0].Error, ShouldContainSubstring, "disk on fire")

				So(len(sums), ShouldEqual, 1)
				So(sums[0].ConfigurationID, ShouldEqual, clone.ID)
				So(sums[0].ItemsRanked, ShouldBeGreaterThan, 0)

				items, err := svc.RankedItems(ctx, clone.ID, 10)
				So(err, ShouldBeNil)
				So(items, ShouldNotBeEmpty)
			})
		})
	})

	Convey("Given a busy worker and a queue with room for one run", t, func() {
		store, cfgID := seededStore()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		reg := registry.New(store)
		for _, name := range []string{"Alternate", "Third"} {
			_, err := reg.CloneConfiguration(ctx, cfgID, name)
			So(err, ShouldBeNil)
		}

		blocking := &blockingStore{Store: store, entered: make(chan struct{}), release: make(chan struct{})}
		svc := service.New(
			service.WithStore(blocking),
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		defer close(blocking.release)

		_, err := svc.Recalculate(ctx, cfgID)
		So(err, ShouldBeNil)
		select {
		case <-blocking.entered:
		case <-ctx.Done():
			So(ctx.Err(), ShouldBeNil)
		}

		Convey("When every configuration is queued", func() {
			triggers, failures, err := svc.RecalculateAll(ctx, "")

			Convey("Then a full queue does not stop later configurations from being tried", func() {
				So(err, ShouldBeNil)
				So(len(triggers), ShouldEqual, 1)
				So(len(failures), ShouldEqual, 2)

				seen := map[int64]bool{triggers[0].ConfigurationID: true}
				for _, f := range failures {
					So(f.Error, ShouldContainSubstring, service.ErrQueueFull.Error())
					seen[f.ConfigurationID] = true
				}
				So(len(seen), ShouldEqual, 3)
			})
		})
	})
}
