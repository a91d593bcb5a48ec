package ranking_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/lock"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/ranking"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func intp(v int) *int { return &v }

type world struct {
	ctx   context.Context
	store *repository.MemoryStore
	cfg   model.RankingConfiguration
}

func newWorld() *world {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	cfg := model.NewConfiguration(model.DomainMusicAlbums, "Albums")
	cfg.Primary = true
	So(store.InsertConfiguration(ctx, &cfg), ShouldBeNil)
	return &world{ctx: ctx, store: store, cfg: cfg}
}

func (w *world) item(title string) model.Item {
	it := model.Item{Domain: model.DomainMusicAlbums, Title: title}
	So(w.store.InsertItem(w.ctx, &it), ShouldBeNil)
	return it
}

// list creates a list attached to the configuration holding items in order.
func (w *world) list(l model.List, items ...model.Item) model.List {
	if l.Domain == "" {
		l.Domain = model.DomainMusicAlbums
	}
	if l.Status == "" {
		l.Status = model.ListApproved
	}
	So(w.store.InsertList(w.ctx, &l), ShouldBeNil)
	for i, it := range items {
		So(w.store.InsertListItem(w.ctx, &model.ListItem{ListID: l.ID, ItemID: it.ID, Position: i + 1, Verified: true}), ShouldBeNil)
	}
	So(w.store.InsertRankedList(w.ctx, &model.RankedList{ConfigurationID: w.cfg.ID, ListID: l.ID}), ShouldBeNil)
	return l
}

func (w *world) weightOf(listID int64) *float64 {
	rls, err := w.store.RankedLists(w.ctx, w.cfg.ID)
	So(err, ShouldBeNil)
	for _, rl := range rls {
		if rl.ListID == listID {
			return rl.Weight
		}
	}
	return nil
}

func (w *world) ranked() []model.RankedItem {
	items, err := w.store.RankedItems(w.ctx, w.cfg.ID, 0)
	So(err, ShouldBeNil)
	return items
}

func TestRecalculate(t *testing.T) {
	Convey("Given a configuration with one list of weight 100", t, func() {
		w := newWorld()
		a, b := w.item("A"), w.item("B")
		l := w.list(model.List{Name: "Critics"}, a, b)
		r := ranking.NewRecalculator(w.store)

		Convey("When it is recalculated", func() {
			sum, err := r.Recalculate(w.ctx, w.cfg.ID)
			So(err, ShouldBeNil)

			Convey("Then A ranks first and B second", func() {
				So(sum.ListsWeighted, ShouldEqual, 1)
				So(sum.ItemsRanked, ShouldEqual, 2)
				items := w.ranked()
				So(items[0].ItemID, ShouldEqual, a.ID)
				So(items[0].Rank, ShouldEqual, 1)
				So(items[1].ItemID, ShouldEqual, b.ID)
				So(items[1].Rank, ShouldEqual, 2)
				So(items[0].Score, ShouldBeGreaterThan, items[1].Score)
			})

			Convey("And the list weight and its breakdown are stored", func() {
				So(*w.weightOf(l.ID), ShouldEqual, 100)
				rls, _ := w.store.RankedLists(w.ctx, w.cfg.ID)
				So(rls[0].Details, ShouldNotBeNil)
				So(rls[0].Details.FinalWeight, ShouldEqual, 100)
			})

			Convey("And running it again changes nothing", func() {
				before := w.ranked()
				weight := *w.weightOf(l.ID)
				_, err := r.Recalculate(w.ctx, w.cfg.ID)
				So(err, ShouldBeNil)
				So(w.ranked(), ShouldResemble, before)
				So(*w.weightOf(l.ID), ShouldEqual, weight)
			})
		})

		Convey("When the list's last penalty is removed", func() {
			p := model.Penalty{Name: "Lazy", MediaType: model.MediaCrossMedia, Global: true}
			So(w.store.InsertPenalty(w.ctx, &p), ShouldBeNil)
			So(w.store.InsertPenaltyApplication(w.ctx, &model.PenaltyApplication{PenaltyID: p.ID, ConfigurationID: w.cfg.ID, Value: 25}), ShouldBeNil)
			So(w.store.InsertListPenalty(w.ctx, &model.ListPenalty{ListID: l.ID, PenaltyID: p.ID}), ShouldBeNil)

			_, err := r.Recalculate(w.ctx, w.cfg.ID)
			So(err, ShouldBeNil)
			penalized := *w.weightOf(l.ID)
			So(penalized, ShouldEqual, 75)

			So(w.store.DeleteListPenalty(w.ctx, l.ID, p.ID), ShouldBeNil)
			_, err = r.Recalculate(w.ctx, w.cfg.ID)
			So(err, ShouldBeNil)

			Convey("Then the weight goes up", func() {
				So(*w.weightOf(l.ID), ShouldBeGreaterThan, penalized)
			})
		})

		Convey("When another list has malformed signals", func() {
			c := w.item("C")
			bad := w.list(model.List{Name: "Broken", NumberOfVoters: intp(-1)}, c)
			sum, err := r.Recalculate(w.ctx, w.cfg.ID)

			Convey("Then only that list is skipped", func() {
				So(err, ShouldBeNil)
				So(sum.ListsSkipped, ShouldEqual, 1)
				So(sum.ListsWeighted, ShouldEqual, 1)
				for _, it := range w.ranked() {
					So(it.ItemID, ShouldNotEqual, c.ID)
				}
			})

			Convey("And it still carries the floor weight with a zero base", func() {
				weight := w.weightOf(bad.ID)
				So(weight, ShouldNotBeNil)
				So(*weight, ShouldEqual, float64(w.cfg.MinListWeight))

				rls, err := w.store.RankedLists(w.ctx, w.cfg.ID)
				So(err, ShouldBeNil)
				for _, rl := range rls {
					if rl.ListID != bad.ID {
						continue
					}
					So(rl.Details, ShouldNotBeNil)
					So(rl.Details.Base.BaseWeight, ShouldEqual, 0)
					So(rl.Details.Base.MinimumWeight, ShouldEqual, float64(w.cfg.MinListWeight))
					So(rl.Details.FinalWeight, ShouldEqual, float64(w.cfg.MinListWeight))
				}
			})
		})

		Convey("When an unapproved list is attached", func() {
			c := w.item("C")
			pending := w.list(model.List{Name: "Pending", Status: model.ListUnapproved}, c)
			sum, err := r.Recalculate(w.ctx, w.cfg.ID)

			Convey("Then it is weighted but its items are not ranked", func() {
				So(err, ShouldBeNil)
				So(sum.ListsWeighted, ShouldEqual, 2)
				So(sum.ListsAggregated, ShouldEqual, 1)
				So(w.weightOf(pending.ID), ShouldNotBeNil)
				So(len(w.ranked()), ShouldEqual, 2)
			})
		})

		Convey("When penalties push the weight under the floor", func() {
			w.cfg.MinListWeight = 40
			So(w.store.UpdateConfiguration(w.ctx, &w.cfg), ShouldBeNil)
			owner := int64(1)
			p := model.Penalty{Name: "Everything", MediaType: model.MediaMusic, UserID: &owner}
			So(w.store.InsertPenalty(w.ctx, &p), ShouldBeNil)
			So(w.store.InsertPenaltyApplication(w.ctx, &model.PenaltyApplication{PenaltyID: p.ID, ConfigurationID: w.cfg.ID, Value: 90}), ShouldBeNil)
			So(w.store.InsertListPenalty(w.ctx, &model.ListPenalty{ListID: l.ID, PenaltyID: p.ID}), ShouldBeNil)

			_, err := r.Recalculate(w.ctx, w.cfg.ID)

			Convey("Then the floor holds", func() {
				So(err, ShouldBeNil)
				So(*w.weightOf(l.ID), ShouldEqual, 40)
			})
		})

		Convey("When the configuration does not exist", func() {
			_, err := r.Recalculate(w.ctx, 9999)

			Convey("Then the error says so", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When writing the result fails", func() {
			_, err := r.Recalculate(w.ctx, w.cfg.ID)
			So(err, ShouldBeNil)
			before := w.ranked()

			c := w.item("C")
			w.list(model.List{Name: "Late"}, c)
			broken := ranking.NewRecalculator(failingStore{w.store})
			_, err = broken.Recalculate(w.ctx, w.cfg.ID)

			Convey("Then the previous ranking stays visible", func() {
				So(errors.Is(err, errWrite), ShouldBeTrue)
				So(w.ranked(), ShouldResemble, before)
			})
		})

		Convey("When a locker is configured", func() {
			locker := lock.NewLocalLocker()
			locked := ranking.NewRecalculator(w.store, ranking.WithLocker(locker))
			_, err := locked.Recalculate(w.ctx, w.cfg.ID)

			Convey("Then the lock is released afterwards", func() {
				So(err, ShouldBeNil)
				unlock, err := locker.TryLock(w.ctx, lock.ConfigurationKey(w.cfg.ID))
				So(err, ShouldBeNil)
				So(unlock(w.ctx), ShouldBeNil)
			})
		})
	})
}

var errWrite = errors.New("disk full")

type failingStore struct {
	*repository.MemoryStore
}

func (s failingStore) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	return s.MemoryStore.InTx(ctx, func(q repository.Queries) error {
		return fn(failingQueries{q})
	})
}

type failingQueries struct {
	repository.Queries
}

func (failingQueries) ReplaceRankedItems(context.Context, int64, []model.RankedItem) error {
	return errWrite
}
