// Package scoring turns weighted list memberships into item scores and ranks.
package scoring

import (
	"context"
	"math"
	"sort"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

// DecayFunc returns the fraction of a list's weight earned at position p of
// a list whose highest verified position is n.
type DecayFunc func(p, n int, exponent float64) float64

// WeightedList is a participating list with its computed weight and members.
type WeightedList struct {
	ListID int64
	Weight float64
	Items  []model.ListItem
}

// Scored is the aggregate result for one item.
type Scored struct {
	ItemID      int64
	Raw         float64
	Bonus       float64
	Score       float64
	Appearances int
	Rank        int
}

// Result is the ranked output of one aggregation.
type Result struct {
	Items []Scored
	// ListsUsed counts lists that contributed after list_limit.
	ListsUsed int
	// Pool is the bonus pool size before distribution.
	Pool float64
	// SkippedMemberships counts list items ignored as invalid.
	SkippedMemberships int
}

// Aggregator combines list memberships into ranked scores.
type Aggregator struct {
	decay DecayFunc
	log   logger.Logger
}

// NewAggregator creates an Aggregator using PowerDecay unless overridden.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{decay: PowerDecay}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Get().Named("scoring")
	}
	return a
}

type tally struct {
	raw   float64
	lists int
}

// Aggregate scores every item reachable from lists under cfg. Memberships
// that are unverified, have a non-positive position or belong to another
// domain are ignored. An item listed twice on one list counts once, at its
// best position. Items with no contributing membership are left out.
func (a *Aggregator) Aggregate(ctx context.Context, cfg model.RankingConfiguration, lists []WeightedList) Result {
	var res Result
	used := selectLists(lists, cfg.ListLimit)
	res.ListsUsed = len(used)

	totals := make(map[int64]*tally)
	var totalWeight float64
	for _, wl := range used {
		best := make(map[int64]int, len(wl.Items))
		n := 0
		for _, li := range wl.Items {
			if !li.Verified || li.Position <= 0 || (li.ItemDomain != "" && li.ItemDomain != cfg.Domain) {
				res.SkippedMemberships++
				a.log.Debug(ctx, "membership ignored",
					logger.Int64("list_id", wl.ListID),
					logger.Int64("item_id", li.ItemID),
					logger.Int("position", li.Position),
					logger.Bool("verified", li.Verified))
				continue
			}
			if p, ok := best[li.ItemID]; !ok || li.Position < p {
				best[li.ItemID] = li.Position
			}
			n = max(n, li.Position)
		}
		if len(best) == 0 {
			continue
		}
		totalWeight += wl.Weight
		for itemID, p := range best {
			t, ok := totals[itemID]
			if !ok {
				t = &tally{}
				totals[itemID] = t
			}
			t.raw += wl.Weight * a.decay(p, n, cfg.Exponent)
			t.lists++
		}
	}

	res.Pool = cfg.BonusPoolPercentage / 100 * totalWeight
	var extra int
	for _, t := range totals {
		extra += t.lists - 1
	}

	res.Items = make([]Scored, 0, len(totals))
	for itemID, t := range totals {
		s := Scored{ItemID: itemID, Raw: t.raw, Appearances: t.lists}
		if extra > 0 {
			s.Bonus = res.Pool * float64(t.lists-1) / float64(extra)
		}
		s.Score = Round2(s.Raw + s.Bonus)
		res.Items = append(res.Items, s)
	}

	sort.Slice(res.Items, func(i, j int) bool {
		x, y := res.Items[i], res.Items[j]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		if x.Appearances != y.Appearances {
			return x.Appearances > y.Appearances
		}
		return x.ItemID < y.ItemID
	})
	for i := range res.Items {
		res.Items[i].Rank = i + 1
	}
	return res
}

// selectLists drops zero-weight lists and applies the list_limit cap,
// keeping the heaviest lists with ties broken by id.
func selectLists(lists []WeightedList, limit *int) []WeightedList {
	out := make([]WeightedList, 0, len(lists))
	for _, wl := range lists {
		if wl.Weight > 0 && !math.IsInf(wl.Weight, 0) && !math.IsNaN(wl.Weight) {
			out = append(out, wl)
		}
	}
	if limit == nil || *limit >= len(out) {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ListID < out[j].ListID
	})
	return out[:max(*limit, 0)]
}

// PowerDecay gives position 1 the full weight and falls off as
// ((n-p+1)/n)^exponent towards the bottom of the list.
func PowerDecay(p, n int, exponent float64) float64 {
	if n <= 0 || p <= 0 || p > n {
		return 0
	}
	return math.Pow(float64(n-p+1)/float64(n), exponent)
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
