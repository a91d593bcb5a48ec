// Package weight computes how much influence a list carries within a
// ranking configuration.
package weight

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
)

// Base weight constants.
const (
	DefaultBaseWeight           = 100.0
	HighQualitySourceMultiplier = 1.5
	ListDatesPenaltyName        = "List dates"
)

// ErrMalformedSignals marks a list whose quality signals cannot be trusted.
var ErrMalformedSignals = errors.New("malformed list quality signals")

// BaseWeightFunc derives the starting weight of a list from its quality signals.
type BaseWeightFunc func(list model.List, now time.Time) (float64, error)

// DecayFunc maps a list's age onto a percentage reduction.
type DecayFunc func(age, maxAge, maxPercentage int) float64

// Result is a computed weight and its audit breakdown.
type Result struct {
	Weight  float64
	Details model.WeightDetails
}

// Calculator computes list weights.
type Calculator struct {
	base  BaseWeightFunc
	decay DecayFunc
	now   func() time.Time
}

// NewCalculator creates a calculator with the default curves.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		base:  QualityBaseWeight,
		decay: LinearDecay,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate runs base weight, penalty reduction, list-dates decay and the
// floor, in that order. Penalties are applied multiplicatively in the order
// given. A list without a computable base receives the floor weight.
func (c *Calculator) Calculate(cfg model.RankingConfiguration, list model.List, penalties []model.AppliedPenalty) (Result, error) {
	now := c.now()
	floor := float64(cfg.MinListWeight)

	base, err := c.base(list, now)
	if err != nil {
		return Result{}, fmt.Errorf("list %d: %w", list.ID, err)
	}

	if !computable(base) {
		return floorResult(floor, now), nil
	}
	details := model.WeightDetails{
		CalculatedAt: now,
		Base:         model.WeightBase{BaseWeight: base, MinimumWeight: floor},
		Penalties:    []model.AppliedPenalty{},
	}

	w := base
	for _, p := range penalties {
		v := clampPercent(p.Value)
		w *= 1 - v/100
		details.Penalties = append(details.Penalties, model.AppliedPenalty{Name: p.Name, Value: v})
	}

	if cfg.ApplyListDatesPenalty && list.YearPublished != nil {
		age := now.Year() - *list.YearPublished
		if pct := clampPercent(c.decay(age, cfg.MaxListDatesPenaltyAge, cfg.MaxListDatesPenaltyPercentage)); pct > 0 {
			w *= 1 - pct/100
			details.Penalties = append(details.Penalties, model.AppliedPenalty{Name: ListDatesPenaltyName, Value: pct})
		}
	}

	w = math.Max(w, floor)
	details.FinalWeight = w
	return Result{Weight: w, Details: details}, nil
}

// Floor returns the floor weight with a zero base. It stands in for lists
// whose signals cannot be weighed.
func (c *Calculator) Floor(cfg model.RankingConfiguration) Result {
	return floorResult(float64(cfg.MinListWeight), c.now())
}

func floorResult(floor float64, now time.Time) Result {
	return Result{
		Weight: floor,
		Details: model.WeightDetails{
			CalculatedAt: now,
			Base:         model.WeightBase{MinimumWeight: floor},
			Penalties:    []model.AppliedPenalty{},
			FinalWeight:  floor,
		},
	}
}

// QualityBaseWeight starts from estimated_quality when known, otherwise
// DefaultBaseWeight, and boosts high quality sources.
func QualityBaseWeight(list model.List, now time.Time) (float64, error) {
	if list.NumberOfVoters != nil && *list.NumberOfVoters < 0 {
		return 0, fmt.Errorf("%w: negative number_of_voters %d", ErrMalformedSignals, *list.NumberOfVoters)
	}
	if q := list.EstimatedQuality; q != nil && (*q < 0 || *q > 100) {
		return 0, fmt.Errorf("%w: estimated_quality %d outside 0..100", ErrMalformedSignals, *q)
	}
	if y := list.YearPublished; y != nil && *y > now.Year() {
		return 0, fmt.Errorf("%w: year_published %d is in the future", ErrMalformedSignals, *y)
	}

	base := DefaultBaseWeight
	if list.EstimatedQuality != nil {
		base = float64(*list.EstimatedQuality)
	}
	if list.HighQualitySource {
		base *= HighQualitySourceMultiplier
	}
	return base, nil
}

// LinearDecay grows linearly from 0 at age 0 to maxPercentage at maxAge and
// stays there for older lists.
func LinearDecay(age, maxAge, maxPercentage int) float64 {
	if age <= 0 || maxAge <= 0 || maxPercentage <= 0 {
		return 0
	}
	return float64(maxPercentage) * float64(min(age, maxAge)) / float64(maxAge)
}

func computable(w float64) bool {
	return w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w)
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 100)
}
