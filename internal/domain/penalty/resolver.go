// Package penalty resolves which penalties reduce a list's weight under a
// ranking configuration, and by how much.
package penalty

import (
	"context"
	"fmt"
	"math"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

// DefaultVoterCountThreshold is the voter count at and above which the
// number_of_voters penalty no longer applies.
const DefaultVoterCountThreshold = 1000

// Source is the read access the resolver needs.
type Source interface {
	ListPenalties(ctx context.Context, listID int64) ([]model.ListPenalty, error)
	GetPenalty(ctx context.Context, id int64) (model.Penalty, error)
	DynamicPenalties(ctx context.Context) ([]model.Penalty, error)
	PenaltyApplications(ctx context.Context, configurationID int64) ([]model.PenaltyApplication, error)
}

// Resolver turns attached and dynamic penalties into ordered deductions.
type Resolver struct {
	voterThreshold int
	log            logger.Logger
}

// NewResolver creates a resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{voterThreshold: DefaultVoterCountThreshold}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("penalty")
	}
	return r
}

// Session resolves penalties for the lists of one configuration. It caches
// the configuration's penalty applications and the dynamic penalty set, so
// it must not outlive the transaction it reads from.
type Session struct {
	r         *Resolver
	src       Source
	cfg       model.RankingConfiguration
	values    map[int64]int
	dynamic   []model.Penalty
	penalties map[int64]model.Penalty
}

// ForConfiguration prepares a Session for cfg.
func (r *Resolver) ForConfiguration(ctx context.Context, src Source, cfg model.RankingConfiguration) (*Session, error) {
	apps, err := src.PenaltyApplications(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("load penalty applications: %w", err)
	}
	dynamic, err := src.DynamicPenalties(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dynamic penalties: %w", err)
	}
	s := &Session{
		r:         r,
		src:       src,
		cfg:       cfg,
		values:    make(map[int64]int, len(apps)),
		dynamic:   dynamic,
		penalties: make(map[int64]model.Penalty),
	}
	for _, pa := range apps {
		s.values[pa.PenaltyID] = pa.Value
	}
	return s, nil
}

// Resolve returns the deductions for list in application order: attached
// static penalties in attachment order, then dynamic penalties by id.
// Penalties that deduct nothing are left out. Inconsistent rows are skipped.
func (s *Session) Resolve(ctx context.Context, list model.List) ([]model.AppliedPenalty, error) {
	attached, err := s.src.ListPenalties(ctx, list.ID)
	if err != nil {
		return nil, fmt.Errorf("load penalties of list %d: %w", list.ID, err)
	}

	var out []model.AppliedPenalty
	for _, lp := range attached {
		p, err := s.penalty(ctx, lp.PenaltyID)
		if err != nil {
			return nil, err
		}
		if p.Dynamic {
			s.skip(ctx, list, p, "dynamic_attached")
			continue
		}
		value, ok := s.value(ctx, list, p)
		if !ok || value == 0 {
			continue
		}
		out = append(out, model.AppliedPenalty{Name: p.Name, Value: value})
	}

	for _, p := range s.dynamic {
		value, ok := s.value(ctx, list, p)
		if !ok || value == 0 {
			continue
		}
		deduction, known := s.r.evaluate(p.DynamicKind, list, value)
		if !known {
			s.skip(ctx, list, p, "unknown_dynamic_kind")
			continue
		}
		if deduction <= 0 {
			continue
		}
		out = append(out, model.AppliedPenalty{Name: p.Name, Value: deduction})
	}
	return out, nil
}

// value looks up the configured deduction for p, checking compatibility.
func (s *Session) value(ctx context.Context, list model.List, p model.Penalty) (float64, bool) {
	if !model.Compatible(p.MediaType, list.Domain) || !model.Compatible(p.MediaType, s.cfg.Domain) {
		s.skip(ctx, list, p, "incompatible_media_type")
		return 0, false
	}
	v, ok := s.values[p.ID]
	if !ok {
		return 0, false
	}
	if v < 0 || v > 100 {
		s.skip(ctx, list, p, "value_out_of_range")
		return 0, false
	}
	return float64(v), true
}

func (s *Session) penalty(ctx context.Context, id int64) (model.Penalty, error) {
	if p, ok := s.penalties[id]; ok {
		return p, nil
	}
	p, err := s.src.GetPenalty(ctx, id)
	if err != nil {
		return model.Penalty{}, fmt.Errorf("load penalty %d: %w", id, err)
	}
	s.penalties[id] = p
	return p, nil
}

func (s *Session) skip(ctx context.Context, list model.List, p model.Penalty, reason string) {
	metrics.RecordPenaltySkipped(reason)
	s.r.log.Warn(ctx, "penalty skipped",
		logger.Int64("configuration_id", s.cfg.ID),
		logger.Int64("list_id", list.ID),
		logger.Int64("penalty_id", p.ID),
		logger.String("reason", reason))
}

// evaluate computes a dynamic penalty's deduction from the list's live
// attributes. The second result is false for unknown kinds.
func (r *Resolver) evaluate(kind model.DynamicKind, list model.List, value float64) (float64, bool) {
	switch kind {
	case model.DynamicNumberOfVoters:
		if list.NumberOfVoters == nil || r.voterThreshold <= 1 {
			return 0, true
		}
		voters := *list.NumberOfVoters
		if voters >= r.voterThreshold {
			return 0, true
		}
		voters = max(voters, 1)
		scale := 1 - math.Log(float64(voters))/math.Log(float64(r.voterThreshold))
		return value * scale, true
	case model.DynamicVoterCountUnknown:
		return flag(list.VoterCountUnknown, value), true
	case model.DynamicVoterCountEstimated:
		return flag(list.VoterCountEstimated, value), true
	case model.DynamicVoterNamesUnknown:
		return flag(list.VoterNamesUnknown, value), true
	case model.DynamicCategorySpecific:
		return flag(list.CategorySpecific, value), true
	case model.DynamicLocationSpecific:
		return flag(list.LocationSpecific, value), true
	}
	return 0, false
}

func flag(set bool, value float64) float64 {
	if set {
		return value
	}
	return 0
}
