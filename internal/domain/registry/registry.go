// Package registry owns ranking configurations and the rows that tie lists
// and penalties to them. Every write is validated synchronously and either
// fully applied or rejected with a ValidationError.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

// Registry validates and persists configuration writes.
type Registry struct {
	store repository.Store
	log   logger.Logger
}

// New creates a Registry over store.
func New(store repository.Store, opts ...Option) *Registry {
	r := &Registry{store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("registry")
	}
	return r
}

// CreateConfiguration validates and inserts c, filling its ID.
func (r *Registry) CreateConfiguration(ctx context.Context, c *model.RankingConfiguration) error {
	if err := r.check(ValidateConfiguration(*c)); err != nil {
		return err
	}
	err := r.store.InTx(ctx, func(q repository.Queries) error {
		if err := r.checkStored(ctx, q, *c); err != nil {
			return err
		}
		return conflictAs(q.InsertConfiguration(ctx, c), "primary", primaryTaken(c.Domain))
	})
	if err != nil {
		return r.check(err)
	}
	r.log.Info(ctx, "configuration created",
		logger.Int64("configuration_id", c.ID),
		logger.String("domain", string(c.Domain)),
		logger.Bool("primary", c.Primary))
	return nil
}

// UpdateConfiguration validates and stores c. The domain of a stored
// configuration never changes.
func (r *Registry) UpdateConfiguration(ctx context.Context, c *model.RankingConfiguration) error {
	if err := r.check(ValidateConfiguration(*c)); err != nil {
		return err
	}
	err := r.store.InTx(ctx, func(q repository.Queries) error {
		prev, err := q.GetConfiguration(ctx, c.ID)
		if err != nil {
			return err
		}
		if prev.Domain != c.Domain {
			return invalid("domain", "can't be changed")
		}
		if err := r.checkStored(ctx, q, *c); err != nil {
			return err
		}
		return conflictAs(q.UpdateConfiguration(ctx, c), "primary", primaryTaken(c.Domain))
	})
	if err != nil {
		return r.check(err)
	}
	r.log.Info(ctx, "configuration updated", logger.Int64("configuration_id", c.ID))
	return nil
}

// checkStored enforces the rules that depend on other rows. It runs inside
// the write's transaction.
func (r *Registry) checkStored(ctx context.Context, q repository.Queries, c model.RankingConfiguration) error {
	ve := &ValidationError{}
	if c.Primary {
		ids, err := q.PrimaryConfigurationIDs(ctx, c.Domain)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id != c.ID {
				ve.add("primary", primaryTaken(c.Domain))
				break
			}
		}
	}
	if c.InheritedFromID != nil {
		src, err := q.GetConfiguration(ctx, *c.InheritedFromID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			ve.add("inherited_from", "must exist")
		case err != nil:
			return err
		case src.Domain != c.Domain:
			ve.add("inherited_from", fmt.Sprintf("must be a %s configuration", c.Domain.Label()))
		}
	}
	return ve.orNil()
}

// CloneConfiguration stores a copy of the source configuration that
// inherits from it. An empty name keeps the source's name.
func (r *Registry) CloneConfiguration(ctx context.Context, sourceID int64, name string) (model.RankingConfiguration, error) {
	var clone model.RankingConfiguration
	err := r.store.InTx(ctx, func(q repository.Queries) error {
		src, err := q.GetConfiguration(ctx, sourceID)
		if err != nil {
			return err
		}
		clone = CloneForInheritance(src)
		if name != "" {
			clone.Name = name
		}
		if err := ValidateConfiguration(clone); err != nil {
			return err
		}
		return q.InsertConfiguration(ctx, &clone)
	})
	if err != nil {
		return model.RankingConfiguration{}, r.check(err)
	}
	r.log.Info(ctx, "configuration cloned",
		logger.Int64("configuration_id", clone.ID),
		logger.Int64("inherited_from", sourceID))
	return clone, nil
}

// DeleteConfiguration removes a configuration with its ranked lists, ranked
// items and penalty applications.
func (r *Registry) DeleteConfiguration(ctx context.Context, id int64) error {
	if err := r.store.InTx(ctx, func(q repository.Queries) error {
		return q.DeleteConfiguration(ctx, id)
	}); err != nil {
		return r.check(err)
	}
	r.log.Info(ctx, "configuration deleted", logger.Int64("configuration_id", id))
	return nil
}

// CreatePenalty validates and inserts p.
func (r *Registry) CreatePenalty(ctx context.Context, p *model.Penalty) error {
	if err := r.check(ValidatePenalty(*p)); err != nil {
		return err
	}
	return r.check(r.store.InsertPenalty(ctx, p))
}

// AddList ranks a list under a configuration of the same domain.
func (r *Registry) AddList(ctx context.Context, configurationID, listID int64) (model.RankedList, error) {
	rl := model.RankedList{ConfigurationID: configurationID, ListID: listID}
	err := r.store.InTx(ctx, func(q repository.Queries) error {
		cfg, err := q.GetConfiguration(ctx, configurationID)
		if err != nil {
			return err
		}
		list, err := r.getList(ctx, q, listID)
		if err != nil {
			return err
		}
		if list.Domain != cfg.Domain {
			return invalid("list", fmt.Sprintf("%s list cannot be ranked by a %s configuration",
				list.Domain.Label(), cfg.Domain.Label()))
		}
		return conflictAs(q.InsertRankedList(ctx, &rl), "list", "has already been added to this configuration")
	})
	if err != nil {
		return model.RankedList{}, r.check(err)
	}
	return rl, nil
}

// RemoveList stops ranking a list under a configuration.
func (r *Registry) RemoveList(ctx context.Context, configurationID, listID int64) error {
	return r.check(r.store.DeleteRankedList(ctx, configurationID, listID))
}

// AttachPenalty attaches a static, compatible penalty to a list.
func (r *Registry) AttachPenalty(ctx context.Context, listID, penaltyID int64) (model.ListPenalty, error) {
	lp := model.ListPenalty{ListID: listID, PenaltyID: penaltyID}
	err := r.store.InTx(ctx, func(q repository.Queries) error {
		list, err := r.getList(ctx, q, listID)
		if err != nil {
			return err
		}
		p, err := r.getPenalty(ctx, q, penaltyID)
		if err != nil {
			return err
		}
		if p.Dynamic {
			return invalid("penalty", "is dynamic and can't be attached to a list")
		}
		if !model.Compatible(p.MediaType, list.Domain) {
			return invalid("penalty", fmt.Sprintf("%s penalty cannot be applied to a %s list",
				p.MediaType.Label(), list.Domain.Label()))
		}
		return conflictAs(q.InsertListPenalty(ctx, &lp), "penalty", "is already attached to this list")
	})
	if err != nil {
		return model.ListPenalty{}, r.check(err)
	}
	return lp, nil
}

// DetachPenalty removes a penalty from a list.
func (r *Registry) DetachPenalty(ctx context.Context, listID, penaltyID int64) error {
	return r.check(r.store.DeleteListPenalty(ctx, listID, penaltyID))
}

// ApplyPenalty prices a penalty for a configuration.
func (r *Registry) ApplyPenalty(ctx context.Context, configurationID, penaltyID int64, value int) (model.PenaltyApplication, error) {
	if err := r.check(ValidateValue(value)); err != nil {
		return model.PenaltyApplication{}, err
	}
	pa := model.PenaltyApplication{ConfigurationID: configurationID, PenaltyID: penaltyID, Value: value}
	err := r.store.InTx(ctx, func(q repository.Queries) error {
		cfg, err := q.GetConfiguration(ctx, configurationID)
		if err != nil {
			return err
		}
		p, err := r.getPenalty(ctx, q, penaltyID)
		if err != nil {
			return err
		}
		if !model.Compatible(p.MediaType, cfg.Domain) {
			return invalid("penalty", fmt.Sprintf("%s penalty cannot be applied to a %s configuration",
				p.MediaType.Label(), cfg.Domain.Label()))
		}
		return conflictAs(q.InsertPenaltyApplication(ctx, &pa), "penalty", "has already been applied to this configuration")
	})
	if err != nil {
		return model.PenaltyApplication{}, r.check(err)
	}
	return pa, nil
}

// UpdatePenaltyApplication changes the value of an existing application.
func (r *Registry) UpdatePenaltyApplication(ctx context.Context, id int64, value int) (model.PenaltyApplication, error) {
	if err := r.check(ValidateValue(value)); err != nil {
		return model.PenaltyApplication{}, err
	}
	var pa model.PenaltyApplication
	err := r.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		if pa, err = q.GetPenaltyApplication(ctx, id); err != nil {
			return err
		}
		pa.Value = value
		return q.UpdatePenaltyApplication(ctx, &pa)
	})
	if err != nil {
		return model.PenaltyApplication{}, r.check(err)
	}
	return pa, nil
}

// RemovePenaltyApplication deletes an application.
func (r *Registry) RemovePenaltyApplication(ctx context.Context, id int64) error {
	return r.check(r.store.DeletePenaltyApplication(ctx, id))
}

// CopyPenaltyApplications copies every application of one configuration to
// another of the same domain, leaving penalties the target already prices
// untouched. It returns the number of rows copied.
func (r *Registry) CopyPenaltyApplications(ctx context.Context, fromID, toID int64) (int, error) {
	var copied int
	err := r.store.InTx(ctx, func(q repository.Queries) error {
		copied = 0
		from, err := q.GetConfiguration(ctx, fromID)
		if err != nil {
			return err
		}
		to, err := q.GetConfiguration(ctx, toID)
		if err != nil {
			return err
		}
		if from.Domain != to.Domain {
			return invalid("inherited_from", fmt.Sprintf("must be a %s configuration", to.Domain.Label()))
		}
		existing, err := q.PenaltyApplications(ctx, toID)
		if err != nil {
			return err
		}
		priced := make(map[int64]bool, len(existing))
		for _, pa := range existing {
			priced[pa.PenaltyID] = true
		}
		source, err := q.PenaltyApplications(ctx, fromID)
		if err != nil {
			return err
		}
		for _, pa := range source {
			if priced[pa.PenaltyID] {
				continue
			}
			dup := model.PenaltyApplication{PenaltyID: pa.PenaltyID, ConfigurationID: toID, Value: pa.Value}
			if err := q.InsertPenaltyApplication(ctx, &dup); err != nil {
				return err
			}
			copied++
		}
		return nil
	})
	if err != nil {
		return 0, r.check(err)
	}
	r.log.Info(ctx, "penalty applications copied",
		logger.Int64("from_configuration_id", fromID),
		logger.Int64("configuration_id", toID),
		logger.Int("copied", copied))
	return copied, nil
}

func (r *Registry) getList(ctx context.Context, q repository.Queries, id int64) (model.List, error) {
	list, err := q.GetList(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.List{}, invalid("list", "must exist")
	}
	return list, err
}

func (r *Registry) getPenalty(ctx context.Context, q repository.Queries, id int64) (model.Penalty, error) {
	p, err := q.GetPenalty(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Penalty{}, invalid("penalty", "must exist")
	}
	return p, err
}

// check counts validation failures and passes err through.
func (r *Registry) check(err error) error {
	if errors.Is(err, ErrValidation) {
		metrics.RecordErrorByComponent("registry", "validation")
	}
	return err
}

func conflictAs(err error, field, message string) error {
	if errors.Is(err, repository.ErrConflict) {
		return invalid(field, message)
	}
	return err
}

func primaryTaken(d model.Domain) string {
	return fmt.Sprintf("is already taken by another %s configuration", d.Label())
}
