package registry

import (
	"fmt"
	"time"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
)

// Bounds on configuration tunables.
const (
	MaxExponent   = 10.0
	MaxPercentage = 100
)

// ValidateConfiguration checks c in isolation. Rules that need stored data
// (primary uniqueness, inheritance source) are checked by the Registry.
func ValidateConfiguration(c model.RankingConfiguration) error {
	ve := &ValidationError{}
	if c.Name == "" {
		ve.add("name", "can't be blank")
	}
	if !c.Domain.Valid() {
		ve.add("domain", fmt.Sprintf("%q is not a known domain", c.Domain))
	}
	if c.AlgorithmVersion < 1 {
		ve.add("algorithm_version", "must be greater than 0")
	}
	if c.Exponent <= 0 || c.Exponent > MaxExponent {
		ve.add("exponent", fmt.Sprintf("must be greater than 0 and at most %g", MaxExponent))
	}
	if c.BonusPoolPercentage < 0 || c.BonusPoolPercentage > MaxPercentage {
		ve.add("bonus_pool_percentage", "must be between 0 and 100")
	}
	if c.MinListWeight < 0 {
		ve.add("min_list_weight", "must be greater than or equal to 0")
	}
	if c.MaxListDatesPenaltyAge < 0 {
		ve.add("max_list_dates_penalty_age", "must be greater than or equal to 0")
	}
	if c.MaxListDatesPenaltyPercentage < 0 || c.MaxListDatesPenaltyPercentage > MaxPercentage {
		ve.add("max_list_dates_penalty_percentage", "must be between 0 and 100")
	}
	if c.ListLimit != nil && *c.ListLimit < 1 {
		ve.add("list_limit", "must be greater than 0")
	}
	validateOwner(ve, c.Global, c.UserID)
	if c.InheritedFromID != nil && c.ID != 0 && *c.InheritedFromID == c.ID {
		ve.add("inherited_from", "can't be the configuration itself")
	}
	return ve.orNil()
}

// ValidatePenalty checks p's media type, ownership and dynamic kind.
func ValidatePenalty(p model.Penalty) error {
	ve := &ValidationError{}
	if p.Name == "" {
		ve.add("name", "can't be blank")
	}
	if !p.MediaType.Valid() {
		ve.add("media_type", fmt.Sprintf("%q is not a known media type", p.MediaType))
	}
	if p.Global && p.MediaType.Valid() && p.MediaType != model.MediaCrossMedia {
		ve.add("media_type", fmt.Sprintf("must be %s when global", model.MediaCrossMedia))
	}
	validateOwner(ve, p.Global, p.UserID)
	switch {
	case p.Dynamic && !p.DynamicKind.Valid():
		ve.add("dynamic_kind", fmt.Sprintf("%q is not a known dynamic kind", p.DynamicKind))
	case !p.Dynamic && p.DynamicKind != "":
		ve.add("dynamic_kind", "must be blank for static penalties")
	}
	return ve.orNil()
}

// ValidateValue checks a penalty application percentage.
func ValidateValue(v int) error {
	if v < 0 || v > MaxPercentage {
		return invalid("value", "must be between 0 and 100")
	}
	return nil
}

func validateOwner(ve *ValidationError, global bool, userID *int64) {
	switch {
	case global && userID != nil:
		ve.add("user", "must be blank when global")
	case !global && userID == nil:
		ve.add("user", "must exist unless global")
	}
}

// CloneForInheritance copies every tunable of src into a new unsaved
// configuration that inherits from it. The clone is never primary and
// never published. Penalty applications are not copied.
func CloneForInheritance(src model.RankingConfiguration) model.RankingConfiguration {
	c := src
	c.ID = 0
	c.Primary = false
	c.PublishedAt = nil
	c.Archived = false
	id := src.ID
	c.InheritedFromID = &id
	if src.ListLimit != nil {
		limit := *src.ListLimit
		c.ListLimit = &limit
	}
	if src.UserID != nil {
		uid := *src.UserID
		c.UserID = &uid
	}
	c.CreatedAt = time.Time{}
	c.UpdatedAt = time.Time{}
	return c
}
