package model

import "time"

// Configuration defaults.
const (
	DefaultAlgorithmVersion              = 1
	DefaultExponent                      = 3.0
	DefaultBonusPoolPercentage           = 3.0
	DefaultMinListWeight                 = 1
	DefaultMaxListDatesPenaltyAge        = 50
	DefaultMaxListDatesPenaltyPercentage = 80
)

// RankingConfiguration is one tunable aggregation run definition for a domain.
type RankingConfiguration struct {
	ID     int64
	Name   string
	Domain Domain

	AlgorithmVersion    int
	Exponent            float64
	BonusPoolPercentage float64
	MinListWeight       int

	MaxListDatesPenaltyAge        int
	MaxListDatesPenaltyPercentage int
	ApplyListDatesPenalty         bool

	InheritPenalties bool
	Global           bool
	UserID           *int64
	Primary          bool
	ListLimit        *int
	InheritedFromID  *int64
	PublishedAt      *time.Time
	Archived         bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewConfiguration returns a global configuration for d populated with defaults.
func NewConfiguration(d Domain, name string) RankingConfiguration {
	return RankingConfiguration{
		Name:                          name,
		Domain:                        d,
		AlgorithmVersion:              DefaultAlgorithmVersion,
		Exponent:                      DefaultExponent,
		BonusPoolPercentage:           DefaultBonusPoolPercentage,
		MinListWeight:                 DefaultMinListWeight,
		MaxListDatesPenaltyAge:        DefaultMaxListDatesPenaltyAge,
		MaxListDatesPenaltyPercentage: DefaultMaxListDatesPenaltyPercentage,
		ApplyListDatesPenalty:         true,
		Global:                        true,
	}
}

// ListStatus is the review state of a curated list.
type ListStatus string

// List review states. Only approved lists participate in rankings.
const (
	ListUnapproved ListStatus = "unapproved"
	ListApproved   ListStatus = "approved"
	ListRejected   ListStatus = "rejected"
)

// List is a curated source ranking with its quality signals.
type List struct {
	ID     int64
	Domain Domain
	Name   string
	Source string
	Status ListStatus

	NumberOfVoters      *int
	HighQualitySource   bool
	VoterCountEstimated bool
	VoterCountUnknown   bool
	VoterNamesUnknown   bool
	CategorySpecific    bool
	LocationSpecific    bool
	YearlyAward         bool
	YearPublished       *int
	EstimatedQuality    *int
}

// Item is a rankable work (album, song, movie, game or book).
type Item struct {
	ID     int64
	Domain Domain
	Title  string
}

// ListItem is the ordered membership of an item in a list.
type ListItem struct {
	ID       int64
	ListID   int64
	ItemID   int64
	Position int
	Verified bool

	// ItemDomain is filled by the store from the referenced item.
	ItemDomain Domain
}

// DynamicKind names the list attribute a dynamic penalty is computed from.
type DynamicKind string

// Dynamic penalty kinds.
const (
	DynamicNumberOfVoters      DynamicKind = "number_of_voters"
	DynamicVoterCountUnknown   DynamicKind = "voter_count_unknown"
	DynamicVoterCountEstimated DynamicKind = "voter_count_estimated"
	DynamicVoterNamesUnknown   DynamicKind = "voter_names_unknown"
	DynamicCategorySpecific    DynamicKind = "category_specific"
	DynamicLocationSpecific    DynamicKind = "location_specific"
)

// Valid reports whether k is a known dynamic kind.
func (k DynamicKind) Valid() bool {
	switch k {
	case DynamicNumberOfVoters, DynamicVoterCountUnknown, DynamicVoterCountEstimated,
		DynamicVoterNamesUnknown, DynamicCategorySpecific, DynamicLocationSpecific:
		return true
	}
	return false
}

// Penalty is a named reason to discount a list's influence.
type Penalty struct {
	ID          int64
	Name        string
	Description string
	MediaType   MediaType
	Global      bool
	UserID      *int64
	Dynamic     bool
	DynamicKind DynamicKind
}

// ListPenalty attaches a static penalty to a list.
type ListPenalty struct {
	ID        int64
	ListID    int64
	PenaltyID int64
}

// PenaltyApplication is the percentage deduction a penalty causes under one configuration.
type PenaltyApplication struct {
	ID              int64
	PenaltyID       int64
	ConfigurationID int64
	Value           int
}

// RankedList is the computed weight of one list within one configuration.
// Weight stays nil until the first recalculation.
type RankedList struct {
	ID              int64
	ConfigurationID int64
	ListID          int64
	Weight          *float64
	Details         *WeightDetails
}

// WeightDetails is the audit breakdown stored with a list's weight.
type WeightDetails struct {
	CalculatedAt time.Time        `json:"calculated_at"`
	Base         WeightBase       `json:"base"`
	Penalties    []AppliedPenalty `json:"penalties"`
	FinalWeight  float64          `json:"final_weight"`
}

// WeightBase holds the starting values of a weight computation.
type WeightBase struct {
	BaseWeight    float64 `json:"base_weight"`
	MinimumWeight float64 `json:"minimum_weight"`
}

// AppliedPenalty is one deduction, in percent, applied during weighting.
type AppliedPenalty struct {
	Name  string  `json:"penalty_name"`
	Value float64 `json:"value"`
}

// RankedItem is the materialized rank and score of an item within one configuration.
type RankedItem struct {
	ConfigurationID int64
	ItemID          int64
	Rank            int
	Score           float64
}
