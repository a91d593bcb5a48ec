// Package repository defines the ranking store contract and its implementations.
package repository

import (
	"context"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
)

// ConfigurationFilter narrows ListConfigurations.
type ConfigurationFilter struct {
	Domain          model.Domain // empty matches every domain
	IncludeArchived bool
}

// Queries is the set of reads and writes available both inside and outside
// a transaction.
type Queries interface {
	// LockConfiguration serializes recalculations of one configuration for the
	// remainder of the current transaction. Backends without cross-process
	// contention treat it as a no-op.
	LockConfiguration(ctx context.Context, id int64) error

	GetConfiguration(ctx context.Context, id int64) (model.RankingConfiguration, error)
	ListConfigurations(ctx context.Context, f ConfigurationFilter) ([]model.RankingConfiguration, error)
	// PrimaryConfigurationIDs returns ids of every primary configuration in d.
	PrimaryConfigurationIDs(ctx context.Context, d model.Domain) ([]int64, error)
	InsertConfiguration(ctx context.Context, c *model.RankingConfiguration) error
	UpdateConfiguration(ctx context.Context, c *model.RankingConfiguration) error
	// DeleteConfiguration removes the configuration with its ranked lists,
	// ranked items and penalty applications.
	DeleteConfiguration(ctx context.Context, id int64) error

	GetList(ctx context.Context, id int64) (model.List, error)
	InsertList(ctx context.Context, l *model.List) error
	GetItem(ctx context.Context, id int64) (model.Item, error)
	InsertItem(ctx context.Context, it *model.Item) error
	InsertListItem(ctx context.Context, li *model.ListItem) error
	// ListItems returns a list's memberships ordered by position, then id.
	ListItems(ctx context.Context, listID int64) ([]model.ListItem, error)

	GetPenalty(ctx context.Context, id int64) (model.Penalty, error)
	InsertPenalty(ctx context.Context, p *model.Penalty) error
	// DynamicPenalties returns every dynamic penalty ordered by id.
	DynamicPenalties(ctx context.Context) ([]model.Penalty, error)
	InsertListPenalty(ctx context.Context, lp *model.ListPenalty) error
	DeleteListPenalty(ctx context.Context, listID, penaltyID int64) error
	// ListPenalties returns a list's attachments in insertion order.
	ListPenalties(ctx context.Context, listID int64) ([]model.ListPenalty, error)

	GetPenaltyApplication(ctx context.Context, id int64) (model.PenaltyApplication, error)
	InsertPenaltyApplication(ctx context.Context, pa *model.PenaltyApplication) error
	UpdatePenaltyApplication(ctx context.Context, pa *model.PenaltyApplication) error
	DeletePenaltyApplication(ctx context.Context, id int64) error
	PenaltyApplications(ctx context.Context, configurationID int64) ([]model.PenaltyApplication, error)

	InsertRankedList(ctx context.Context, rl *model.RankedList) error
	DeleteRankedList(ctx context.Context, configurationID, listID int64) error
	// RankedLists returns a configuration's ranked lists ordered by list id.
	RankedLists(ctx context.Context, configurationID int64) ([]model.RankedList, error)
	UpdateRankedListWeight(ctx context.Context, id int64, weight float64, details model.WeightDetails) error

	// ReplaceRankedItems swaps the full ranked item set of a configuration.
	ReplaceRankedItems(ctx context.Context, configurationID int64, items []model.RankedItem) error
	// RankedItems returns ranked items by rank; limit <= 0 returns all.
	RankedItems(ctx context.Context, configurationID int64, limit int) ([]model.RankedItem, error)
	RankedItem(ctx context.Context, configurationID, itemID int64) (model.RankedItem, error)
}

// Store is a Queries that can also run a function inside one transaction.
// Either every write made through the Queries passed to fn is committed,
// or none is. InTx must not be nested.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
