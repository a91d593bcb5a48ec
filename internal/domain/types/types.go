// Package types contains read shapes shared by the service and its adapters.
package types

import "github.com/ssherman/the-greatest-sub000/internal/domain/model"

// Entry is one materialized ranking position.
type Entry struct {
	Rank   int     `json:"rank"`
	ItemID int64   `json:"item_id"`
	Title  string  `json:"title,omitempty"`
	Score  float64 `json:"score"`
}

// NewEntry builds an Entry from a stored ranked item.
func NewEntry(ri model.RankedItem, title string) Entry {
	return Entry{Rank: ri.Rank, ItemID: ri.ItemID, Title: title, Score: ri.Score}
}

// ListEntry is a list's weight within a configuration with its breakdown.
// Weight is nil until the configuration has been recalculated.
type ListEntry struct {
	ListID  int64                `json:"list_id"`
	Name    string               `json:"name,omitempty"`
	Status  model.ListStatus     `json:"status,omitempty"`
	Weight  *float64             `json:"weight"`
	Details *model.WeightDetails `json:"calculated_weight_details,omitempty"`
}

// NewListEntry builds a ListEntry from a ranked list and its source list.
func NewListEntry(rl model.RankedList, list model.List) ListEntry {
	return ListEntry{
		ListID:  rl.ListID,
		Name:    list.Name,
		Status:  list.Status,
		Weight:  rl.Weight,
		Details: rl.Details,
	}
}

// RecalculationFailure reports one configuration that failed during a
// synchronous bulk recalculation.
type RecalculationFailure struct {
	ConfigurationID int64  `json:"configuration_id"`
	Error           string `json:"error"`
}
