package ranking

import (
	"context"
	"fmt"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/scoring"
)

// ListWeight is a computed weight for one RankedList row.
type ListWeight struct {
	RankedListID int64
	ListID       int64
	Weight       float64
	Details      model.WeightDetails
}

// Materializer writes a recalculation's output.
type Materializer struct{}

// Materialize stores every list weight and replaces the configuration's
// ranked items with scored. q must be transactional for the write to be
// all-or-nothing.
func (Materializer) Materialize(ctx context.Context, q repository.Queries, configurationID int64, weights []ListWeight, scored []scoring.Scored) error {
	for _, w := range weights {
		if err := q.UpdateRankedListWeight(ctx, w.RankedListID, w.Weight, w.Details); err != nil {
			return fmt.Errorf("store weight of list %d: %w", w.ListID, err)
		}
	}

	items := make([]model.RankedItem, 0, len(scored))
	for _, s := range scored {
		items = append(items, model.RankedItem{
			ConfigurationID: configurationID,
			ItemID:          s.ItemID,
			Rank:            s.Rank,
			Score:           s.Score,
		})
	}
	if err := q.ReplaceRankedItems(ctx, configurationID, items); err != nil {
		return fmt.Errorf("replace ranked items: %w", err)
	}
	return nil
}
