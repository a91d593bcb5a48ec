package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

// memData is the full state of a MemoryStore. Values are stored by value and
// never mutated in place, so a shallow map copy is a consistent snapshot.
type memData struct {
	seq           int64
	configs       map[int64]model.RankingConfiguration
	lists         map[int64]model.List
	items         map[int64]model.Item
	listItems     map[int64]model.ListItem
	penalties     map[int64]model.Penalty
	listPenalties map[int64]model.ListPenalty
	applications  map[int64]model.PenaltyApplication
	rankedLists   map[int64]model.RankedList
	rankedItems   map[int64][]model.RankedItem // by configuration, rank order
}

func newMemData() *memData {
	return &memData{
		configs:       make(map[int64]model.RankingConfiguration),
		lists:         make(map[int64]model.List),
		items:         make(map[int64]model.Item),
		listItems:     make(map[int64]model.ListItem),
		penalties:     make(map[int64]model.Penalty),
		listPenalties: make(map[int64]model.ListPenalty),
		applications:  make(map[int64]model.PenaltyApplication),
		rankedLists:   make(map[int64]model.RankedList),
		rankedItems:   make(map[int64][]model.RankedItem),
	}
}

func (d *memData) clone() *memData {
	return &memData{
		seq:           d.seq,
		configs:       maps.Clone(d.configs),
		lists:         maps.Clone(d.lists),
		items:         maps.Clone(d.items),
		listItems:     maps.Clone(d.listItems),
		penalties:     maps.Clone(d.penalties),
		listPenalties: maps.Clone(d.listPenalties),
		applications:  maps.Clone(d.applications),
		rankedLists:   maps.Clone(d.rankedLists),
		rankedItems:   maps.Clone(d.rankedItems),
	}
}

func (d *memData) nextID() int64 {
	d.seq++
	return d.seq
}

// memQueries implements Queries over one memData.
type memQueries struct {
	mu   sync.RWMutex
	gate *sync.Mutex // set on the live state so plain writes wait for open transactions
	d    *memData
	now  func() time.Time
}

func (q *memQueries) lockWrite() func() {
	if q.gate != nil {
		q.gate.Lock()
	}
	q.mu.Lock()
	return func() {
		q.mu.Unlock()
		if q.gate != nil {
			q.gate.Unlock()
		}
	}
}

// MemoryStore is an in-process Store. Transactions run against a private
// copy of the state that replaces the live state on success.
type MemoryStore struct {
	*memQueries
	txMu   sync.Mutex
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &MemoryStore{}
	s.memQueries = &memQueries{gate: &s.txMu, d: newMemData(), now: o.now}
	return s
}

// InTx runs fn against a snapshot and publishes it only if fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	start := time.Now()
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	snapshot := s.d.clone()
	s.mu.RUnlock()

	tx := &memQueries{d: snapshot, now: s.now}
	if err := fn(tx); err != nil {
		metrics.RecordRepositoryTx("memory", "rollback", time.Since(start).Seconds())
		return err
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordRepositoryTx("memory", "rollback", time.Since(start).Seconds())
		return fmt.Errorf("commit: %w", err)
	}

	s.mu.Lock()
	s.d = snapshot
	s.mu.Unlock()
	metrics.RecordRepositoryTx("memory", "commit", time.Since(start).Seconds())
	return nil
}

// Close marks the store closed; later transactions fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (q *memQueries) LockConfiguration(context.Context, int64) error { return nil }

func (q *memQueries) GetConfiguration(_ context.Context, id int64) (model.RankingConfiguration, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	c, ok := q.d.configs[id]
	if !ok {
		return model.RankingConfiguration{}, fmt.Errorf("configuration %d: %w", id, ErrNotFound)
	}
	return c, nil
}

func (q *memQueries) ListConfigurations(_ context.Context, f ConfigurationFilter) ([]model.RankingConfiguration, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]model.RankingConfiguration, 0, len(q.d.configs))
	for _, c := range q.d.configs {
		if f.Domain != "" && c.Domain != f.Domain {
			continue
		}
		if c.Archived && !f.IncludeArchived {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.RankingConfiguration) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (q *memQueries) PrimaryConfigurationIDs(_ context.Context, d model.Domain) ([]int64, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.d.primaryIDs(d), nil
}

func (d *memData) primaryIDs(domain model.Domain) []int64 {
	var ids []int64
	for _, c := range d.configs {
		if c.Domain == domain && c.Primary {
			ids = append(ids, c.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (d *memData) checkPrimary(c *model.RankingConfiguration) error {
	if !c.Primary {
		return nil
	}
	for _, id := range d.primaryIDs(c.Domain) {
		if id != c.ID {
			return fmt.Errorf("primary configuration for %s: %w", c.Domain, ErrConflict)
		}
	}
	return nil
}

func (q *memQueries) InsertConfiguration(_ context.Context, c *model.RankingConfiguration) error {
	defer q.lockWrite()()
	if err := q.d.checkPrimary(c); err != nil {
		return err
	}
	c.ID = q.d.nextID()
	c.CreatedAt = q.now()
	c.UpdatedAt = c.CreatedAt
	q.d.configs[c.ID] = *c
	return nil
}

func (q *memQueries) UpdateConfiguration(_ context.Context, c *model.RankingConfiguration) error {
	defer q.lockWrite()()
	prev, ok := q.d.configs[c.ID]
	if !ok {
		return fmt.Errorf("configuration %d: %w", c.ID, ErrNotFound)
	}
	if err := q.d.checkPrimary(c); err != nil {
		return err
	}
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = q.now()
	q.d.configs[c.ID] = *c
	return nil
}

func (q *memQueries) DeleteConfiguration(_ context.Context, id int64) error {
	defer q.lockWrite()()
	if _, ok := q.d.configs[id]; !ok {
		return fmt.Errorf("configuration %d: %w", id, ErrNotFound)
	}
	delete(q.d.configs, id)
	delete(q.d.rankedItems, id)
	maps.DeleteFunc(q.d.rankedLists, func(_ int64, rl model.RankedList) bool { return rl.ConfigurationID == id })
	maps.DeleteFunc(q.d.applications, func(_ int64, pa model.PenaltyApplication) bool { return pa.ConfigurationID == id })
	for cid, c := range q.d.configs {
		if c.InheritedFromID != nil && *c.InheritedFromID == id {
			c.InheritedFromID = nil
			q.d.configs[cid] = c
		}
	}
	return nil
}

func (q *memQueries) GetList(_ context.Context, id int64) (model.List, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	l, ok := q.d.lists[id]
	if !ok {
		return model.List{}, fmt.Errorf("list %d: %w", id, ErrNotFound)
	}
	return l, nil
}

func (q *memQueries) InsertList(_ context.Context, l *model.List) error {
	defer q.lockWrite()()
	l.ID = q.d.nextID()
	q.d.lists[l.ID] = *l
	return nil
}

func (q *memQueries) GetItem(_ context.Context, id int64) (model.Item, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	it, ok := q.d.items[id]
	if !ok {
		return model.Item{}, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return it, nil
}

func (q *memQueries) InsertItem(_ context.Context, it *model.Item) error {
	defer q.lockWrite()()
	it.ID = q.d.nextID()
	q.d.items[it.ID] = *it
	return nil
}

func (q *memQueries) InsertListItem(_ context.Context, li *model.ListItem) error {
	defer q.lockWrite()()
	it, ok := q.d.items[li.ItemID]
	if !ok {
		return fmt.Errorf("item %d: %w", li.ItemID, ErrNotFound)
	}
	for _, existing := range q.d.listItems {
		if existing.ListID == li.ListID && existing.ItemID == li.ItemID {
			return fmt.Errorf("item %d on list %d: %w", li.ItemID, li.ListID, ErrConflict)
		}
	}
	li.ID = q.d.nextID()
	li.ItemDomain = it.Domain
	q.d.listItems[li.ID] = *li
	return nil
}

func (q *memQueries) ListItems(_ context.Context, listID int64) ([]model.ListItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []model.ListItem
	for _, li := range q.d.listItems {
		if li.ListID == listID {
			out = append(out, li)
		}
	}
	slices.SortFunc(out, func(a, b model.ListItem) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return cmpID(a.ID, b.ID)
	})
	return out, nil
}

func (q *memQueries) GetPenalty(_ context.Context, id int64) (model.Penalty, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	p, ok := q.d.penalties[id]
	if !ok {
		return model.Penalty{}, fmt.Errorf("penalty %d: %w", id, ErrNotFound)
	}
	return p, nil
}

func (q *memQueries) InsertPenalty(_ context.Context, p *model.Penalty) error {
	defer q.lockWrite()()
	p.ID = q.d.nextID()
	q.d.penalties[p.ID] = *p
	return nil
}

func (q *memQueries) DynamicPenalties(context.Context) ([]model.Penalty, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []model.Penalty
	for _, p := range q.d.penalties {
		if p.Dynamic {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.Penalty) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (q *memQueries) InsertListPenalty(_ context.Context, lp *model.ListPenalty) error {
	defer q.lockWrite()()
	for _, existing := range q.d.listPenalties {
		if existing.ListID == lp.ListID && existing.PenaltyID == lp.PenaltyID {
			return fmt.Errorf("penalty %d on list %d: %w", lp.PenaltyID, lp.ListID, ErrConflict)
		}
	}
	lp.ID = q.d.nextID()
	q.d.listPenalties[lp.ID] = *lp
	return nil
}

func (q *memQueries) DeleteListPenalty(_ context.Context, listID, penaltyID int64) error {
	defer q.lockWrite()()
	for id, lp := range q.d.listPenalties {
		if lp.ListID == listID && lp.PenaltyID == penaltyID {
			delete(q.d.listPenalties, id)
			return nil
		}
	}
	return fmt.Errorf("penalty %d on list %d: %w", penaltyID, listID, ErrNotFound)
}

func (q *memQueries) ListPenalties(_ context.Context, listID int64) ([]model.ListPenalty, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []model.ListPenalty
	for _, lp := range q.d.listPenalties {
		if lp.ListID == listID {
			out = append(out, lp)
		}
	}
	slices.SortFunc(out, func(a, b model.ListPenalty) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (q *memQueries) GetPenaltyApplication(_ context.Context, id int64) (model.PenaltyApplication, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	pa, ok := q.d.applications[id]
	if !ok {
		return model.PenaltyApplication{}, fmt.Errorf("penalty application %d: %w", id, ErrNotFound)
	}
	return pa, nil
}

func (q *memQueries) InsertPenaltyApplication(_ context.Context, pa *model.PenaltyApplication) error {
	defer q.lockWrite()()
	for _, existing := range q.d.applications {
		if existing.PenaltyID == pa.PenaltyID && existing.ConfigurationID == pa.ConfigurationID {
			return fmt.Errorf("penalty %d under configuration %d: %w", pa.PenaltyID, pa.ConfigurationID, ErrConflict)
		}
	}
	pa.ID = q.d.nextID()
	q.d.applications[pa.ID] = *pa
	return nil
}

func (q *memQueries) UpdatePenaltyApplication(_ context.Context, pa *model.PenaltyApplication) error {
	defer q.lockWrite()()
	prev, ok := q.d.applications[pa.ID]
	if !ok {
		return fmt.Errorf("penalty application %d: %w", pa.ID, ErrNotFound)
	}
	prev.Value = pa.Value
	q.d.applications[pa.ID] = prev
	*pa = prev
	return nil
}

func (q *memQueries) DeletePenaltyApplication(_ context.Context, id int64) error {
	defer q.lockWrite()()
	if _, ok := q.d.applications[id]; !ok {
		return fmt.Errorf("penalty application %d: %w", id, ErrNotFound)
	}
	delete(q.d.applications, id)
	return nil
}

func (q *memQueries) PenaltyApplications(_ context.Context, configurationID int64) ([]model.PenaltyApplication, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []model.PenaltyApplication
	for _, pa := range q.d.applications {
		if pa.ConfigurationID == configurationID {
			out = append(out, pa)
		}
	}
	slices.SortFunc(out, func(a, b model.PenaltyApplication) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (q *memQueries) InsertRankedList(_ context.Context, rl *model.RankedList) error {
	defer q.lockWrite()()
	for _, existing := range q.d.rankedLists {
		if existing.ConfigurationID == rl.ConfigurationID && existing.ListID == rl.ListID {
			return fmt.Errorf("list %d under configuration %d: %w", rl.ListID, rl.ConfigurationID, ErrConflict)
		}
	}
	rl.ID = q.d.nextID()
	q.d.rankedLists[rl.ID] = cloneRankedList(*rl)
	return nil
}

func (q *memQueries) DeleteRankedList(_ context.Context, configurationID, listID int64) error {
	defer q.lockWrite()()
	for id, rl := range q.d.rankedLists {
		if rl.ConfigurationID == configurationID && rl.ListID == listID {
			delete(q.d.rankedLists, id)
			return nil
		}
	}
	return fmt.Errorf("list %d under configuration %d: %w", listID, configurationID, ErrNotFound)
}

func (q *memQueries) RankedLists(_ context.Context, configurationID int64) ([]model.RankedList, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []model.RankedList
	for _, rl := range q.d.rankedLists {
		if rl.ConfigurationID == configurationID {
			out = append(out, cloneRankedList(rl))
		}
	}
	slices.SortFunc(out, func(a, b model.RankedList) int { return cmpID(a.ListID, b.ListID) })
	return out, nil
}

func (q *memQueries) UpdateRankedListWeight(_ context.Context, id int64, weight float64, details model.WeightDetails) error {
	defer q.lockWrite()()
	rl, ok := q.d.rankedLists[id]
	if !ok {
		return fmt.Errorf("ranked list %d: %w", id, ErrNotFound)
	}
	rl.Weight = &weight
	details.Penalties = slices.Clone(details.Penalties)
	rl.Details = &details
	q.d.rankedLists[id] = rl
	return nil
}

func (q *memQueries) ReplaceRankedItems(_ context.Context, configurationID int64, items []model.RankedItem) error {
	defer q.lockWrite()()
	out := make([]model.RankedItem, len(items))
	seen := make(map[int64]struct{}, len(items))
	for i, it := range items {
		if _, dup := seen[it.ItemID]; dup {
			return fmt.Errorf("item %d under configuration %d: %w", it.ItemID, configurationID, ErrConflict)
		}
		seen[it.ItemID] = struct{}{}
		it.ConfigurationID = configurationID
		out[i] = it
	}
	slices.SortStableFunc(out, func(a, b model.RankedItem) int { return a.Rank - b.Rank })
	q.d.rankedItems[configurationID] = out
	return nil
}

func (q *memQueries) RankedItems(_ context.Context, configurationID int64, limit int) ([]model.RankedItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	items := q.d.rankedItems[configurationID]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return slices.Clone(items), nil
}

func (q *memQueries) RankedItem(_ context.Context, configurationID, itemID int64) (model.RankedItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, it := range q.d.rankedItems[configurationID] {
		if it.ItemID == itemID {
			return it, nil
		}
	}
	return model.RankedItem{}, fmt.Errorf("item %d under configuration %d: %w", itemID, configurationID, ErrNotFound)
}

func cloneRankedList(rl model.RankedList) model.RankedList {
	if rl.Weight != nil {
		w := *rl.Weight
		rl.Weight = &w
	}
	if rl.Details != nil {
		d := *rl.Details
		d.Penalties = slices.Clone(d.Penalties)
		rl.Details = &d
	}
	return rl
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
