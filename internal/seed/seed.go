// Package seed fills a store with deterministic synthetic ranking data for
// demos and integration tests.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/registry"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

// Generation ranges.
const (
	minQuality          = 40
	qualitySpan         = 61
	minVoters           = 5
	voterSpan           = 5000
	firstYear           = 1960
	highQualityPercent  = 25
	unknownVotersPct    = 15
	unapprovedPercent   = 10
	unverifiedPercent   = 5
	staticPenaltyChance = 30
)

// Config describes what to generate.
type Config struct {
	Domain   model.Domain
	Name     string
	Items    int
	Lists    int
	ListSize int
	Seed     uint64
	Primary  bool
	// OwnerID owns the domain-scoped penalties. Cross media ones are global.
	OwnerID int64
}

// DefaultConfig returns a small music albums data set.
func DefaultConfig() Config {
	return Config{
		Domain:   model.DomainMusicAlbums,
		Name:     "Greatest Albums",
		Items:    200,
		Lists:    12,
		ListSize: 50,
		Seed:     42,
		Primary:  true,
		OwnerID:  1,
	}
}

// Result lists what was created.
type Result struct {
	ConfigurationID int64
	ItemIDs         []int64
	ListIDs         []int64
	PenaltyIDs      []int64
}

type seedPenalty struct {
	name  string
	media model.MediaType
	kind  model.DynamicKind
	value int
}

// Run generates cfg into store. Configuration, penalty and ranked list
// writes go through reg so the same validation as the admin surface
// applies. The same Seed always yields the same data.
func Run(ctx context.Context, store repository.Store, reg *registry.Registry, cfg Config) (Result, error) {
	if cfg.Items < 1 || cfg.Lists < 1 || cfg.ListSize < 1 {
		return Result{}, fmt.Errorf("seed: items, lists and list size must be positive")
	}
	cfg.ListSize = min(cfg.ListSize, cfg.Items)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed))
	log := logger.Get().Named("seed")
	var res Result

	conf := model.NewConfiguration(cfg.Domain, cfg.Name)
	conf.Primary = cfg.Primary
	if err := reg.CreateConfiguration(ctx, &conf); err != nil {
		return Result{}, fmt.Errorf("seed configuration: %w", err)
	}
	res.ConfigurationID = conf.ID

	var static []model.Penalty
	for _, def := range seedPenalties(cfg.Domain) {
		p := model.Penalty{
			Name:        fmt.Sprintf("%s (%s)", def.name, cfg.Domain.Label()),
			MediaType:   def.media,
			Global:      def.media == model.MediaCrossMedia,
			Dynamic:     def.kind != "",
			DynamicKind: def.kind,
		}
		if !p.Global {
			owner := cfg.OwnerID
			p.UserID = &owner
		}
		if err := reg.CreatePenalty(ctx, &p); err != nil {
			return Result{}, fmt.Errorf("seed penalty %q: %w", p.Name, err)
		}
		if _, err := reg.ApplyPenalty(ctx, conf.ID, p.ID, def.value); err != nil {
			return Result{}, fmt.Errorf("seed penalty value %q: %w", p.Name, err)
		}
		res.PenaltyIDs = append(res.PenaltyIDs, p.ID)
		if !p.Dynamic {
			static = append(static, p)
		}
	}

	err := store.InTx(ctx, func(q repository.Queries) error {
		for i := range cfg.Items {
			it := model.Item{Domain: cfg.Domain, Title: fmt.Sprintf("%s #%d", cfg.Domain.Label(), i+1)}
			if err := q.InsertItem(ctx, &it); err != nil {
				return err
			}
			res.ItemIDs = append(res.ItemIDs, it.ID)
		}
		for i := range cfg.Lists {
			l := randomList(rng, cfg.Domain, i)
			if err := q.InsertList(ctx, &l); err != nil {
				return err
			}
			res.ListIDs = append(res.ListIDs, l.ID)
			for pos, idx := range rng.Perm(len(res.ItemIDs))[:cfg.ListSize] {
				li := model.ListItem{
					ListID:   l.ID,
					ItemID:   res.ItemIDs[idx],
					Position: pos + 1,
					Verified: rng.IntN(100) >= unverifiedPercent,
				}
				if err := q.InsertListItem(ctx, &li); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed lists: %w", err)
	}

	for _, listID := range res.ListIDs {
		if _, err := reg.AddList(ctx, conf.ID, listID); err != nil {
			return Result{}, fmt.Errorf("seed ranked list %d: %w", listID, err)
		}
		for _, p := range static {
			if rng.IntN(100) >= staticPenaltyChance {
				continue
			}
			if _, err := reg.AttachPenalty(ctx, listID, p.ID); err != nil {
				return Result{}, fmt.Errorf("seed list penalty %d: %w", listID, err)
			}
		}
	}

	log.Info(ctx, "seeded ranking data",
		logger.Int64("configuration_id", res.ConfigurationID),
		logger.String("domain", string(cfg.Domain)),
		logger.Int("items", len(res.ItemIDs)),
		logger.Int("lists", len(res.ListIDs)),
		logger.Int("penalties", len(res.PenaltyIDs)))
	return res, nil
}

func seedPenalties(d model.Domain) []seedPenalty {
	return []seedPenalty{
		{name: "Single critic", media: model.MediaCrossMedia, value: 10},
		{name: "Genre specific", media: d.MediaType(), value: 15},
		{name: "Low voter count", media: model.MediaCrossMedia, kind: model.DynamicNumberOfVoters, value: 30},
		{name: "Voter names unknown", media: model.MediaCrossMedia, kind: model.DynamicVoterNamesUnknown, value: 10},
		{name: "Category specific", media: model.MediaCrossMedia, kind: model.DynamicCategorySpecific, value: 20},
		{name: "Location specific", media: model.MediaCrossMedia, kind: model.DynamicLocationSpecific, value: 15},
	}
}

func randomList(rng *rand.Rand, d model.Domain, i int) model.List {
	quality := minQuality + rng.IntN(qualitySpan)
	year := firstYear + rng.IntN(time.Now().Year()-firstYear+1)
	l := model.List{
		Domain:            d,
		Name:              fmt.Sprintf("%s list %d", d.Label(), i+1),
		Source:            "seed",
		Status:            model.ListApproved,
		EstimatedQuality:  &quality,
		YearPublished:     &year,
		HighQualitySource: rng.IntN(100) < highQualityPercent,
		VoterNamesUnknown: rng.IntN(2) == 0,
		CategorySpecific:  rng.IntN(4) == 0,
		LocationSpecific:  rng.IntN(5) == 0,
	}
	if rng.IntN(100) < unknownVotersPct {
		l.VoterCountUnknown = true
	} else {
		voters := minVoters + rng.IntN(voterSpan)
		l.NumberOfVoters = &voters
		l.VoterCountEstimated = rng.IntN(3) == 0
	}
	if rng.IntN(100) < unapprovedPercent {
		l.Status = model.ListUnapproved
	}
	return l
}
