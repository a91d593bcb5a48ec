package weight_test

import (
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/weight"
)

func intp(v int) *int { return &v }

var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCalculate(t *testing.T) {
	Convey("Given a calculator with a fixed clock", t, func() {
		calc := weight.NewCalculator(weight.WithClock(func() time.Time { return fixedNow }))
		cfg := model.NewConfiguration(model.DomainMusicAlbums, "Albums")
		cfg.ApplyListDatesPenalty = false
		list := model.List{ID: 1, Domain: model.DomainMusicAlbums}

		Convey("A list with no signals starts from the default base", func() {
			res, err := calc.Calculate(cfg, list, nil)
			So(err, ShouldBeNil)
			So(res.Weight, ShouldEqual, weight.DefaultBaseWeight)
			So(res.Details.Base.BaseWeight, ShouldEqual, weight.DefaultBaseWeight)
			So(res.Details.Base.MinimumWeight, ShouldEqual, 1)
			So(res.Details.FinalWeight, ShouldEqual, res.Weight)
			So(res.Details.CalculatedAt, ShouldEqual, fixedNow)
		})

		Convey("Estimated quality and the high quality flag shape the base", func() {
			list.EstimatedQuality = intp(60)
			list.HighQualitySource = true
			res, err := calc.Calculate(cfg, list, nil)
			So(err, ShouldBeNil)
			So(approx(res.Weight, 90), ShouldBeTrue)
		})

		Convey("Penalties multiply in order and are recorded verbatim", func() {
			res, err := calc.Calculate(cfg, list, []model.AppliedPenalty{
				{Name: "A", Value: 15},
				{Name: "B", Value: 50},
			})
			So(err, ShouldBeNil)
			So(approx(res.Weight, 100*0.85*0.5), ShouldBeTrue)
			So(res.Details.Penalties, ShouldResemble, []model.AppliedPenalty{{Name: "A", Value: 15}, {Name: "B", Value: 50}})
		})

		Convey("Removing a penalty raises the weight", func() {
			with, _ := calc.Calculate(cfg, list, []model.AppliedPenalty{{Name: "A", Value: 20}})
			without, _ := calc.Calculate(cfg, list, nil)
			So(without.Weight, ShouldBeGreaterThan, with.Weight)
		})

		Convey("The weight never drops below the floor", func() {
			cfg.MinListWeight = 30
			res, err := calc.Calculate(cfg, list, []model.AppliedPenalty{{Name: "Harsh", Value: 100}})
			So(err, ShouldBeNil)
			So(res.Weight, ShouldEqual, 30)
			So(res.Details.FinalWeight, ShouldEqual, 30)
		})

		Convey("A list with zero estimated quality gets the floor, never nothing", func() {
			list.EstimatedQuality = intp(0)
			res, err := calc.Calculate(cfg, list, nil)
			So(err, ShouldBeNil)
			So(res.Weight, ShouldEqual, 1)
			So(res.Details.Base.BaseWeight, ShouldEqual, 0)
		})

		Convey("List dates decay saturates at the maximum age", func() {
			cfg.ApplyListDatesPenalty = true
			cfg.MaxListDatesPenaltyAge = 50
			cfg.MaxListDatesPenaltyPercentage = 80

			list.YearPublished = intp(2000)
			res, err := calc.Calculate(cfg, list, nil)
			So(err, ShouldBeNil)
			So(approx(res.Weight, 100*(1-0.4)), ShouldBeTrue)
			So(res.Details.Penalties[0].Name, ShouldEqual, weight.ListDatesPenaltyName)

			list.YearPublished = intp(1900)
			old, _ := calc.Calculate(cfg, list, nil)
			list.YearPublished = intp(1950)
			older, _ := calc.Calculate(cfg, list, nil)
			So(approx(old.Weight, 20), ShouldBeTrue)
			So(approx(older.Weight, old.Weight), ShouldBeTrue)
		})

		Convey("A list published this year does not decay", func() {
			cfg.ApplyListDatesPenalty = true
			list.YearPublished = intp(2025)
			res, _ := calc.Calculate(cfg, list, nil)
			So(res.Weight, ShouldEqual, 100)
			So(res.Details.Penalties, ShouldBeEmpty)
		})

		Convey("Malformed signals are reported", func() {
			list.NumberOfVoters = intp(-3)
			_, err := calc.Calculate(cfg, list, nil)
			So(errors.Is(err, weight.ErrMalformedSignals), ShouldBeTrue)

			list.NumberOfVoters = nil
			list.YearPublished = intp(2031)
			_, err = calc.Calculate(cfg, list, nil)
			So(errors.Is(err, weight.ErrMalformedSignals), ShouldBeTrue)

			Convey("And the floor stands in for them", func() {
				cfg.MinListWeight = 7
				res := calc.Floor(cfg)
				So(res.Weight, ShouldEqual, 7)
				So(res.Details.Base.BaseWeight, ShouldEqual, 0)
				So(res.Details.Base.MinimumWeight, ShouldEqual, 7)
				So(res.Details.Penalties, ShouldBeEmpty)
				So(res.Details.FinalWeight, ShouldEqual, 7)
				So(res.Details.CalculatedAt, ShouldEqual, fixedNow)
			})
		})

		Convey("Curves can be swapped", func() {
			custom := weight.NewCalculator(
				weight.WithClock(func() time.Time { return fixedNow }),
				weight.WithBaseWeight(func(model.List, time.Time) (float64, error) { return 10, nil }),
				weight.WithDecay(func(int, int, int) float64 { return 50 }),
			)
			cfg.ApplyListDatesPenalty = true
			list.YearPublished = intp(2020)
			res, err := custom.Calculate(cfg, list, nil)
			So(err, ShouldBeNil)
			So(res.Weight, ShouldEqual, 5)
		})
	})
}

func TestLinearDecay(t *testing.T) {
	Convey("LinearDecay is zero for fresh lists and capped for old ones", t, func() {
		So(weight.LinearDecay(0, 50, 80), ShouldEqual, 0)
		So(weight.LinearDecay(-2, 50, 80), ShouldEqual, 0)
		So(weight.LinearDecay(25, 50, 80), ShouldEqual, 40)
		So(weight.LinearDecay(500, 50, 80), ShouldEqual, 80)
		So(weight.LinearDecay(10, 0, 80), ShouldEqual, 0)
	})
}
