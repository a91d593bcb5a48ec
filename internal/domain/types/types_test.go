package types_test

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/types"
)

func TestEntry(t *testing.T) {
	Convey("Given a stored ranked item", t, func() {
		ri := model.RankedItem{ConfigurationID: 3, ItemID: 11, Rank: 2, Score: 87.25}

		Convey("NewEntry copies rank, item and score", func() {
			e := types.NewEntry(ri, "Kind of Blue")
			So(e, ShouldResemble, types.Entry{Rank: 2, ItemID: 11, Title: "Kind of Blue", Score: 87.25})
		})

		Convey("An untitled entry leaves the title out of JSON", func() {
			b, err := json.Marshal(types.NewEntry(ri, ""))
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"rank":2,"item_id":11,"score":87.25}`)
		})
	})
}

func TestListEntry(t *testing.T) {
	Convey("Given a ranked list", t, func() {
		list := model.List{ID: 5, Name: "Critics", Status: model.ListApproved}

		Convey("Before recalculation the weight is null", func() {
			b, err := json.Marshal(types.NewListEntry(model.RankedList{ListID: 5}, list))
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, `"weight":null`)
			So(string(b), ShouldNotContainSubstring, "calculated_weight_details")
		})

		Convey("After recalculation the breakdown is included", func() {
			w := 42.5
			details := model.WeightDetails{
				CalculatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				Base:         model.WeightBase{BaseWeight: 50, MinimumWeight: 1},
				Penalties:    []model.AppliedPenalty{{Name: "Lazy", Value: 15}},
				FinalWeight:  w,
			}
			e := types.NewListEntry(model.RankedList{ListID: 5, Weight: &w, Details: &details}, list)
			So(*e.Weight, ShouldEqual, 42.5)
			So(e.Name, ShouldEqual, "Critics")

			b, err := json.Marshal(e)
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, `"penalty_name":"Lazy"`)
			So(string(b), ShouldContainSubstring, `"final_weight":42.5`)
		})
	})
}
