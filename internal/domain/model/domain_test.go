package model_test

import (
	"errors"
	"testing"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCompatible(t *testing.T) {
	Convey("Given the penalty media types", t, func() {
		Convey("Cross media penalties fit every domain", func() {
			for _, d := range model.Domains() {
				So(model.Compatible(model.MediaCrossMedia, d), ShouldBeTrue)
			}
		})

		Convey("Music penalties fit both music domains only", func() {
			So(model.Compatible(model.MediaMusic, model.DomainMusicAlbums), ShouldBeTrue)
			So(model.Compatible(model.MediaMusic, model.DomainMusicSongs), ShouldBeTrue)
			So(model.Compatible(model.MediaMusic, model.DomainBooks), ShouldBeFalse)
			So(model.Compatible(model.MediaMusic, model.DomainMovies), ShouldBeFalse)
		})

		Convey("Books penalties do not fit music albums", func() {
			So(model.Compatible(model.MediaBooks, model.DomainMusicAlbums), ShouldBeFalse)
			So(model.Compatible(model.MediaBooks, model.DomainBooks), ShouldBeTrue)
		})

		Convey("Unknown domains are never compatible", func() {
			So(model.Compatible(model.MediaCrossMedia, model.Domain("comics")), ShouldBeFalse)
		})
	})
}

func TestParse(t *testing.T) {
	Convey("ParseDomain accepts canonical and short spellings", t, func() {
		d, err := model.ParseDomain("music-albums")
		So(err, ShouldBeNil)
		So(d, ShouldEqual, model.DomainMusicAlbums)

		d, err = model.ParseDomain(" Songs ")
		So(err, ShouldBeNil)
		So(d, ShouldEqual, model.DomainMusicSongs)

		_, err = model.ParseDomain("comics")
		So(errors.Is(err, model.ErrUnknownDomain), ShouldBeTrue)
	})

	Convey("ParseMediaType maps global to cross media", t, func() {
		m, err := model.ParseMediaType("global")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, model.MediaCrossMedia)

		_, err = model.ParseMediaType("podcasts")
		So(errors.Is(err, model.ErrUnknownMediaType), ShouldBeTrue)
	})

	Convey("NewConfiguration carries the documented defaults", t, func() {
		c := model.NewConfiguration(model.DomainMovies, "Movies")
		So(c.Exponent, ShouldEqual, 3.0)
		So(c.BonusPoolPercentage, ShouldEqual, 3.0)
		So(c.MinListWeight, ShouldEqual, 1)
		So(c.Global, ShouldBeTrue)
		So(c.Primary, ShouldBeFalse)
	})
}
