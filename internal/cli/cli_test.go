package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ssherman/the-greatest-sub000/internal/domain/types"
)

func execute(args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRankctl(t *testing.T) {
	Convey("Given a fresh sqlite database file", t, func() {
		dsn := filepath.Join(t.TempDir(), "ranking.db")
		store := []string{"--store", "sqlite", "--database-url", dsn}
		with := func(args ...string) []string { return append(append([]string{}, store...), args...) }

		Convey("migrate reports a schema version", func() {
			out, err := execute(with("migrate", "--json")...)
			So(err, ShouldBeNil)

			var v struct{ Version int64 }
			So(json.Unmarshal([]byte(out), &v), ShouldBeNil)
			So(v.Version, ShouldBeGreaterThan, 0)

			out, err = execute(with("migrate", "--status")...)
			So(err, ShouldBeNil)
			So(out, ShouldStartWith, "schema version ")
		})

		Convey("seed, then show and lists read the same database", func() {
			out, err := execute(with("seed", "--items", "30", "--lists", "4", "--list-size", "10", "--json")...)
			So(err, ShouldBeNil)

			var seeded struct {
				ConfigurationID int64 `json:"configuration_id"`
				Lists           int   `json:"lists"`
			}
			So(json.Unmarshal([]byte(out), &seeded), ShouldBeNil)
			So(seeded.Lists, ShouldEqual, 4)
			id := strconv.FormatInt(seeded.ConfigurationID, 10)

			out, err = execute(with("show", "-c", id, "-n", "5", "--json")...)
			So(err, ShouldBeNil)
			var entries []types.Entry
			So(json.Unmarshal([]byte(out), &entries), ShouldBeNil)
			So(entries, ShouldNotBeEmpty)
			So(len(entries), ShouldBeLessThanOrEqualTo, 5)
			So(entries[0].Rank, ShouldEqual, 1)

			out, err = execute(with("show", "-c", id, "-n", "3")...)
			So(err, ShouldBeNil)
			So(strings.ToUpper(out), ShouldContainSubstring, "RANK")

			out, err = execute(with("lists", "-c", id, "--json")...)
			So(err, ShouldBeNil)
			var lists []types.ListEntry
			So(json.Unmarshal([]byte(out), &lists), ShouldBeNil)
			So(lists, ShouldHaveLength, 4)

			out, err = execute(with("recalculate", "-c", id)...)
			So(err, ShouldBeNil)
			So(strings.ToUpper(out), ShouldContainSubstring, "WEIGHTED")

			out, err = execute(with("recalculate-all", "--domain", "music_albums", "--json")...)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"summaries"`)
		})

		Convey("show of an unknown configuration fails", func() {
			_, err := execute(with("show", "-c", "42")...)
			So(err, ShouldNotBeNil)
		})

		Convey("recalculate requires a configuration flag", func() {
			_, err := execute(with("recalculate")...)
			So(err, ShouldNotBeNil)
		})

		Convey("an unknown domain is rejected", func() {
			_, err := execute(with("recalculate-all", "--domain", "podcasts")...)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given the memory store", t, func() {
		Convey("migrate is refused", func() {
			_, err := execute("migrate")
			So(err, ShouldEqual, errNeedsSQLStore)
		})

		Convey("seed works without persisting", func() {
			out, err := execute("seed", "--items", "10", "--lists", "2", "--list-size", "5")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "10 items, 2 lists, 6 penalties")
		})
	})

	Convey("Given an invalid store flag", t, func() {
		_, err := execute("--store", "mongo", "show", "-c", "1")
		So(err, ShouldNotBeNil)
	})
}
