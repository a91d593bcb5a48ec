package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/ssherman/the-greatest-sub000/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.LockBackend, convey.ShouldEqual, config.LockLocal)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.PendingSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.VoterCountThreshold, convey.ShouldEqual, 1000)
			convey.So(cfg.LockTTL(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New()

		cases := map[string]func(*config.Config){
			"empty addr":              func(c *config.Config) { c.Addr = "" },
			"unknown store":           func(c *config.Config) { c.StoreBackend = "mongo" },
			"sqlite without dsn":      func(c *config.Config) { c.StoreBackend = config.StoreSQLite },
			"unknown lock":            func(c *config.Config) { c.LockBackend = "zookeeper" },
			"redis without address":   func(c *config.Config) { c.LockBackend = config.LockRedis; c.RedisAddr = "" },
			"zero workers":            func(c *config.Config) { c.WorkerCount = 0 },
			"zero lock ttl":           func(c *config.Config) { c.LockTTLMS = 0 },
			"threshold of one":        func(c *config.Config) { c.VoterCountThreshold = 1 },
			"default above max limit": func(c *config.Config) { c.DefaultRankedItemsLimit = c.MaxRankedItemsLimit + 1 },
		}
		for name, mutate := range cases {
			convey.Convey("When it has "+name, func() {
				mutate(cfg)

				convey.Convey("Then it is invalid", func() {
					convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When it uses sqlite with a dsn", func() {
			cfg.StoreBackend = config.StoreSQLite
			cfg.DatabaseURL = "file:ranking.db"

			convey.Convey("Then it is valid", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
