package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/lock"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	service "github.com/ssherman/the-greatest-sub000/internal/app"
	"github.com/ssherman/the-greatest-sub000/internal/config"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestOpen(t *testing.T) {
	Convey("Given a default config", t, func() {
		ctx := context.Background()
		cfg := config.New()

		Convey("When opening the memory backend", func() {
			res, err := Open(ctx, cfg)
			So(err, ShouldBeNil)
			defer func() { _ = res.Close() }()

			Convey("Then it uses the memory store and a local locker", func() {
				_, isMemory := res.Store.(*repository.MemoryStore)
				_, isLocal := res.Locker.(*lock.LocalLocker)
				So(isMemory, ShouldBeTrue)
				So(isLocal, ShouldBeTrue)
				So(res.SQL(), ShouldBeNil)
			})
		})

		Convey("When opening an in-memory sqlite store", func() {
			cfg.StoreBackend = config.StoreSQLite
			cfg.DatabaseURL = ":memory:"

			res, err := Open(ctx, cfg)
			So(err, ShouldBeNil)
			defer func() { _ = res.Close() }()

			Convey("Then migrations have run", func() {
				So(res.SQL(), ShouldNotBeNil)
				version, err := repository.MigrationVersion(ctx, res.SQL().DB(), repository.DialectSQLite)
				So(err, ShouldBeNil)
				So(version, ShouldBeGreaterThan, 0)
			})

			Convey("And a service built from the config runs on it", func() {
				svc := service.New(ServiceOptions(cfg, res)...)
				So(svc.Start(ctx), ShouldBeNil)
				svc.Stop()

				_, err := res.Store.ListConfigurations(ctx, repository.ConfigurationFilter{})
				So(err, ShouldBeNil)
			})
		})

		Convey("When the config is invalid", func() {
			cfg.StoreBackend = "mongo"
			_, err := Open(ctx, cfg)

			Convey("Then it is rejected before anything opens", func() {
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When redis is unreachable", func() {
			cfg.LockBackend = config.LockRedis
			cfg.RedisAddr = "127.0.0.1:1"

			_, err := Open(ctx, cfg)

			Convey("Then opening fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "ping redis")
			})
		})
	})
}

func TestInitLogging(t *testing.T) {
	Convey("Given a config with an unknown log level", t, func() {
		cfg := config.New()
		cfg.LogLevel = "loud"
		cfg.LogFormat = "json"
		var buf bytes.Buffer

		Convey("When initializing logging", func() {
			err := InitLogging(context.Background(), cfg, logger.WithOutput(&buf))
			defer func() { _ = logger.Init() }()

			Convey("Then it warns and keeps going", func() {
				So(err, ShouldBeNil)
				So(buf.String(), ShouldContainSubstring, `"log_level":"loud"`)
			})
		})

		Convey("When the format is unknown", func() {
			cfg.LogFormat = "xml"
			err := InitLogging(context.Background(), cfg, logger.WithOutput(&buf))

			Convey("Then it fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
