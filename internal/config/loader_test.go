package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/ssherman/the-greatest-sub000/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RANKING_ADDR", ":8080")
			_ = os.Setenv("RANKING_QUEUE_SIZE", "4096")
			_ = os.Setenv("RANKING_WORKER_COUNT", "16")
			_ = os.Setenv("RANKING_STORE_BACKEND", "postgres")
			_ = os.Setenv("RANKING_DATABASE_URL", "postgres://ranking@localhost/ranking")
			_ = os.Setenv("RANKING_AUTO_MIGRATE", "false")
			_ = os.Setenv("RANKING_VOTER_COUNT_THRESHOLD", "500")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 4096)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StorePostgres)
				convey.So(cfg.DatabaseURL, convey.ShouldEqual, "postgres://ranking@localhost/ranking")
				convey.So(cfg.AutoMigrate, convey.ShouldBeFalse)
				convey.So(cfg.VoterCountThreshold, convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
store_backend: sqlite
database_url: "file:ranking.db"
lock_backend: redis
redis_addr: "redis:6379"
lock_ttl_ms: 30000
pending_size: 500
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RANKING_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.DatabaseURL, convey.ShouldEqual, "file:ranking.db")
				convey.So(cfg.LockBackend, convey.ShouldEqual, config.LockRedis)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "redis:6379")
				convey.So(cfg.LockTTLMS, convey.ShouldEqual, 30000)
				convey.So(cfg.PendingSize, convey.ShouldEqual, 500)
				// untouched keys keep their defaults
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
queue_size: 2048
worker_count: 24
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RANKING_CONFIG", tmpFile)
			_ = os.Setenv("RANKING_ADDR", ":8080")
			_ = os.Setenv("RANKING_WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 2048)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When the file is passed explicitly", func() {
			tmpFile := createTempConfigFile("worker_count: 3\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RANKING_CONFIG", "/nonexistent/ranking.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, config.WithFile(tmpFile))

			convey.Convey("Then it takes precedence over RANKING_CONFIG", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile("addr: [unclosed\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RANKING_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("RANKING_CONFIG", "/nonexistent/ranking.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("RANKING_QUEUE_SIZE", "lots")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the loaded values are invalid", func() {
			_ = os.Setenv("RANKING_STORE_BACKEND", "sqlite")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "ranking-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
