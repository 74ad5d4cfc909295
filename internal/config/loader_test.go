package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fieldwork-io/fieldwork/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given a clean environment", t, func() {
		// t.Setenv cleanup only runs at test end, so clear the variables
		// after each Convey leaf to keep the scenarios isolated.
		Reset(func() {
			for _, key := range []string{
				"FIELDWORK_ADDR",
				"FIELDWORK_QUEUE_SIZE",
				"FIELDWORK_STORE_DRIVER",
				"FIELDWORK_SQLITE_PATH",
				"FIELDWORK_CONFIG",
				"FIELDWORK_EXTRACTION_LATENCY_MIN_MS",
				"FIELDWORK_EXTRACTION_LATENCY_MAX_MS",
			} {
				os.Unsetenv(key)
			}
		})

		Convey("When loading with no overrides", func() {
			cfg, err := config.Load(context.Background())

			Convey("Then defaults come through", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9080")
				So(cfg.StoreDriver, ShouldEqual, config.StoreDriverMemory)
			})
		})

		Convey("When environment variables override defaults", func() {
			t.Setenv("FIELDWORK_ADDR", ":7070")
			t.Setenv("FIELDWORK_QUEUE_SIZE", "512")
			t.Setenv("FIELDWORK_STORE_DRIVER", "sqlite")
			t.Setenv("FIELDWORK_SQLITE_PATH", "/tmp/fw.db")

			cfg, err := config.Load(context.Background())

			Convey("Then the overrides win", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7070")
				So(cfg.InsightQueueSize, ShouldEqual, 512)
				So(cfg.StoreDriver, ShouldEqual, config.StoreDriverSQLite)
				So(cfg.SQLitePath, ShouldEqual, "/tmp/fw.db")
			})
		})

		Convey("When a YAML file is provided", func() {
			path := filepath.Join(t.TempDir(), "config.yaml")
			So(os.WriteFile(path, []byte("addr: \":6060\"\nworker_count: 2\nresearcher_token: \"file-token\"\n"), 0o600), ShouldBeNil)
			t.Setenv("FIELDWORK_CONFIG", path)

			cfg, err := config.Load(context.Background())

			Convey("Then file values layer over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":6060")
				So(cfg.WorkerCount, ShouldEqual, 2)
				So(cfg.RoleTokens()["file-token"], ShouldEqual, "researcher")
			})

			Convey("And env still beats the file", func() {
				t.Setenv("FIELDWORK_ADDR", ":5050")
				cfg, err := config.Load(context.Background())
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":5050")
			})
		})

		Convey("When the config file is missing", func() {
			t.Setenv("FIELDWORK_CONFIG", "/does/not/exist.yaml")
			_, err := config.Load(context.Background())

			Convey("Then loading fails with ErrLoadConfig", func() {
				So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
			})
		})

		Convey("When validation fails", func() {
			Convey("Because the store driver is unknown", func() {
				t.Setenv("FIELDWORK_STORE_DRIVER", "postgres")
				_, err := config.Load(context.Background())
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})

			Convey("Because the address is empty", func() {
				t.Setenv("FIELDWORK_ADDR", "")
				_, err := config.Load(context.Background())
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})

			Convey("Because the latency bounds are inverted", func() {
				t.Setenv("FIELDWORK_EXTRACTION_LATENCY_MIN_MS", "500")
				t.Setenv("FIELDWORK_EXTRACTION_LATENCY_MAX_MS", "100")
				_, err := config.Load(context.Background())
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})
		})
	})
}
