package config_test

import (
	"context"
	"testing"

	"github.com/fieldwork-io/fieldwork/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaults(t *testing.T) {
	Convey("Given default configuration", t, func() {
		cfg := config.New(context.Background())

		Convey("Then the service defaults are sane", func() {
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.StoreDriver, ShouldEqual, config.StoreDriverMemory)
			So(cfg.SQLitePath, ShouldNotBeEmpty)
			So(cfg.InsightQueueSize, ShouldBeGreaterThan, 0)
			So(cfg.WorkerCount, ShouldBeGreaterThan, 0)
			So(cfg.DedupeSize, ShouldBeGreaterThan, 0)
			So(cfg.MaxPageLimit, ShouldEqual, 100)
			So(cfg.ExtractionLatencyMinMS, ShouldEqual, 80)
			So(cfg.ExtractionLatencyMaxMS, ShouldEqual, 150)
		})

		Convey("Then every role has a default token", func() {
			tokens := cfg.RoleTokens()
			So(len(tokens), ShouldEqual, 4)
			So(tokens["researcher-token"], ShouldEqual, "researcher")
			So(tokens["webhook-token"], ShouldEqual, "webhook")
		})
	})
}

func TestRoleTokens(t *testing.T) {
	Convey("Given a config with a disabled role", t, func() {
		cfg := config.New(context.Background())
		cfg.WorkerToken = ""

		Convey("When mapping tokens to roles", func() {
			tokens := cfg.RoleTokens()

			Convey("Then the empty token is omitted", func() {
				So(len(tokens), ShouldEqual, 3)
				for token := range tokens {
					So(token, ShouldNotBeEmpty)
				}
			})
		})
	})
}
