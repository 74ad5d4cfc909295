package rolegate_test

import (
	"errors"
	"testing"

	"github.com/fieldwork-io/fieldwork/internal/domain/rolegate"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGateResolve(t *testing.T) {
	Convey("Given a gate with configured tokens", t, func() {
		gate := rolegate.New(map[string]rolegate.Role{
			"tok-participant": rolegate.RoleParticipant,
			"tok-researcher":  rolegate.RoleResearcher,
			"tok-webhook":     rolegate.RoleWebhook,
			"tok-worker":      rolegate.RoleWorker,
			"":                rolegate.RoleResearcher,
		})

		Convey("When resolving a known token", func() {
			role, err := gate.Resolve("tok-researcher")

			Convey("Then it should yield the assigned role", func() {
				So(err, ShouldBeNil)
				So(role, ShouldEqual, rolegate.RoleResearcher)
			})
		})

		Convey("When resolving an unknown token", func() {
			_, err := gate.Resolve("tok-bogus")

			Convey("Then it should fail with ErrUnknownToken", func() {
				So(errors.Is(err, rolegate.ErrUnknownToken), ShouldBeTrue)
			})
		})

		Convey("When resolving the empty token", func() {
			_, err := gate.Resolve("")

			Convey("Then the empty assignment should have been dropped", func() {
				So(errors.Is(err, rolegate.ErrUnknownToken), ShouldBeTrue)
			})
		})
	})
}

func TestGateAuthorize(t *testing.T) {
	Convey("Given a gate with one token per role", t, func() {
		gate := rolegate.New(map[string]rolegate.Role{
			"tok-participant": rolegate.RoleParticipant,
			"tok-researcher":  rolegate.RoleResearcher,
			"tok-webhook":     rolegate.RoleWebhook,
			"tok-worker":      rolegate.RoleWorker,
		})

		Convey("Then participants may apply but not review", func() {
			_, err := gate.Authorize("tok-participant", rolegate.OpSubmitApplication)
			So(err, ShouldBeNil)

			role, err := gate.Authorize("tok-participant", rolegate.OpReviewApplication)
			So(errors.Is(err, rolegate.ErrForbidden), ShouldBeTrue)
			So(role, ShouldEqual, rolegate.RoleParticipant)
		})

		Convey("Then researchers may perform every operation", func() {
			ops := []rolegate.Operation{
				rolegate.OpCreateStudy,
				rolegate.OpSubmitApplication,
				rolegate.OpReviewApplication,
				rolegate.OpScheduleMatch,
				rolegate.OpIngestSession,
				rolegate.OpIngestTranscript,
				rolegate.OpGenerateInsight,
				rolegate.OpReadInsights,
				rolegate.OpReadStats,
				rolegate.OpListApplications,
				rolegate.OpRegisterParticipant,
			}
			for _, op := range ops {
				_, err := gate.Authorize("tok-researcher", op)
				So(err, ShouldBeNil)
			}
		})

		Convey("Then webhook callers are limited to ingestion", func() {
			_, err := gate.Authorize("tok-webhook", rolegate.OpIngestSession)
			So(err, ShouldBeNil)
			_, err = gate.Authorize("tok-webhook", rolegate.OpIngestTranscript)
			So(err, ShouldBeNil)
			_, err = gate.Authorize("tok-webhook", rolegate.OpCreateStudy)
			So(errors.Is(err, rolegate.ErrForbidden), ShouldBeTrue)
		})

		Convey("Then workers may only generate insights", func() {
			_, err := gate.Authorize("tok-worker", rolegate.OpGenerateInsight)
			So(err, ShouldBeNil)
			_, err = gate.Authorize("tok-worker", rolegate.OpReadInsights)
			So(errors.Is(err, rolegate.ErrForbidden), ShouldBeTrue)
		})

		Convey("Then an unknown token never reaches the policy table", func() {
			_, err := gate.Authorize("tok-bogus", rolegate.OpReadStats)
			So(errors.Is(err, rolegate.ErrUnknownToken), ShouldBeTrue)
		})

		Convey("Then an unknown operation is denied for everyone", func() {
			So(gate.Allowed(rolegate.RoleResearcher, rolegate.Operation("drop_tables")), ShouldBeFalse)
		})
	})
}
