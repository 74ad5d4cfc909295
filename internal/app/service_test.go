package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fieldwork-io/fieldwork/internal/adapters/repository"
	service "github.com/fieldwork-io/fieldwork/internal/app"
	"github.com/fieldwork-io/fieldwork/internal/domain/model"
	"github.com/fieldwork-io/fieldwork/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// screenedCriteria is the screener used across the service tests: one
// weighted language rule plus a mandatory purchase-count rule.
const screenedCriteria = `{
	"threshold": 50,
	"rules": [
		{"field": "languages", "op": "includesAny", "target": ["English", "Arabic"], "weight": 30},
		{"field": "answers.purchases30d", "op": "gte", "target": 2, "weight": 30, "must": true}
	]
}`

func startService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithWorkerCount(2),
		service.WithQueueSize(100),
		service.WithDedupeSize(100),
		service.WithExtractionLatencyRange(time.Millisecond, 2*time.Millisecond),
	}
	svc := service.New(append(base, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(1))

		Convey("When started", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			Reset(svc.Stop)

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(context.Background()), ShouldBeNil)
			})

			Convey("And stats report the running state", func() {
				stats, err := svc.GetStats(context.Background())
				So(err, ShouldBeNil)
				So(stats["started"], ShouldBeTrue)
				So(stats["queueLength"], ShouldEqual, 0)
			})
		})

		Convey("When stats are requested before starting", func() {
			_, err := svc.GetStats(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When stopped before starting", func() {
			So(svc.Stop, ShouldNotPanic)
		})
	})
}

func TestStudiesAndParticipants(t *testing.T) {
	Convey("Given a running service", t, func() {
		svc := startService()
		Reset(svc.Stop)
		ctx := context.Background()

		Convey("When creating a study with valid criteria", func() {
			study, err := svc.CreateStudy(ctx, "Checkout usability", json.RawMessage(screenedCriteria), false, 5)

			Convey("Then the study starts recruiting", func() {
				So(err, ShouldBeNil)
				So(study.ID, ShouldNotBeEmpty)
				So(study.Status, ShouldEqual, model.StudyRecruiting)

				got, err := svc.GetStudy(ctx, study.ID)
				So(err, ShouldBeNil)
				So(got.Title, ShouldEqual, "Checkout usability")
			})

			Convey("And it can be closed", func() {
				closed, err := svc.CloseStudy(ctx, study.ID)
				So(err, ShouldBeNil)
				So(closed.Status, ShouldEqual, model.StudyClosed)
			})
		})

		Convey("When creating a study with malformed criteria", func() {
			_, err := svc.CreateStudy(ctx, "Broken", json.RawMessage(`{"threshold": }`), false, 0)

			Convey("Then creation fails with ErrInvalidCriteria", func() {
				So(errors.Is(err, service.ErrInvalidCriteria), ShouldBeTrue)
			})
		})

		Convey("When registering a participant without an id", func() {
			participant, err := svc.RegisterParticipant(ctx, "", map[string]interface{}{"country": "DE"})

			Convey("Then an id is generated", func() {
				So(err, ShouldBeNil)
				So(participant.ID, ShouldNotBeEmpty)

				got, err := svc.GetParticipant(ctx, participant.ID)
				So(err, ShouldBeNil)
				So(got.Profile["country"], ShouldEqual, "DE")
			})
		})
	})
}

func TestSubmitApplication(t *testing.T) {
	Convey("Given a recruiting study with criteria", t, func() {
		svc := startService()
		Reset(svc.Stop)
		ctx := context.Background()

		study, err := svc.CreateStudy(ctx, "Checkout usability", json.RawMessage(screenedCriteria), false, 0)
		So(err, ShouldBeNil)
		participant, err := svc.RegisterParticipant(ctx, "part-1", map[string]interface{}{
			"languages": []interface{}{"English"},
		})
		So(err, ShouldBeNil)

		Convey("When the applicant passes screening", func() {
			app, err := svc.SubmitApplication(ctx, study.ID, participant.ID, map[string]interface{}{
				"purchases30d": float64(3),
			})

			Convey("Then the application is pending with the screening score", func() {
				So(err, ShouldBeNil)
				So(app.Score, ShouldEqual, 60)
				So(app.Status, ShouldEqual, model.ApplicationPending)
			})

			Convey("And a second submission for the same pair conflicts", func() {
				_, err := svc.SubmitApplication(ctx, study.ID, participant.ID, map[string]interface{}{
					"purchases30d": float64(3),
				})
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})
		})

		Convey("When the applicant fails a must rule", func() {
			app, err := svc.SubmitApplication(ctx, study.ID, participant.ID, map[string]interface{}{
				"purchases30d": float64(1),
			})

			Convey("Then the application is stored pending with zero score", func() {
				So(err, ShouldBeNil)
				So(app.Score, ShouldEqual, 0)
				So(app.Status, ShouldEqual, model.ApplicationPending)

				stored, err := svc.GetApplication(ctx, app.ID)
				So(err, ShouldBeNil)
				So(stored.Status, ShouldEqual, model.ApplicationPending)
			})

			Convey("And the researcher can still review it", func() {
				rejected, err := svc.RejectApplication(ctx, app.ID)
				So(err, ShouldBeNil)
				So(rejected.Status, ShouldEqual, model.ApplicationRejected)
			})
		})

		Convey("When the study is closed", func() {
			_, err := svc.CloseStudy(ctx, study.ID)
			So(err, ShouldBeNil)

			_, err = svc.SubmitApplication(ctx, study.ID, participant.ID, nil)

			Convey("Then submission fails with ErrStudyClosed", func() {
				So(errors.Is(err, service.ErrStudyClosed), ShouldBeTrue)
			})
		})

		Convey("When the study is unknown", func() {
			_, err := svc.SubmitApplication(ctx, "nope", participant.ID, nil)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the participant is unknown", func() {
			_, err := svc.SubmitApplication(ctx, study.ID, "nope", nil)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given an auto-approving study", t, func() {
		svc := startService()
		Reset(svc.Stop)
		ctx := context.Background()

		study, err := svc.CreateStudy(ctx, "Fast screen", json.RawMessage(screenedCriteria), true, 0)
		So(err, ShouldBeNil)
		_, err = svc.RegisterParticipant(ctx, "part-1", map[string]interface{}{
			"languages": []interface{}{"English"},
		})
		So(err, ShouldBeNil)

		Convey("When the applicant clears the threshold", func() {
			app, err := svc.SubmitApplication(ctx, study.ID, "part-1", map[string]interface{}{
				"purchases30d": float64(3),
			})

			Convey("Then the application is approved with a match waiting", func() {
				So(err, ShouldBeNil)
				So(app.Status, ShouldEqual, model.ApplicationApproved)

				stored, err := svc.GetApplication(ctx, app.ID)
				So(err, ShouldBeNil)
				So(stored.Status, ShouldEqual, model.ApplicationApproved)
			})
		})
	})

	Convey("Given a study without criteria", t, func() {
		svc := startService()
		Reset(svc.Stop)
		ctx := context.Background()

		study, err := svc.CreateStudy(ctx, "Open call", nil, false, 0)
		So(err, ShouldBeNil)
		_, err = svc.RegisterParticipant(ctx, "part-1", nil)
		So(err, ShouldBeNil)

		Convey("When anyone applies", func() {
			app, err := svc.SubmitApplication(ctx, study.ID, "part-1", nil)

			Convey("Then the application lands in manual review", func() {
				So(err, ShouldBeNil)
				So(app.Score, ShouldEqual, 0)
				So(app.Status, ShouldEqual, model.ApplicationPending)
			})
		})
	})
}

func TestReviewOperations(t *testing.T) {
	Convey("Given a pending application", t, func() {
		svc := startService()
		Reset(svc.Stop)
		ctx := context.Background()

		study, err := svc.CreateStudy(ctx, "Manual review", nil, false, 1)
		So(err, ShouldBeNil)
		_, err = svc.RegisterParticipant(ctx, "part-1", nil)
		So(err, ShouldBeNil)
		app, err := svc.SubmitApplication(ctx, study.ID, "part-1", nil)
		So(err, ShouldBeNil)

		Convey("When approving it", func() {
			match, created, err := svc.ApproveApplication(ctx, app.ID)

			Convey("Then a match is created once", func() {
				So(err, ShouldBeNil)
				So(created, ShouldBeTrue)
				So(match.Status, ShouldEqual, model.MatchAwaitingSchedule)
			})

			Convey("And approving again is idempotent", func() {
				again, created, err := svc.ApproveApplication(ctx, app.ID)
				So(err, ShouldBeNil)
				So(created, ShouldBeFalse)
				So(again.ID, ShouldEqual, match.ID)
			})

			Convey("And a later applicant hits the participant cap", func() {
				_, err := svc.RegisterParticipant(ctx, "part-2", nil)
				So(err, ShouldBeNil)
				second, err := svc.SubmitApplication(ctx, study.ID, "part-2", nil)
				So(err, ShouldBeNil)

				_, _, err = svc.ApproveApplication(ctx, second.ID)
				So(errors.Is(err, service.ErrStudyFull), ShouldBeTrue)
			})

			Convey("And the match can be scheduled", func() {
				at := time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC)
				scheduled, err := svc.ScheduleMatch(ctx, match.ID, at, "cal-evt-1")
				So(err, ShouldBeNil)
				So(scheduled.Status, ShouldEqual, model.MatchScheduled)
				So(scheduled.ScheduledAt.Equal(at), ShouldBeTrue)
			})
		})

		Convey("When rejecting it", func() {
			rejected, err := svc.RejectApplication(ctx, app.ID)

			Convey("Then the status is terminal", func() {
				So(err, ShouldBeNil)
				So(rejected.Status, ShouldEqual, model.ApplicationRejected)

				_, _, err := svc.ApproveApplication(ctx, app.ID)
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})
		})

		Convey("When waitlisting it", func() {
			waitlisted, err := svc.WaitlistApplication(ctx, app.ID)
			So(err, ShouldBeNil)
			So(waitlisted.Status, ShouldEqual, model.ApplicationWaitlist)
		})

		Convey("When listing the study's applications", func() {
			apps, err := svc.ListApplications(ctx, study.ID, 0)
			So(err, ShouldBeNil)
			So(len(apps), ShouldEqual, 1)
			So(apps[0].ID, ShouldEqual, app.ID)
		})
	})
}
