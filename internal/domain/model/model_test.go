package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fieldwork-io/fieldwork/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestApplicationStatusTerminal(t *testing.T) {
	Convey("Given application statuses", t, func() {
		Convey("Then pending is the only non-terminal status", func() {
			So(model.ApplicationPending.Terminal(), ShouldBeFalse)
			So(model.ApplicationApproved.Terminal(), ShouldBeTrue)
			So(model.ApplicationRejected.Terminal(), ShouldBeTrue)
			So(model.ApplicationWaitlist.Terminal(), ShouldBeTrue)
		})
	})
}

func TestEntityJSONShapes(t *testing.T) {
	Convey("Given domain entities", t, func() {
		Convey("When marshaling an application", func() {
			app := model.Application{
				ID:            "app-1",
				StudyID:       "study-1",
				ParticipantID: "part-1",
				Answers:       map[string]interface{}{"purchases30d": 3},
				Score:         60,
				Status:        model.ApplicationPending,
				CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			}
			raw, err := json.Marshal(app)

			Convey("Then it should use snake_case keys", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldContainSubstring, `"study_id":"study-1"`)
				So(string(raw), ShouldContainSubstring, `"participant_id":"part-1"`)
				So(string(raw), ShouldContainSubstring, `"status":"pending"`)
			})
		})

		Convey("When marshaling a match without a schedule", func() {
			m := model.Match{
				ID:            "match-1",
				ApplicationID: "app-1",
				Status:        model.MatchAwaitingSchedule,
			}
			raw, err := json.Marshal(m)

			Convey("Then the nil scheduled_at should be omitted", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldNotContainSubstring, "scheduled_at")
				So(string(raw), ShouldContainSubstring, `"status":"awaiting_schedule"`)
			})
		})

		Convey("When a study has no criteria", func() {
			s := model.Study{ID: "study-1", Title: "t", Status: model.StudyRecruiting}
			raw, err := json.Marshal(s)

			Convey("Then the criteria field should be omitted", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldNotContainSubstring, "criteria")
			})
		})
	})
}
