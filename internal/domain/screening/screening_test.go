package screening_test

import (
	"testing"

	"github.com/fieldwork-io/fieldwork/internal/domain/screening"
	. "github.com/smartystreets/goconvey/convey"
)

func languageCriteria() screening.Criteria {
	return screening.Criteria{
		Threshold: 50,
		Rules: []screening.Rule{
			{
				Field:  "languages",
				Op:     screening.OpIncludesAny,
				Target: screening.ListValue(screening.StringValue("English"), screening.StringValue("Arabic")),
				Weight: 30,
			},
			{
				Field:  "answers.purchases30d",
				Op:     screening.OpGTE,
				Target: screening.NumberValue(2),
				Weight: 30,
				Must:   true,
			},
		},
	}
}

func TestEvaluateMustRule(t *testing.T) {
	Convey("Given criteria with a must rule", t, func() {
		criteria := languageCriteria()
		profile := map[string]interface{}{"languages": []interface{}{"English"}}

		Convey("When the must rule fails", func() {
			answers := map[string]interface{}{"purchases30d": float64(1)}
			outcome := screening.Evaluate(criteria, profile, answers)

			Convey("Then the evaluator rejects with zero score regardless of earlier weight", func() {
				So(outcome.Score, ShouldEqual, 0)
				So(outcome.Decision, ShouldEqual, screening.DecisionReject)
			})
		})

		Convey("When all rules pass", func() {
			answers := map[string]interface{}{"purchases30d": float64(3)}
			outcome := screening.Evaluate(criteria, profile, answers)

			Convey("Then weights accumulate and the threshold approves", func() {
				So(outcome.Score, ShouldEqual, 60)
				So(outcome.Decision, ShouldEqual, screening.DecisionApprove)
			})
		})

		Convey("When a later must rule fails after earlier weight accumulated", func() {
			criteria.Rules[1].Target = screening.NumberValue(10)
			answers := map[string]interface{}{"purchases30d": float64(3)}
			outcome := screening.Evaluate(criteria, profile, answers)

			Convey("Then accumulated weight is discarded", func() {
				So(outcome.Score, ShouldEqual, 0)
				So(outcome.Decision, ShouldEqual, screening.DecisionReject)
			})
		})

		Convey("When the must rule field is missing entirely", func() {
			outcome := screening.Evaluate(criteria, profile, map[string]interface{}{})

			Convey("Then the absent value fails the numeric comparison and rejects", func() {
				So(outcome.Decision, ShouldEqual, screening.DecisionReject)
			})
		})
	})
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	Convey("Given criteria whose weights sum exactly to the threshold", t, func() {
		criteria := screening.Criteria{
			Threshold: 50,
			Rules: []screening.Rule{
				{Field: "country", Op: screening.OpEQ, Target: screening.StringValue("CA"), Weight: 50},
			},
		}
		profile := map[string]interface{}{"country": "CA"}

		Convey("When evaluated", func() {
			outcome := screening.Evaluate(criteria, profile, nil)

			Convey("Then equality at the threshold approves", func() {
				So(outcome.Score, ShouldEqual, 50)
				So(outcome.Decision, ShouldEqual, screening.DecisionApprove)
			})
		})

		Convey("When one point short of the threshold", func() {
			criteria.Threshold = 51
			outcome := screening.Evaluate(criteria, profile, nil)

			Convey("Then the decision is manual", func() {
				So(outcome.Score, ShouldEqual, 50)
				So(outcome.Decision, ShouldEqual, screening.DecisionManual)
			})
		})
	})
}

func TestEvaluateOperators(t *testing.T) {
	Convey("Given a profile and answers", t, func() {
		profile := map[string]interface{}{
			"country":   "DE",
			"age":       float64(34),
			"languages": []interface{}{"German", "English"},
			"demographics": map[string]interface{}{
				"employment": "full-time",
			},
		}
		answers := map[string]interface{}{
			"purchases30d": "4",
			"tools":        []interface{}{"figma", "sketch"},
			"optedIn":      true,
			"referrer":     nil,
		}

		eval := func(field string, op screening.RuleOp, target screening.Value) bool {
			c := screening.Criteria{Threshold: 1, Rules: []screening.Rule{
				{Field: field, Op: op, Target: target, Weight: 1},
			}}
			return screening.Evaluate(c, profile, answers).Score == 1
		}

		Convey("Then `in` checks membership of the value in the target list", func() {
			So(eval("country", screening.OpIn, screening.ListValue(
				screening.StringValue("DE"), screening.StringValue("FR"))), ShouldBeTrue)
			So(eval("country", screening.OpIn, screening.ListValue(
				screening.StringValue("US"))), ShouldBeFalse)
			So(eval("country", screening.OpIn, screening.StringValue("DE")), ShouldBeFalse)
		})

		Convey("And `includes` checks membership of the target in the value list", func() {
			So(eval("languages", screening.OpIncludes, screening.StringValue("English")), ShouldBeTrue)
			So(eval("languages", screening.OpIncludes, screening.StringValue("Dutch")), ShouldBeFalse)
			So(eval("country", screening.OpIncludes, screening.StringValue("DE")), ShouldBeFalse)
		})

		Convey("And `includesAny` checks for a shared member", func() {
			So(eval("languages", screening.OpIncludesAny, screening.ListValue(
				screening.StringValue("English"), screening.StringValue("Arabic"))), ShouldBeTrue)
			So(eval("languages", screening.OpIncludesAny, screening.ListValue(
				screening.StringValue("Arabic"))), ShouldBeFalse)
		})

		Convey("And `gte`/`lte` coerce both sides to numbers", func() {
			So(eval("age", screening.OpGTE, screening.NumberValue(30)), ShouldBeTrue)
			So(eval("age", screening.OpLTE, screening.NumberValue(30)), ShouldBeFalse)
			// numeric string answers coerce
			So(eval("answers.purchases30d", screening.OpGTE, screening.NumberValue(2)), ShouldBeTrue)
			// booleans coerce to 1 and 0, a present null to 0
			So(eval("answers.optedIn", screening.OpGTE, screening.NumberValue(1)), ShouldBeTrue)
			So(eval("answers.optedIn", screening.OpLTE, screening.NumberValue(0)), ShouldBeFalse)
			So(eval("answers.referrer", screening.OpLTE, screening.NumberValue(0)), ShouldBeTrue)
			// non-numeric and absent values never satisfy ordered comparisons
			So(eval("country", screening.OpGTE, screening.NumberValue(0)), ShouldBeFalse)
			So(eval("languages", screening.OpLTE, screening.NumberValue(100)), ShouldBeFalse)
			So(eval("missing", screening.OpLTE, screening.NumberValue(0)), ShouldBeFalse)
		})

		Convey("And `eq`/`neq` use strict equality", func() {
			So(eval("country", screening.OpEQ, screening.StringValue("DE")), ShouldBeTrue)
			So(eval("country", screening.OpEQ, screening.NumberValue(0)), ShouldBeFalse)
			So(eval("country", screening.OpNEQ, screening.StringValue("US")), ShouldBeTrue)
			So(eval("demographics.employment", screening.OpEQ, screening.StringValue("full-time")), ShouldBeTrue)
		})

		Convey("And dot-paths traverse nested answers", func() {
			So(eval("answers.tools", screening.OpIncludes, screening.StringValue("figma")), ShouldBeTrue)
		})

		Convey("And an unknown operator evaluates false", func() {
			So(eval("country", screening.RuleOp("matches"), screening.StringValue("DE")), ShouldBeFalse)
		})
	})
}

func TestEvaluateAbsentValues(t *testing.T) {
	Convey("Given a profile missing fields", t, func() {
		profile := map[string]interface{}{"name": "x"}

		Convey("When a neq rule targets a missing field", func() {
			c := screening.Criteria{Threshold: 10, Rules: []screening.Rule{
				{Field: "disqualifier", Op: screening.OpNEQ, Target: screening.StringValue("banned"), Weight: 10},
			}}
			outcome := screening.Evaluate(c, profile, nil)

			Convey("Then the absent value still passes and earns weight", func() {
				So(outcome.Score, ShouldEqual, 10)
				So(outcome.Decision, ShouldEqual, screening.DecisionApprove)
			})
		})

		Convey("When an eq rule targets a missing field", func() {
			c := screening.Criteria{Threshold: 10, Rules: []screening.Rule{
				{Field: "disqualifier", Op: screening.OpEQ, Target: screening.StringValue("banned"), Weight: 10},
			}}
			outcome := screening.Evaluate(c, profile, nil)

			Convey("Then it fails", func() {
				So(outcome.Score, ShouldEqual, 0)
				So(outcome.Decision, ShouldEqual, screening.DecisionManual)
			})
		})

		Convey("When traversal hits a non-object segment", func() {
			c := screening.Criteria{Threshold: 1, Rules: []screening.Rule{
				{Field: "name.first", Op: screening.OpEQ, Target: screening.StringValue("x"), Weight: 1},
			}}
			outcome := screening.Evaluate(c, profile, nil)

			Convey("Then the value resolves absent and the rule fails", func() {
				So(outcome.Score, ShouldEqual, 0)
			})
		})
	})
}

func TestParseCriteria(t *testing.T) {
	Convey("Given a stored criteria document", t, func() {
		raw := []byte(`{
			"threshold": 50,
			"rules": [
				{"field": "languages", "op": "includesAny", "target": ["English", "Arabic"], "weight": 30},
				{"field": "answers.purchases30d", "op": "gte", "target": 2, "weight": 30, "must": true}
			]
		}`)

		Convey("When parsed", func() {
			criteria, err := screening.ParseCriteria(raw)

			Convey("Then rules and targets decode into tagged values", func() {
				So(err, ShouldBeNil)
				So(criteria.Threshold, ShouldEqual, 50)
				So(len(criteria.Rules), ShouldEqual, 2)
				So(criteria.Rules[0].Op, ShouldEqual, screening.OpIncludesAny)
				So(criteria.Rules[0].Target.Kind(), ShouldEqual, screening.KindList)
				So(criteria.Rules[1].Must, ShouldBeTrue)
				So(criteria.Rules[1].Target.Kind(), ShouldEqual, screening.KindNumber)
			})

			Convey("And evaluating it matches the hand-built criteria", func() {
				profile := map[string]interface{}{"languages": []interface{}{"English"}}
				answers := map[string]interface{}{"purchases30d": float64(3)}
				outcome := screening.Evaluate(criteria, profile, answers)
				So(outcome.Score, ShouldEqual, 60)
				So(outcome.Decision, ShouldEqual, screening.DecisionApprove)
			})
		})

		Convey("When the document is malformed", func() {
			_, err := screening.ParseCriteria([]byte(`{"threshold": "high"`))

			Convey("Then parsing fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
