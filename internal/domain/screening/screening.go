// Package screening implements the criteria evaluator that scores a
// participant's profile and answers against a study's screener rules.
package screening

import (
	"encoding/json"
	"strings"
)

// AnswersPrefix routes a rule's field path at the applicant's answers instead
// of their profile.
const AnswersPrefix = "answers."

// RuleOp enumerates the comparison operators a rule can use.
type RuleOp string

// Rule operators.
const (
	OpIn          RuleOp = "in"          // target list contains value
	OpIncludesAny RuleOp = "includesAny" // value and target lists share a member
	OpIncludes    RuleOp = "includes"    // value list contains target
	OpGTE         RuleOp = "gte"         // numeric value >= target
	OpLTE         RuleOp = "lte"         // numeric value <= target
	OpEQ          RuleOp = "eq"          // strict equality
	OpNEQ         RuleOp = "neq"         // strict inequality
)

// Rule is one weighted, optionally mandatory, comparison against a
// participant's profile or answers. Field is a dot-path; a leading "answers."
// segment selects from the answers document.
type Rule struct {
	Field  string `json:"field"`
	Op     RuleOp `json:"op"`
	Target Value  `json:"target"`
	Weight int    `json:"weight"`
	Must   bool   `json:"must,omitempty"`
}

// Criteria is a study's screening configuration: a pass threshold plus
// weighted rules. Immutable during evaluation.
type Criteria struct {
	Threshold int    `json:"threshold"`
	Rules     []Rule `json:"rules"`
}

// Decision is the evaluator's triage outcome.
type Decision string

// Decisions.
const (
	DecisionApprove Decision = "approve"
	DecisionManual  Decision = "manual"
	DecisionReject  Decision = "reject"
)

// Outcome carries the accumulated score and the triage decision.
type Outcome struct {
	Score    int      `json:"score"`
	Decision Decision `json:"decision"`
}

// ParseCriteria decodes a stored criteria document.
func ParseCriteria(raw []byte) (Criteria, error) {
	var c Criteria
	if err := json.Unmarshal(raw, &c); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

// Evaluate scores profile and answers against criteria. Rules accumulate
// their weight in order; the first failing must-rule short-circuits to
// {0, reject}, discarding weight accumulated earlier in the pass. With no
// must failure, the decision is approve when score >= threshold (equality
// approves), else manual. Pure and side-effect free.
func Evaluate(criteria Criteria, profile, answers map[string]interface{}) Outcome {
	score := 0
	for _, rule := range criteria.Rules {
		value := resolve(rule.Field, profile, answers)
		passed := evalRule(rule.Op, value, rule.Target)
		if passed {
			score += rule.Weight
		}
		if rule.Must && !passed {
			return Outcome{Score: 0, Decision: DecisionReject}
		}
	}
	decision := DecisionManual
	if score >= criteria.Threshold {
		decision = DecisionApprove
	}
	return Outcome{Score: score, Decision: decision}
}

// resolve walks a dot-path through the selected source document. Traversal
// stops and yields the absent value as soon as an intermediate segment is
// missing or not an object.
func resolve(path string, profile, answers map[string]interface{}) Value {
	source := profile
	keyPath := path
	if strings.HasPrefix(path, AnswersPrefix) {
		source = answers
		keyPath = strings.TrimPrefix(path, AnswersPrefix)
	}

	var current interface{} = source
	for _, segment := range strings.Split(keyPath, ".") {
		if segment == "" {
			continue
		}
		obj, ok := current.(map[string]interface{})
		if !ok {
			return Absent()
		}
		child, ok := obj[segment]
		if !ok {
			return Absent()
		}
		current = child
	}
	if _, ok := current.(map[string]interface{}); ok {
		// An object is not a comparable leaf.
		return Value{kind: KindOther}
	}
	return FromAny(current)
}

// evalRule applies one operator to (resolved value, rule target). Unknown
// operators evaluate false.
func evalRule(op RuleOp, value, target Value) bool {
	switch op {
	case OpIn:
		return target.Contains(value)
	case OpIncludesAny:
		return value.SharesAny(target)
	case OpIncludes:
		return value.Contains(target)
	case OpGTE:
		vn, vok := value.AsNumber()
		tn, tok := target.AsNumber()
		return vok && tok && vn >= tn
	case OpLTE:
		vn, vok := value.AsNumber()
		tn, tok := target.AsNumber()
		return vok && tok && vn <= tn
	case OpEQ:
		return value.Equal(target)
	case OpNEQ:
		// An absent value is unequal to any target and so passes, earning the
		// rule's weight. Preserved deliberately; see DESIGN.md.
		return !value.Equal(target)
	default:
		return false
	}
}
