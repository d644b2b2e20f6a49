// Package grading decides whether a submitted answer matches a question's
// correct answer. Every function here is pure and never fails.
package grading

import (
	"slices"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
)

// Rule names the comparison that produced a verdict.
type Rule string

const (
	RuleExact Rule = "exact"
	RuleSet   Rule = "set"
	RuleText  Rule = "text"
	// RuleLoose is the fallback for type combinations without a dedicated rule.
	RuleLoose Rule = "loose"
)

type Result struct {
	IsCorrect    bool `json:"is_correct"`
	PointsEarned int  `json:"points_earned"`
	Rule         Rule `json:"rule"`
}

// Grade grades a raw submitted answer against the question. Questions without
// a correct answer come back incorrect with zero points; callers are expected
// to skip them.
func Grade(q *models.Question, submitted []byte) Result {
	correct := q.EffectiveCorrectAnswer()
	if correct == nil {
		return Result{Rule: ruleFor(q.Type, models.Answer{}, models.Answer{})}
	}
	return GradeAnswer(
		q.Type,
		models.DecodeAnswer(q.Type, correct),
		models.DecodeAnswer(q.Type, submitted),
		q.Points,
	)
}

// GradeAnswer compares two decoded answers for a question of type qt.
func GradeAnswer(qt models.QuestionType, correct, submitted models.Answer, points int) Result {
	rule := ruleFor(qt, correct, submitted)
	if submitted.IsEmpty() || correct.IsEmpty() {
		return Result{Rule: rule}
	}

	var ok bool
	switch rule {
	case RuleExact:
		ok = correct.Canonical() == submitted.Canonical()
	case RuleSet:
		ok = equalSets(correct.AsSet(), submitted.AsSet())
	case RuleText:
		ok = strings.EqualFold(strings.TrimSpace(correct.Scalar), strings.TrimSpace(submitted.Scalar))
	default:
		ok = looseEqual(correct, submitted)
	}

	result := Result{IsCorrect: ok, Rule: rule}
	if ok {
		result.PointsEarned = points
	}
	return result
}

func ruleFor(qt models.QuestionType, correct, submitted models.Answer) Rule {
	switch {
	case qt == models.QuestionMultipleChoice:
		return RuleExact
	case qt == models.QuestionCheckboxes:
		return RuleSet
	case correct.Kind == models.AnswerScalar && submitted.Kind == models.AnswerScalar &&
		correct.IsText && submitted.IsText:
		return RuleText
	default:
		return RuleLoose
	}
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

// looseEqual compares numerically when both sides read as numbers and falls
// back to canonical text otherwise.
func looseEqual(a, b models.Answer) bool {
	if a.Kind == models.AnswerScalar && b.Kind == models.AnswerScalar {
		x, errX := strconv.ParseFloat(strings.TrimSpace(a.Scalar), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(b.Scalar), 64)
		if errX == nil && errY == nil {
			return x == y
		}
	}
	return a.Canonical() == b.Canonical()
}
