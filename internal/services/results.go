package services

import (
	"encoding/json"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/shopspring/decimal"
)

type gradeBand struct {
	min   float64
	grade string
}

var gradeBands = []gradeBand{
	{90, "A"},
	{80, "B"},
	{70, "C"},
	{60, "D"},
}

// LetterGrade maps a percentage onto the fixed grade bands
func LetterGrade(score float64) string {
	for _, band := range gradeBands {
		if score >= band.min {
			return band.grade
		}
	}
	return "F"
}

// ScorePercentage returns earned/total*100 rounded to two decimals, or nil
// when nothing in the form is worth points.
func ScorePercentage(earned, total int) *float64 {
	if total <= 0 {
		return nil
	}
	pct, _ := decimal.NewFromInt(int64(earned)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return &pct
}

// AssembleResults builds the post-session report. Only terminal sessions
// have results.
func AssembleResults(session *models.Session, form *models.Form, settings models.FormSettings, responses []*models.Response, violationCount int) (*ExamResults, error) {
	if !session.Status.IsTerminal() {
		return nil, ErrInvalidState
	}

	results := &ExamResults{
		SessionID:        session.ID,
		Status:           session.Status,
		StartedAt:        session.StartedAt,
		SubmittedAt:      session.SubmittedAt,
		TimeSpentSeconds: session.TimeSpentSeconds,
		ViolationCount:   violationCount,
		ShowScore:        settings.ExamMode.ShowScoreAfter,
	}

	// violated sessions were never graded
	if !settings.ExamMode.ShowScoreAfter || session.Status != models.SessionSubmitted {
		results.ShowScore = false
		return results, nil
	}

	byQuestion := make(map[uint]*models.Response, len(responses))
	for _, resp := range responses {
		byQuestion[resp.QuestionID] = resp
	}

	total := form.TotalPoints()
	earned := 0
	breakdown := make([]QuestionResult, 0, len(form.Questions))
	for i := range form.Questions {
		q := &form.Questions[i]
		if q.Type == models.QuestionSection {
			continue
		}
		item := QuestionResult{
			QuestionID: q.ID,
			Type:       q.Type,
			Content:    q.Content,
		}
		if q.IsGraded() {
			item.PointsPossible = q.Points
		}
		if resp, ok := byQuestion[q.ID]; ok {
			item.Answer = json.RawMessage(resp.Answer)
			item.IsCorrect = resp.IsCorrect
			item.PointsEarned = resp.PointsEarned
			if resp.PointsEarned != nil {
				earned += *resp.PointsEarned
			}
		} else if q.IsGraded() {
			// unanswered graded questions count as wrong
			incorrect, zero := false, 0
			item.IsCorrect = &incorrect
			item.PointsEarned = &zero
		}
		if item.IsCorrect != nil && !*item.IsCorrect {
			item.Explanation = q.Explanation
		}
		breakdown = append(breakdown, item)
	}

	results.TotalPoints = &total
	results.EarnedPoints = &earned
	results.Breakdown = breakdown
	results.ScorePercentage = session.Score
	if results.ScorePercentage == nil {
		results.ScorePercentage = ScorePercentage(earned, total)
	}

	passing := settings.ExamMode.PassingScore
	results.PassingScore = &passing
	if results.ScorePercentage != nil {
		passed := *results.ScorePercentage >= passing
		grade := LetterGrade(*results.ScorePercentage)
		results.Passed = &passed
		results.Grade = &grade
	}
	return results, nil
}
