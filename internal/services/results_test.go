package services

import (
	"testing"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestLetterGrade(t *testing.T) {
	tests := []struct {
		score float64
		grade string
	}{
		{100, "A"},
		{90, "A"},
		{89.99, "B"},
		{80, "B"},
		{70, "C"},
		{60, "D"},
		{59.99, "F"},
		{0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.grade, LetterGrade(tt.score), "score %v", tt.score)
	}
}

func TestScorePercentage(t *testing.T) {
	assert.Nil(t, ScorePercentage(0, 0))
	assert.Nil(t, ScorePercentage(3, -1))

	pct := ScorePercentage(1, 3)
	require.NotNil(t, pct)
	assert.Equal(t, 33.33, *pct)

	pct = ScorePercentage(2, 3)
	require.NotNil(t, pct)
	assert.Equal(t, 66.67, *pct)

	pct = ScorePercentage(7, 7)
	require.NotNil(t, pct)
	assert.Equal(t, 100.0, *pct)
}

func TestEvaluateViolations(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		max       int
		terminate bool
		warning   bool
	}{
		{"first of three", 1, 3, false, false},
		{"last warning", 2, 3, false, true},
		{"threshold", 3, 3, true, false},
		{"past threshold", 4, 3, true, false},
		{"single allowed", 1, 1, true, false},
		{"default threshold", 2, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EvaluateViolations(tt.count, tt.max)
			assert.Equal(t, tt.count, result.ViolationCount)
			assert.Equal(t, tt.terminate, result.ShouldTerminate)
			assert.Equal(t, tt.warning, result.IsWarning)
		})
	}
	assert.Equal(t, models.DefaultMaxViolations, EvaluateViolations(1, 0).MaxViolations)
}

func gradedResponse(sessionID uuid.UUID, questionID uint, raw string, correct bool, points int) *models.Response {
	return &models.Response{
		SessionID:    sessionID,
		QuestionID:   questionID,
		Answer:       datatypes.JSON(raw),
		IsCorrect:    &correct,
		PointsEarned: &points,
	}
}

func TestAssembleResults(t *testing.T) {
	form := examForm(t, nil,
		question(1, models.QuestionShortText, `"4"`, 5),
		question(2, models.QuestionSection, "", 0),
		question(3, models.QuestionShortText, `"9"`, 5),
		question(4, models.QuestionLongText, "", 0),
	)
	form.Questions[0].Explanation = strPtr("two and two")
	form.Questions[2].Explanation = strPtr("three squared")

	score := 50.0
	session := &models.Session{ID: uuid.New(), FormID: form.ID, Status: models.SessionSubmitted, StartedAt: testStart, Score: &score}
	responses := []*models.Response{
		gradedResponse(session.ID, 1, `"4"`, true, 5),
		gradedResponse(session.ID, 3, `"8"`, false, 0),
	}

	results, err := AssembleResults(session, form, models.DefaultFormSettings(), responses, 2)
	require.NoError(t, err)

	assert.True(t, results.ShowScore)
	assert.Equal(t, 2, results.ViolationCount)
	assert.Equal(t, 10, *results.TotalPoints)
	assert.Equal(t, 5, *results.EarnedPoints)
	assert.Equal(t, 50.0, *results.ScorePercentage)
	assert.False(t, *results.Passed)
	assert.Equal(t, "F", *results.Grade)

	// sections are not part of the breakdown
	require.Len(t, results.Breakdown, 3)
	assert.Nil(t, results.Breakdown[0].Explanation)
	assert.Equal(t, "three squared", *results.Breakdown[1].Explanation)

	ungraded := results.Breakdown[2]
	assert.Equal(t, uint(4), ungraded.QuestionID)
	assert.Nil(t, ungraded.IsCorrect)
	assert.Nil(t, ungraded.PointsEarned)
	assert.Zero(t, ungraded.PointsPossible)
}

func TestAssembleResults_UnansweredCountsAsWrong(t *testing.T) {
	form := examForm(t, nil, question(1, models.QuestionShortText, `"4"`, 5))
	form.Questions[0].Explanation = strPtr("two and two")
	session := &models.Session{ID: uuid.New(), Status: models.SessionSubmitted, StartedAt: testStart}

	results, err := AssembleResults(session, form, models.DefaultFormSettings(), nil, 0)
	require.NoError(t, err)

	item := results.Breakdown[0]
	assert.False(t, *item.IsCorrect)
	assert.Equal(t, 0, *item.PointsEarned)
	assert.Equal(t, "two and two", *item.Explanation)
	assert.Equal(t, 0.0, *results.ScorePercentage)
}

func TestAssembleResults_ScoreHidden(t *testing.T) {
	form := examForm(t, nil, question(1, models.QuestionShortText, `"4"`, 5))
	settings := models.DefaultFormSettings()
	settings.ExamMode.ShowScoreAfter = false

	session := &models.Session{ID: uuid.New(), Status: models.SessionSubmitted, StartedAt: testStart}
	results, err := AssembleResults(session, form, settings, nil, 0)
	require.NoError(t, err)
	assert.False(t, results.ShowScore)
	assert.Nil(t, results.ScorePercentage)
	assert.Empty(t, results.Breakdown)
}

func TestAssembleResults_ViolatedHasNoScore(t *testing.T) {
	form := examForm(t, nil, question(1, models.QuestionShortText, `"4"`, 5))
	session := &models.Session{ID: uuid.New(), Status: models.SessionViolated, StartedAt: testStart}

	results, err := AssembleResults(session, form, models.DefaultFormSettings(), nil, 3)
	require.NoError(t, err)
	assert.Equal(t, models.SessionViolated, results.Status)
	assert.False(t, results.ShowScore)
	assert.Nil(t, results.Grade)
	assert.Equal(t, 3, results.ViolationCount)
}

func TestAssembleResults_InProgress(t *testing.T) {
	form := examForm(t, nil)
	session := &models.Session{ID: uuid.New(), Status: models.SessionInProgress}

	_, err := AssembleResults(session, form, models.DefaultFormSettings(), nil, 0)
	assert.ErrorIs(t, err, ErrInvalidState)
}
