package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettings_Defaults(t *testing.T) {
	for _, raw := range []string{"", "null", "{}"} {
		settings, err := ParseSettings([]byte(raw))
		require.NoError(t, err)

		assert.False(t, settings.General.ShuffleQuestions)
		assert.False(t, settings.ExamMode.Enabled)
		assert.True(t, settings.ExamMode.ShowScoreAfter)
		assert.Equal(t, DefaultPassingScore, settings.ExamMode.PassingScore)
		assert.Equal(t, DefaultMaxViolations, settings.MaxViolations())
		assert.Zero(t, settings.TimeLimit())
	}
}

func TestParseSettings_Overlay(t *testing.T) {
	raw := `{
		"general": {"shuffle_questions": true, "limit_one_response": true},
		"exam_mode": {"enabled": true, "time_limit_minutes": 30, "anti_cheat": {"max_violations": 5}}
	}`
	settings, err := ParseSettings([]byte(raw))
	require.NoError(t, err)

	assert.True(t, settings.General.ShuffleQuestions)
	assert.True(t, settings.General.LimitOneResponse)
	assert.Equal(t, 30*time.Minute, settings.TimeLimit())
	assert.Equal(t, 5, settings.MaxViolations())
	// untouched siblings keep defaults
	assert.True(t, settings.ExamMode.ShowScoreAfter)
	assert.True(t, settings.ExamMode.AntiCheat.DetectTabSwitch)
}

func TestParseSettings_Normalises(t *testing.T) {
	raw := `{"exam_mode": {"time_limit_minutes": -4, "passing_score": 140, "anti_cheat": {"max_violations": 0}}}`
	settings, err := ParseSettings([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxViolations, settings.MaxViolations())
	assert.Equal(t, DefaultPassingScore, settings.ExamMode.PassingScore)
	assert.Zero(t, settings.ExamMode.TimeLimitMinutes)
}

func TestParseSettings_TimeLimitRequiresExamMode(t *testing.T) {
	settings, err := ParseSettings([]byte(`{"exam_mode": {"enabled": false, "time_limit_minutes": 10}}`))
	require.NoError(t, err)
	assert.Zero(t, settings.TimeLimit())
}

func TestParseSettings_LooseValuesAreCoerced(t *testing.T) {
	raw := `{
		"access": {
			"password_hash": "$2a$10$abc",
			"allowed_emails": ["a@x.io"],
			"starts_at": "2030-01-01T10:00",
			"ends_at": "2030-01-02 18:30:00",
			"max_responses": "50"
		},
		"exam_mode": {
			"enabled": "true",
			"time_limit_minutes": "30",
			"passing_score": "75.5",
			"anti_cheat": {"max_violations": 1}
		}
	}`
	settings, err := ParseSettings([]byte(raw))
	require.NoError(t, err)

	require.NotNil(t, settings.Access.StartsAt)
	assert.Equal(t, time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC), *settings.Access.StartsAt)
	require.NotNil(t, settings.Access.EndsAt)
	assert.Equal(t, time.Date(2030, 1, 2, 18, 30, 0, 0, time.UTC), *settings.Access.EndsAt)
	assert.Equal(t, "$2a$10$abc", settings.Access.PasswordHash)
	assert.Equal(t, []string{"a@x.io"}, settings.Access.AllowedEmails)
	assert.Equal(t, 50, settings.Access.MaxResponses)
	assert.Equal(t, 30*time.Minute, settings.TimeLimit())
	assert.Equal(t, 75.5, settings.ExamMode.PassingScore)
	assert.Equal(t, 1, settings.MaxViolations())
}

func TestParseSettings_BadFieldKeepsTheRest(t *testing.T) {
	raw := `{
		"access": {"password_hash": "$2a$10$abc", "starts_at": "next tuesday"},
		"exam_mode": {"enabled": true, "time_limit_minutes": 30, "shuffle_options": "sometimes"}
	}`
	settings, err := ParseSettings([]byte(raw))

	var settingsErr *SettingsError
	require.ErrorAs(t, err, &settingsErr)
	assert.Equal(t, []string{"access.starts_at", "exam_mode.shuffle_options"}, settingsErr.Fields)
	assert.True(t, settingsErr.Restrictive())

	assert.Nil(t, settings.Access.StartsAt)
	assert.Equal(t, "$2a$10$abc", settings.Access.PasswordHash)
	assert.Equal(t, 30*time.Minute, settings.TimeLimit())
	assert.False(t, settings.ExamMode.ShuffleOptions)
}

func TestParseSettings_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		fields      []string
		restrictive bool
	}{
		{"not an object", `[1, 2]`, []string{"settings"}, true},
		{"section is a scalar", `{"general": 3}`, []string{"general"}, false},
		{"cosmetic field", `{"general": {"shuffle_questions": "maybe"}}`, []string{"general.shuffle_questions"}, false},
		{"fractional limit", `{"exam_mode": {"time_limit_minutes": 12.5}}`, []string{"exam_mode.time_limit_minutes"}, true},
		{"allow list", `{"access": {"allowed_emails": [1]}}`, []string{"access.allowed_emails"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.raw))

			var settingsErr *SettingsError
			require.ErrorAs(t, err, &settingsErr)
			assert.Equal(t, tt.fields, settingsErr.Fields)
			assert.Equal(t, tt.restrictive, settingsErr.Restrictive())
		})
	}
}

func TestParseSettings_NullSectionsKeepDefaults(t *testing.T) {
	settings, err := ParseSettings([]byte(`{"access": null, "exam_mode": {"anti_cheat": null, "starts_at": ""}}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultFormSettings(), settings)
}

func TestDecodeAnswer(t *testing.T) {
	tests := []struct {
		name string
		qt   QuestionType
		raw  string
		want Answer
	}{
		{"string", QuestionShortText, `"hi"`, Answer{Kind: AnswerScalar, Scalar: "hi", IsText: true}},
		{"number", QuestionNumber, `3.50`, Answer{Kind: AnswerScalar, Scalar: "3.50"}},
		{"bool", QuestionDropdown, `true`, Answer{Kind: AnswerScalar, Scalar: "true"}},
		{"null", QuestionShortText, `null`, Answer{Kind: AnswerNone}},
		{"single element unwraps", QuestionMultipleChoice, `["a"]`, Answer{Kind: AnswerScalar, Scalar: "a", IsText: true}},
		{"checkbox scalar", QuestionCheckboxes, `"a"`, Answer{Kind: AnswerSet, Set: []string{"a"}}},
		{"checkbox set drops nulls", QuestionCheckboxes, `["b", null, 2]`, Answer{Kind: AnswerSet, Set: []string{"b", "2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeAnswer(tt.qt, []byte(tt.raw)))
		})
	}
}

func TestQuestion_EffectiveCorrectAnswer(t *testing.T) {
	q := Question{Type: QuestionShortText}
	assert.Nil(t, q.EffectiveCorrectAnswer())
	assert.False(t, q.IsGraded())

	q = Question{Type: QuestionCheckboxes, Options: []Option{{ID: 4, IsCorrect: true}, {ID: 9, IsCorrect: true}}}
	assert.JSONEq(t, `["4","9"]`, string(q.EffectiveCorrectAnswer()))
	assert.False(t, q.IsGraded(), "zero points")
	q.Points = 2
	assert.True(t, q.IsGraded())

	form := Form{Questions: []Question{
		{ID: 1, Type: QuestionShortText, CorrectAnswer: []byte(`"x"`), Points: 5},
		{ID: 2, Type: QuestionShortText, Points: 8},
		{ID: 3, Type: QuestionCheckboxes, Points: 5, Options: []Option{{ID: 1, IsCorrect: true}}},
	}}
	assert.Equal(t, 10, form.TotalPoints())
}
