package services

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/events"
	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var testStart = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func settingsJSON(t *testing.T, settings map[string]interface{}) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(settings)
	require.NoError(t, err)
	return raw
}

func question(id uint, qt models.QuestionType, correct string, points int) models.Question {
	q := models.Question{
		ID:       id,
		FormID:   1,
		Position: int(id),
		Type:     qt,
		Content:  "Question " + string(rune('A'+id-1)),
		Points:   points,
	}
	if correct != "" {
		q.CorrectAnswer = datatypes.JSON(correct)
	}
	return q
}

func examForm(t *testing.T, settings map[string]interface{}, questions ...models.Question) *models.Form {
	t.Helper()
	return &models.Form{
		ID:        1,
		Slug:      "algebra-quiz",
		Title:     "Algebra quiz",
		Status:    models.FormStatusPublished,
		Settings:  settingsJSON(t, settings),
		Questions: questions,
	}
}

type harness struct {
	repo      *memoryRepo
	clock     *fakeClock
	publisher *events.MockEventPublisher
	service   *sessionService
}

func newHarness(t *testing.T, form *models.Form) *harness {
	t.Helper()
	repo := newMemoryRepo(form)
	clock := newFakeClock(testStart)
	publisher := events.NewMockEventPublisher(discardLogger())
	service := NewSessionService(repo, SessionServiceOptions{
		Publisher: publisher,
		Logger:    discardLogger(),
		Clock:     clock.Now,
		// identity order keeps assertions on question order stable
		Shuffle: func(int, func(i, j int)) {},
	})
	return &harness{repo: repo, clock: clock, publisher: publisher, service: service}
}

func strPtr(s string) *string { return &s }

func answer(questionID uint, raw string) AnswerInput {
	return AnswerInput{QuestionID: questionID, Answer: json.RawMessage(raw)}
}
