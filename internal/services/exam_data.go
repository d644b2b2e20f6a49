package services

import (
	"encoding/json"
	"math/rand/v2"

	"github.com/SAP-F-2025/form-exam-service/internal/models"
)

// Shuffler permutes n elements through swap. rand.Shuffle satisfies it.
type Shuffler func(n int, swap func(i, j int))

// PrepareExamData builds the respondent view of a form. Ordering is drawn
// fresh on every call and never stored.
func PrepareExamData(form *models.Form, settings models.FormSettings, shuffle Shuffler) ExamData {
	if shuffle == nil {
		shuffle = rand.Shuffle
	}

	questions := make([]QuestionView, 0, len(form.Questions))
	for i := range form.Questions {
		questions = append(questions, questionView(&form.Questions[i]))
	}

	if settings.General.ShuffleQuestions {
		shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if settings.ExamMode.ShuffleOptions {
		for i := range questions {
			opts := questions[i].Options
			shuffle(len(opts), func(a, b int) {
				opts[a], opts[b] = opts[b], opts[a]
			})
		}
	}

	data := ExamData{
		FormID:          form.ID,
		Title:           form.Title,
		Questions:       questions,
		ExamModeEnabled: settings.ExamMode.Enabled,
	}
	if settings.ExamMode.Enabled {
		data.TimeLimitMinutes = settings.ExamMode.TimeLimitMinutes
		rules := settings.ExamMode.AntiCheat
		data.AntiCheatRules = &rules
	}
	return data
}

func questionView(q *models.Question) QuestionView {
	view := QuestionView{
		ID:          q.ID,
		Type:        q.Type,
		Content:     q.Content,
		Description: q.Description,
		Media:       rawOrNil(q.Media),
		Validation:  rawOrNil(q.Validation),
		Points:      q.Points,
	}
	if len(q.Options) > 0 {
		view.Options = make([]OptionView, len(q.Options))
		for i, opt := range q.Options {
			view.Options[i] = OptionView{ID: opt.ID, Content: opt.Content}
		}
	}
	return view
}

func rawOrNil(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}
