package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

type FormStatus string

const (
	FormStatusDraft     FormStatus = "draft"
	FormStatusPublished FormStatus = "published"
	FormStatusClosed    FormStatus = "closed"
)

type QuestionType string

const (
	QuestionShortText      QuestionType = "short_text"
	QuestionLongText       QuestionType = "long_text"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionCheckboxes     QuestionType = "checkboxes"
	QuestionDropdown       QuestionType = "dropdown"
	QuestionNumber         QuestionType = "number"
	QuestionEmail          QuestionType = "email"
	QuestionPhone          QuestionType = "phone"
	QuestionDate           QuestionType = "date"
	QuestionTime           QuestionType = "time"
	QuestionFileUpload     QuestionType = "file_upload"
	QuestionRating         QuestionType = "rating"
	QuestionScale          QuestionType = "scale"
	QuestionSection        QuestionType = "section"
)

// IsChoice reports whether the question carries an option list.
func (qt QuestionType) IsChoice() bool {
	return qt == QuestionMultipleChoice || qt == QuestionCheckboxes || qt == QuestionDropdown
}

// IsMultiAnswer reports whether answers are compared as sets.
func (qt QuestionType) IsMultiAnswer() bool {
	return qt == QuestionCheckboxes
}

// Form is owned by the form builder; this service only reads it.
type Form struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	WorkspaceID *uint          `json:"workspace_id" gorm:"index"`
	Slug        string         `json:"slug" gorm:"size:120;not null;uniqueIndex"`
	Title       string         `json:"title" gorm:"size:255;not null"`
	Description *string        `json:"description" gorm:"type:text"`
	Status      FormStatus     `json:"status" gorm:"size:20;not null;default:draft;index"`
	Settings    datatypes.JSON `json:"settings" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Questions []Question `json:"questions" gorm:"foreignKey:FormID"`
}

func (Form) TableName() string { return "forms" }

type Question struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	FormID        uint           `json:"form_id" gorm:"not null;index"`
	Position      int            `json:"position" gorm:"not null;default:0"`
	Type          QuestionType   `json:"type" gorm:"size:30;not null"`
	Content       string         `json:"content" gorm:"type:text;not null"`
	Description   *string        `json:"description" gorm:"type:text"`
	Media         datatypes.JSON `json:"media" gorm:"type:jsonb"`
	Validation    datatypes.JSON `json:"validation" gorm:"type:jsonb"`
	CorrectAnswer datatypes.JSON `json:"correct_answer" gorm:"type:jsonb"`
	Points        int            `json:"points" gorm:"not null;default:0"`
	Explanation   *string        `json:"explanation" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Options []Option `json:"options" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string { return "questions" }

type Option struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Position   int    `json:"position" gorm:"not null;default:0"`
	Content    string `json:"content" gorm:"type:text;not null"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null;default:false"`
}

func (Option) TableName() string { return "question_options" }

// EffectiveCorrectAnswer returns the stored correct answer, or for choice
// questions without one, the ids of options flagged correct. Nil means ungraded.
func (q *Question) EffectiveCorrectAnswer() json.RawMessage {
	if !isNullJSON(q.CorrectAnswer) {
		return json.RawMessage(q.CorrectAnswer)
	}
	if !q.Type.IsChoice() {
		return nil
	}

	var ids []string
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, strconv.FormatUint(uint64(opt.ID), 10))
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var raw []byte
	if q.Type.IsMultiAnswer() {
		raw, _ = json.Marshal(ids)
	} else {
		raw, _ = json.Marshal(ids[0])
	}
	return raw
}

// IsGraded reports whether the question takes part in scoring. A zero-point
// question stays ungraded even when it has a correct answer.
func (q *Question) IsGraded() bool {
	return q.Points > 0 && q.EffectiveCorrectAnswer() != nil
}

// TotalPoints sums the points of every graded question in the form.
func (f *Form) TotalPoints() int {
	total := 0
	for i := range f.Questions {
		if f.Questions[i].IsGraded() {
			total += f.Questions[i].Points
		}
	}
	return total
}

// QuestionByID indexes the form's questions.
func (f *Form) QuestionByID() map[uint]*Question {
	index := make(map[uint]*Question, len(f.Questions))
	for i := range f.Questions {
		index[f.Questions[i].ID] = &f.Questions[i]
	}
	return index
}

func isNullJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
