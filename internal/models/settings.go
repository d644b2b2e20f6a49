package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxViolations = 3
	DefaultPassingScore  = 60.0
)

// FormSettings is the fully populated settings bundle of a form. Build it with
// ParseSettings so that every field carries its default.
type FormSettings struct {
	General  GeneralSettings  `json:"general"`
	Access   AccessSettings   `json:"access"`
	ExamMode ExamModeSettings `json:"exam_mode"`
}

type GeneralSettings struct {
	ShuffleQuestions bool `json:"shuffle_questions"`
	LimitOneResponse bool `json:"limit_one_response"`
}

type AccessSettings struct {
	StartsAt      *time.Time `json:"starts_at"`
	EndsAt        *time.Time `json:"ends_at"`
	RequireLogin  bool       `json:"require_login"`
	PasswordHash  string     `json:"password_hash"`
	AllowedEmails []string   `json:"allowed_emails"`
	MaxResponses  int        `json:"max_responses"`
}

type ExamModeSettings struct {
	Enabled          bool              `json:"enabled"`
	TimeLimitMinutes int               `json:"time_limit_minutes"`
	PassingScore     float64           `json:"passing_score"`
	ShowScoreAfter   bool              `json:"show_score_after"`
	ShuffleOptions   bool              `json:"shuffle_options"`
	AntiCheat        AntiCheatSettings `json:"anti_cheat"`
}

type AntiCheatSettings struct {
	MaxViolations          int  `json:"max_violations"`
	DetectTabSwitch        bool `json:"detect_tab_switch"`
	DetectFullscreenExit   bool `json:"detect_fullscreen_exit"`
	PreventCopyPaste       bool `json:"prevent_copy_paste"`
	PreventRightClick      bool `json:"prevent_right_click"`
	BlockKeyboardShortcuts bool `json:"block_keyboard_shortcuts"`
}

func DefaultFormSettings() FormSettings {
	return FormSettings{
		ExamMode: ExamModeSettings{
			PassingScore:   DefaultPassingScore,
			ShowScoreAfter: true,
			AntiCheat: AntiCheatSettings{
				MaxViolations:        DefaultMaxViolations,
				DetectTabSwitch:      true,
				DetectFullscreenExit: true,
			},
		},
	}
}

// SettingsError lists the settings paths that could not be decoded. Those
// fields keep their default; everything else in the bundle still applies.
type SettingsError struct {
	Fields []string
}

func (e *SettingsError) Error() string {
	return "invalid form settings: " + strings.Join(e.Fields, ", ")
}

// Restrictive reports whether a field that can only narrow access was lost.
// Serving its default would open the form wider than its author configured.
func (e *SettingsError) Restrictive() bool {
	for _, field := range e.Fields {
		if _, ok := restrictiveFields[field]; ok || strings.HasPrefix(field, "access") {
			return true
		}
	}
	return false
}

var restrictiveFields = map[string]struct{}{
	"settings":                            {},
	"exam_mode":                           {},
	"exam_mode.enabled":                   {},
	"exam_mode.time_limit_minutes":        {},
	"exam_mode.anti_cheat":                {},
	"exam_mode.anti_cheat.max_violations": {},
}

// sections are the paths that must hold JSON objects.
var sections = map[string]struct{}{
	"general":              {},
	"access":               {},
	"exam_mode":            {},
	"exam_mode.anti_cheat": {},
}

// ParseSettings overlays the stored JSON on top of the defaults field by
// field. Missing keys keep their default, values the builder stores loosely
// (numbers as strings, datetime-local timestamps) are coerced, and a field
// that still cannot be read keeps its default and is reported in a
// *SettingsError. Out-of-range values are normalised.
func ParseSettings(raw []byte) (FormSettings, error) {
	settings := DefaultFormSettings()
	if isNullJSON(raw) {
		return settings, nil
	}

	leaves := make(map[string]json.RawMessage)
	var bad []string
	if err := flattenSettings(raw, "", leaves, &bad); err != nil {
		return settings, &SettingsError{Fields: []string{"settings"}}
	}

	decoders := settings.fieldDecoders()
	for path, value := range leaves {
		decode, ok := decoders[path]
		if !ok {
			if _, section := sections[path]; section {
				bad = append(bad, path)
			}
			continue
		}
		if err := decode(value); err != nil {
			bad = append(bad, path)
		}
	}

	if settings.ExamMode.AntiCheat.MaxViolations <= 0 {
		settings.ExamMode.AntiCheat.MaxViolations = DefaultMaxViolations
	}
	if settings.ExamMode.TimeLimitMinutes < 0 {
		settings.ExamMode.TimeLimitMinutes = 0
	}
	if settings.ExamMode.PassingScore < 0 || settings.ExamMode.PassingScore > 100 {
		settings.ExamMode.PassingScore = DefaultPassingScore
	}
	if settings.Access.MaxResponses < 0 {
		settings.Access.MaxResponses = 0
	}

	if len(bad) > 0 {
		sort.Strings(bad)
		return settings, &SettingsError{Fields: bad}
	}
	return settings, nil
}

func (s *FormSettings) fieldDecoders() map[string]func(json.RawMessage) error {
	return map[string]func(json.RawMessage) error{
		"general.shuffle_questions":  boolField(&s.General.ShuffleQuestions),
		"general.limit_one_response": boolField(&s.General.LimitOneResponse),

		"access.starts_at":      timeField(&s.Access.StartsAt),
		"access.ends_at":        timeField(&s.Access.EndsAt),
		"access.require_login":  boolField(&s.Access.RequireLogin),
		"access.password_hash":  stringField(&s.Access.PasswordHash),
		"access.allowed_emails": stringsField(&s.Access.AllowedEmails),
		"access.max_responses":  intField(&s.Access.MaxResponses),

		"exam_mode.enabled":            boolField(&s.ExamMode.Enabled),
		"exam_mode.time_limit_minutes": intField(&s.ExamMode.TimeLimitMinutes),
		"exam_mode.passing_score":      floatField(&s.ExamMode.PassingScore),
		"exam_mode.show_score_after":   boolField(&s.ExamMode.ShowScoreAfter),
		"exam_mode.shuffle_options":    boolField(&s.ExamMode.ShuffleOptions),

		"exam_mode.anti_cheat.max_violations":           intField(&s.ExamMode.AntiCheat.MaxViolations),
		"exam_mode.anti_cheat.detect_tab_switch":        boolField(&s.ExamMode.AntiCheat.DetectTabSwitch),
		"exam_mode.anti_cheat.detect_fullscreen_exit":   boolField(&s.ExamMode.AntiCheat.DetectFullscreenExit),
		"exam_mode.anti_cheat.prevent_copy_paste":       boolField(&s.ExamMode.AntiCheat.PreventCopyPaste),
		"exam_mode.anti_cheat.prevent_right_click":      boolField(&s.ExamMode.AntiCheat.PreventRightClick),
		"exam_mode.anti_cheat.block_keyboard_shortcuts": boolField(&s.ExamMode.AntiCheat.BlockKeyboardShortcuts),
	}
}

// flattenSettings walks nested objects and records every leaf under its
// dotted path. Only the top level must be an object.
func flattenSettings(raw json.RawMessage, prefix string, out map[string]json.RawMessage, bad *[]string) error {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		if prefix == "" {
			return err
		}
		out[prefix] = raw
		return nil
	}
	for key, value := range object {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if isNullJSON(value) {
			continue
		}
		trimmed := bytes.TrimSpace(value)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			if _, ok := sections[path]; !ok {
				// objects only nest under known sections
				*bad = append(*bad, path)
				continue
			}
			if err := flattenSettings(value, path, out, bad); err != nil {
				*bad = append(*bad, path)
			}
			continue
		}
		out[path] = value
	}
	return nil
}

// settingsTimeLayouts are tried in order; layouts without a zone read as UTC.
var settingsTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func timeField(dst **time.Time) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		if isNullJSON(raw) {
			return nil
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			*dst = nil
			return nil
		}
		for _, layout := range settingsTimeLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				t = t.UTC()
				*dst = &t
				return nil
			}
		}
		return fmt.Errorf("unrecognised time %q", text)
	}
}

// scalarText returns a JSON number or string as trimmed text.
func scalarText(raw json.RawMessage) (string, error) {
	var value interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return "", err
	}
	switch v := value.(type) {
	case json.Number:
		return v.String(), nil
	case string:
		return strings.TrimSpace(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("expected a scalar, got %s", raw)
	}
}

func intField(dst *int) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		if isNullJSON(raw) {
			return nil
		}
		text, err := scalarText(raw)
		if err != nil {
			return err
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return err
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("expected a whole number, got %s", text)
		}
		*dst = int(f)
		return nil
	}
}

func floatField(dst *float64) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		if isNullJSON(raw) {
			return nil
		}
		text, err := scalarText(raw)
		if err != nil {
			return err
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func boolField(dst *bool) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		if isNullJSON(raw) {
			return nil
		}
		text, err := scalarText(raw)
		if err != nil {
			return err
		}
		b, err := strconv.ParseBool(text)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func stringField(dst *string) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		if isNullJSON(raw) {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}
}

// stringsField accepts a list of strings or a single string.
func stringsField(dst *[]string) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		if isNullJSON(raw) {
			return nil
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			*dst = list
			return nil
		}
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return err
		}
		*dst = []string{single}
		return nil
	}
}

// TimeLimit returns zero when the form is untimed.
func (s FormSettings) TimeLimit() time.Duration {
	if !s.ExamMode.Enabled || s.ExamMode.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(s.ExamMode.TimeLimitMinutes) * time.Minute
}

func (s FormSettings) MaxViolations() int {
	return s.ExamMode.AntiCheat.MaxViolations
}
