package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

type AnswerKind string

const (
	AnswerNone   AnswerKind = "none"
	AnswerScalar AnswerKind = "scalar"
	AnswerSet    AnswerKind = "set"
)

// Answer is a decoded answer value. Scalars keep their canonical text and
// whether they arrived as a JSON string; sets keep canonical members.
type Answer struct {
	Kind   AnswerKind `json:"kind"`
	Scalar string     `json:"scalar,omitempty"`
	IsText bool       `json:"is_text,omitempty"`
	Set    []string   `json:"set,omitempty"`
}

func (a Answer) IsEmpty() bool {
	switch a.Kind {
	case AnswerScalar:
		return false
	case AnswerSet:
		return len(a.Set) == 0
	default:
		return true
	}
}

// SortedSet returns a sorted copy of the set members.
func (a Answer) SortedSet() []string {
	members := append([]string(nil), a.Set...)
	sort.Strings(members)
	return members
}

// Canonical renders the answer as a single comparable string.
func (a Answer) Canonical() string {
	switch a.Kind {
	case AnswerScalar:
		return a.Scalar
	case AnswerSet:
		raw, _ := json.Marshal(a.SortedSet())
		return string(raw)
	default:
		return ""
	}
}

// AsSet coerces a scalar into a one-element set.
func (a Answer) AsSet() []string {
	switch a.Kind {
	case AnswerSet:
		return a.Set
	case AnswerScalar:
		return []string{a.Scalar}
	default:
		return nil
	}
}

// DecodeAnswer decodes raw JSON into an Answer shaped by the question type.
// Undecodable input yields an empty answer.
func DecodeAnswer(qt QuestionType, raw []byte) Answer {
	if isNullJSON(raw) {
		return Answer{Kind: AnswerNone}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return Answer{Kind: AnswerNone}
	}

	if items, ok := value.([]interface{}); ok {
		members := make([]string, 0, len(items))
		for _, item := range items {
			if item == nil {
				continue
			}
			members = append(members, canonicalValue(item))
		}
		if !qt.IsMultiAnswer() && len(items) == 1 && items[0] != nil {
			return scalarAnswer(items[0])
		}
		return Answer{Kind: AnswerSet, Set: members}
	}

	if value == nil {
		return Answer{Kind: AnswerNone}
	}

	answer := scalarAnswer(value)
	if qt.IsMultiAnswer() {
		return Answer{Kind: AnswerSet, Set: []string{answer.Scalar}}
	}
	return answer
}

func scalarAnswer(value interface{}) Answer {
	_, isText := value.(string)
	return Answer{Kind: AnswerScalar, Scalar: canonicalValue(value), IsText: isText}
}

func canonicalValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		// objects: encoding/json sorts map keys
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(raw))
	}
}
