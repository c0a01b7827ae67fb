package model

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/google/uuid"
)

// AnswerKind tags which variant of Answer is populated.
type AnswerKind string

const (
	AnswerKindChoice  AnswerKind = "choice"
	AnswerKindBoolean AnswerKind = "boolean"
	AnswerKindText    AnswerKind = "text"
	AnswerKindNumber  AnswerKind = "number"
)

// Answer is a submitted answer or an answer key. Exactly one payload field is
// set, matching Kind.
//
// On the wire it is either the tagged form {"kind":"choice","choices":[1]} or a
// bare JSON value: an array of integers (choice), a boolean, a string or a number.
type Answer struct {
	Kind    AnswerKind `json:"kind"`
	Choices []int      `json:"choices,omitempty"`
	Bool    *bool      `json:"bool,omitempty"`
	Text    *string    `json:"text,omitempty"`
	Number  *float64   `json:"number,omitempty"`
}

// Answers maps question ID to the submitted answer.
type Answers map[uuid.UUID]Answer

// ChoiceAnswer builds a multiple-choice answer from selected option indexes.
func ChoiceAnswer(indexes ...int) Answer {
	return Answer{Kind: AnswerKindChoice, Choices: append([]int{}, indexes...)}
}

// BooleanAnswer builds a true/false answer.
func BooleanAnswer(v bool) Answer {
	return Answer{Kind: AnswerKindBoolean, Bool: &v}
}

// TextAnswer builds a free-text answer.
func TextAnswer(v string) Answer {
	return Answer{Kind: AnswerKindText, Text: &v}
}

// NumberAnswer builds a numeric answer.
func NumberAnswer(v float64) Answer {
	return Answer{Kind: AnswerKindNumber, Number: &v}
}

// Valid reports whether the payload matches the kind.
func (a Answer) Valid() bool {
	switch a.Kind {
	case AnswerKindChoice:
		return a.Bool == nil && a.Text == nil && a.Number == nil
	case AnswerKindBoolean:
		return a.Bool != nil && a.Choices == nil && a.Text == nil && a.Number == nil
	case AnswerKindText:
		return a.Text != nil && a.Choices == nil && a.Bool == nil && a.Number == nil
	case AnswerKindNumber:
		return a.Number != nil && a.Choices == nil && a.Bool == nil && a.Text == nil
	default:
		return false
	}
}

// Matches reports whether a equals the key. Choice answers compare as index
// sets. Malformed answers or a kind mismatch never match.
func (a Answer) Matches(key Answer) bool {
	if !a.Valid() || !key.Valid() || a.Kind != key.Kind {
		return false
	}
	switch a.Kind {
	case AnswerKindChoice:
		return slices.Equal(normalizeChoices(a.Choices), normalizeChoices(key.Choices))
	case AnswerKindBoolean:
		return *a.Bool == *key.Bool
	case AnswerKindText:
		return *a.Text == *key.Text
	case AnswerKindNumber:
		return *a.Number == *key.Number
	}
	return false
}

func normalizeChoices(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// Clone returns a deep copy.
func (a Answer) Clone() Answer {
	out := Answer{Kind: a.Kind}
	if a.Choices != nil {
		out.Choices = slices.Clone(a.Choices)
	}
	if a.Bool != nil {
		v := *a.Bool
		out.Bool = &v
	}
	if a.Text != nil {
		v := *a.Text
		out.Text = &v
	}
	if a.Number != nil {
		v := *a.Number
		out.Number = &v
	}
	return out
}

// Clone returns a deep copy of the answer map. A nil map clones to an empty one.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}

type answerAlias Answer

// UnmarshalJSON accepts both the tagged form and bare JSON values. A payload
// that cannot be decoded becomes an invalid Answer, which scores as incorrect,
// instead of failing the whole submission.
func (a *Answer) UnmarshalJSON(data []byte) error {
	*a = Answer{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	switch trimmed[0] {
	case '{':
		var tagged answerAlias
		if json.Unmarshal(trimmed, &tagged) == nil {
			*a = Answer(tagged)
		}
	case '[':
		var choices []int
		if json.Unmarshal(trimmed, &choices) == nil {
			*a = ChoiceAnswer(choices...)
		}
	case '"':
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			*a = TextAnswer(s)
		}
	case 't', 'f':
		var b bool
		if json.Unmarshal(trimmed, &b) == nil {
			*a = BooleanAnswer(b)
		}
	default:
		var n float64
		if json.Unmarshal(trimmed, &n) == nil {
			*a = NumberAnswer(n)
		}
	}
	return nil
}
