package model

import (
	"github.com/google/uuid"
)

// ProctorMode enumerates how strictly an assessment is monitored.
type ProctorMode string

const (
	ProctorModeNone   ProctorMode = "NONE"
	ProctorModeBasic  ProctorMode = "BASIC"
	ProctorModeStrict ProctorMode = "STRICT"
)

// Assessment is the read-only configuration owned by the authoring service.
type Assessment struct {
	ID                  uuid.UUID   `json:"id"`
	Title               string      `json:"title"`
	IsTimedExam         bool        `json:"is_timed_exam"`
	TimeLimitMinutes    int         `json:"time_limit"`
	MaxAttempts         int         `json:"max_attempts"` // 0 means unlimited
	AllowPause          bool        `json:"allow_pause"`
	AutoSubmit          bool        `json:"auto_submit"`
	ProctorMode         ProctorMode `json:"proctor_mode"`
	RequireFullscreen   bool        `json:"require_fullscreen"`
	PreventCopyPaste    bool        `json:"prevent_copy_paste"`
	ShowOneQuestion     bool        `json:"show_one_question"`
	AllowBackNavigation bool        `json:"allow_back_navigation"`
	PassingScore        float64     `json:"passing_score"`
	Questions           []Question  `json:"questions"`
}

// Question is one scored item of an assessment, in display order.
type Question struct {
	ID             uuid.UUID  `json:"id"`
	Kind           AnswerKind `json:"kind"`
	Points         int        `json:"points"`
	CorrectAnswers Answer     `json:"correct_answers"`
	OrderNum       int        `json:"order_num"`
}

// TimeLimitSeconds converts the configured minutes to seconds.
func (a *Assessment) TimeLimitSeconds() int {
	return a.TimeLimitMinutes * 60
}

// Timed reports whether the assessment can back a timed session.
func (a *Assessment) Timed() bool {
	return a.IsTimedExam && a.TimeLimitMinutes > 0
}

// ProctoringFlags is the subset of configuration the client agent needs.
type ProctoringFlags struct {
	ProctorMode       ProctorMode `json:"proctor_mode"`
	RequireFullscreen bool        `json:"require_fullscreen"`
	PreventCopyPaste  bool        `json:"prevent_copy_paste"`
	AllowPause        bool        `json:"allow_pause"`
}

// Flags extracts the proctoring flags.
func (a *Assessment) Flags() ProctoringFlags {
	return ProctoringFlags{
		ProctorMode:       a.ProctorMode,
		RequireFullscreen: a.RequireFullscreen,
		PreventCopyPaste:  a.PreventCopyPaste,
		AllowPause:        a.AllowPause,
	}
}
