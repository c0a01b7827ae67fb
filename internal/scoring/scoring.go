// Package scoring grades a submission against an assessment's answer key.
package scoring

import (
	"math"

	"github.com/stemsi/exstem-sessions/internal/model"
)

// Result is the outcome of grading one submission.
type Result struct {
	TotalPoints  int
	EarnedPoints int
	Score        float64 // percentage 0..100, rounded to two decimals
	Passed       bool
}

// Grade scores answers question by question. Missing, malformed or
// mismatched answers earn zero points; Grade never fails.
func Grade(assessment *model.Assessment, answers model.Answers) Result {
	var res Result
	for _, q := range assessment.Questions {
		if q.Points < 0 {
			continue
		}
		res.TotalPoints += q.Points
		submitted, ok := answers[q.ID]
		if !ok {
			continue
		}
		if submitted.Matches(q.CorrectAnswers) {
			res.EarnedPoints += q.Points
		}
	}

	var pct float64
	if res.TotalPoints > 0 {
		pct = 100 * float64(res.EarnedPoints) / float64(res.TotalPoints)
	}
	// Pass/fail uses the exact percentage; only the stored score is rounded.
	res.Passed = pct >= assessment.PassingScore
	res.Score = math.Round(pct*100) / 100
	return res
}
