package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/stemsi/exstem-sessions/internal/model"
)

func twoQuestionAssessment(passing float64) (*model.Assessment, uuid.UUID, uuid.UUID) {
	q1, q2 := uuid.New(), uuid.New()
	return &model.Assessment{
		ID:           uuid.New(),
		PassingScore: passing,
		Questions: []model.Question{
			{ID: q1, Kind: model.AnswerKindChoice, Points: 10, CorrectAnswers: model.ChoiceAnswer(1)},
			{ID: q2, Kind: model.AnswerKindChoice, Points: 5, CorrectAnswers: model.ChoiceAnswer(0)},
		},
	}, q1, q2
}

func TestGrade_PartialCredit(t *testing.T) {
	a, q1, q2 := twoQuestionAssessment(60)

	res := Grade(a, model.Answers{q1: model.ChoiceAnswer(1), q2: model.ChoiceAnswer(1)})

	assert.Equal(t, 10, res.EarnedPoints)
	assert.Equal(t, 15, res.TotalPoints)
	assert.InDelta(t, 66.67, res.Score, 0.001)
	assert.True(t, res.Passed)
}

func TestGrade_PassingThreshold(t *testing.T) {
	a, q1, q2 := twoQuestionAssessment(70)

	res := Grade(a, model.Answers{q1: model.ChoiceAnswer(1), q2: model.ChoiceAnswer(1)})

	assert.False(t, res.Passed)
}

func TestGrade_PassUsesExactPercentage(t *testing.T) {
	a, q1, q2 := twoQuestionAssessment(66.67)

	res := Grade(a, model.Answers{q1: model.ChoiceAnswer(1), q2: model.ChoiceAnswer(1)})

	assert.Equal(t, 66.67, res.Score)
	assert.False(t, res.Passed)

	a.PassingScore = 200.0 / 3
	res = Grade(a, model.Answers{q1: model.ChoiceAnswer(1), q2: model.ChoiceAnswer(1)})
	assert.True(t, res.Passed)
}

func TestGrade_EmptyAssessment(t *testing.T) {
	res := Grade(&model.Assessment{PassingScore: 50}, model.Answers{uuid.New(): model.TextAnswer("x")})

	assert.Zero(t, res.TotalPoints)
	assert.Zero(t, res.Score)
	assert.False(t, res.Passed)
}

func TestGrade_MalformedAndMismatchedAnswersScoreZero(t *testing.T) {
	a, q1, q2 := twoQuestionAssessment(0)

	res := Grade(a, model.Answers{
		q1: {Kind: model.AnswerKindChoice, Text: ptr("1")},
		q2: model.TextAnswer("0"),
	})

	assert.Zero(t, res.EarnedPoints)
	assert.Equal(t, 15, res.TotalPoints)
	assert.True(t, res.Passed, "a zero passing score is always met")
}

func TestGrade_ChoiceOrderInsensitive(t *testing.T) {
	q := uuid.New()
	a := &model.Assessment{Questions: []model.Question{
		{ID: q, Kind: model.AnswerKindChoice, Points: 4, CorrectAnswers: model.ChoiceAnswer(0, 2)},
	}}

	res := Grade(a, model.Answers{q: model.ChoiceAnswer(2, 0)})

	assert.Equal(t, 4, res.EarnedPoints)
	assert.Equal(t, 100.0, res.Score)
}

func TestGrade_OtherKinds(t *testing.T) {
	qb, qt, qn := uuid.New(), uuid.New(), uuid.New()
	a := &model.Assessment{Questions: []model.Question{
		{ID: qb, Kind: model.AnswerKindBoolean, Points: 1, CorrectAnswers: model.BooleanAnswer(true)},
		{ID: qt, Kind: model.AnswerKindText, Points: 1, CorrectAnswers: model.TextAnswer("Jakarta")},
		{ID: qn, Kind: model.AnswerKindNumber, Points: 2, CorrectAnswers: model.NumberAnswer(3.5)},
	}}

	res := Grade(a, model.Answers{
		qb: model.BooleanAnswer(true),
		qt: model.TextAnswer("jakarta"),
		qn: model.NumberAnswer(3.5),
	})

	assert.Equal(t, 3, res.EarnedPoints)
	assert.Equal(t, 4, res.TotalPoints)
	assert.Equal(t, 75.0, res.Score)
}

func ptr[T any](v T) *T { return &v }
