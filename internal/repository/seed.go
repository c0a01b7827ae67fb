package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-sessions/internal/model"
)

// LoadAssessments reads a JSON array of assessments, as written by the
// authoring service export, for seeding a store.
// Questions without an id get one derived from the assessment id and their
// position so reseeding is stable.
func LoadAssessments(path string) ([]model.Assessment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var assessments []model.Assessment
	if err := json.Unmarshal(raw, &assessments); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	for i := range assessments {
		a := &assessments[i]
		if a.ID == uuid.Nil {
			return nil, fmt.Errorf("assessment %d (%q): missing id", i, a.Title)
		}
		for j := range a.Questions {
			q := &a.Questions[j]
			if q.ID == uuid.Nil {
				q.ID = uuid.NewSHA1(a.ID, []byte(strconv.Itoa(j)))
			}
			if q.OrderNum == 0 {
				q.OrderNum = j + 1
			}
			if q.Kind == "" {
				q.Kind = q.CorrectAnswers.Kind
			}
			if !q.CorrectAnswers.Valid() {
				return nil, fmt.Errorf("assessment %s question %d: invalid answer key", a.ID, j+1)
			}
		}
	}
	return assessments, nil
}
