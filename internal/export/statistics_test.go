package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/stemsi/exstem-sessions/internal/model"
)

func TestStatisticsWorkbook(t *testing.T) {
	score, rate := 66.67, 50.0
	passed := true
	done := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	stats := &model.SessionStatistics{
		AssessmentID:  uuid.New(),
		Title:         "Fisika Dasar",
		TotalSessions: 2,
		Completed:     1,
		Active:        1,
		AverageScore:  &score,
		PassRate:      &rate,
		Sessions: []model.SessionStatRow{
			{
				SessionID:   uuid.New(),
				UserID:      "student-1",
				Status:      model.SessionStatusCompleted,
				StartedAt:   done.Add(-20 * time.Minute),
				CompletedAt: &done,
				TimeElapsed: 1200,
				TabSwitches: 2,
				TotalEvents: 2,
				Score:       &score,
				Passed:      &passed,
			},
			{
				SessionID: uuid.New(),
				UserID:    "student-2",
				Status:    model.SessionStatusActive,
				StartedAt: done,
			},
		},
	}

	data, err := StatisticsWorkbook(stats)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, sessionsSheet}, f.GetSheetList())

	title, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Fisika Dasar", title)

	rows, err := f.GetRows(sessionsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, sessionHeaders, rows[0])
	assert.Equal(t, "student-1", rows[1][1])
	assert.Equal(t, "COMPLETED", rows[1][2])
	assert.Equal(t, "2026-03-01T09:30:00Z", rows[1][4])
	assert.Equal(t, "66.67", rows[1][10])
	assert.Equal(t, "Lulus", rows[1][11])
	assert.Equal(t, "ACTIVE", rows[2][2])
	assert.Equal(t, "", rows[2][4])
}
