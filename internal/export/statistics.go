// Package export renders instructor reports as spreadsheets.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/stemsi/exstem-sessions/internal/model"
)

const (
	summarySheet  = "Ringkasan"
	sessionsSheet = "Sesi"
)

var sessionHeaders = []string{
	"Session ID", "User ID", "Status", "Started At", "Completed At",
	"Time Elapsed (s)", "Pause Count", "Fullscreen Exits", "Tab Switches",
	"Total Events", "Score", "Passed",
}

// StatisticsWorkbook renders stats as an xlsx file with a summary sheet and
// one row per session.
func StatisticsWorkbook(stats *model.SessionStatistics) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}
	if err := writeSummary(f, stats); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(sessionsSheet); err != nil {
		return nil, fmt.Errorf("create sessions sheet: %w", err)
	}
	if err := writeSessions(f, stats.Sessions); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, stats *model.SessionStatistics) error {
	rows := [][]any{
		{"Assessment", stats.Title},
		{"Assessment ID", stats.AssessmentID.String()},
		{"Total Sessions", stats.TotalSessions},
		{"Active", stats.Active},
		{"Paused", stats.Paused},
		{"Completed", stats.Completed},
		{"Expired", stats.Expired},
		{"Abandoned", stats.Abandoned},
		{"Fullscreen Exits", stats.FullscreenExits},
		{"Tab Switches", stats.TabSwitches},
		{"Total Events", stats.TotalEvents},
		{"Average Score", optional(stats.AverageScore)},
		{"Pass Rate (%)", optional(stats.PassRate)},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	return f.SetColWidth(summarySheet, "A", "A", 20)
}

func writeSessions(f *excelize.File, sessions []model.SessionStatRow) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	header := make([]any, len(sessionHeaders))
	for i, h := range sessionHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sessionsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(sessionHeaders), 1)
	if err := f.SetCellStyle(sessionsSheet, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, s := range sessions {
		row := []any{
			s.SessionID.String(),
			s.UserID,
			string(s.Status),
			s.StartedAt.UTC().Format(time.RFC3339),
			optionalTime(s.CompletedAt),
			s.TimeElapsed,
			s.PauseCount,
			s.FullscreenExits,
			s.TabSwitches,
			s.TotalEvents,
			optional(s.Score),
			optionalBool(s.Passed),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sessionsSheet, cell, &row); err != nil {
			return fmt.Errorf("write session row %d: %w", i+2, err)
		}
	}
	return nil
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func optionalBool(v *bool) any {
	if v == nil {
		return ""
	}
	if *v {
		return "Lulus"
	}
	return "Tidak Lulus"
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
