// Package export pushes the dashboard timeline to a Google Sheet so the
// figures can be charted and shared outside the API.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
)

const dayFormat = "2006-01-02"

// SheetsExporter writes timeline snapshots into one sheet of a spreadsheet,
// replacing the previous snapshot on every export.
type SheetsExporter struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsExporter builds an exporter authenticated with a service account
// credentials file.
func NewSheetsExporter(ctx context.Context, spreadsheetID, sheetName, credentialsFile string) (*SheetsExporter, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	if sheetName == "" {
		return nil, errors.New("sheet name is required")
	}

	credentials, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(credentials),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// ExportTimeline replaces the sheet's contents with the given timeline,
// header row first, oldest period on top.
func (e *SheetsExporter) ExportTimeline(ctx context.Context, points []core.PeriodDataPoint) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!A:N", e.sheetName)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange,
		&sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	values := &sheets.ValueRange{Values: timelineRows(points)}
	writeRange := fmt.Sprintf("%s!A1", e.sheetName)
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, writeRange, values).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", writeRange, err)
	}

	slog.InfoContext(ctx, "Timeline exported",
		"spreadsheet_id", e.spreadsheetID,
		"sheet", e.sheetName,
		"periods", len(points))
	return nil
}

var timelineHeader = []any{
	"Period", "Start", "End",
	"Income", "Expenses", "Net Flow", "Savings", "Deductions",
	"Fixed Expenses", "Flexible Expenses",
	"Cumulative Savings", "Cumulative Balance", "Savings Target", "Available Funds",
}

// timelineRows flattens the timeline into sheet rows. Amounts go out as
// decimal strings; USER_ENTERED input lets the sheet coerce them to numbers.
func timelineRows(points []core.PeriodDataPoint) [][]any {
	rows := make([][]any, 0, len(points)+1)
	rows = append(rows, timelineHeader)
	for _, p := range points {
		// The period end is exclusive; the sheet shows the last covered day.
		lastDay := p.PeriodEnd.AddDate(0, 0, -1)
		rows = append(rows, []any{
			p.PeriodLabel,
			p.PeriodStart.Format(dayFormat),
			lastDay.Format(dayFormat),
			p.Income.String(),
			p.Expenses.String(),
			p.NetFlow.String(),
			p.SavingsThisPeriod.String(),
			p.DeductionsThisPeriod.String(),
			p.FixedExpenses.String(),
			p.FlexibleExpenses.String(),
			p.CumulativeSavings.String(),
			p.CumulativeBalance.String(),
			p.CumulativeSavingsTarget.String(),
			p.AvailableFunds.String(),
		})
	}
	return rows
}
