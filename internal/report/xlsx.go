package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SaveXLSX writes the report as a workbook with Summary, Routes, Airlines,
// Monthly, and Causes sheets. The workbook mirrors the JSON document; it
// exists because spreadsheet hand-off is how the numbers usually leave the
// pipeline.
func SaveXLSX(path string, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return fmt.Errorf("report: rename sheet: %w", err)
	}
	for _, name := range []string{"Routes", "Airlines", "Monthly", "Causes"} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("report: add sheet %s: %w", name, err)
		}
	}

	if err := writeSummarySheet(f, r); err != nil {
		return err
	}
	if err := writeRoutesSheet(f, r); err != nil {
		return err
	}
	if err := writeAirlinesSheet(f, r); err != nil {
		return err
	}
	if err := writeMonthlySheet(f, r); err != nil {
		return err
	}
	if err := writeCausesSheet(f, r); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, vals ...any) error {
	for i, v := range vals {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("report: cell (%d,%d): %w", i+1, row, err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("report: set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, r *Report) error {
	state := "final"
	if r.Partial {
		state = "partial"
	}
	rows := [][]any{
		{"run_id", r.RunID},
		{"generated_at", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{"state", state},
		{"flights", r.Totals.Flights},
		{"cancelled", r.Totals.Cancelled},
		{"diverted", r.Totals.Diverted},
		{"on_time", r.Totals.OnTime},
		{"delayed", r.Totals.Delayed},
		{"on_time_ratio", r.Totals.OnTimeRatio},
		{"cancellation_rate", r.Cancellation.Rate},
		{"mean_arrival_delay", r.ArrivalDelay.Mean},
		{"median_arrival_delay", r.ArrivalDelay.Median},
		{"min_arrival_delay", r.ArrivalDelay.Min},
		{"max_arrival_delay", r.ArrivalDelay.Max},
		{"lines_read", r.Quality.LinesRead},
		{"rows_cleaned", r.Quality.RowsCleaned},
		{"rows_rejected", r.Quality.RowsRejected},
		{"malformed_lines", r.Quality.Malformed},
	}
	for i, row := range rows {
		if err := setRow(f, "Summary", i+1, row...); err != nil {
			return err
		}
	}
	return nil
}

func writeRoutesSheet(f *excelize.File, r *Report) error {
	row := 1
	if err := setRow(f, "Routes", row, "busiest routes"); err != nil {
		return err
	}
	row++
	if err := setRow(f, "Routes", row, "route", "flights", "cancelled", "mean_arrival_delay"); err != nil {
		return err
	}
	for _, rt := range r.TopRoutesByVolume {
		row++
		if err := setRow(f, "Routes", row, rt.Route, rt.Flights, rt.Cancelled, rt.MeanDelay); err != nil {
			return err
		}
	}

	row += 2
	if err := setRow(f, "Routes", row, "worst mean delay"); err != nil {
		return err
	}
	row++
	if err := setRow(f, "Routes", row, "route", "flights", "cancelled", "mean_arrival_delay"); err != nil {
		return err
	}
	for _, rt := range r.TopRoutesByMeanDelay {
		row++
		if err := setRow(f, "Routes", row, rt.Route, rt.Flights, rt.Cancelled, rt.MeanDelay); err != nil {
			return err
		}
	}
	return nil
}

func writeAirlinesSheet(f *excelize.File, r *Report) error {
	if err := setRow(f, "Airlines", 1, "airline", "flights", "cancelled", "on_time_ratio", "mean_arrival_delay"); err != nil {
		return err
	}
	for i, a := range r.Airlines {
		if err := setRow(f, "Airlines", i+2, a.Airline, a.Flights, a.Cancelled, a.OnTimeRatio, a.MeanDelay); err != nil {
			return err
		}
	}
	return nil
}

func writeMonthlySheet(f *excelize.File, r *Report) error {
	row := 1
	if err := setRow(f, "Monthly", row, "month", "flights", "cancelled", "mean_delay", "median_delay"); err != nil {
		return err
	}
	for _, m := range r.Monthly {
		row++
		if err := setRow(f, "Monthly", row, m.Month, m.Flights, m.Cancelled, m.Delay.Mean, m.Delay.Median); err != nil {
			return err
		}
	}

	row += 2
	if err := setRow(f, "Monthly", row, "season", "flights", "cancelled", "mean_delay", "median_delay"); err != nil {
		return err
	}
	for _, s := range r.Seasonal {
		row++
		if err := setRow(f, "Monthly", row, s.Season, s.Flights, s.Cancelled, s.Delay.Mean, s.Delay.Median); err != nil {
			return err
		}
	}
	return nil
}

func writeCausesSheet(f *excelize.File, r *Report) error {
	if err := setRow(f, "Causes", 1, "cause", "minutes", "flights", "share"); err != nil {
		return err
	}
	for i, c := range r.CauseMinutes {
		if err := setRow(f, "Causes", i+2, c.Cause, c.Minutes, c.Flights, c.Share); err != nil {
			return err
		}
	}
	return nil
}
