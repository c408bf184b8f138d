package panelio

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"transitcausal/domain/causal"
	"transitcausal/internal"
)

// WorkbookWriter exports a completed run as an Excel workbook with one
// sheet per result family.
type WorkbookWriter struct {
	logger *internal.Logger
}

func NewWorkbookWriter() *WorkbookWriter {
	return &WorkbookWriter{logger: internal.DefaultLogger}
}

// Write saves the run to path, overwriting any existing file.
func (w *WorkbookWriter) Write(run *causal.AnalysisRun, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeRunSheet(f, run); err != nil {
		return err
	}
	if err := w.writeEstimates(f, run); err != nil {
		return err
	}
	if err := w.writeRefutations(f, run); err != nil {
		return err
	}
	if err := w.writeCounterfactuals(f, run); err != nil {
		return err
	}
	if err := w.writeIntervals(f, run); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	w.logger.Info("run %s exported to %s", run.ID, path)
	return nil
}

func (w *WorkbookWriter) writeRunSheet(f *excelize.File, run *causal.AnalysisRun) error {
	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, "Run"); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"run_id", run.ID.String()},
		{"created_at", run.CreatedAt.Time().Format("2006-01-02 15:04:05")},
		{"treatment", run.Treatment.String()},
		{"panel_hash", run.PanelHash.String()},
		{"seed", run.Seed},
	}
	for i, warn := range run.Warnings {
		rows = append(rows, []interface{}{fmt.Sprintf("warning_%d", i+1), warn})
	}
	return writeRows(f, "Run", rows)
}

func (w *WorkbookWriter) writeEstimates(f *excelize.File, run *causal.AnalysisRun) error {
	if _, err := f.NewSheet("Estimates"); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"outcome", "method", "point", "std_err", "ci_lower", "ci_upper", "p_value", "n", "low_power"},
	}
	for _, e := range run.Estimates {
		rows = append(rows, []interface{}{
			e.Outcome.String(), string(e.Method), e.Point, e.StdErr,
			e.CILower, e.CIUpper, e.PValue, e.SampleSize, e.LowPower,
		})
	}
	return writeRows(f, "Estimates", rows)
}

func (w *WorkbookWriter) writeRefutations(f *excelize.File, run *causal.AnalysisRun) error {
	if _, err := f.NewSheet("Refutations"); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"outcome", "test", "original", "refuted", "relative_deviation", "passed", "detail"},
	}
	for _, r := range run.Refutations {
		rows = append(rows, []interface{}{
			r.Outcome.String(), string(r.Test), r.OriginalEstimate, r.RefutedEstimate,
			r.RelativeDeviation, r.Passed, r.Detail,
		})
	}
	return writeRows(f, "Refutations", rows)
}

func (w *WorkbookWriter) writeCounterfactuals(f *excelize.File, run *causal.AnalysisRun) error {
	if _, err := f.NewSheet("Counterfactuals"); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"entity", "scenario", "outcome", "baseline", "counterfactual", "absolute_impact", "relative_impact", "clamped"},
	}
	for _, c := range run.Counterfactuals {
		rows = append(rows, []interface{}{
			c.Entity.String(), c.Scenario, c.Outcome.String(), c.BaselineValue,
			c.CounterfactualValue, c.AbsoluteImpact, c.RelativeImpact, c.Clamped,
		})
	}
	return writeRows(f, "Counterfactuals", rows)
}

func (w *WorkbookWriter) writeIntervals(f *excelize.File, run *causal.AnalysisRun) error {
	if _, err := f.NewSheet("Intervals"); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"scenario", "outcome", "point", "lower", "upper", "level", "resamples"},
	}
	for _, iv := range run.Intervals {
		rows = append(rows, []interface{}{
			iv.Scenario, iv.Outcome.String(), iv.Point, iv.Lower, iv.Upper, iv.Level, iv.Resamples,
		})
	}
	return writeRows(f, "Intervals", rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}
