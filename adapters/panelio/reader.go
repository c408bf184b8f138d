// Package panelio loads observational panels from CSV and Excel files
// and exports run results back to Excel workbooks.
package panelio

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal"
	apperrors "transitcausal/internal/errors"
)

// Mapping names the structural columns of the input file. Every other
// column is treated as a numeric panel variable; empty cells become
// missing values.
type Mapping struct {
	EntityColumn string
	PeriodColumn string
}

// DefaultMapping matches the conventional header layout.
func DefaultMapping() Mapping {
	return Mapping{EntityColumn: "entity_id", PeriodColumn: "period"}
}

// FileSource reads a panel from an .xlsx or .csv file.
type FileSource struct {
	filePath string
	fileType string // "xlsx" or "csv"
	mapping  Mapping
	logger   *internal.Logger
}

// NewFileSource creates a source for the given path, dispatching on the
// file extension.
func NewFileSource(filePath string, mapping Mapping) *FileSource {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &FileSource{
		filePath: filePath,
		fileType: fileType,
		mapping:  mapping,
		logger:   internal.DefaultLogger,
	}
}

// Load reads and validates the file into an immutable panel.
func (s *FileSource) Load(ctx context.Context) (*panel.Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil, apperrors.NotFound(fmt.Sprintf("%s file %s",
			strings.ToUpper(s.fileType), s.filePath))
	}

	var rows [][]string
	var err error
	switch s.fileType {
	case "csv":
		rows, err = s.readCSVRows()
	case "xlsx":
		rows, err = s.readExcelRows()
	default:
		return nil, apperrors.InvalidInput("unsupported file type: " + s.fileType)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, apperrors.PanelInvalid("input file must have a header row and at least one data row")
	}

	p, err := s.buildPanel(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("panel loaded from %s (%d rows, %d variables)",
		s.filePath, p.NumRows(), len(p.Columns()))
	return p, nil
}

func (s *FileSource) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read first sheet: %w", err)
	}
	return rows, nil
}

func (s *FileSource) readCSVRows() ([][]string, error) {
	file, err := os.Open(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// buildPanel converts raw string rows into the columnar panel. The entity
// and period columns are mandatory per row; variable cells may be empty.
func (s *FileSource) buildPanel(rows [][]string) (*panel.Panel, error) {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	entityIdx, periodIdx := -1, -1
	var varKeys []core.VariableKey
	varIdx := make(map[int]core.VariableKey)
	for i, h := range headers {
		switch h {
		case s.mapping.EntityColumn:
			entityIdx = i
		case s.mapping.PeriodColumn:
			periodIdx = i
		default:
			key, err := core.ParseVariableKey(h)
			if err != nil {
				return nil, apperrors.PanelInvalid(fmt.Sprintf("column %d has an empty header", i+1))
			}
			varKeys = append(varKeys, key)
			varIdx[i] = key
		}
	}
	if entityIdx < 0 {
		return nil, apperrors.PanelInvalid("entity column " + s.mapping.EntityColumn + " not found")
	}
	if periodIdx < 0 {
		return nil, apperrors.PanelInvalid("period column " + s.mapping.PeriodColumn + " not found")
	}

	b, err := panel.NewBuilder(varKeys...)
	if err != nil {
		return nil, err
	}
	for rowNum := 1; rowNum < len(rows); rowNum++ {
		row := rows[rowNum]
		if entityIdx >= len(row) || strings.TrimSpace(row[entityIdx]) == "" {
			return nil, apperrors.PanelInvalid(fmt.Sprintf("row %d missing entity value", rowNum+1))
		}
		if periodIdx >= len(row) || strings.TrimSpace(row[periodIdx]) == "" {
			return nil, apperrors.PanelInvalid(fmt.Sprintf("row %d missing period value", rowNum+1))
		}
		entity, err := core.ParseEntityID(strings.TrimSpace(row[entityIdx]))
		if err != nil {
			return nil, apperrors.PanelInvalid(fmt.Sprintf("row %d: %v", rowNum+1, err))
		}
		period, err := strconv.Atoi(strings.TrimSpace(row[periodIdx]))
		if err != nil {
			return nil, apperrors.PanelInvalid(fmt.Sprintf("row %d: period %q is not an integer",
				rowNum+1, row[periodIdx]))
		}

		values := make(map[core.VariableKey]float64)
		for i, key := range varIdx {
			if i >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue // missing value
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, apperrors.PanelInvalid(fmt.Sprintf(
					"row %d: column %s value %q is not numeric", rowNum+1, key, cell))
			}
			values[key] = v
		}
		if err := b.AddRow(entity, period, values); err != nil {
			return nil, apperrors.WithCode(apperrors.CodePanelInvalid, err)
		}
	}
	return b.Build()
}
