// Package sheet reads result spreadsheets and diffs them against a snapshot.
package sheet

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"assessment-results/internal/fieldpath"
	"assessment-results/pkg/errors"

	"github.com/xuri/excelize/v2"
)

const StudentColumn = "student_party_id"

// CellRow is one data row of a sheet: the student and the raw text of each
// field-path column.
type CellRow struct {
	Line           int
	StudentPartyID int64
	Cells          map[string]string
}

type Parser struct {
	maxRows int
}

func NewParser(maxRows int) *Parser {
	return &Parser{maxRows: maxRows}
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]CellRow, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	if len(rows) < 2 { // Header + at least one data row
		return nil, errors.ErrInvalidFileFormat
	}
	if p.maxRows > 0 && len(rows)-1 > p.maxRows {
		return nil, fmt.Errorf("%w: %d rows exceeds limit of %d", errors.ErrInvalidFileFormat, len(rows)-1, p.maxRows)
	}

	studentIdx, columns, err := parseHeader(rows[0])
	if err != nil {
		return nil, err
	}

	var result []CellRow
	for i, row := range rows[1:] {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		line := i + 2
		if isBlank(row) {
			continue
		}

		cellRow, err := parseRow(row, studentIdx, columns, line)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", line, err)
		}
		result = append(result, *cellRow)
	}

	return result, nil
}

// parseHeader returns the index of the student column and the field path of
// every other non-empty column, keyed by column index.
func parseHeader(header []string) (int, map[int]string, error) {
	studentIdx := -1
	columns := make(map[int]string)
	seen := make(map[string]bool)

	for i, col := range header {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}
		if strings.EqualFold(col, StudentColumn) {
			studentIdx = i
			continue
		}

		path, err := fieldpath.Parse(col)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid column %q: %w", col, err)
		}
		if fieldpath.IsDerived(path) {
			return 0, nil, fmt.Errorf("%w: column %q", errors.ErrDerivedField, col)
		}
		if seen[path.Raw] {
			return 0, nil, fmt.Errorf("%w: duplicate column %q", errors.ErrInvalidFileFormat, col)
		}
		seen[path.Raw] = true
		columns[i] = path.Raw
	}

	if studentIdx < 0 {
		return 0, nil, fmt.Errorf("missing required column: %s", StudentColumn)
	}
	if len(columns) == 0 {
		return 0, nil, fmt.Errorf("%w: no field columns", errors.ErrInvalidFileFormat)
	}
	return studentIdx, columns, nil
}

func parseRow(row []string, studentIdx int, columns map[int]string, line int) (*CellRow, error) {
	if studentIdx >= len(row) || strings.TrimSpace(row[studentIdx]) == "" {
		return nil, fmt.Errorf("%s is required", StudentColumn)
	}

	raw := strings.TrimSpace(row[studentIdx])
	studentPartyID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || studentPartyID <= 0 {
		return nil, fmt.Errorf("invalid %s value: %s", StudentColumn, raw)
	}

	cells := make(map[string]string, len(columns))
	for idx, path := range columns {
		if idx < len(row) {
			cells[path] = row[idx]
		}
	}

	return &CellRow{
		Line:           line,
		StudentPartyID: studentPartyID,
		Cells:          cells,
	}, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
