package sheet

import (
	"fmt"
	"sort"

	"assessment-results/internal/bulkedit"
	"assessment-results/internal/fieldpath"
	"assessment-results/internal/model"
)

// Diff turns sheet rows into edits against the snapshot. Blank cells are
// ignored, so an import never clears a value, and cells matching the
// snapshot produce no edit. Students missing from the snapshot are
// returned sorted and contribute nothing.
func Diff(snapshot []model.AssessmentResult, rows []CellRow) (model.EditedRows, []int64, error) {
	byStudent := make(map[int64]*model.AssessmentResult, len(snapshot))
	for i := range snapshot {
		byStudent[snapshot[i].StudentPartyID] = &snapshot[i]
	}

	edits := model.EditedRows{}
	var unknown []int64
	for _, row := range rows {
		current, ok := byStudent[row.StudentPartyID]
		if !ok {
			unknown = append(unknown, row.StudentPartyID)
			continue
		}

		for raw, text := range row.Cells {
			path, err := fieldpath.Parse(raw)
			if err != nil {
				return nil, nil, err
			}
			value, err := fieldpath.ParseText(path, text)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: %w", row.Line, err)
			}
			if value == nil {
				continue
			}
			if _, err := bulkedit.RecordEdit(edits, row.StudentPartyID, path.Raw, fieldpath.Get(current, path), value); err != nil {
				return nil, nil, fmt.Errorf("row %d: %w", row.Line, err)
			}
		}
	}

	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	return edits, unknown, nil
}

// CellCount is the number of edited cells across all rows.
func CellCount(edits model.EditedRows) int {
	n := 0
	for _, cells := range edits {
		n += len(cells)
	}
	return n
}
