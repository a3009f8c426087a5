package bulkedit

import (
	"sort"

	"assessment-results/internal/model"
)

// RowEdit pairs a snapshot row with the cells edited on it.
type RowEdit struct {
	Row   model.AssessmentResult
	Cells map[string]model.EditedCell
}

// Collect returns one RowEdit per snapshot row with at least one edit, in
// snapshot order. Edited students missing from the snapshot are returned
// separately, sorted, and are not part of any save.
func Collect(snapshot []model.AssessmentResult, edits model.EditedRows) ([]RowEdit, []int64) {
	pairs := make([]RowEdit, 0, len(edits))
	seen := make(map[int64]bool, len(edits))

	for _, row := range snapshot {
		cells := edits[row.StudentPartyID]
		if len(cells) == 0 || seen[row.StudentPartyID] {
			continue
		}
		seen[row.StudentPartyID] = true
		pairs = append(pairs, RowEdit{Row: row, Cells: cells})
	}

	var orphans []int64
	for studentPartyID, cells := range edits {
		if len(cells) > 0 && !seen[studentPartyID] {
			orphans = append(orphans, studentPartyID)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })

	return pairs, orphans
}
