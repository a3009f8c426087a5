// Package bulkedit turns the cell edits of a results table into the bulk
// save mutation: it records and diffs edits, merges extra fields, derives
// exclusions and normalizes one mutation input per touched student.
package bulkedit

import (
	"fmt"
	"math"

	"assessment-results/internal/fieldpath"
	"assessment-results/internal/model"
	"assessment-results/pkg/errors"
)

const (
	minResult = 0
	maxResult = 100
)

// RecordEdit stores one cell edit in edits, which must be non-nil.
// Values are canonicalised, percentages are clamped to [0, 100], the first
// recorded old value is kept, and an edit back to that value drops the cell.
func RecordEdit(edits model.EditedRows, studentPartyID int64, field string, oldValue, newValue interface{}) (fieldpath.Path, error) {
	p, err := fieldpath.Parse(field)
	if err != nil {
		return p, err
	}
	if fieldpath.IsDerived(p) {
		return p, fmt.Errorf("%w: %s", errors.ErrDerivedField, p.Raw)
	}

	newC, err := fieldpath.Canonical(p, newValue)
	if err != nil {
		return p, err
	}
	oldC, err := fieldpath.Canonical(p, oldValue)
	if err != nil {
		return p, err
	}
	if fieldpath.IsClamped(p) && newC != nil {
		newC = Clamp(newC.(float64))
	}

	cells := edits[studentPartyID]
	if existing, ok := cells[p.Raw]; ok {
		oldC = existing.OldValue
	}

	if fieldpath.Equal(p, oldC, newC) {
		delete(cells, p.Raw)
		if len(cells) == 0 {
			delete(edits, studentPartyID)
		}
		return p, nil
	}

	if cells == nil {
		cells = make(map[string]model.EditedCell)
		edits[studentPartyID] = cells
	}
	cells[p.Raw] = model.EditedCell{OldValue: oldC, NewValue: newC}
	return p, nil
}

// MergeEdits records every cell of src into dst.
func MergeEdits(dst, src model.EditedRows) error {
	for studentPartyID, cells := range src {
		for field, cell := range cells {
			if _, err := RecordEdit(dst, studentPartyID, field, cell.OldValue, cell.NewValue); err != nil {
				return fmt.Errorf("student %d: %w", studentPartyID, err)
			}
		}
	}
	return nil
}

// Clamp holds a percentage result to [0, 100].
func Clamp(v float64) float64 {
	return math.Min(maxResult, math.Max(minResult, v))
}
