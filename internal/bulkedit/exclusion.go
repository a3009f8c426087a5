package bulkedit

import (
	"fmt"
	"sort"

	"assessment-results/internal/fieldpath"
	"assessment-results/internal/model"
)

var examinablePath = fieldpath.MustParse(fieldpath.Examinable)

// BuildExclusions derives one exclusion record per examinable edit of a
// collected row, with excluded being the negation of the new value. Orphan
// edits never reach it. Records are ordered by student.
func BuildExclusions(scope model.Scope, pairs []RowEdit) ([]model.ExclusionInput, error) {
	exclusions := make([]model.ExclusionInput, 0, len(pairs))
	for _, pair := range pairs {
		cell, ok := pair.Cells[examinablePath.Raw]
		if !ok {
			continue
		}
		studentPartyID := pair.Row.StudentPartyID
		v, err := fieldpath.Canonical(examinablePath, cell.NewValue)
		if err != nil {
			return nil, fmt.Errorf("student %d: %w", studentPartyID, err)
		}
		exclusions = append(exclusions, model.ExclusionInput{
			AssessmentID:   scope.AssessmentID,
			StudentPartyID: studentPartyID,
			SubjectGroupID: scope.SubjectGroupID,
			Excluded:       !v.(bool),
		})
	}
	sort.Slice(exclusions, func(i, j int) bool {
		return exclusions[i].StudentPartyID < exclusions[j].StudentPartyID
	})
	return exclusions, nil
}
