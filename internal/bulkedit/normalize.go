package bulkedit

import (
	"fmt"
	"sort"

	"assessment-results/internal/fieldpath"
	"assessment-results/internal/model"
)

// ApplyEdits writes the new value of every cell onto row. Cells are applied
// in path order so the outcome does not depend on map iteration.
func ApplyEdits(row *model.AssessmentResult, cells map[string]model.EditedCell) error {
	paths := make([]string, 0, len(cells))
	for path := range cells {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, raw := range paths {
		p, err := fieldpath.Parse(raw)
		if err != nil {
			return err
		}
		value := cells[raw].NewValue
		if p.Kind == fieldpath.ExtraField {
			err = mergeExtraField(row, p, value)
		} else {
			err = fieldpath.Set(row, p, value)
		}
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", raw, err)
		}
	}
	return nil
}

// EffectiveRow is a copy of row with the cells applied: the row as the
// editor currently sees it.
func EffectiveRow(row *model.AssessmentResult, cells map[string]model.EditedCell) (*model.AssessmentResult, error) {
	effective := row.Clone()
	if err := ApplyEdits(effective, cells); err != nil {
		return nil, err
	}
	return effective, nil
}

// Normalize builds one mutation input per RowEdit. Snapshot rows are copied,
// never modified, so normalizing the same edits twice gives the same payload.
func Normalize(scope model.Scope, commenterPartyID int64, variant model.AssessmentVariant, pairs []RowEdit) ([]model.ResultInput, error) {
	inputs := make([]model.ResultInput, 0, len(pairs))
	for _, pair := range pairs {
		row := pair.Row.Clone()
		row.AssessmentID = scope.AssessmentID
		row.SubjectGroupID = scope.SubjectGroupID

		if err := ApplyEdits(row, pair.Cells); err != nil {
			return nil, fmt.Errorf("student %d: %w", row.StudentPartyID, err)
		}

		if row.TeacherComment.HasContent() {
			stampTeacherComment(row.TeacherComment, scope, row.StudentPartyID, commenterPartyID)
		}

		inputs = append(inputs, toInput(row, variant))
	}
	return inputs, nil
}

// stampTeacherComment attributes the comment to the acting teacher; the
// commenter never comes from the row itself.
func stampTeacherComment(c *model.TeacherComment, scope model.Scope, studentPartyID, commenterPartyID int64) {
	assessmentID := scope.AssessmentID
	subjectGroupID := scope.SubjectGroupID
	c.AssessmentID = &assessmentID
	c.StudentPartyID = &studentPartyID
	c.SubjectGroupPartyID = &subjectGroupID
	c.CommenterPartyID = &commenterPartyID
	c.CommenterUserType = model.CommenterUserTypeTeacher
}

// toInput drops client-only fields. The gradeId alias is what the grid edits
// for state CBA assessments; there it becomes the grade-set reference, for
// term assessments it has no wire counterpart.
func toInput(row *model.AssessmentResult, variant model.AssessmentVariant) model.ResultInput {
	input := model.ResultInput{
		ID:                row.ID,
		AssessmentID:      row.AssessmentID,
		SubjectGroupID:    row.SubjectGroupID,
		StudentPartyID:    row.StudentPartyID,
		StudentStudyLevel: row.StudentStudyLevel,
		Result:            row.Result,
		TargetResult:      row.TargetResult,
		GradeResult:       row.GradeResult,
		TargetGradeResult: row.TargetGradeResult,
		GradeNameID:       row.GradeNameID,
		Examinable:        row.Examinable,
		TeacherComment:    row.TeacherComment,
		ExtraFields:       model.ExtraFieldList(row.ExtraFields),
	}
	if variant == model.VariantStateCBA && row.GradeID != nil {
		input.GradeNameID = row.GradeID
	}
	return input
}
