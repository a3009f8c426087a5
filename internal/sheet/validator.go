package sheet

import (
	"context"
	"fmt"

	"assessment-results/internal/fieldpath"
	"assessment-results/pkg/errors"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(ctx context.Context, rows []CellRow) error {
	if len(rows) == 0 {
		return errors.ErrSchemaValidation
	}

	seen := make(map[int64]int, len(rows))
	for _, row := range rows {
		if first, ok := seen[row.StudentPartyID]; ok {
			return errors.ValidationError{
				Field:   StudentColumn,
				Value:   row.StudentPartyID,
				Message: fmt.Sprintf("row %d repeats the student of row %d", row.Line, first),
			}
		}
		seen[row.StudentPartyID] = row.Line

		if err := v.validateRow(row); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateRow(row CellRow) error {
	for raw, text := range row.Cells {
		path, err := fieldpath.Parse(raw)
		if err != nil {
			return err
		}
		if _, err := fieldpath.ParseText(path, text); err != nil {
			return errors.ValidationError{
				Field:   raw,
				Value:   text,
				Message: fmt.Sprintf("row %d: %v", row.Line, err),
			}
		}
	}
	return nil
}
