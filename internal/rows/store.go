// Package rows holds the snapshot rows of an editable results table and
// notifies subscribers when a field is changed outside the editing surface,
// e.g. when a recalculated grade lands.
package rows

import (
	"context"
	"fmt"

	"assessment-results/internal/fieldpath"
	"assessment-results/internal/model"
	"assessment-results/pkg/errors"
)

type Store interface {
	// Load replaces the snapshot of a scope, keeping the given row order.
	Load(ctx context.Context, scope model.Scope, rows []model.AssessmentResult) error
	List(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error)
	Get(ctx context.Context, scope model.Scope, studentPartyID int64) (*model.AssessmentResult, error)
	// PatchField updates a single direct field of the current row and
	// notifies subscribers. It reports false when the value was already set.
	PatchField(ctx context.Context, scope model.Scope, studentPartyID int64, field string, value interface{}) (bool, error)
	// Subscribe streams field changes until ctx is done.
	Subscribe(ctx context.Context, scope model.Scope) (<-chan model.FieldChange, error)
}

func applyPatch(row *model.AssessmentResult, scope model.Scope, field string, value interface{}) (model.FieldChange, bool, error) {
	p, err := fieldpath.Parse(field)
	if err != nil {
		return model.FieldChange{}, false, err
	}
	if p.Kind != fieldpath.Direct {
		return model.FieldChange{}, false, fmt.Errorf("%w: only direct fields can be patched, got %s", errors.ErrMalformedPath, field)
	}

	old := fieldpath.Get(row, p)
	if fieldpath.Equal(p, old, value) {
		return model.FieldChange{}, false, nil
	}
	if err := fieldpath.Set(row, p, value); err != nil {
		return model.FieldChange{}, false, err
	}

	return model.FieldChange{
		Scope:          scope,
		StudentPartyID: row.StudentPartyID,
		Field:          p.Raw,
		OldValue:       old,
		NewValue:       fieldpath.Get(row, p),
	}, true, nil
}
