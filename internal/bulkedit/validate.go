package bulkedit

import (
	"context"
	"fmt"

	"assessment-results/internal/fieldpath"
	"assessment-results/internal/model"
	"assessment-results/pkg/errors"
)

type CommentBankSource interface {
	ActiveCommentBank(ctx context.Context, scope model.Scope) ([]model.CommentBankComment, error)
}

// EditValidator rejects edits before they reach a draft.
type EditValidator struct {
	bank CommentBankSource
}

func NewEditValidator(bank CommentBankSource) *EditValidator {
	return &EditValidator{bank: bank}
}

// Validate checks comment bank references against the assessment's active
// comment bank. Clearing a reference is always allowed.
func (v *EditValidator) Validate(ctx context.Context, scope model.Scope, p fieldpath.Path, value interface{}) error {
	if !fieldpath.IsCommentBankRef(p) {
		return nil
	}
	c, err := fieldpath.Canonical(p, value)
	if err != nil || c == nil {
		return err
	}

	comments, err := v.bank.ActiveCommentBank(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to load comment bank: %w", err)
	}
	if len(comments) == 0 {
		return errors.ErrNoActiveCommentBank
	}

	id := c.(int64)
	for _, comment := range comments {
		if comment.ID == id {
			return nil
		}
	}
	return fmt.Errorf("%w: %d", errors.ErrUnknownBankComment, id)
}

// ValidateAll runs Validate over every cell of edits.
func (v *EditValidator) ValidateAll(ctx context.Context, scope model.Scope, edits model.EditedRows) error {
	for studentPartyID, cells := range edits {
		for raw, cell := range cells {
			p, err := fieldpath.Parse(raw)
			if err != nil {
				return err
			}
			if err := v.Validate(ctx, scope, p, cell.NewValue); err != nil {
				return fmt.Errorf("student %d: %w", studentPartyID, err)
			}
		}
	}
	return nil
}
