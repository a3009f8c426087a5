package bulkedit

import (
	"assessment-results/internal/fieldpath"
	"assessment-results/internal/model"
)

// mergeExtraField writes one extra-field sub-attribute, creating the record
// keyed by its definition id when the row has none. Empty values are stored
// as null; a record is never removed once it exists. A record holds either
// free text or a comment bank id, so writing one clears the other.
func mergeExtraField(row *model.AssessmentResult, p fieldpath.Path, value interface{}) error {
	v, err := fieldpath.Canonical(p, value)
	if err != nil {
		return err
	}

	if row.ExtraFields == nil {
		row.ExtraFields = make(map[int64]*model.ExtraFieldResult)
	}
	ef := row.ExtraFields[p.FieldID]
	if ef == nil {
		ef = &model.ExtraFieldResult{AssessmentExtraFieldID: p.FieldID}
		row.ExtraFields[p.FieldID] = ef
	}

	switch p.Attribute {
	case fieldpath.AttrResult:
		ef.Result = nil
		if v != nil {
			s := v.(string)
			ef.Result = &s
			ef.CommentBankCommentID = nil
		}
	case fieldpath.AttrCommentBankCommentID:
		ef.CommentBankCommentID = nil
		if v != nil {
			id := v.(int64)
			ef.CommentBankCommentID = &id
			ef.Result = nil
		}
	}
	return nil
}
