// Package fieldpath resolves the field paths emitted by the results grid
// (e.g. "result", "teacherComment.comment", "extraFields.12.result") into
// typed locations on a model.AssessmentResult and reads or writes them.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"

	"assessment-results/pkg/errors"
)

type Kind int

const (
	Direct Kind = iota
	ExtraField
)

type Attribute string

const (
	AttrResult               Attribute = "result"
	AttrCommentBankCommentID Attribute = "commentBankCommentId"
)

const (
	Result                      = "result"
	TargetResult                = "targetResult"
	StudentStudyLevel           = "studentStudyLevel"
	Examinable                  = "examinable"
	GradeResult                 = "gradeResult"
	TargetGradeResult           = "targetGradeResult"
	GradeID                     = "gradeId"
	GradeNameID                 = "gradeNameId"
	TeacherComment              = "teacherComment.comment"
	TeacherCommentBankCommentID = "teacherComment.commentBankCommentId"

	extraFieldsPrefix = "extraFields"
)

type Path struct {
	Raw       string
	Kind      Kind
	Segments  []string
	FieldID   int64
	Attribute Attribute
}

func (p Path) String() string {
	return p.Raw
}

// Parse accepts dotted ("extraFields.3.result") and bracketed
// ("extraFields[3].result") forms. Raw is always the dotted form with the
// field id in decimal, so equal paths share one draft key.
func Parse(raw string) (Path, error) {
	normalized := strings.NewReplacer("[", ".", "]", "").Replace(strings.TrimSpace(raw))
	if normalized == "" {
		return Path{}, fmt.Errorf("%w: empty path", errors.ErrMalformedPath)
	}

	segments := strings.Split(normalized, ".")
	if segments[0] == extraFieldsPrefix {
		if len(segments) != 3 {
			return Path{}, fmt.Errorf("%w: %q", errors.ErrMalformedPath, raw)
		}
		id, err := strconv.ParseInt(segments[1], 10, 64)
		if err != nil || id <= 0 {
			return Path{}, fmt.Errorf("%w: extra field id %q", errors.ErrMalformedPath, segments[1])
		}
		attr := Attribute(segments[2])
		if attr != AttrResult && attr != AttrCommentBankCommentID {
			return Path{}, fmt.Errorf("%w: %q", errors.ErrUnknownField, raw)
		}
		canonical := ExtraFieldPath(id, attr)
		return Path{
			Raw:       canonical,
			Kind:      ExtraField,
			Segments:  strings.Split(canonical, "."),
			FieldID:   id,
			Attribute: attr,
		}, nil
	}

	if _, ok := directFields[normalized]; !ok {
		return Path{}, fmt.Errorf("%w: %q", errors.ErrUnknownField, raw)
	}
	return Path{Raw: normalized, Kind: Direct, Segments: segments}, nil
}

// MustParse is for paths built by this codebase; it panics on error.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// ExtraFieldPath builds the path of an extra-field sub-attribute.
func ExtraFieldPath(fieldID int64, attr Attribute) string {
	return fmt.Sprintf("%s.%d.%s", extraFieldsPrefix, fieldID, attr)
}

// IsDerived reports whether the field is computed server-side and so never part of an edit diff.
func IsDerived(p Path) bool {
	if p.Kind != Direct {
		return false
	}
	return directFields[p.Raw].derived
}

// IsCommentBankRef reports whether the path stores a comment bank comment id.
func IsCommentBankRef(p Path) bool {
	if p.Kind == ExtraField {
		return p.Attribute == AttrCommentBankCommentID
	}
	return p.Raw == TeacherCommentBankCommentID
}

// IsClamped reports whether values at the path are percentages held to [0, 100].
func IsClamped(p Path) bool {
	return p.Kind == Direct && (p.Raw == Result || p.Raw == TargetResult)
}
