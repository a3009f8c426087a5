package fieldpath

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"assessment-results/internal/model"
	"assessment-results/pkg/errors"
)

type valueKind int

const (
	kindNumber valueKind = iota
	kindString
	kindBool
	kindID
	kindStudyLevel
)

type field struct {
	kind    valueKind
	derived bool
	get     func(r *model.AssessmentResult) interface{}
	set     func(r *model.AssessmentResult, v interface{})
}

var directFields = map[string]field{
	Result: {
		kind: kindNumber,
		get:  func(r *model.AssessmentResult) interface{} { return floatValue(r.Result) },
		set:  func(r *model.AssessmentResult, v interface{}) { r.Result = floatPtr(v) },
	},
	TargetResult: {
		kind: kindNumber,
		get:  func(r *model.AssessmentResult) interface{} { return floatValue(r.TargetResult) },
		set:  func(r *model.AssessmentResult, v interface{}) { r.TargetResult = floatPtr(v) },
	},
	StudentStudyLevel: {
		kind: kindStudyLevel,
		get: func(r *model.AssessmentResult) interface{} {
			if r.StudentStudyLevel == nil {
				return nil
			}
			return *r.StudentStudyLevel
		},
		set: func(r *model.AssessmentResult, v interface{}) {
			if v == nil {
				r.StudentStudyLevel = nil
				return
			}
			lvl := v.(model.StudyLevel)
			r.StudentStudyLevel = &lvl
		},
	},
	Examinable: {
		kind: kindBool,
		get:  func(r *model.AssessmentResult) interface{} { return r.Examinable },
		set:  func(r *model.AssessmentResult, v interface{}) { r.Examinable = v.(bool) },
	},
	GradeResult: {
		kind:    kindString,
		derived: true,
		get:     func(r *model.AssessmentResult) interface{} { return stringValue(r.GradeResult) },
		set:     func(r *model.AssessmentResult, v interface{}) { r.GradeResult = stringPtr(v) },
	},
	TargetGradeResult: {
		kind:    kindString,
		derived: true,
		get:     func(r *model.AssessmentResult) interface{} { return stringValue(r.TargetGradeResult) },
		set:     func(r *model.AssessmentResult, v interface{}) { r.TargetGradeResult = stringPtr(v) },
	},
	GradeID: {
		kind: kindID,
		get:  func(r *model.AssessmentResult) interface{} { return idValue(r.GradeID) },
		set:  func(r *model.AssessmentResult, v interface{}) { r.GradeID = idPtr(v) },
	},
	GradeNameID: {
		kind: kindID,
		get:  func(r *model.AssessmentResult) interface{} { return idValue(r.GradeNameID) },
		set:  func(r *model.AssessmentResult, v interface{}) { r.GradeNameID = idPtr(v) },
	},
	TeacherComment: {
		kind: kindString,
		get: func(r *model.AssessmentResult) interface{} {
			if r.TeacherComment == nil {
				return nil
			}
			return stringValue(r.TeacherComment.Comment)
		},
		set: func(r *model.AssessmentResult, v interface{}) {
			if r.TeacherComment == nil {
				r.TeacherComment = &model.TeacherComment{}
			}
			r.TeacherComment.Comment = stringPtr(v)
			if v != nil {
				r.TeacherComment.CommentBankCommentID = nil
			}
		},
	},
	TeacherCommentBankCommentID: {
		kind: kindID,
		get: func(r *model.AssessmentResult) interface{} {
			if r.TeacherComment == nil {
				return nil
			}
			return idValue(r.TeacherComment.CommentBankCommentID)
		},
		set: func(r *model.AssessmentResult, v interface{}) {
			if r.TeacherComment == nil {
				r.TeacherComment = &model.TeacherComment{}
			}
			r.TeacherComment.CommentBankCommentID = idPtr(v)
			if v != nil {
				r.TeacherComment.Comment = nil
			}
		},
	},
}

func kindOf(p Path) valueKind {
	if p.Kind == ExtraField {
		if p.Attribute == AttrCommentBankCommentID {
			return kindID
		}
		return kindString
	}
	return directFields[p.Raw].kind
}

// Canonical coerces a value decoded from JSON or a spreadsheet into the
// field's Go type: float64, int64, string, bool, model.StudyLevel or nil.
// Empty strings and zero ids become nil.
func Canonical(p Path, v interface{}) (interface{}, error) {
	c, err := canonical(kindOf(p), v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrInvalidValue, p.Raw, err)
	}
	return c, nil
}

// ParseText reads a spreadsheet cell. Blank cells yield nil.
func ParseText(p Path, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	return Canonical(p, raw)
}

// Equal compares two values after canonicalisation.
func Equal(p Path, a, b interface{}) bool {
	ca, err := Canonical(p, a)
	if err != nil {
		return false
	}
	cb, err := Canonical(p, b)
	if err != nil {
		return false
	}
	return ca == cb
}

// Get reads the canonical value at p. Missing extra fields read as nil.
func Get(r *model.AssessmentResult, p Path) interface{} {
	if p.Kind == ExtraField {
		ef := r.ExtraFields[p.FieldID]
		if ef == nil {
			return nil
		}
		if p.Attribute == AttrCommentBankCommentID {
			return idValue(ef.CommentBankCommentID)
		}
		return stringValue(ef.Result)
	}
	return directFields[p.Raw].get(r)
}

// Set writes a direct field. Extra fields are merged by the caller since a
// missing record has to be created with its definition id.
func Set(r *model.AssessmentResult, p Path, v interface{}) error {
	if p.Kind != Direct {
		return fmt.Errorf("%w: %s is not a direct field", errors.ErrMalformedPath, p.Raw)
	}
	f, ok := directFields[p.Raw]
	if !ok {
		return fmt.Errorf("%w: %q", errors.ErrUnknownField, p.Raw)
	}
	c, err := Canonical(p, v)
	if err != nil {
		return err
	}
	f.set(r, c)
	return nil
}

func canonical(kind valueKind, v interface{}) (interface{}, error) {
	if v == nil {
		if kind == kindBool {
			return false, nil
		}
		return nil, nil
	}

	switch kind {
	case kindNumber:
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return toFloat(v)
	case kindString:
		switch t := v.(type) {
		case string:
			if t == "" {
				return nil, nil
			}
			return t, nil
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), nil
		case json.Number:
			return t.String(), nil
		}
		return nil, fmt.Errorf("expected text, got %T", v)
	case kindBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "yes", "y", "1":
				return true, nil
			case "false", "no", "n", "0", "":
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected boolean, got %v", v)
	case kindID:
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
		id, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if id == 0 {
			return nil, nil
		}
		return id, nil
	case kindStudyLevel:
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case model.StudyLevel:
			s = string(t)
		default:
			return nil, fmt.Errorf("expected study level, got %T", v)
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		lvl := model.StudyLevel(strings.ToUpper(strings.TrimSpace(s)))
		if !lvl.Valid() {
			return nil, fmt.Errorf("unknown study level %q", s)
		}
		return lvl, nil
	}
	return nil, fmt.Errorf("unsupported value kind %d", kind)
}

func toFloat(v interface{}) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", t)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected finite number, got %v", f)
	}
	return f, nil
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("expected integer id, got %v", t)
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer id, got %q", t)
		}
		return id, nil
	}
	return 0, fmt.Errorf("expected integer id, got %T", v)
}

func floatValue(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func stringValue(p *string) interface{} {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}

func idValue(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(v interface{}) *float64 {
	if v == nil {
		return nil
	}
	f := v.(float64)
	return &f
}

func stringPtr(v interface{}) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func idPtr(v interface{}) *int64 {
	if v == nil {
		return nil
	}
	id := v.(int64)
	return &id
}
