package fieldpath

import (
	"encoding/json"
	"testing"

	"assessment-results/internal/model"
	"assessment-results/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantRaw   string
		wantKind  Kind
		wantID    int64
		wantAttr  Attribute
		wantErrIs error
	}{
		{name: "direct", raw: "result", wantRaw: "result", wantKind: Direct},
		{name: "nested direct", raw: "teacherComment.comment", wantRaw: "teacherComment.comment", wantKind: Direct},
		{name: "extra field result", raw: "extraFields.3.result", wantRaw: "extraFields.3.result", wantKind: ExtraField, wantID: 3, wantAttr: AttrResult},
		{name: "extra field bank comment", raw: "extraFields.9.commentBankCommentId", wantRaw: "extraFields.9.commentBankCommentId", wantKind: ExtraField, wantID: 9, wantAttr: AttrCommentBankCommentID},
		{name: "bracketed", raw: "extraFields[12].result", wantRaw: "extraFields.12.result", wantKind: ExtraField, wantID: 12, wantAttr: AttrResult},
		{name: "leading zeros", raw: "extraFields.007.result", wantRaw: "extraFields.7.result", wantKind: ExtraField, wantID: 7, wantAttr: AttrResult},
		{name: "empty", raw: "  ", wantErrIs: errors.ErrMalformedPath},
		{name: "non numeric id", raw: "extraFields.abc.result", wantErrIs: errors.ErrMalformedPath},
		{name: "zero id", raw: "extraFields.0.result", wantErrIs: errors.ErrMalformedPath},
		{name: "missing attribute", raw: "extraFields.3", wantErrIs: errors.ErrMalformedPath},
		{name: "unknown attribute", raw: "extraFields.3.grade", wantErrIs: errors.ErrUnknownField},
		{name: "unknown field", raw: "studentName", wantErrIs: errors.ErrUnknownField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.raw)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRaw, p.Raw)
			assert.Equal(t, tt.wantKind, p.Kind)
			assert.Equal(t, tt.wantID, p.FieldID)
			assert.Equal(t, tt.wantAttr, p.Attribute)
		})
	}
}

func TestPathClassification(t *testing.T) {
	assert.True(t, IsDerived(MustParse(GradeResult)))
	assert.True(t, IsDerived(MustParse(TargetGradeResult)))
	assert.False(t, IsDerived(MustParse(Result)))
	assert.False(t, IsDerived(MustParse("extraFields.3.result")))

	assert.True(t, IsCommentBankRef(MustParse(TeacherCommentBankCommentID)))
	assert.True(t, IsCommentBankRef(MustParse("extraFields.3.commentBankCommentId")))
	assert.False(t, IsCommentBankRef(MustParse("extraFields.3.result")))

	assert.True(t, IsClamped(MustParse(Result)))
	assert.True(t, IsClamped(MustParse(TargetResult)))
	assert.False(t, IsClamped(MustParse(GradeNameID)))

	assert.Equal(t, "extraFields.7.commentBankCommentId", ExtraFieldPath(7, AttrCommentBankCommentID))
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		value     interface{}
		want      interface{}
		wantErrIs error
	}{
		{name: "number from float", path: Result, value: 55.5, want: 55.5},
		{name: "number from int", path: Result, value: 40, want: float64(40)},
		{name: "number from text", path: Result, value: " 72.25 ", want: 72.25},
		{name: "number from json number", path: TargetResult, value: json.Number("18"), want: float64(18)},
		{name: "blank number", path: Result, value: "", want: nil},
		{name: "bad number", path: Result, value: "abc", wantErrIs: errors.ErrInvalidValue},
		{name: "text", path: TeacherComment, value: "Good work", want: "Good work"},
		{name: "empty text", path: TeacherComment, value: "", want: nil},
		{name: "bool", path: Examinable, value: false, want: false},
		{name: "bool from text", path: Examinable, value: "Yes", want: true},
		{name: "nil bool", path: Examinable, value: nil, want: false},
		{name: "bad bool", path: Examinable, value: "maybe", wantErrIs: errors.ErrInvalidValue},
		{name: "id from float", path: GradeNameID, value: float64(7), want: int64(7)},
		{name: "zero id", path: GradeNameID, value: 0, want: nil},
		{name: "fractional id", path: GradeNameID, value: 7.5, wantErrIs: errors.ErrInvalidValue},
		{name: "study level", path: StudentStudyLevel, value: "higher", want: model.StudyLevelHigher},
		{name: "bad study level", path: StudentStudyLevel, value: "ADVANCED", wantErrIs: errors.ErrInvalidValue},
		{name: "extra field result from number", path: "extraFields.3.result", value: float64(12), want: "12"},
		{name: "extra field bank id", path: "extraFields.3.commentBankCommentId", value: "44", want: int64(44)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonical(MustParse(tt.path), tt.value)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(MustParse(Result), 50, "50"))
	assert.True(t, Equal(MustParse(GradeNameID), float64(3), int64(3)))
	assert.True(t, Equal(MustParse(TeacherComment), nil, ""))
	assert.True(t, Equal(MustParse(Examinable), nil, false))
	assert.False(t, Equal(MustParse(Result), 50, 51))
	assert.False(t, Equal(MustParse(Result), "abc", "abc"))
}

func TestParseText(t *testing.T) {
	v, err := ParseText(MustParse(Examinable), "   ")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ParseText(MustParse(Result), "81")
	require.NoError(t, err)
	assert.Equal(t, float64(81), v)
}

func TestGetSet(t *testing.T) {
	score := 40.0
	row := &model.AssessmentResult{
		StudentPartyID: 1,
		Result:         &score,
		ExtraFields: map[int64]*model.ExtraFieldResult{
			3: {AssessmentExtraFieldID: 3, Result: strPtr("A")},
		},
	}

	assert.Equal(t, 40.0, Get(row, MustParse(Result)))
	assert.Nil(t, Get(row, MustParse(TeacherComment)))
	assert.Equal(t, "A", Get(row, MustParse("extraFields.3.result")))
	assert.Nil(t, Get(row, MustParse("extraFields.9.result")))

	require.NoError(t, Set(row, MustParse(Result), "55"))
	assert.Equal(t, 55.0, *row.Result)

	require.NoError(t, Set(row, MustParse(TeacherComment), "Well done"))
	require.NotNil(t, row.TeacherComment)
	assert.Equal(t, "Well done", *row.TeacherComment.Comment)

	require.NoError(t, Set(row, MustParse(StudentStudyLevel), "ordinary"))
	assert.Equal(t, model.StudyLevelOrdinary, *row.StudentStudyLevel)

	require.NoError(t, Set(row, MustParse(Result), nil))
	assert.Nil(t, row.Result)

	assert.ErrorIs(t, Set(row, MustParse("extraFields.3.result"), "B"), errors.ErrMalformedPath)
	assert.ErrorIs(t, Set(row, MustParse(Result), "high"), errors.ErrInvalidValue)
}

func strPtr(s string) *string { return &s }

func TestSetTeacherCommentClearsOtherSource(t *testing.T) {
	row := &model.AssessmentResult{StudentPartyID: 1}

	require.NoError(t, Set(row, MustParse(TeacherComment), "hi"))
	require.NoError(t, Set(row, MustParse(TeacherCommentBankCommentID), int64(12)))
	assert.Nil(t, row.TeacherComment.Comment)
	assert.Equal(t, int64(12), *row.TeacherComment.CommentBankCommentID)

	require.NoError(t, Set(row, MustParse(TeacherComment), "hi again"))
	assert.Equal(t, "hi again", *row.TeacherComment.Comment)
	assert.Nil(t, row.TeacherComment.CommentBankCommentID)

	require.NoError(t, Set(row, MustParse(TeacherCommentBankCommentID), nil))
	assert.Equal(t, "hi again", *row.TeacherComment.Comment)
}
