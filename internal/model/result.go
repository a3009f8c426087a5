package model

import (
	"fmt"
	"sort"
)

type StudyLevel string

const (
	StudyLevelHigher     StudyLevel = "HIGHER"
	StudyLevelOrdinary   StudyLevel = "ORDINARY"
	StudyLevelFoundation StudyLevel = "FOUNDATION"
	StudyLevelCommon     StudyLevel = "COMMON"
	StudyLevelNone       StudyLevel = "NONE"
)

func (l StudyLevel) Valid() bool {
	switch l {
	case StudyLevelHigher, StudyLevelOrdinary, StudyLevelFoundation, StudyLevelCommon, StudyLevelNone:
		return true
	}
	return false
}

type CommenterUserType string

const CommenterUserTypeTeacher CommenterUserType = "TEACHER"

// AssessmentVariant selects which grade reference the wire contract carries.
type AssessmentVariant string

const (
	VariantTerm     AssessmentVariant = "TERM"
	VariantStateCBA AssessmentVariant = "STATE_CBA"
)

// Scope identifies one editable results table.
type Scope struct {
	AcademicNamespaceID int64 `json:"academic_namespace_id" form:"academic_namespace_id" binding:"required"`
	AssessmentID        int64 `json:"assessment_id" form:"assessment_id" binding:"required"`
	SubjectGroupID      int64 `json:"subject_group_id" form:"subject_group_id" binding:"required"`
}

func (s Scope) String() string {
	return fmt.Sprintf("%d:%d:%d", s.AcademicNamespaceID, s.AssessmentID, s.SubjectGroupID)
}

type TeacherComment struct {
	ID                   *int64            `json:"id,omitempty"`
	Comment              *string           `json:"comment"`
	CommentBankCommentID *int64            `json:"commentBankCommentId"`
	AssessmentID         *int64            `json:"assessmentId,omitempty"`
	StudentPartyID       *int64            `json:"studentPartyId,omitempty"`
	SubjectGroupPartyID  *int64            `json:"subjectGroupPartyId,omitempty"`
	CommenterPartyID     *int64            `json:"commenterPartyId,omitempty"`
	CommenterUserType    CommenterUserType `json:"commenterUserType,omitempty"`
}

// HasContent reports whether the comment carries free text or a comment bank reference.
func (c *TeacherComment) HasContent() bool {
	if c == nil {
		return false
	}
	return (c.Comment != nil && *c.Comment != "") || c.CommentBankCommentID != nil
}

type ExtraFieldResult struct {
	ID                     *int64  `json:"id,omitempty"`
	AssessmentExtraFieldID int64   `json:"assessmentExtraFieldId"`
	Result                 *string `json:"result"`
	CommentBankCommentID   *int64  `json:"commentBankCommentId"`
}

// AssessmentResult is one student's row in a results table.
type AssessmentResult struct {
	ID                 *int64                      `json:"id,omitempty"`
	AssessmentID       int64                       `json:"assessmentId"`
	StudentPartyID     int64                       `json:"studentPartyId"`
	SubjectGroupID     int64                       `json:"subjectGroupId"`
	ProgrammeShortName *string                     `json:"programmeShortName,omitempty"`
	StudentStudyLevel  *StudyLevel                 `json:"studentStudyLevel"`
	Result             *float64                    `json:"result"`
	TargetResult       *float64                    `json:"targetResult"`
	GradeResult        *string                     `json:"gradeResult"`
	TargetGradeResult  *string                     `json:"targetGradeResult"`
	GradeID            *int64                      `json:"gradeId,omitempty"`
	GradeNameID        *int64                      `json:"gradeNameId,omitempty"`
	Examinable         bool                        `json:"examinable"`
	TeacherComment     *TeacherComment             `json:"teacherComment,omitempty"`
	ExtraFields        map[int64]*ExtraFieldResult `json:"extraFields,omitempty"`
}

// Clone returns a deep copy; edits applied to the copy never reach r.
func (r *AssessmentResult) Clone() *AssessmentResult {
	if r == nil {
		return nil
	}
	c := *r
	c.ID = cloneInt64(r.ID)
	c.ProgrammeShortName = cloneString(r.ProgrammeShortName)
	if r.StudentStudyLevel != nil {
		lvl := *r.StudentStudyLevel
		c.StudentStudyLevel = &lvl
	}
	c.Result = cloneFloat(r.Result)
	c.TargetResult = cloneFloat(r.TargetResult)
	c.GradeResult = cloneString(r.GradeResult)
	c.TargetGradeResult = cloneString(r.TargetGradeResult)
	c.GradeID = cloneInt64(r.GradeID)
	c.GradeNameID = cloneInt64(r.GradeNameID)
	if r.TeacherComment != nil {
		tc := *r.TeacherComment
		tc.ID = cloneInt64(tc.ID)
		tc.Comment = cloneString(tc.Comment)
		tc.CommentBankCommentID = cloneInt64(tc.CommentBankCommentID)
		tc.AssessmentID = cloneInt64(tc.AssessmentID)
		tc.StudentPartyID = cloneInt64(tc.StudentPartyID)
		tc.SubjectGroupPartyID = cloneInt64(tc.SubjectGroupPartyID)
		tc.CommenterPartyID = cloneInt64(tc.CommenterPartyID)
		c.TeacherComment = &tc
	}
	if r.ExtraFields != nil {
		c.ExtraFields = make(map[int64]*ExtraFieldResult, len(r.ExtraFields))
		for id, ef := range r.ExtraFields {
			if ef == nil {
				continue
			}
			cp := *ef
			cp.ID = cloneInt64(ef.ID)
			cp.Result = cloneString(ef.Result)
			cp.CommentBankCommentID = cloneInt64(ef.CommentBankCommentID)
			c.ExtraFields[id] = &cp
		}
	}
	return &c
}

// ExtraFieldList projects the id-keyed extra fields onto the wire list, ordered by field id.
func ExtraFieldList(fields map[int64]*ExtraFieldResult) []ExtraFieldResult {
	ids := make([]int64, 0, len(fields))
	for id, ef := range fields {
		if ef != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	list := make([]ExtraFieldResult, 0, len(ids))
	for _, id := range ids {
		list = append(list, *fields[id])
	}
	return list
}

// ExtraFieldMap keys a wire list by field definition id.
func ExtraFieldMap(list []ExtraFieldResult) map[int64]*ExtraFieldResult {
	if len(list) == 0 {
		return nil
	}
	m := make(map[int64]*ExtraFieldResult, len(list))
	for i := range list {
		ef := list[i]
		m[ef.AssessmentExtraFieldID] = &ef
	}
	return m
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
