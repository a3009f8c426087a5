package model

import "time"

// EditedCell is the old/new pair recorded for one edited field of one row.
type EditedCell struct {
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
}

// EditedRows maps student party id -> field path -> edited cell.
type EditedRows map[int64]map[string]EditedCell

// Touched reports how many rows carry at least one edit.
func (e EditedRows) Touched() int {
	n := 0
	for _, cells := range e {
		if len(cells) > 0 {
			n++
		}
	}
	return n
}

// ResultInput is the per-student record of the bulk save mutation.
type ResultInput struct {
	ID                *int64             `json:"id,omitempty"`
	AssessmentID      int64              `json:"assessmentId"`
	SubjectGroupID    int64              `json:"subjectGroupId"`
	StudentPartyID    int64              `json:"studentPartyId"`
	StudentStudyLevel *StudyLevel        `json:"studentStudyLevel"`
	Result            *float64           `json:"result"`
	TargetResult      *float64           `json:"targetResult"`
	GradeResult       *string            `json:"gradeResult"`
	TargetGradeResult *string            `json:"targetGradeResult"`
	GradeNameID       *int64             `json:"gradeNameId,omitempty"`
	Examinable        bool               `json:"examinable"`
	TeacherComment    *TeacherComment    `json:"teacherComment,omitempty"`
	ExtraFields       []ExtraFieldResult `json:"extraFields"`
}

type ExclusionInput struct {
	AssessmentID   int64 `json:"assessmentId"`
	StudentPartyID int64 `json:"studentPartyId"`
	SubjectGroupID int64 `json:"subjectGroupId"`
	Excluded       bool  `json:"excluded"`
}

// FieldChange is emitted by the row store when a field changes outside the editing surface.
type FieldChange struct {
	Scope          Scope       `json:"scope"`
	StudentPartyID int64       `json:"student_party_id"`
	Field          string      `json:"field"`
	OldValue       interface{} `json:"old_value"`
	NewValue       interface{} `json:"new_value"`
}

type GradeQuery struct {
	AcademicNamespaceID int64      `json:"academicNamespaceId"`
	StudyLevel          StudyLevel `json:"studyLevel"`
	Result              float64    `json:"result"`
	ProgrammeShortName  string     `json:"programmeShortName"`
}

type CommentBankComment struct {
	ID      int64  `json:"id"`
	Comment string `json:"comment"`
	Active  bool   `json:"active"`
}

type RecalcJob struct {
	Scope              Scope       `json:"scope"`
	StudentPartyID     int64       `json:"student_party_id"`
	Result             *float64    `json:"result,omitempty"`
	TargetResult       *float64    `json:"target_result,omitempty"`
	StudyLevel         *StudyLevel `json:"study_level,omitempty"`
	ProgrammeShortName *string     `json:"programme_short_name,omitempty"`
}

type ImportJob struct {
	ImportID int64 `json:"import_id"`
}

type EditRequest struct {
	Scope          Scope       `json:"scope" binding:"required"`
	StudentPartyID int64       `json:"student_party_id" binding:"required"`
	Field          string      `json:"field" binding:"required"`
	OldValue       interface{} `json:"old_value"`
	NewValue       interface{} `json:"new_value"`
}

type SaveRequest struct {
	Scope   Scope             `json:"scope" binding:"required"`
	Variant AssessmentVariant `json:"variant"`
}

type SaveResponse struct {
	SaveRunID string  `json:"save_run_id"`
	SavedIDs  []int64 `json:"saved_ids"`
	RowCount  int     `json:"row_count"`
	Excluded  int     `json:"excluded"`
}

type ImportRequest struct {
	Scope  Scope  `json:"scope" binding:"required"`
	S3Path string `json:"s3_path" binding:"required"`
}

type StatusResponse struct {
	ImportID     int64        `json:"import_id"`
	Status       ImportStatus `json:"status"`
	EditedCells  int          `json:"edited_cells"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type AuthTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
