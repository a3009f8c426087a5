package gateway

import (
	"context"
	"fmt"

	"assessment-results/internal/model"
	"assessment-results/pkg/errors"
)

const fetchResultsQuery = `query assessment_assessmentResult($filter: AssessmentResultFilter) {
  assessment_assessmentResult(filter: $filter) {
    id
    assessmentId
    studentPartyId
    subjectGroupId
    studentStudyLevel
    studentProgramme { shortName }
    result
    targetResult
    gradeResult
    targetGradeResult
    gradeNameId
    examinable
    teacherComment { id comment commentBankCommentId commenterUserType commenterPartyId }
    extraFields { id assessmentExtraFieldId result commentBankCommentId }
  }
}`

const calculateGradeQuery = `query assessment_calculateGrade($filter: CalculateGradeFilter) {
  assessment_calculateGrade(filter: $filter) { grade }
}`

const saveExclusionsMutation = `mutation assessment_saveStudentAssessmentExclusions($input: [StudentAssessmentExclusionInput]) {
  assessment_saveStudentAssessmentExclusions(input: $input) { success }
}`

const saveResultsMutation = `mutation assessment_saveAssessmentResult($input: [SaveAssessmentResultInput]) {
  assessment_saveAssessmentResult(input: $input) { id }
}`

const commentBankQuery = `query assessment_commentBankAssessment($filter: CommentBankAssessmentFilter) {
  assessment_commentBankAssessment(filter: $filter) {
    comments { id comment active }
  }
}`

type programmeNode struct {
	ShortName *string `json:"shortName"`
}

type resultNode struct {
	ID                *int64                   `json:"id"`
	AssessmentID      int64                    `json:"assessmentId"`
	StudentPartyID    int64                    `json:"studentPartyId"`
	SubjectGroupID    int64                    `json:"subjectGroupId"`
	StudentStudyLevel *model.StudyLevel        `json:"studentStudyLevel"`
	StudentProgramme  *programmeNode           `json:"studentProgramme"`
	Result            *float64                 `json:"result"`
	TargetResult      *float64                 `json:"targetResult"`
	GradeResult       *string                  `json:"gradeResult"`
	TargetGradeResult *string                  `json:"targetGradeResult"`
	GradeNameID       *int64                   `json:"gradeNameId"`
	Examinable        bool                     `json:"examinable"`
	TeacherComment    *model.TeacherComment    `json:"teacherComment"`
	ExtraFields       []model.ExtraFieldResult `json:"extraFields"`
}

func (n resultNode) toModel() model.AssessmentResult {
	row := model.AssessmentResult{
		ID:                n.ID,
		AssessmentID:      n.AssessmentID,
		StudentPartyID:    n.StudentPartyID,
		SubjectGroupID:    n.SubjectGroupID,
		StudentStudyLevel: n.StudentStudyLevel,
		Result:            n.Result,
		TargetResult:      n.TargetResult,
		GradeResult:       n.GradeResult,
		TargetGradeResult: n.TargetGradeResult,
		GradeNameID:       n.GradeNameID,
		Examinable:        n.Examinable,
		TeacherComment:    n.TeacherComment,
		ExtraFields:       model.ExtraFieldMap(n.ExtraFields),
	}
	if n.StudentProgramme != nil {
		row.ProgrammeShortName = n.StudentProgramme.ShortName
	}
	return row
}

// FetchResults returns the snapshot rows of one assessment and subject group.
func (c *Client) FetchResults(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error) {
	var data struct {
		Results []resultNode `json:"assessment_assessmentResult"`
	}
	vars := map[string]interface{}{
		"filter": map[string]interface{}{
			"assessmentId":    scope.AssessmentID,
			"subjectGroupIds": []int64{scope.SubjectGroupID},
		},
	}
	if err := c.do(ctx, retryQuery, scope.AcademicNamespaceID, "assessment_assessmentResult", fetchResultsQuery, vars, &data); err != nil {
		return nil, err
	}

	rows := make([]model.AssessmentResult, 0, len(data.Results))
	for _, n := range data.Results {
		rows = append(rows, n.toModel())
	}

	c.log.Debug().Str("scope", scope.String()).Int("rows", len(rows)).Msg("Fetched assessment results")
	return rows, nil
}

// CalculateGrade returns the grade for a result, or nil when the grade set has none.
func (c *Client) CalculateGrade(ctx context.Context, q model.GradeQuery) (*string, error) {
	var data struct {
		Grade *struct {
			Grade *string `json:"grade"`
		} `json:"assessment_calculateGrade"`
	}
	vars := map[string]interface{}{
		"filter": map[string]interface{}{
			"studyLevel":         q.StudyLevel,
			"result":             q.Result,
			"programmeShortName": q.ProgrammeShortName,
		},
	}
	if err := c.do(ctx, retryQuery, q.AcademicNamespaceID, "assessment_calculateGrade", calculateGradeQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Grade == nil {
		return nil, nil
	}
	return data.Grade.Grade, nil
}

func (c *Client) UpdateExclusions(ctx context.Context, namespaceID int64, inputs []model.ExclusionInput) error {
	var data struct {
		Result *struct {
			Success bool `json:"success"`
		} `json:"assessment_saveStudentAssessmentExclusions"`
	}
	vars := map[string]interface{}{"input": inputs}
	if err := c.do(ctx, retryMutation, namespaceID, "assessment_saveStudentAssessmentExclusions", saveExclusionsMutation, vars, &data); err != nil {
		return err
	}
	if data.Result == nil || !data.Result.Success {
		return fmt.Errorf("%w: exclusion update reported failure", errors.ErrExternalAPIError)
	}
	return nil
}

// SaveResults submits the whole batch; the API reports success or failure for the batch only.
func (c *Client) SaveResults(ctx context.Context, namespaceID int64, inputs []model.ResultInput) ([]int64, error) {
	var data struct {
		Saved []struct {
			ID int64 `json:"id"`
		} `json:"assessment_saveAssessmentResult"`
	}
	vars := map[string]interface{}{"input": inputs}
	if err := c.do(ctx, retryMutation, namespaceID, "assessment_saveAssessmentResult", saveResultsMutation, vars, &data); err != nil {
		return nil, err
	}

	ids := make([]int64, len(data.Saved))
	for i, s := range data.Saved {
		ids[i] = s.ID
	}
	return ids, nil
}

// ActiveCommentBank lists the active comments of the bank attached to the assessment.
func (c *Client) ActiveCommentBank(ctx context.Context, scope model.Scope) ([]model.CommentBankComment, error) {
	var data struct {
		Banks []struct {
			Comments []model.CommentBankComment `json:"comments"`
		} `json:"assessment_commentBankAssessment"`
	}
	vars := map[string]interface{}{
		"filter": map[string]interface{}{"assessmentId": scope.AssessmentID},
	}
	if err := c.do(ctx, retryQuery, scope.AcademicNamespaceID, "assessment_commentBankAssessment", commentBankQuery, vars, &data); err != nil {
		return nil, err
	}

	var active []model.CommentBankComment
	for _, bank := range data.Banks {
		for _, comment := range bank.Comments {
			if comment.Active {
				active = append(active, comment)
			}
		}
	}
	return active, nil
}
