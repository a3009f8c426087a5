package sheet

import (
	"context"
	"testing"

	"assessment-results/internal/model"
	"assessment-results/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes rows to the first sheet; a nil row is left empty.
func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		if row == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParse(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"student_party_id", "result", "examinable", "extraFields[3].result"},
		{7, 72.5, "yes", "Good"},
		nil,
		{8, "", "no"},
	})

	rows, err := NewParser(10).Parse(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, int64(7), rows[0].StudentPartyID)
	assert.Equal(t, "72.5", rows[0].Cells["result"])
	assert.Equal(t, "yes", rows[0].Cells["examinable"])
	assert.Equal(t, "Good", rows[0].Cells["extraFields.3.result"])

	assert.Equal(t, 4, rows[1].Line)
	assert.Equal(t, int64(8), rows[1].StudentPartyID)
	assert.Equal(t, "no", rows[1].Cells["examinable"])
	assert.NotContains(t, rows[1].Cells, "extraFields.3.result")
}

func TestParseRejectsBadHeaders(t *testing.T) {
	tests := []struct {
		name    string
		header  []interface{}
		wantErr error
	}{
		{"derived column", []interface{}{"student_party_id", "gradeResult"}, errors.ErrDerivedField},
		{"unknown column", []interface{}{"student_party_id", "colour"}, errors.ErrUnknownField},
		{"duplicate column", []interface{}{"student_party_id", "extraFields[3].result", "extraFields.3.result"}, errors.ErrInvalidFileFormat},
		{"no field columns", []interface{}{"student_party_id"}, errors.ErrInvalidFileFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildWorkbook(t, [][]interface{}{tt.header, {7, "x", "y"}})
			_, err := NewParser(0).Parse(context.Background(), data)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewParser(0).Parse(ctx, []byte("not a workbook"))
	assert.Error(t, err)

	headerOnly := buildWorkbook(t, [][]interface{}{{"student_party_id", "result"}})
	_, err = NewParser(0).Parse(ctx, headerOnly)
	assert.ErrorIs(t, err, errors.ErrInvalidFileFormat)

	tooMany := buildWorkbook(t, [][]interface{}{{"student_party_id", "result"}, {7, 1}, {8, 2}})
	_, err = NewParser(1).Parse(ctx, tooMany)
	assert.ErrorIs(t, err, errors.ErrInvalidFileFormat)

	noStudent := buildWorkbook(t, [][]interface{}{{"result"}, {7}})
	_, err = NewParser(0).Parse(ctx, noStudent)
	assert.ErrorContains(t, err, StudentColumn)

	badStudent := buildWorkbook(t, [][]interface{}{{"student_party_id", "result"}, {"abc", 1}})
	_, err = NewParser(0).Parse(ctx, badStudent)
	assert.ErrorContains(t, err, "row 2")
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	v := NewValidator()

	assert.ErrorIs(t, v.Validate(ctx, nil), errors.ErrSchemaValidation)

	valid := []CellRow{
		{Line: 2, StudentPartyID: 7, Cells: map[string]string{"result": "55", "examinable": "no"}},
		{Line: 3, StudentPartyID: 8, Cells: map[string]string{"result": ""}},
	}
	assert.NoError(t, v.Validate(ctx, valid))

	var validationErr errors.ValidationError

	duplicate := []CellRow{
		{Line: 2, StudentPartyID: 7, Cells: map[string]string{}},
		{Line: 5, StudentPartyID: 7, Cells: map[string]string{}},
	}
	err := v.Validate(ctx, duplicate)
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, StudentColumn, validationErr.Field)
	assert.Contains(t, validationErr.Message, "row 5")

	badValue := []CellRow{{Line: 2, StudentPartyID: 7, Cells: map[string]string{"result": "abc"}}}
	err = v.Validate(ctx, badValue)
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "result", validationErr.Field)
}

func TestExcelStrategy(t *testing.T) {
	ctx := context.Background()
	strategy := NewExcelStrategy(10)

	data := buildWorkbook(t, [][]interface{}{
		{"student_party_id", "result"},
		{7, 40},
		{7, 41},
	})
	rows, err := strategy.Parse(ctx, data)
	require.NoError(t, err)

	var validationErr errors.ValidationError
	assert.True(t, errors.As(strategy.Validate(ctx, rows), &validationErr))
}

func TestDiff(t *testing.T) {
	score := 60.0
	snapshot := []model.AssessmentResult{
		{StudentPartyID: 7, Result: &score, Examinable: true},
		{StudentPartyID: 8},
	}
	rows := []CellRow{
		{Line: 2, StudentPartyID: 7, Cells: map[string]string{
			"result":               "150",
			"examinable":           "yes",
			"extraFields.3.result": "",
		}},
		{Line: 3, StudentPartyID: 8, Cells: map[string]string{
			"result":                 " ",
			"teacherComment.comment": "Well done",
		}},
		{Line: 4, StudentPartyID: 99, Cells: map[string]string{"result": "50"}},
		{Line: 5, StudentPartyID: 42, Cells: map[string]string{"result": "50"}},
	}

	edits, unknown, err := Diff(snapshot, rows)
	require.NoError(t, err)

	assert.Equal(t, model.EditedRows{
		7: {"result": {OldValue: 60.0, NewValue: 100.0}},
		8: {"teacherComment.comment": {OldValue: nil, NewValue: "Well done"}},
	}, edits)
	assert.Equal(t, []int64{42, 99}, unknown)
	assert.Equal(t, 2, CellCount(edits))
}

func TestDiffRejectsInvalidCell(t *testing.T) {
	snapshot := []model.AssessmentResult{{StudentPartyID: 7}}
	rows := []CellRow{{Line: 2, StudentPartyID: 7, Cells: map[string]string{"examinable": "perhaps"}}}

	_, _, err := Diff(snapshot, rows)
	assert.ErrorContains(t, err, "row 2")
}
