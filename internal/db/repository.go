package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"assessment-results/internal/model"
	"assessment-results/pkg/errors"
)

type Repository interface {
	GetDraft(ctx context.Context, key model.DraftKey) (*model.Draft, error)
	UpdateDraft(ctx context.Context, key model.DraftKey, fn func(edits model.EditedRows) error) (*model.Draft, error)
	DeleteDraft(ctx context.Context, key model.DraftKey) error

	CreateSaveRun(ctx context.Context, run *model.SaveRun) error
	FinishSaveRun(ctx context.Context, id string, status model.SaveRunStatus, rowCount int, errorMessage *string) error
	GetSaveRun(ctx context.Context, id string) (*model.SaveRun, error)

	CreateImport(ctx context.Context, imp *model.Import) (int64, error)
	GetImport(ctx context.Context, id int64) (*model.Import, error)
	UpdateImportStatus(ctx context.Context, id int64, status model.ImportStatus, editedCells int, errorMessage *string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const draftKeyClause = `academic_namespace_id = ? AND assessment_id = ? AND subject_group_id = ? AND editor_party_id = ?`

func draftKeyArgs(key model.DraftKey) []interface{} {
	return []interface{}{
		key.Scope.AcademicNamespaceID, key.Scope.AssessmentID,
		key.Scope.SubjectGroupID, key.EditorPartyID,
	}
}

func (r *repository) GetDraft(ctx context.Context, key model.DraftKey) (*model.Draft, error) {
	query := `SELECT edits, updated_at FROM result_drafts WHERE ` + draftKeyClause

	draft := model.Draft{Key: key}
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, draftKeyArgs(key)...).Scan(&raw, &draft.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(raw, &draft.Edits); err != nil {
		return nil, fmt.Errorf("failed to decode draft edits: %w", err)
	}
	return &draft, nil
}

// UpdateDraft reads the draft under a row lock, lets fn modify the edits and
// writes the result back. A draft left without edits is removed.
func (r *repository) UpdateDraft(ctx context.Context, key model.DraftKey, fn func(edits model.EditedRows) error) (*model.Draft, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	edits := model.EditedRows{}
	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT edits FROM result_drafts WHERE `+draftKeyClause+` FOR UPDATE`, draftKeyArgs(key)...).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(raw, &edits); err != nil {
			return nil, fmt.Errorf("failed to decode draft edits: %w", err)
		}
	}

	if err := fn(edits); err != nil {
		return nil, err
	}

	if len(edits) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM result_drafts WHERE `+draftKeyClause, draftKeyArgs(key)...); err != nil {
			return nil, err
		}
	} else {
		encoded, err := json.Marshal(edits)
		if err != nil {
			return nil, fmt.Errorf("failed to encode draft edits: %w", err)
		}
		query := `INSERT INTO result_drafts (academic_namespace_id, assessment_id, subject_group_id, editor_party_id, edits)
				  VALUES (?, ?, ?, ?, ?)
				  ON DUPLICATE KEY UPDATE edits = VALUES(edits), updated_at = NOW()`
		args := append(draftKeyArgs(key), encoded)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Draft{Key: key, Edits: edits}, nil
}

func (r *repository) DeleteDraft(ctx context.Context, key model.DraftKey) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM result_drafts WHERE `+draftKeyClause, draftKeyArgs(key)...)
	return err
}

func (r *repository) CreateSaveRun(ctx context.Context, run *model.SaveRun) error {
	query := `INSERT INTO save_runs (id, academic_namespace_id, assessment_id, subject_group_id, editor_party_id, status, row_count)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, run.ID,
		run.Scope.AcademicNamespaceID, run.Scope.AssessmentID, run.Scope.SubjectGroupID,
		run.EditorPartyID, run.Status, run.RowCount)
	return err
}

func (r *repository) FinishSaveRun(ctx context.Context, id string, status model.SaveRunStatus, rowCount int, errorMessage *string) error {
	query := `UPDATE save_runs SET status = ?, row_count = ?, error_message = ?, updated_at = NOW() WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, status, rowCount, errorMessage, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrSaveRunNotFound
	}
	return nil
}

func (r *repository) GetSaveRun(ctx context.Context, id string) (*model.SaveRun, error) {
	query := `SELECT id, academic_namespace_id, assessment_id, subject_group_id, editor_party_id,
			  status, row_count, error_message, created_at, updated_at
			  FROM save_runs WHERE id = ?`

	var run model.SaveRun
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Scope.AcademicNamespaceID, &run.Scope.AssessmentID, &run.Scope.SubjectGroupID,
		&run.EditorPartyID, &run.Status, &run.RowCount, &run.ErrorMessage,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSaveRunNotFound
	}
	if err != nil {
		return nil, err
	}

	return &run, nil
}

func (r *repository) CreateImport(ctx context.Context, imp *model.Import) (int64, error) {
	query := `INSERT INTO result_imports (academic_namespace_id, assessment_id, subject_group_id, editor_party_id, s3_path, status)
			  VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		imp.Scope.AcademicNamespaceID, imp.Scope.AssessmentID, imp.Scope.SubjectGroupID,
		imp.EditorPartyID, imp.S3Path, imp.Status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repository) GetImport(ctx context.Context, id int64) (*model.Import, error) {
	query := `SELECT id, academic_namespace_id, assessment_id, subject_group_id, editor_party_id,
			  s3_path, status, edited_cells, error_message, created_at, updated_at
			  FROM result_imports WHERE id = ?`

	var imp model.Import
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&imp.ID, &imp.Scope.AcademicNamespaceID, &imp.Scope.AssessmentID, &imp.Scope.SubjectGroupID,
		&imp.EditorPartyID, &imp.S3Path, &imp.Status, &imp.EditedCells, &imp.ErrorMessage,
		&imp.CreatedAt, &imp.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrImportNotFound
	}
	if err != nil {
		return nil, err
	}

	return &imp, nil
}

func (r *repository) UpdateImportStatus(ctx context.Context, id int64, status model.ImportStatus, editedCells int, errorMessage *string) error {
	query := `UPDATE result_imports SET status = ?, edited_cells = ?, error_message = ?, updated_at = NOW() WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, status, editedCells, errorMessage, id)
	return err
}
