// Package results coordinates the editing session of an assessment results
// table: the snapshot in the row store, the editor's draft in MySQL, and the
// save against the results API.
package results

import (
	"context"
	"fmt"

	"assessment-results/internal/bulkedit"
	"assessment-results/internal/fieldpath"
	"assessment-results/internal/logger"
	"assessment-results/internal/model"
	"assessment-results/internal/rows"
	"assessment-results/internal/storage"
	"assessment-results/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Gateway is the part of the results API the editing session needs.
type Gateway interface {
	FetchResults(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error)
	bulkedit.ExclusionUpdater
	bulkedit.ResultSaver
	bulkedit.CommentBankSource
}

type Drafts interface {
	GetDraft(ctx context.Context, key model.DraftKey) (*model.Draft, error)
	UpdateDraft(ctx context.Context, key model.DraftKey, fn func(edits model.EditedRows) error) (*model.Draft, error)
	DeleteDraft(ctx context.Context, key model.DraftKey) error
	CreateSaveRun(ctx context.Context, run *model.SaveRun) error
	FinishSaveRun(ctx context.Context, id string, status model.SaveRunStatus, rowCount int, errorMessage *string) error
}

type RecalcEnqueuer interface {
	EnqueueRecalcJob(ctx context.Context, job model.RecalcJob) error
}

type Service struct {
	gateway   Gateway
	drafts    Drafts
	store     rows.Store
	recalc    RecalcEnqueuer
	archiver  *storage.Archiver
	saver     *bulkedit.Saver
	validator *bulkedit.EditValidator
	newID     func() string
	log       zerolog.Logger
}

// NewService wires the session. archiver may be nil to skip payload archiving.
func NewService(gateway Gateway, drafts Drafts, store rows.Store, recalc RecalcEnqueuer, archiver *storage.Archiver) *Service {
	return &Service{
		gateway:   gateway,
		drafts:    drafts,
		store:     store,
		recalc:    recalc,
		archiver:  archiver,
		saver:     bulkedit.NewSaver(gateway, gateway),
		validator: bulkedit.NewEditValidator(gateway),
		newID:     func() string { return uuid.New().String() },
		log:       logger.Component("results"),
	}
}

// Load fetches a fresh snapshot and replaces the rows held for scope.
func (s *Service) Load(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error) {
	snapshot, err := s.gateway.FetchResults(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results: %w", err)
	}
	if err := s.store.Load(ctx, scope, snapshot); err != nil {
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.log.Info().Str("scope", scope.String()).Int("rows", len(snapshot)).Msg("Snapshot loaded")
	return snapshot, nil
}

// Rows returns the held snapshot, loading it first when the scope is unknown.
func (s *Service) Rows(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error) {
	snapshot, err := s.store.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return s.Load(ctx, scope)
	}
	return snapshot, nil
}

// Edit records one cell edit into the editor's draft and queues a grade
// recalculation when the edited field feeds the derived grades.
func (s *Service) Edit(ctx context.Context, editorPartyID int64, req model.EditRequest) (*model.Draft, error) {
	path, err := fieldpath.Parse(req.Field)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(ctx, req.Scope, path, req.NewValue); err != nil {
		return nil, err
	}

	key := model.DraftKey{Scope: req.Scope, EditorPartyID: editorPartyID}
	draft, err := s.drafts.UpdateDraft(ctx, key, func(edits model.EditedRows) error {
		_, err := bulkedit.RecordEdit(edits, req.StudentPartyID, req.Field, req.OldValue, req.NewValue)
		return err
	})
	if err != nil {
		return nil, err
	}

	if bulkedit.ShouldRecalculate(path) {
		s.enqueueRecalc(ctx, req.Scope, req.StudentPartyID, draft.Edits[req.StudentPartyID])
	}
	return draft, nil
}

// MergeEdits records a batch of edits, e.g. from an imported sheet, into the
// editor's draft.
func (s *Service) MergeEdits(ctx context.Context, key model.DraftKey, edits model.EditedRows) (*model.Draft, error) {
	if err := s.validator.ValidateAll(ctx, key.Scope, edits); err != nil {
		return nil, err
	}

	draft, err := s.drafts.UpdateDraft(ctx, key, func(current model.EditedRows) error {
		return bulkedit.MergeEdits(current, edits)
	})
	if err != nil {
		return nil, err
	}

	for studentPartyID, cells := range edits {
		for raw := range cells {
			if path, err := fieldpath.Parse(raw); err == nil && bulkedit.ShouldRecalculate(path) {
				s.enqueueRecalc(ctx, key.Scope, studentPartyID, draft.Edits[studentPartyID])
				break
			}
		}
	}
	return draft, nil
}

// enqueueRecalc is best effort: a row that cannot be queued keeps its
// current grades.
func (s *Service) enqueueRecalc(ctx context.Context, scope model.Scope, studentPartyID int64, cells map[string]model.EditedCell) {
	log := s.log.With().Str("scope", scope.String()).Int64("student_party_id", studentPartyID).Logger()

	row, err := s.store.Get(ctx, scope, studentPartyID)
	if err != nil {
		log.Warn().Err(err).Msg("Row not available, skipping grade recalculation")
		return
	}
	effective, err := bulkedit.EffectiveRow(row, cells)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to apply draft, skipping grade recalculation")
		return
	}
	if err := s.recalc.EnqueueRecalcJob(ctx, bulkedit.RecalcJobFor(scope, effective)); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue grade recalculation")
	}
}

// Draft returns the editor's pending edits; a missing draft is an empty one.
func (s *Service) Draft(ctx context.Context, key model.DraftKey) (*model.Draft, error) {
	draft, err := s.drafts.GetDraft(ctx, key)
	if errors.Is(err, errors.ErrDraftNotFound) {
		return &model.Draft{Key: key, Edits: model.EditedRows{}}, nil
	}
	return draft, err
}

func (s *Service) Discard(ctx context.Context, key model.DraftKey) error {
	return s.drafts.DeleteDraft(ctx, key)
}

// Save submits the editor's draft. On failure the draft is kept so the
// editor can retry; on success the saved cells leave the draft and the
// snapshot is refetched so new rows carry their ids.
func (s *Service) Save(ctx context.Context, editorPartyID int64, req model.SaveRequest) (*model.SaveResponse, error) {
	key := model.DraftKey{Scope: req.Scope, EditorPartyID: editorPartyID}
	log := s.log.With().Str("scope", req.Scope.String()).Int64("editor_party_id", editorPartyID).Logger()

	draft, err := s.Draft(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(draft.Edits) == 0 {
		log.Debug().Msg("Nothing to save")
		return &model.SaveResponse{}, nil
	}

	snapshot, err := s.Rows(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	variant := req.Variant
	if variant == "" {
		variant = model.VariantTerm
	}

	run := &model.SaveRun{
		ID:            s.newID(),
		Scope:         req.Scope,
		EditorPartyID: editorPartyID,
		Status:        model.SaveRunStatusPending,
		RowCount:      draft.Edits.Touched(),
	}
	if err := s.drafts.CreateSaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record save run: %w", err)
	}
	log = log.With().Str("save_run_id", run.ID).Logger()

	result, err := s.saver.Save(ctx, bulkedit.SaveRequest{
		Scope:            req.Scope,
		CommenterPartyID: editorPartyID,
		Variant:          variant,
		Snapshot:         snapshot,
		Edits:            draft.Edits,
	})
	if err != nil {
		msg := err.Error()
		if ferr := s.drafts.FinishSaveRun(ctx, run.ID, model.SaveRunStatusFailed, 0, &msg); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to record save run failure")
		}
		return nil, err
	}

	if err := s.drafts.FinishSaveRun(ctx, run.ID, model.SaveRunStatusSucceeded, len(result.Inputs), nil); err != nil {
		log.Error().Err(err).Msg("Failed to record save run success")
	}

	if _, err := s.drafts.UpdateDraft(ctx, key, func(edits model.EditedRows) error {
		removeSaved(edits, draft.Edits, result.Orphans)
		return nil
	}); err != nil {
		log.Error().Err(err).Msg("Failed to clear saved edits from draft")
	}

	if s.archiver != nil {
		doc := storage.ArchivedSave{
			SaveRunID:     run.ID,
			Scope:         req.Scope,
			EditorPartyID: editorPartyID,
			Variant:       variant,
			Exclusions:    result.Exclusions,
			Results:       result.Inputs,
			SavedIDs:      result.SavedIDs,
		}
		if archiveKey, err := s.archiver.Archive(ctx, doc); err != nil {
			log.Error().Err(err).Msg("Failed to archive save payload")
		} else {
			log.Debug().Str("key", archiveKey).Msg("Save payload archived")
		}
	}

	if _, err := s.Load(ctx, req.Scope); err != nil {
		log.Warn().Err(err).Msg("Failed to refetch snapshot after save")
	}

	return &model.SaveResponse{
		SaveRunID: run.ID,
		SavedIDs:  result.SavedIDs,
		RowCount:  len(result.Inputs),
		Excluded:  len(result.Exclusions),
	}, nil
}

// removeSaved drops from edits every cell whose new value is the one that was
// saved. Cells edited again while the save was in flight stay, and so do the
// orphans, which were never sent.
func removeSaved(edits, saved model.EditedRows, orphans []int64) {
	skip := make(map[int64]bool, len(orphans))
	for _, id := range orphans {
		skip[id] = true
	}
	for studentPartyID, cells := range saved {
		if skip[studentPartyID] {
			continue
		}
		current := edits[studentPartyID]
		for raw, cell := range cells {
			pending, ok := current[raw]
			if !ok {
				continue
			}
			path, err := fieldpath.Parse(raw)
			if err != nil || fieldpath.Equal(path, pending.NewValue, cell.NewValue) {
				delete(current, raw)
			}
		}
		if len(current) == 0 {
			delete(edits, studentPartyID)
		}
	}
}
