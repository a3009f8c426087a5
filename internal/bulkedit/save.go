package bulkedit

import (
	"context"
	"fmt"

	"assessment-results/internal/logger"
	"assessment-results/internal/model"
	"assessment-results/pkg/errors"

	"github.com/rs/zerolog"
)

type ExclusionUpdater interface {
	UpdateExclusions(ctx context.Context, namespaceID int64, inputs []model.ExclusionInput) error
}

type ResultSaver interface {
	SaveResults(ctx context.Context, namespaceID int64, inputs []model.ResultInput) ([]int64, error)
}

type SaveRequest struct {
	Scope            model.Scope
	CommenterPartyID int64
	Variant          model.AssessmentVariant
	Snapshot         []model.AssessmentResult
	Edits            model.EditedRows
}

type SaveResult struct {
	Inputs     []model.ResultInput
	Exclusions []model.ExclusionInput
	SavedIDs   []int64
	Orphans    []int64
}

type Saver struct {
	exclusions ExclusionUpdater
	results    ResultSaver
	log        zerolog.Logger
}

func NewSaver(exclusions ExclusionUpdater, results ResultSaver) *Saver {
	return &Saver{
		exclusions: exclusions,
		results:    results,
		log:        logger.Component("bulkedit"),
	}
}

// Save submits the exclusion updates and waits for them before submitting
// the results batch. If the exclusion call fails nothing else is sent.
// The payload is built before any call so a malformed draft fails without
// side effects.
func (s *Saver) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	log := s.log.With().Str("scope", req.Scope.String()).Int64("commenter_party_id", req.CommenterPartyID).Logger()

	pairs, orphans := Collect(req.Snapshot, req.Edits)
	if len(orphans) > 0 {
		log.Warn().Ints64("student_party_ids", orphans).Msg("Edited students missing from snapshot, skipping")
	}

	inputs, err := Normalize(req.Scope, req.CommenterPartyID, req.Variant, pairs)
	if err != nil {
		return nil, err
	}

	exclusions, err := BuildExclusions(req.Scope, pairs)
	if err != nil {
		return nil, err
	}

	result := &SaveResult{
		Inputs:     inputs,
		Exclusions: exclusions,
		Orphans:    orphans,
	}

	if len(exclusions) > 0 {
		log.Debug().Int("count", len(exclusions)).Msg("Submitting exclusion updates")
		if err := s.exclusions.UpdateExclusions(ctx, req.Scope.AcademicNamespaceID, exclusions); err != nil {
			log.Error().Err(err).Msg("Exclusion update failed, results not submitted")
			return nil, fmt.Errorf("%w: %w", errors.ErrExclusionFailed, err)
		}
	}

	if len(inputs) == 0 {
		log.Debug().Msg("No edited rows to save")
		return result, nil
	}

	ids, err := s.results.SaveResults(ctx, req.Scope.AcademicNamespaceID, inputs)
	if err != nil {
		log.Error().Err(err).Int("rows", len(inputs)).Msg("Saving results failed")
		return nil, fmt.Errorf("%w: %w", errors.ErrSaveFailed, err)
	}
	result.SavedIDs = ids

	log.Info().Int("rows", len(inputs)).Int("exclusions", len(exclusions)).Msg("Results saved")
	return result, nil
}
