package bulkedit

import (
	"context"
	"fmt"

	"assessment-results/internal/fieldpath"
	"assessment-results/internal/logger"
	"assessment-results/internal/model"
	"assessment-results/internal/rows"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type GradeCalculator interface {
	CalculateGrade(ctx context.Context, q model.GradeQuery) (*string, error)
}

// ShouldRecalculate reports whether an edit at p changes the derived grades.
func ShouldRecalculate(p fieldpath.Path) bool {
	if p.Kind != fieldpath.Direct {
		return false
	}
	switch p.Raw {
	case fieldpath.Result, fieldpath.TargetResult, fieldpath.StudentStudyLevel:
		return true
	}
	return false
}

// RecalcJobFor captures the inputs of the grade lookups from the row as the
// user sees it, i.e. the snapshot with the pending edits applied.
func RecalcJobFor(scope model.Scope, row *model.AssessmentResult) model.RecalcJob {
	return model.RecalcJob{
		Scope:              scope,
		StudentPartyID:     row.StudentPartyID,
		Result:             row.Result,
		TargetResult:       row.TargetResult,
		StudyLevel:         row.StudentStudyLevel,
		ProgrammeShortName: row.ProgrammeShortName,
	}
}

type Recalculator struct {
	calc  GradeCalculator
	store rows.Store
	log   zerolog.Logger
}

func NewRecalculator(calc GradeCalculator, store rows.Store) *Recalculator {
	return &Recalculator{
		calc:  calc,
		store: store,
		log:   logger.Component("recalc"),
	}
}

type gradeSlot struct {
	field string
	value *float64
	grade *string
	done  bool
}

// Recalculate looks up the grades for the job's result and target result
// and patches whichever differ from the row currently in the store. A failed
// lookup does not stop the other grade from being patched; the first lookup
// error is returned after the successful ones are applied. It returns the
// fields that changed.
func (r *Recalculator) Recalculate(ctx context.Context, job model.RecalcJob) ([]string, error) {
	log := r.log.With().
		Str("scope", job.Scope.String()).
		Int64("student_party_id", job.StudentPartyID).
		Logger()

	if job.StudyLevel == nil || job.ProgrammeShortName == nil || *job.ProgrammeShortName == "" {
		log.Debug().Msg("Missing study level or programme, grades left as-is")
		return nil, nil
	}

	slots := []*gradeSlot{
		{field: fieldpath.GradeResult, value: job.Result},
		{field: fieldpath.TargetGradeResult, value: job.TargetResult},
	}

	// A zero Group does not cancel the sibling lookup when one fails.
	var g errgroup.Group
	for _, slot := range slots {
		if slot.value == nil {
			continue
		}
		slot := slot
		g.Go(func() error {
			grade, err := r.calc.CalculateGrade(ctx, model.GradeQuery{
				AcademicNamespaceID: job.Scope.AcademicNamespaceID,
				StudyLevel:          *job.StudyLevel,
				Result:              *slot.value,
				ProgrammeShortName:  *job.ProgrammeShortName,
			})
			if err != nil {
				log.Warn().Err(err).Str("field", slot.field).Msg("Grade lookup failed")
				return fmt.Errorf("%s lookup: %w", slot.field, err)
			}
			slot.grade = grade
			slot.done = true
			return nil
		})
	}
	lookupErr := g.Wait()

	var changed []string
	for _, slot := range slots {
		if !slot.done {
			continue
		}

		var value interface{}
		if slot.grade != nil {
			value = *slot.grade
		}
		patched, err := r.store.PatchField(ctx, job.Scope, job.StudentPartyID, slot.field, value)
		if err != nil {
			log.Error().Err(err).Str("field", slot.field).Msg("Failed to apply recalculated grade")
			return changed, err
		}
		if patched {
			changed = append(changed, slot.field)
		}
	}

	if len(changed) > 0 {
		log.Debug().Strs("fields", changed).Msg("Derived grades updated")
	}
	return changed, lookupErr
}
