package bulkedit

import (
	"context"
	goerrors "errors"
	"sync"
	"testing"

	"assessment-results/internal/fieldpath"
	"assessment-results/internal/model"
	"assessment-results/internal/rows"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCalculator struct {
	mu      sync.Mutex
	grades  map[float64]*string
	fail    map[float64]bool
	queries []model.GradeQuery
}

func (c *stubCalculator) CalculateGrade(ctx context.Context, q model.GradeQuery) (*string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	if c.fail[q.Result] {
		return nil, goerrors.New("grade service unavailable")
	}
	return c.grades[q.Result], nil
}

func loadedStore(t *testing.T, row model.AssessmentResult) *rows.MemoryStore {
	t.Helper()
	store := rows.NewMemoryStore()
	require.NoError(t, store.Load(context.Background(), testScope, []model.AssessmentResult{row}))
	return store
}

func TestShouldRecalculate(t *testing.T) {
	assert.True(t, ShouldRecalculate(fieldpath.MustParse(fieldpath.Result)))
	assert.True(t, ShouldRecalculate(fieldpath.MustParse(fieldpath.TargetResult)))
	assert.True(t, ShouldRecalculate(fieldpath.MustParse(fieldpath.StudentStudyLevel)))
	assert.False(t, ShouldRecalculate(fieldpath.MustParse(fieldpath.Examinable)))
	assert.False(t, ShouldRecalculate(fieldpath.MustParse("extraFields.3.result")))
}

func TestRecalculateUpdatesGradeAndNotifies(t *testing.T) {
	row := model.AssessmentResult{
		StudentPartyID:     7,
		Result:             ptr(85.0),
		StudentStudyLevel:  ptr(model.StudyLevelHigher),
		ProgrammeShortName: ptr("LC"),
	}
	store := loadedStore(t, row)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := store.Subscribe(ctx, testScope)
	require.NoError(t, err)

	calc := &stubCalculator{grades: map[float64]*string{85: ptr("B2")}}
	changed, err := NewRecalculator(calc, store).Recalculate(context.Background(), RecalcJobFor(testScope, &row))
	require.NoError(t, err)

	assert.Equal(t, []string{fieldpath.GradeResult}, changed)
	require.Len(t, calc.queries, 1)
	assert.Equal(t, model.GradeQuery{
		AcademicNamespaceID: 1,
		StudyLevel:          model.StudyLevelHigher,
		Result:              85,
		ProgrammeShortName:  "LC",
	}, calc.queries[0])

	current, err := store.Get(context.Background(), testScope, 7)
	require.NoError(t, err)
	assert.Equal(t, "B2", *current.GradeResult)
	assert.Nil(t, current.TargetGradeResult)

	require.Len(t, changes, 1)
	change := <-changes
	assert.Equal(t, fieldpath.GradeResult, change.Field)
	assert.Equal(t, "B2", change.NewValue)
	assert.Nil(t, change.OldValue)
}

func TestRecalculateSkipsUnchangedGrade(t *testing.T) {
	row := model.AssessmentResult{
		StudentPartyID:     7,
		Result:             ptr(85.0),
		GradeResult:        ptr("B2"),
		StudentStudyLevel:  ptr(model.StudyLevelHigher),
		ProgrammeShortName: ptr("LC"),
	}
	store := loadedStore(t, row)

	calc := &stubCalculator{grades: map[float64]*string{85: ptr("B2")}}
	changed, err := NewRecalculator(calc, store).Recalculate(context.Background(), RecalcJobFor(testScope, &row))
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestRecalculateRequiresStudyLevelAndProgramme(t *testing.T) {
	row := model.AssessmentResult{StudentPartyID: 7, Result: ptr(85.0), ProgrammeShortName: ptr("LC")}
	store := loadedStore(t, row)

	calc := &stubCalculator{}
	changed, err := NewRecalculator(calc, store).Recalculate(context.Background(), RecalcJobFor(testScope, &row))
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Empty(t, calc.queries)
}

func TestRecalculateLookupFailureIsIsolated(t *testing.T) {
	row := model.AssessmentResult{
		StudentPartyID:     7,
		Result:             ptr(40.0),
		TargetResult:       ptr(90.0),
		StudentStudyLevel:  ptr(model.StudyLevelOrdinary),
		ProgrammeShortName: ptr("JC"),
	}
	store := loadedStore(t, row)

	calc := &stubCalculator{
		grades: map[float64]*string{90: ptr("A1")},
		fail:   map[float64]bool{40: true},
	}
	changed, err := NewRecalculator(calc, store).Recalculate(context.Background(), RecalcJobFor(testScope, &row))
	require.Error(t, err)
	assert.Contains(t, err.Error(), fieldpath.GradeResult)

	assert.Equal(t, []string{fieldpath.TargetGradeResult}, changed)
	assert.Len(t, calc.queries, 2)

	current, err := store.Get(context.Background(), testScope, 7)
	require.NoError(t, err)
	assert.Equal(t, "A1", *current.TargetGradeResult)
	assert.Nil(t, current.GradeResult)
}

func TestRecalculatePatchesCurrentRow(t *testing.T) {
	row := model.AssessmentResult{
		StudentPartyID:     7,
		Result:             ptr(85.0),
		StudentStudyLevel:  ptr(model.StudyLevelHigher),
		ProgrammeShortName: ptr("LC"),
	}
	store := loadedStore(t, row)
	job := RecalcJobFor(testScope, &row)

	// A later edit lands in the store before the lookup completes.
	_, err := store.PatchField(context.Background(), testScope, 7, fieldpath.Examinable, true)
	require.NoError(t, err)

	calc := &stubCalculator{grades: map[float64]*string{85: ptr("B2")}}
	_, err = NewRecalculator(calc, store).Recalculate(context.Background(), job)
	require.NoError(t, err)

	current, err := store.Get(context.Background(), testScope, 7)
	require.NoError(t, err)
	assert.True(t, current.Examinable)
	assert.Equal(t, "B2", *current.GradeResult)
}

func TestRecalculateMissingRow(t *testing.T) {
	store := rows.NewMemoryStore()
	row := model.AssessmentResult{
		StudentPartyID:     7,
		Result:             ptr(85.0),
		StudentStudyLevel:  ptr(model.StudyLevelHigher),
		ProgrammeShortName: ptr("LC"),
	}

	calc := &stubCalculator{grades: map[float64]*string{85: ptr("B2")}}
	_, err := NewRecalculator(calc, store).Recalculate(context.Background(), RecalcJobFor(testScope, &row))
	assert.Error(t, err)
}
