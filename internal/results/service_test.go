package results

import (
	"context"
	goerrors "errors"
	"sync"
	"testing"

	"assessment-results/internal/fieldpath"
	"assessment-results/internal/model"
	"assessment-results/internal/rows"
	"assessment-results/internal/storage"
	"assessment-results/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testScope = model.Scope{AcademicNamespaceID: 1, AssessmentID: 55, SubjectGroupID: 900}

const editor int64 = 31

func ptr[T any](v T) *T { return &v }

type fakeGateway struct {
	mu           sync.Mutex
	rows         []model.AssessmentResult
	fetches      int
	calls        []string
	exclusions   []model.ExclusionInput
	inputs       []model.ResultInput
	comments     []model.CommentBankComment
	exclusionErr error
	saveErr      error
}

func (g *fakeGateway) FetchResults(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	return g.rows, nil
}

func (g *fakeGateway) UpdateExclusions(ctx context.Context, namespaceID int64, inputs []model.ExclusionInput) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "exclusions")
	g.exclusions = inputs
	return g.exclusionErr
}

func (g *fakeGateway) SaveResults(ctx context.Context, namespaceID int64, inputs []model.ResultInput) ([]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "results")
	if g.saveErr != nil {
		return nil, g.saveErr
	}
	g.inputs = inputs
	ids := make([]int64, len(inputs))
	for i := range inputs {
		ids[i] = int64(100 + i)
	}
	return ids, nil
}

func (g *fakeGateway) ActiveCommentBank(ctx context.Context, scope model.Scope) ([]model.CommentBankComment, error) {
	return g.comments, nil
}

// memoryDrafts mirrors the repository: every update works on a fresh copy.
type memoryDrafts struct {
	mu     sync.Mutex
	drafts map[model.DraftKey]model.EditedRows
	runs   map[string]*model.SaveRun
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{
		drafts: make(map[model.DraftKey]model.EditedRows),
		runs:   make(map[string]*model.SaveRun),
	}
}

func copyEdits(src model.EditedRows) model.EditedRows {
	dst := model.EditedRows{}
	for id, cells := range src {
		dst[id] = make(map[string]model.EditedCell, len(cells))
		for k, v := range cells {
			dst[id][k] = v
		}
	}
	return dst
}

func (d *memoryDrafts) GetDraft(ctx context.Context, key model.DraftKey) (*model.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	edits, ok := d.drafts[key]
	if !ok {
		return nil, errors.ErrDraftNotFound
	}
	return &model.Draft{Key: key, Edits: copyEdits(edits)}, nil
}

func (d *memoryDrafts) UpdateDraft(ctx context.Context, key model.DraftKey, fn func(edits model.EditedRows) error) (*model.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	edits := copyEdits(d.drafts[key])
	if err := fn(edits); err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		delete(d.drafts, key)
	} else {
		d.drafts[key] = copyEdits(edits)
	}
	return &model.Draft{Key: key, Edits: edits}, nil
}

func (d *memoryDrafts) DeleteDraft(ctx context.Context, key model.DraftKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.drafts, key)
	return nil
}

func (d *memoryDrafts) CreateSaveRun(ctx context.Context, run *model.SaveRun) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *run
	d.runs[run.ID] = &cp
	return nil
}

func (d *memoryDrafts) FinishSaveRun(ctx context.Context, id string, status model.SaveRunStatus, rowCount int, errorMessage *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	run, ok := d.runs[id]
	if !ok {
		return errors.ErrSaveRunNotFound
	}
	run.Status = status
	run.RowCount = rowCount
	run.ErrorMessage = errorMessage
	return nil
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []model.RecalcJob
}

func (e *recordingEnqueuer) EnqueueRecalcJob(ctx context.Context, job model.RecalcJob) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return nil
}

type fixture struct {
	svc      *Service
	gateway  *fakeGateway
	drafts   *memoryDrafts
	recalc   *recordingEnqueuer
	archives *storage.MemoryStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	higher := model.StudyLevelHigher
	gw := &fakeGateway{
		rows: []model.AssessmentResult{
			{ID: ptr(int64(11)), AssessmentID: 55, SubjectGroupID: 900, StudentPartyID: 7,
				StudentStudyLevel: &higher, ProgrammeShortName: ptr("LC"), Result: ptr(60.0), Examinable: true},
			{AssessmentID: 55, SubjectGroupID: 900, StudentPartyID: 8, Examinable: true},
		},
		comments: []model.CommentBankComment{{ID: 4, Comment: "Steady progress", Active: true}},
	}
	f := &fixture{
		gateway:  gw,
		drafts:   newMemoryDrafts(),
		recalc:   &recordingEnqueuer{},
		archives: storage.NewMemoryStorage(),
	}
	f.svc = NewService(gw, f.drafts, rows.NewMemoryStore(), f.recalc, storage.NewArchiver(f.archives, "archive"))
	f.svc.newID = func() string { return "run-1" }

	_, err := f.svc.Load(context.Background(), testScope)
	require.NoError(t, err)
	return f
}

func (f *fixture) key() model.DraftKey {
	return model.DraftKey{Scope: testScope, EditorPartyID: editor}
}

func TestRowsLoadsUnknownScope(t *testing.T) {
	f := newFixture(t)
	other := model.Scope{AcademicNamespaceID: 1, AssessmentID: 56, SubjectGroupID: 900}

	list, err := f.svc.Rows(context.Background(), other)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, f.gateway.fetches)

	_, err = f.svc.Rows(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, f.gateway.fetches)
}

func TestEditRecordsDraftAndQueuesRecalc(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.svc.Edit(ctx, editor, model.EditRequest{
		Scope: testScope, StudentPartyID: 7, Field: "result", OldValue: 60.0, NewValue: 80.0,
	})
	require.NoError(t, err)
	assert.Equal(t, model.EditedCell{OldValue: 60.0, NewValue: 80.0}, draft.Edits[7]["result"])

	require.Len(t, f.recalc.jobs, 1)
	job := f.recalc.jobs[0]
	assert.Equal(t, int64(7), job.StudentPartyID)
	assert.Equal(t, 80.0, *job.Result)
	assert.Equal(t, model.StudyLevelHigher, *job.StudyLevel)
	assert.Equal(t, "LC", *job.ProgrammeShortName)

	_, err = f.svc.Edit(ctx, editor, model.EditRequest{
		Scope: testScope, StudentPartyID: 7, Field: "examinable", OldValue: true, NewValue: false,
	})
	require.NoError(t, err)
	assert.Len(t, f.recalc.jobs, 1)

	stored, err := f.svc.Draft(ctx, f.key())
	require.NoError(t, err)
	assert.Len(t, stored.Edits[7], 2)
}

func TestEditRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Edit(ctx, editor, model.EditRequest{Scope: testScope, StudentPartyID: 7, Field: "gradeResult", NewValue: "H1"})
	assert.ErrorIs(t, err, errors.ErrDerivedField)

	_, err = f.svc.Edit(ctx, editor, model.EditRequest{Scope: testScope, StudentPartyID: 7, Field: "colour", NewValue: "red"})
	assert.ErrorIs(t, err, errors.ErrUnknownField)

	_, err = f.svc.Edit(ctx, editor, model.EditRequest{Scope: testScope, StudentPartyID: 7, Field: fieldpath.TeacherCommentBankCommentID, NewValue: 5})
	assert.ErrorIs(t, err, errors.ErrUnknownBankComment)

	draft, err := f.svc.Draft(ctx, f.key())
	require.NoError(t, err)
	assert.Empty(t, draft.Edits)
}

func TestMergeEditsQueuesRecalcForGradeInputsOnly(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.MergeEdits(context.Background(), f.key(), model.EditedRows{
		7: {"targetResult": {OldValue: nil, NewValue: 70.0}},
		8: {"teacherComment.comment": {OldValue: nil, NewValue: "Well done"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, draft.Edits.Touched())

	require.Len(t, f.recalc.jobs, 1)
	assert.Equal(t, int64(7), f.recalc.jobs[0].StudentPartyID)
	assert.Equal(t, 70.0, *f.recalc.jobs[0].TargetResult)
}

func TestSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Edit(ctx, editor, model.EditRequest{Scope: testScope, StudentPartyID: 7, Field: "examinable", OldValue: true, NewValue: false})
	require.NoError(t, err)
	_, err = f.svc.Edit(ctx, editor, model.EditRequest{Scope: testScope, StudentPartyID: 8, Field: "teacherComment.comment", NewValue: "Well done"})
	require.NoError(t, err)

	resp, err := f.svc.Save(ctx, editor, model.SaveRequest{Scope: testScope})
	require.NoError(t, err)
	assert.Equal(t, &model.SaveResponse{SaveRunID: "run-1", SavedIDs: []int64{100, 101}, RowCount: 2, Excluded: 1}, resp)

	assert.Equal(t, []string{"exclusions", "results"}, f.gateway.calls)
	assert.Equal(t, []model.ExclusionInput{{AssessmentID: 55, StudentPartyID: 7, SubjectGroupID: 900, Excluded: true}}, f.gateway.exclusions)
	require.Len(t, f.gateway.inputs, 2)
	comment := f.gateway.inputs[1].TeacherComment
	require.NotNil(t, comment)
	assert.Equal(t, editor, *comment.CommenterPartyID)

	assert.Equal(t, model.SaveRunStatusSucceeded, f.drafts.runs["run-1"].Status)
	assert.Equal(t, 2, f.drafts.runs["run-1"].RowCount)

	draft, err := f.svc.Draft(ctx, f.key())
	require.NoError(t, err)
	assert.Empty(t, draft.Edits)

	// Load in the fixture plus the refetch after saving.
	assert.Equal(t, 2, f.gateway.fetches)

	exists, err := f.archives.Exists(ctx, "archive/1/55/900/run-1.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.saveErr = goerrors.New("upstream rejected batch")

	_, err := f.svc.Edit(ctx, editor, model.EditRequest{Scope: testScope, StudentPartyID: 8, Field: "result", NewValue: 45})
	require.NoError(t, err)

	_, err = f.svc.Save(ctx, editor, model.SaveRequest{Scope: testScope, Variant: model.VariantTerm})
	require.ErrorIs(t, err, errors.ErrSaveFailed)

	run := f.drafts.runs["run-1"]
	assert.Equal(t, model.SaveRunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "upstream rejected batch")

	draft, err := f.svc.Draft(ctx, f.key())
	require.NoError(t, err)
	assert.Equal(t, model.EditedCell{OldValue: nil, NewValue: 45.0}, draft.Edits[8]["result"])
	assert.Equal(t, 1, f.gateway.fetches)
}

func TestSaveExclusionFailureSendsNoResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.exclusionErr = goerrors.New("exclusions down")

	_, err := f.svc.Edit(ctx, editor, model.EditRequest{Scope: testScope, StudentPartyID: 7, Field: "examinable", OldValue: true, NewValue: false})
	require.NoError(t, err)

	_, err = f.svc.Save(ctx, editor, model.SaveRequest{Scope: testScope})
	require.ErrorIs(t, err, errors.ErrExclusionFailed)
	assert.Equal(t, []string{"exclusions"}, f.gateway.calls)
}

func TestSaveWithoutDraft(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Save(context.Background(), editor, model.SaveRequest{Scope: testScope})
	require.NoError(t, err)
	assert.Equal(t, &model.SaveResponse{}, resp)
	assert.Empty(t, f.gateway.calls)
	assert.Empty(t, f.drafts.runs)
}

func TestDiscard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Edit(ctx, editor, model.EditRequest{Scope: testScope, StudentPartyID: 8, Field: "result", NewValue: 45})
	require.NoError(t, err)
	require.NoError(t, f.svc.Discard(ctx, f.key()))

	draft, err := f.svc.Draft(ctx, f.key())
	require.NoError(t, err)
	assert.Empty(t, draft.Edits)
}

func TestRemoveSavedKeepsNewerEdits(t *testing.T) {
	saved := model.EditedRows{
		7: {"result": {OldValue: 60.0, NewValue: 70.0}, "examinable": {OldValue: true, NewValue: false}},
		8: {"result": {OldValue: nil, NewValue: 45.0}},
	}
	current := model.EditedRows{
		7: {"result": {OldValue: 60.0, NewValue: 75.0}, "examinable": {OldValue: true, NewValue: false}},
		8: {"result": {OldValue: nil, NewValue: 45.0}},
		9: {"targetResult": {OldValue: nil, NewValue: 50.0}},
	}

	removeSaved(current, saved, nil)

	assert.Equal(t, model.EditedRows{
		7: {"result": {OldValue: 60.0, NewValue: 75.0}},
		9: {"targetResult": {OldValue: nil, NewValue: 50.0}},
	}, current)
}

func TestRemoveSavedKeepsOrphans(t *testing.T) {
	saved := model.EditedRows{
		8:   {"result": {OldValue: nil, NewValue: 45.0}},
		404: {"examinable": {OldValue: true, NewValue: false}},
	}
	current := copyEdits(saved)

	removeSaved(current, saved, []int64{404})

	assert.Equal(t, model.EditedRows{
		404: {"examinable": {OldValue: true, NewValue: false}},
	}, current)
}

func TestSaveKeepsOrphanEditsInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Edit(ctx, editor, model.EditRequest{Scope: testScope, StudentPartyID: 8, Field: "result", NewValue: 45})
	require.NoError(t, err)
	_, err = f.drafts.UpdateDraft(ctx, f.key(), func(edits model.EditedRows) error {
		edits[404] = map[string]model.EditedCell{"examinable": {OldValue: true, NewValue: false}}
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.Save(ctx, editor, model.SaveRequest{Scope: testScope})
	require.NoError(t, err)

	assert.Equal(t, []string{"results"}, f.gateway.calls)
	assert.Empty(t, f.gateway.exclusions)

	draft, err := f.svc.Draft(ctx, f.key())
	require.NoError(t, err)
	assert.Equal(t, model.EditedRows{
		404: {"examinable": {OldValue: true, NewValue: false}},
	}, draft.Edits)
}
