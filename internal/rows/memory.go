package rows

import (
	"context"
	"fmt"
	"sync"

	"assessment-results/internal/logger"
	"assessment-results/internal/model"
	"assessment-results/pkg/errors"

	"github.com/rs/zerolog"
)

const subscriberBuffer = 64

type table struct {
	order []int64
	rows  map[int64]*model.AssessmentResult
}

type MemoryStore struct {
	mu     sync.Mutex
	tables map[model.Scope]*table
	subs   map[model.Scope]map[chan model.FieldChange]struct{}
	log    zerolog.Logger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[model.Scope]*table),
		subs:   make(map[model.Scope]map[chan model.FieldChange]struct{}),
		log:    logger.Get(),
	}
}

func (s *MemoryStore) Load(ctx context.Context, scope model.Scope, rows []model.AssessmentResult) error {
	t := &table{
		order: make([]int64, 0, len(rows)),
		rows:  make(map[int64]*model.AssessmentResult, len(rows)),
	}
	for i := range rows {
		id := rows[i].StudentPartyID
		if _, dup := t.rows[id]; !dup {
			t.order = append(t.order, id)
		}
		t.rows[id] = rows[i].Clone()
	}

	s.mu.Lock()
	s.tables[scope] = t
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[scope]
	if !ok {
		return nil, nil
	}
	out := make([]model.AssessmentResult, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.rows[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, scope model.Scope, studentPartyID int64) (*model.AssessmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.row(scope, studentPartyID)
	if err != nil {
		return nil, err
	}
	return row.Clone(), nil
}

func (s *MemoryStore) PatchField(ctx context.Context, scope model.Scope, studentPartyID int64, field string, value interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.row(scope, studentPartyID)
	if err != nil {
		return false, err
	}
	change, changed, err := applyPatch(row, scope, field, value)
	if err != nil || !changed {
		return false, err
	}

	for ch := range s.subs[scope] {
		select {
		case ch <- change:
		default:
			s.log.Warn().Str("scope", scope.String()).Str("field", change.Field).Msg("Subscriber buffer full, change dropped")
		}
	}
	return true, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, scope model.Scope) (<-chan model.FieldChange, error) {
	ch := make(chan model.FieldChange, subscriberBuffer)

	s.mu.Lock()
	if s.subs[scope] == nil {
		s.subs[scope] = make(map[chan model.FieldChange]struct{})
	}
	s.subs[scope][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs[scope], ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

// row must be called with mu held.
func (s *MemoryStore) row(scope model.Scope, studentPartyID int64) (*model.AssessmentResult, error) {
	t, ok := s.tables[scope]
	if !ok {
		return nil, fmt.Errorf("%w: scope %s not loaded", errors.ErrRowNotFound, scope)
	}
	row, ok := t.rows[studentPartyID]
	if !ok {
		return nil, fmt.Errorf("%w: student %d", errors.ErrRowNotFound, studentPartyID)
	}
	return row, nil
}
