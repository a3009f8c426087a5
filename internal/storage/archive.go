package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"assessment-results/internal/model"
)

// ArchivedSave is the document written for every successful save.
type ArchivedSave struct {
	SaveRunID     string                  `json:"save_run_id"`
	Scope         model.Scope             `json:"scope"`
	EditorPartyID int64                   `json:"editor_party_id"`
	Variant       model.AssessmentVariant `json:"variant"`
	Exclusions    []model.ExclusionInput  `json:"exclusions"`
	Results       []model.ResultInput     `json:"results"`
	SavedIDs      []int64                 `json:"saved_ids"`
	ArchivedAt    time.Time               `json:"archived_at"`
}

type Archiver struct {
	store  Storage
	prefix string
}

func NewArchiver(store Storage, prefix string) *Archiver {
	return &Archiver{store: store, prefix: prefix}
}

// Key is <prefix>/<namespace>/<assessment>/<subjectGroup>/<saveRunID>.json.
func (a *Archiver) Key(scope model.Scope, saveRunID string) string {
	return path.Join(a.prefix,
		fmt.Sprint(scope.AcademicNamespaceID),
		fmt.Sprint(scope.AssessmentID),
		fmt.Sprint(scope.SubjectGroupID),
		saveRunID+".json")
}

func (a *Archiver) Archive(ctx context.Context, doc ArchivedSave) (string, error) {
	if doc.ArchivedAt.IsZero() {
		doc.ArchivedAt = time.Now().UTC()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode save archive: %w", err)
	}

	key := a.Key(doc.Scope, doc.SaveRunID)
	if err := a.store.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return key, nil
}
