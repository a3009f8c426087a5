package model

import "time"

type DraftKey struct {
	Scope         Scope
	EditorPartyID int64
}

type Draft struct {
	Key       DraftKey   `json:"-"`
	Edits     EditedRows `json:"edits"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type SaveRunStatus string

const (
	SaveRunStatusPending   SaveRunStatus = "PENDING"
	SaveRunStatusSucceeded SaveRunStatus = "SUCCEEDED"
	SaveRunStatusFailed    SaveRunStatus = "FAILED"
)

type SaveRun struct {
	ID            string        `json:"id" db:"id"`
	Scope         Scope         `json:"scope"`
	EditorPartyID int64         `json:"editor_party_id" db:"editor_party_id"`
	Status        SaveRunStatus `json:"status" db:"status"`
	RowCount      int           `json:"row_count" db:"row_count"`
	ErrorMessage  *string       `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

type ImportStatus string

const (
	ImportStatusUploaded ImportStatus = "UPLOADED"
	ImportStatusMerged   ImportStatus = "MERGED"
	ImportStatusFailed   ImportStatus = "FAILED"
)

type Import struct {
	ID            int64        `json:"id" db:"id"`
	Scope         Scope        `json:"scope"`
	EditorPartyID int64        `json:"editor_party_id" db:"editor_party_id"`
	S3Path        string       `json:"s3_path" db:"s3_path"`
	Status        ImportStatus `json:"status" db:"status"`
	EditedCells   int          `json:"edited_cells" db:"edited_cells"`
	ErrorMessage  *string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}
