// Package importer owns the import-job lifecycle: upload validation,
// preview generation, confirm-and-commit with per-row error accounting,
// and soft cancellation.
package importer

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/bank-importer/internal/statement"
)

// Status is the import-job lifecycle state. A job moves
// pending → processing → completed|failed; cancelled is a separate
// terminal state reachable from pending or after completion. Jobs are
// never deleted, only cancelled.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var (
	// ErrInvalidState rejects operations that the job's current status
	// does not permit (confirming twice, cancelling mid-commit).
	ErrInvalidState = errors.New("import is not in a valid state for this operation")

	// ErrNotFound is returned when a job does not exist or belongs to a
	// different owner.
	ErrNotFound = errors.New("import not found")
)

// previewSampleSize caps how many normalized rows are persisted with
// the job record. The full candidate set still goes back to the caller
// for review.
const previewSampleSize = 10

// RowError records one commit failure: which confirmed row and why.
type RowError struct {
	RowIndex int    `json:"row_index"`
	Message  string `json:"message"`
}

// Job is one upload-to-commit lifecycle.
type Job struct {
	ID       string           `json:"id"`
	OwnerID  string           `json:"owner_id"`
	FileName string           `json:"file_name"`
	Format   statement.Format `json:"format"`
	FileSize int64            `json:"file_size"`
	Status   Status           `json:"status"`

	TotalRows      int `json:"total_rows"`
	ProcessedRows  int `json:"processed_rows"`
	SuccessfulRows int `json:"successful_rows"`
	FailedRows     int `json:"failed_rows"`

	// SkippedRows counts parse-level drops (column mismatches, missing
	// mandatory fields). They are not failures and never appear in
	// ErrorLog; the counter exists so they stay observable.
	SkippedRows int `json:"skipped_rows"`

	Preview  []statement.Candidate `json:"preview,omitempty"`
	ErrorLog []RowError            `json:"error_log,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Transaction is a committed transaction record as the external store
// sees it. Amount is non-negative; the sign lives in Type and
// OriginalAmount.
type Transaction struct {
	ID             string                    `json:"id"`
	OwnerID        string                    `json:"owner_id"`
	ImportID       string                    `json:"import_id,omitempty"`
	Date           time.Time                 `json:"date"`
	Description    string                    `json:"description"`
	Amount         float64                   `json:"amount"`
	Type           statement.TransactionType `json:"type"`
	CategoryID     string                    `json:"category_id,omitempty"`
	Source         string                    `json:"source,omitempty"`
	OperationType  string                    `json:"operation_type,omitempty"`
	Reference      string                    `json:"reference,omitempty"`
	RowIndex       int                       `json:"row_index"`
	OriginalAmount float64                   `json:"original_amount"`
}

// Store persists import jobs. Implementations are external; the
// orchestrator is the only writer.
type Store interface {
	// CreateImport inserts a new job record.
	CreateImport(ctx context.Context, job *Job) error

	// GetImport fetches a job by id, scoped to its owner. Returns
	// ErrNotFound when missing or owned by someone else.
	GetImport(ctx context.Context, ownerID, importID string) (*Job, error)

	// UpdateImport persists the job's current counters, status, preview
	// and error log.
	UpdateImport(ctx context.Context, job *Job) error

	// ListImports returns the owner's jobs, newest first.
	ListImports(ctx context.Context, ownerID string, limit int) ([]*Job, error)
}

// TransactionStore commits candidate rows and withdraws them on cancel.
// Withdrawal is a status change, never physical deletion.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *Transaction) (string, error)
	WithdrawByImport(ctx context.Context, ownerID, importID string) error
	ListByImport(ctx context.Context, ownerID, importID string) ([]string, error)
}
