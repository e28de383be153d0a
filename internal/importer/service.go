package importer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-importer/internal/categorize"
	"github.com/dvloznov/bank-importer/internal/statement"
)

// Upload is the raw file handed to StartImport.
type Upload struct {
	FileName string
	Size     int64
	Content  []byte
}

// PreviewResult is what StartImport hands back: the created job plus
// the full candidate set (bounded by the preview row cap) for the
// caller to review and edit before confirming.
type PreviewResult struct {
	Job        *Job                  `json:"import"`
	Candidates []statement.Candidate `json:"preview_data"`
	Detected   int                   `json:"detected_transactions"`
}

// Result summarizes a confirm-and-commit pass.
type Result struct {
	ImportID string     `json:"import_id"`
	Imported int        `json:"imported"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors,omitempty"`
	Status   Status     `json:"status"`
}

// Service is the import orchestrator. All state lives in the injected
// stores; the service itself is stateless and safe for concurrent use
// across distinct jobs. The job status field acts as the single-writer
// gate: only a pending job can enter the commit pass.
type Service struct {
	store       Store
	txs         TransactionStore
	categorizer *categorize.Categorizer
	log         zerolog.Logger

	// now is injectable for tests; the date normalizer's fallback and
	// job timestamps both come from it.
	now func() time.Time
}

func NewService(store Store, txs TransactionStore, categorizer *categorize.Categorizer, log zerolog.Logger) *Service {
	return &Service{
		store:       store,
		txs:         txs,
		categorizer: categorizer,
		log:         log,
		now:         time.Now,
	}
}

// StartImport validates the upload, creates the job record, runs the
// bounded preview pass and persists a capped sample. The returned
// candidates are the caller's editable row set for ConfirmImport.
func (s *Service) StartImport(ctx context.Context, ownerID string, up Upload) (*PreviewResult, error) {
	format, err := statement.ValidateUpload(up.FileName, up.Size)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		FileName:  up.FileName,
		Format:    format,
		FileSize:  up.Size,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateImport(ctx, job); err != nil {
		return nil, fmt.Errorf("StartImport: creating job record: %w", err)
	}

	candidates, scanned, skipped, err := s.preview(ctx, format, up.Content)
	if err != nil {
		job.Status = StatusFailed
		job.ErrorLog = append(job.ErrorLog, RowError{RowIndex: -1, Message: err.Error()})
		if uerr := s.store.UpdateImport(ctx, job); uerr != nil {
			s.log.Error().Err(uerr).Str("import_id", job.ID).Msg("Failed to record preview failure")
		}
		return nil, fmt.Errorf("StartImport: %w", err)
	}

	job.TotalRows = scanned
	job.SkippedRows = skipped
	job.Preview = capPreview(candidates)
	if err := s.store.UpdateImport(ctx, job); err != nil {
		return nil, fmt.Errorf("StartImport: persisting preview: %w", err)
	}

	s.log.Info().
		Str("import_id", job.ID).
		Str("owner_id", ownerID).
		Str("format", string(format)).
		Int("total_rows", scanned).
		Int("candidates", len(candidates)).
		Int("skipped_rows", skipped).
		Msg("Import preview generated")

	return &PreviewResult{Job: job, Candidates: candidates, Detected: len(candidates)}, nil
}

// preview scans up to the preview row cap and builds candidates.
// Returns the candidates, the number of source rows scanned, and the
// number skipped at parse level (reader drops plus rows missing
// mandatory fields).
func (s *Service) preview(ctx context.Context, format statement.Format, content []byte) ([]statement.Candidate, int, int, error) {
	reader, err := statement.NewReader(format, content)
	if err != nil {
		return nil, 0, 0, err
	}

	now := s.now()
	var candidates []statement.Candidate
	scanned := 0
	invalid := 0

	for scanned < statement.MaxPreviewRows {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}

		var cand statement.Candidate
		var ok bool
		if format == statement.FormatQIF {
			cand, ok = statement.BuildQIFCandidate(row, scanned, now)
		} else {
			cand, ok = statement.BuildCandidate(row, scanned, now)
		}
		scanned++
		if !ok {
			invalid++
			continue
		}

		if cand.DateDefaulted {
			s.log.Warn().
				Int("row_index", cand.RowIndex).
				Str("description", cand.Description).
				Msg("Unparseable date, defaulted to import date")
		}

		if cand.Type == statement.TypeExpense {
			if cand.RawCategory != "" {
				cand.CategoryID = s.categorizer.CategorizeLabel(ctx, cand.RawCategory, cand.OperationType, cand.Description)
			} else {
				cand.CategoryID = s.categorizer.Categorize(ctx, cand.OperationType, cand.Description)
			}
		}

		candidates = append(candidates, cand)
	}

	// Reader-level drops happened before rows were counted as scanned;
	// fold them into both totals so scanned-vs-candidates stays honest.
	scanned += reader.Skipped()
	skipped := invalid + reader.Skipped()
	return candidates, scanned, skipped, nil
}

// GetPreview returns the persisted preview sample (at most 10 rows).
func (s *Service) GetPreview(ctx context.Context, ownerID, importID string) ([]statement.Candidate, error) {
	job, err := s.store.GetImport(ctx, ownerID, importID)
	if err != nil {
		return nil, err
	}
	return job.Preview, nil
}

// History lists the owner's import jobs, newest first.
func (s *Service) History(ctx context.Context, ownerID string, limit int) ([]*Job, error) {
	return s.store.ListImports(ctx, ownerID, limit)
}

// ConfirmImport commits the caller-reviewed row set. Only a pending job
// may be confirmed; anything else fails with ErrInvalidState and no
// side effects. Row failures are recorded and skipped over — one bad
// row never aborts the batch. The final status is failed only when
// every row failed; any success at all makes the job completed, and
// callers must inspect FailedRows/ErrorLog for degraded success.
func (s *Service) ConfirmImport(ctx context.Context, ownerID, importID string, rows []statement.Candidate) (*Result, error) {
	job, err := s.store.GetImport(ctx, ownerID, importID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusPending {
		return nil, fmt.Errorf("%w: status is %q", ErrInvalidState, job.Status)
	}

	job.Status = StatusProcessing
	if err := s.store.UpdateImport(ctx, job); err != nil {
		return nil, fmt.Errorf("ConfirmImport: marking processing: %w", err)
	}

	imported := 0
	failed := 0
	var rowErrors []RowError

	for _, row := range rows {
		tx := transactionFromRow(ownerID, importID, row)
		if _, err := s.txs.CreateTransaction(ctx, tx); err != nil {
			failed++
			rowErrors = append(rowErrors, RowError{RowIndex: tx.RowIndex, Message: err.Error()})
			s.log.Warn().Err(err).
				Str("import_id", importID).
				Int("row_index", tx.RowIndex).
				Msg("Row commit failed")
			continue
		}
		imported++
	}

	completedAt := s.now()
	job.ProcessedRows = imported + failed
	job.SuccessfulRows = imported
	job.FailedRows = failed
	job.ErrorLog = append(job.ErrorLog, rowErrors...)
	job.CompletedAt = &completedAt
	if failed > 0 && imported == 0 {
		job.Status = StatusFailed
	} else {
		job.Status = StatusCompleted
	}

	if err := s.store.UpdateImport(ctx, job); err != nil {
		return nil, fmt.Errorf("ConfirmImport: persisting result: %w", err)
	}

	s.log.Info().
		Str("import_id", importID).
		Int("imported", imported).
		Int("failed", failed).
		Str("status", string(job.Status)).
		Msg("Import committed")

	return &Result{
		ImportID: importID,
		Imported: imported,
		Failed:   failed,
		Errors:   rowErrors,
		Status:   job.Status,
	}, nil
}

// CancelImport soft-cancels a job and withdraws any transactions it
// committed. Jobs mid-commit cannot be cancelled; the transition only
// applies before processing starts or after it ends.
func (s *Service) CancelImport(ctx context.Context, ownerID, importID string) error {
	job, err := s.store.GetImport(ctx, ownerID, importID)
	if err != nil {
		return err
	}
	switch job.Status {
	case StatusPending, StatusCompleted, StatusFailed:
		// Cancellable.
	default:
		return fmt.Errorf("%w: status is %q", ErrInvalidState, job.Status)
	}

	if err := s.txs.WithdrawByImport(ctx, ownerID, importID); err != nil {
		return fmt.Errorf("CancelImport: withdrawing transactions: %w", err)
	}

	job.Status = StatusCancelled
	if err := s.store.UpdateImport(ctx, job); err != nil {
		return fmt.Errorf("CancelImport: persisting cancellation: %w", err)
	}

	s.log.Info().Str("import_id", importID).Msg("Import cancelled")
	return nil
}

func transactionFromRow(ownerID, importID string, row statement.Candidate) *Transaction {
	source := ""
	if row.Type == statement.TypeIncome {
		source = "Bank import"
	}

	return &Transaction{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ImportID:       importID,
		Date:           row.Date,
		Description:    row.Description,
		Amount:         row.Amount,
		Type:           row.Type,
		CategoryID:     row.CategoryID,
		Source:         source,
		OperationType:  row.OperationType,
		Reference:      row.Reference,
		RowIndex:       row.RowIndex,
		OriginalAmount: row.OriginalAmount,
	}
}

func capPreview(candidates []statement.Candidate) []statement.Candidate {
	if len(candidates) <= previewSampleSize {
		return candidates
	}
	return candidates[:previewSampleSize]
}
