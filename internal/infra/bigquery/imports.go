package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-importer/internal/importer"
)

// ImportStore persists import jobs in the imports table. Inserts go
// through DML rather than the streaming inserter because job rows are
// updated in place as the lifecycle advances.
type ImportStore struct {
	c *Client
}

var _ importer.Store = (*ImportStore)(nil)

func NewImportStore(c *Client) *ImportStore {
	return &ImportStore{c: c}
}

// CreateImport inserts a new job record.
func (s *ImportStore) CreateImport(ctx context.Context, job *importer.Job) error {
	row, err := importRowFromJob(job)
	if err != nil {
		return fmt.Errorf("CreateImport: %w", err)
	}

	q := s.c.query(`
		INSERT %s.%s (
			import_id,
			user_id,
			file_name,
			format,
			file_size,
			status,
			total_rows,
			processed_rows,
			successful_rows,
			failed_rows,
			skipped_rows,
			preview,
			error_log,
			created_ts
		)
		VALUES (
			@import_id,
			@user_id,
			@file_name,
			@format,
			@file_size,
			@status,
			@total_rows,
			@processed_rows,
			@successful_rows,
			@failed_rows,
			@skipped_rows,
			@preview,
			@error_log,
			@created_ts
		)
	`, s.c.cfg.Dataset, importsTable)

	q.Parameters = []bigquery.QueryParameter{
		{Name: "import_id", Value: row.ImportID},
		{Name: "user_id", Value: row.UserID},
		{Name: "file_name", Value: row.FileName},
		{Name: "format", Value: row.Format},
		{Name: "file_size", Value: row.FileSize},
		{Name: "status", Value: row.Status},
		{Name: "total_rows", Value: row.TotalRows},
		{Name: "processed_rows", Value: row.ProcessedRows},
		{Name: "successful_rows", Value: row.SuccessfulRows},
		{Name: "failed_rows", Value: row.FailedRows},
		{Name: "skipped_rows", Value: row.SkippedRows},
		{Name: "preview", Value: row.Preview},
		{Name: "error_log", Value: row.ErrorLog},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	return runDML(ctx, q, "CreateImport")
}

// GetImport fetches a job by id, scoped to its owner.
func (s *ImportStore) GetImport(ctx context.Context, ownerID, importID string) (*importer.Job, error) {
	q := s.c.query(`
		SELECT
			import_id,
			user_id,
			file_name,
			format,
			file_size,
			status,
			total_rows,
			processed_rows,
			successful_rows,
			failed_rows,
			skipped_rows,
			preview,
			error_log,
			created_ts,
			completed_ts
		FROM %s.%s
		WHERE import_id = @import_id
		  AND user_id = @user_id
	`, s.c.cfg.Dataset, importsTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "import_id", Value: importID},
		{Name: "user_id", Value: ownerID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetImport: query read: %w", err)
	}

	var row ImportRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, importer.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetImport: iter next: %w", err)
	}

	job, err := jobFromImportRow(&row)
	if err != nil {
		return nil, fmt.Errorf("GetImport: %w", err)
	}
	return job, nil
}

// UpdateImport persists the job's current counters, status, preview and
// error log.
func (s *ImportStore) UpdateImport(ctx context.Context, job *importer.Job) error {
	row, err := importRowFromJob(job)
	if err != nil {
		return fmt.Errorf("UpdateImport: %w", err)
	}

	q := s.c.query(`
		UPDATE %s.%s
		SET status = @status,
		    total_rows = @total_rows,
		    processed_rows = @processed_rows,
		    successful_rows = @successful_rows,
		    failed_rows = @failed_rows,
		    skipped_rows = @skipped_rows,
		    preview = @preview,
		    error_log = @error_log,
		    completed_ts = @completed_ts
		WHERE import_id = @import_id
		  AND user_id = @user_id
	`, s.c.cfg.Dataset, importsTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: row.Status},
		{Name: "total_rows", Value: row.TotalRows},
		{Name: "processed_rows", Value: row.ProcessedRows},
		{Name: "successful_rows", Value: row.SuccessfulRows},
		{Name: "failed_rows", Value: row.FailedRows},
		{Name: "skipped_rows", Value: row.SkippedRows},
		{Name: "preview", Value: row.Preview},
		{Name: "error_log", Value: row.ErrorLog},
		{Name: "completed_ts", Value: row.CompletedTS},
		{Name: "import_id", Value: row.ImportID},
		{Name: "user_id", Value: row.UserID},
	}

	return runDML(ctx, q, "UpdateImport")
}

// ListImports returns the owner's jobs, newest first.
func (s *ImportStore) ListImports(ctx context.Context, ownerID string, limit int) ([]*importer.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	q := s.c.query(`
		SELECT
			import_id,
			user_id,
			file_name,
			format,
			file_size,
			status,
			total_rows,
			processed_rows,
			successful_rows,
			failed_rows,
			skipped_rows,
			preview,
			error_log,
			created_ts,
			completed_ts
		FROM %s.%s
		WHERE user_id = @user_id
		ORDER BY created_ts DESC
		LIMIT @limit
	`, s.c.cfg.Dataset, importsTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: ownerID},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListImports: query read: %w", err)
	}

	var out []*importer.Job
	for {
		var row ImportRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListImports: iter next: %w", err)
		}

		job, err := jobFromImportRow(&row)
		if err != nil {
			return nil, fmt.Errorf("ListImports: %w", err)
		}
		out = append(out, job)
	}

	return out, nil
}
