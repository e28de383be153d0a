package bigquery

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/bank-importer/internal/importer"
	"github.com/dvloznov/bank-importer/internal/invoices"
	"github.com/dvloznov/bank-importer/internal/statement"
)

// ImportRow represents an import job record in BigQuery.
type ImportRow struct {
	ImportID string `bigquery:"import_id"`
	UserID   string `bigquery:"user_id"`

	FileName string `bigquery:"file_name"`
	Format   string `bigquery:"format"`
	FileSize int64  `bigquery:"file_size"`

	Status string `bigquery:"status"`

	TotalRows      int64 `bigquery:"total_rows"`
	ProcessedRows  int64 `bigquery:"processed_rows"`
	SuccessfulRows int64 `bigquery:"successful_rows"`
	FailedRows     int64 `bigquery:"failed_rows"`
	SkippedRows    int64 `bigquery:"skipped_rows"`

	// Preview and ErrorLog hold JSON-encoded text. Plain STRING columns
	// keep the parameterized DML simple.
	Preview  bigquery.NullString `bigquery:"preview"`
	ErrorLog bigquery.NullString `bigquery:"error_log"`

	CreatedTS   time.Time              `bigquery:"created_ts"`
	CompletedTS bigquery.NullTimestamp `bigquery:"completed_ts"`
}

// TransactionRow represents a committed transaction record in BigQuery.
// Withdrawn rows keep their data; only status changes.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"`
	UserID        string `bigquery:"user_id"`
	ImportID      string `bigquery:"import_id"`

	TransactionDate civil.Date `bigquery:"transaction_date"`
	Description     string     `bigquery:"description"`

	Amount          *big.Rat `bigquery:"amount"`
	OriginalAmount  *big.Rat `bigquery:"original_amount"`
	TransactionType string   `bigquery:"transaction_type"`

	CategoryID        bigquery.NullString `bigquery:"category_id"`
	Source            bigquery.NullString `bigquery:"source"`
	OperationType     bigquery.NullString `bigquery:"operation_type"`
	ExternalReference bigquery.NullString `bigquery:"external_reference"`

	RowIndex int64 `bigquery:"row_index"`

	Status string `bigquery:"status"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// CategoryRow represents a category taxonomy entry in BigQuery.
type CategoryRow struct {
	CategoryID   string `bigquery:"category_id"`
	CategoryName string `bigquery:"category_name"`

	Slug string `bigquery:"slug"`

	IsActive bigquery.NullBool `bigquery:"is_active"`

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"`
}

// InvoiceRow represents an invoice record in BigQuery.
type InvoiceRow struct {
	InvoiceID  string `bigquery:"invoice_id"`
	UserID     string `bigquery:"user_id"`
	DocumentID string `bigquery:"document_id"`
	FileName   string `bigquery:"file_name"`

	ExtractionStatus string `bigquery:"extraction_status"`

	InvoiceNumber bigquery.NullString `bigquery:"invoice_number"`
	InvoiceDate   bigquery.NullDate   `bigquery:"invoice_date"`

	// InvoiceAmount is FLOAT64 rather than NUMERIC: the column is set
	// through DML parameters, which cannot express a typed NULL NUMERIC.
	InvoiceAmount bigquery.NullFloat64 `bigquery:"invoice_amount"`

	Vendor     bigquery.NullString  `bigquery:"vendor"`
	Confidence bigquery.NullFloat64 `bigquery:"confidence"`

	LinkedTransactionID bigquery.NullString  `bigquery:"linked_transaction_id"`
	MatchType           bigquery.NullString  `bigquery:"match_type"`
	LinkConfidence      bigquery.NullFloat64 `bigquery:"link_confidence"`

	CreatedTS time.Time              `bigquery:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"`
}

// ratFromFloat converts a float amount to NUMERIC with cent precision.
func ratFromFloat(v float64) *big.Rat {
	return big.NewRat(int64(math.Round(v*100)), 100)
}

func floatFromRat(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullTimestamp(t *time.Time) bigquery.NullTimestamp {
	if t == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: *t, Valid: true}
}

func marshalJSON(v interface{}, field string) (bigquery.NullString, error) {
	if v == nil {
		return bigquery.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return bigquery.NullString{}, fmt.Errorf("marshaling %s: %w", field, err)
	}
	return bigquery.NullString{StringVal: string(data), Valid: true}, nil
}

func importRowFromJob(job *importer.Job) (*ImportRow, error) {
	var preview, errorLog bigquery.NullString
	var err error
	if len(job.Preview) > 0 {
		if preview, err = marshalJSON(job.Preview, "preview"); err != nil {
			return nil, err
		}
	}
	if len(job.ErrorLog) > 0 {
		if errorLog, err = marshalJSON(job.ErrorLog, "error_log"); err != nil {
			return nil, err
		}
	}

	return &ImportRow{
		ImportID:       job.ID,
		UserID:         job.OwnerID,
		FileName:       job.FileName,
		Format:         string(job.Format),
		FileSize:       job.FileSize,
		Status:         string(job.Status),
		TotalRows:      int64(job.TotalRows),
		ProcessedRows:  int64(job.ProcessedRows),
		SuccessfulRows: int64(job.SuccessfulRows),
		FailedRows:     int64(job.FailedRows),
		SkippedRows:    int64(job.SkippedRows),
		Preview:        preview,
		ErrorLog:       errorLog,
		CreatedTS:      job.CreatedAt,
		CompletedTS:    nullTimestamp(job.CompletedAt),
	}, nil
}

func jobFromImportRow(row *ImportRow) (*importer.Job, error) {
	job := &importer.Job{
		ID:             row.ImportID,
		OwnerID:        row.UserID,
		FileName:       row.FileName,
		Format:         statement.Format(row.Format),
		FileSize:       row.FileSize,
		Status:         importer.Status(row.Status),
		TotalRows:      int(row.TotalRows),
		ProcessedRows:  int(row.ProcessedRows),
		SuccessfulRows: int(row.SuccessfulRows),
		FailedRows:     int(row.FailedRows),
		SkippedRows:    int(row.SkippedRows),
		CreatedAt:      row.CreatedTS,
	}
	if row.CompletedTS.Valid {
		ts := row.CompletedTS.Timestamp
		job.CompletedAt = &ts
	}
	if row.Preview.Valid {
		if err := json.Unmarshal([]byte(row.Preview.StringVal), &job.Preview); err != nil {
			return nil, fmt.Errorf("unmarshaling preview: %w", err)
		}
	}
	if row.ErrorLog.Valid {
		if err := json.Unmarshal([]byte(row.ErrorLog.StringVal), &job.ErrorLog); err != nil {
			return nil, fmt.Errorf("unmarshaling error_log: %w", err)
		}
	}
	return job, nil
}

func transactionRowFromDomain(tx *importer.Transaction, now time.Time) *TransactionRow {
	return &TransactionRow{
		TransactionID:     tx.ID,
		UserID:            tx.OwnerID,
		ImportID:          tx.ImportID,
		TransactionDate:   civil.DateOf(tx.Date),
		Description:       tx.Description,
		Amount:            ratFromFloat(tx.Amount),
		OriginalAmount:    ratFromFloat(tx.OriginalAmount),
		TransactionType:   string(tx.Type),
		CategoryID:        nullString(tx.CategoryID),
		Source:            nullString(tx.Source),
		OperationType:     nullString(tx.OperationType),
		ExternalReference: nullString(tx.Reference),
		RowIndex:          int64(tx.RowIndex),
		Status:            transactionStatusActive,
		CreatedTS:         now,
	}
}

func invoiceRowFromDomain(inv *invoices.Invoice) *InvoiceRow {
	row := &InvoiceRow{
		InvoiceID:           inv.ID,
		UserID:              inv.OwnerID,
		DocumentID:          inv.DocumentID,
		FileName:            inv.FileName,
		ExtractionStatus:    string(inv.ExtractionStatus),
		InvoiceNumber:       nullString(inv.InvoiceNumber),
		Vendor:              nullString(inv.Vendor),
		LinkedTransactionID: nullString(inv.LinkedTransactionID),
		MatchType:           nullString(string(inv.MatchType)),
		CreatedTS:           inv.CreatedAt,
		UpdatedTS:           bigquery.NullTimestamp{Timestamp: inv.UpdatedAt, Valid: !inv.UpdatedAt.IsZero()},
	}
	if inv.InvoiceDate != nil {
		row.InvoiceDate = bigquery.NullDate{Date: civil.DateOf(*inv.InvoiceDate), Valid: true}
	}
	if inv.InvoiceAmount != nil {
		row.InvoiceAmount = bigquery.NullFloat64{Float64: *inv.InvoiceAmount, Valid: true}
	}
	if inv.Confidence > 0 {
		row.Confidence = bigquery.NullFloat64{Float64: inv.Confidence, Valid: true}
	}
	if inv.LinkConfidence > 0 {
		row.LinkConfidence = bigquery.NullFloat64{Float64: inv.LinkConfidence, Valid: true}
	}
	return row
}

func invoiceFromRow(row *InvoiceRow) *invoices.Invoice {
	inv := &invoices.Invoice{
		ID:                  row.InvoiceID,
		OwnerID:             row.UserID,
		DocumentID:          row.DocumentID,
		FileName:            row.FileName,
		ExtractionStatus:    invoices.ExtractionStatus(row.ExtractionStatus),
		InvoiceNumber:       row.InvoiceNumber.StringVal,
		Vendor:              row.Vendor.StringVal,
		Confidence:          row.Confidence.Float64,
		LinkedTransactionID: row.LinkedTransactionID.StringVal,
		MatchType:           invoices.MatchType(row.MatchType.StringVal),
		LinkConfidence:      row.LinkConfidence.Float64,
		CreatedAt:           row.CreatedTS,
	}
	if row.UpdatedTS.Valid {
		inv.UpdatedAt = row.UpdatedTS.Timestamp
	}
	if row.InvoiceDate.Valid {
		d := row.InvoiceDate.Date.In(time.UTC)
		inv.InvoiceDate = &d
	}
	if row.InvoiceAmount.Valid {
		amount := row.InvoiceAmount.Float64
		inv.InvoiceAmount = &amount
	}
	return inv
}
