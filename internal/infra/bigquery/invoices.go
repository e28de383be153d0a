package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-importer/internal/invoices"
	"github.com/dvloznov/bank-importer/internal/matching"
)

const invoiceColumns = `
	invoice_id,
	user_id,
	document_id,
	file_name,
	extraction_status,
	invoice_number,
	invoice_date,
	invoice_amount,
	vendor,
	confidence,
	linked_transaction_id,
	match_type,
	link_confidence,
	created_ts,
	updated_ts
`

// InvoiceStore persists invoice records. Rows are updated in place as
// extraction and linking advance, so all writes go through DML.
type InvoiceStore struct {
	c   *Client
	now func() time.Time
}

var _ invoices.Store = (*InvoiceStore)(nil)
var _ matching.InvoiceSource = (*InvoiceStore)(nil)

func NewInvoiceStore(c *Client) *InvoiceStore {
	return &InvoiceStore{c: c, now: time.Now}
}

// CreateInvoice inserts a new invoice record.
func (s *InvoiceStore) CreateInvoice(ctx context.Context, inv *invoices.Invoice) error {
	row := invoiceRowFromDomain(inv)

	q := s.c.query(`
		INSERT %s.%s (
			invoice_id,
			user_id,
			document_id,
			file_name,
			extraction_status,
			created_ts,
			updated_ts
		)
		VALUES (
			@invoice_id,
			@user_id,
			@document_id,
			@file_name,
			@extraction_status,
			@created_ts,
			@updated_ts
		)
	`, s.c.cfg.Dataset, invoicesTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "invoice_id", Value: row.InvoiceID},
		{Name: "user_id", Value: row.UserID},
		{Name: "document_id", Value: row.DocumentID},
		{Name: "file_name", Value: row.FileName},
		{Name: "extraction_status", Value: row.ExtractionStatus},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
	}

	return runDML(ctx, q, "CreateInvoice")
}

// GetInvoice fetches an invoice by id, scoped to its owner.
func (s *InvoiceStore) GetInvoice(ctx context.Context, ownerID, invoiceID string) (*invoices.Invoice, error) {
	q := s.c.query(`
		SELECT `+invoiceColumns+`
		FROM %s.%s
		WHERE invoice_id = @invoice_id
		  AND user_id = @user_id
	`, s.c.cfg.Dataset, invoicesTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "invoice_id", Value: invoiceID},
		{Name: "user_id", Value: ownerID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetInvoice: query read: %w", err)
	}

	var row InvoiceRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, invoices.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetInvoice: iter next: %w", err)
	}

	return invoiceFromRow(&row), nil
}

// ListInvoices returns the owner's invoices, newest first.
func (s *InvoiceStore) ListInvoices(ctx context.Context, ownerID string, limit int) ([]*invoices.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}

	q := s.c.query(`
		SELECT `+invoiceColumns+`
		FROM %s.%s
		WHERE user_id = @user_id
		ORDER BY created_ts DESC
		LIMIT @limit
	`, s.c.cfg.Dataset, invoicesTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: ownerID},
		{Name: "limit", Value: int64(limit)},
	}

	return s.queryInvoices(ctx, q, "ListInvoices")
}

// UpdateExtraction persists the extraction status and, on success, the
// extracted fields.
func (s *InvoiceStore) UpdateExtraction(ctx context.Context, ownerID, invoiceID string, status invoices.ExtractionStatus, result *invoices.Extracted) error {
	if result == nil {
		q := s.c.query(`
			UPDATE %s.%s
			SET extraction_status = @extraction_status,
			    updated_ts = @updated_ts
			WHERE invoice_id = @invoice_id
			  AND user_id = @user_id
		`, s.c.cfg.Dataset, invoicesTable)
		q.Parameters = []bigquery.QueryParameter{
			{Name: "extraction_status", Value: string(status)},
			{Name: "updated_ts", Value: s.now()},
			{Name: "invoice_id", Value: invoiceID},
			{Name: "user_id", Value: ownerID},
		}
		return runDML(ctx, q, "UpdateExtraction")
	}

	var invoiceDate bigquery.NullDate
	if result.InvoiceDate != nil {
		invoiceDate = bigquery.NullDate{Date: civil.DateOf(*result.InvoiceDate), Valid: true}
	}
	var amount bigquery.NullFloat64
	if result.Amount != nil {
		amount = bigquery.NullFloat64{Float64: *result.Amount, Valid: true}
	}

	q := s.c.query(`
		UPDATE %s.%s
		SET extraction_status = @extraction_status,
		    invoice_number = @invoice_number,
		    invoice_date = @invoice_date,
		    invoice_amount = @invoice_amount,
		    vendor = @vendor,
		    confidence = @confidence,
		    updated_ts = @updated_ts
		WHERE invoice_id = @invoice_id
		  AND user_id = @user_id
	`, s.c.cfg.Dataset, invoicesTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "extraction_status", Value: string(status)},
		{Name: "invoice_number", Value: nullString(result.InvoiceNumber)},
		{Name: "invoice_date", Value: invoiceDate},
		{Name: "invoice_amount", Value: amount},
		{Name: "vendor", Value: nullString(result.Vendor)},
		{Name: "confidence", Value: result.Confidence},
		{Name: "updated_ts", Value: s.now()},
		{Name: "invoice_id", Value: invoiceID},
		{Name: "user_id", Value: ownerID},
	}

	return runDML(ctx, q, "UpdateExtraction")
}

// LinkInvoice records a link to a transaction.
func (s *InvoiceStore) LinkInvoice(ctx context.Context, ownerID, invoiceID, transactionID string, matchType invoices.MatchType, confidence float64) error {
	q := s.c.query(`
		UPDATE %s.%s
		SET linked_transaction_id = @transaction_id,
		    match_type = @match_type,
		    link_confidence = @link_confidence,
		    updated_ts = @updated_ts
		WHERE invoice_id = @invoice_id
		  AND user_id = @user_id
	`, s.c.cfg.Dataset, invoicesTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
		{Name: "match_type", Value: string(matchType)},
		{Name: "link_confidence", Value: confidence},
		{Name: "updated_ts", Value: s.now()},
		{Name: "invoice_id", Value: invoiceID},
		{Name: "user_id", Value: ownerID},
	}

	return runDML(ctx, q, "LinkInvoice")
}

// UnlinkInvoice clears an existing link.
func (s *InvoiceStore) UnlinkInvoice(ctx context.Context, ownerID, invoiceID string) error {
	q := s.c.query(`
		UPDATE %s.%s
		SET linked_transaction_id = NULL,
		    match_type = NULL,
		    link_confidence = NULL,
		    updated_ts = @updated_ts
		WHERE invoice_id = @invoice_id
		  AND user_id = @user_id
	`, s.c.cfg.Dataset, invoicesTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "updated_ts", Value: s.now()},
		{Name: "invoice_id", Value: invoiceID},
		{Name: "user_id", Value: ownerID},
	}

	return runDML(ctx, q, "UnlinkInvoice")
}

// ListPendingExtractions returns invoices awaiting extraction across
// all owners, oldest first. Used by the standalone worker to pick up
// work left over from restarts.
func (s *InvoiceStore) ListPendingExtractions(ctx context.Context, limit int) ([]*invoices.Invoice, error) {
	if limit <= 0 {
		limit = 20
	}

	q := s.c.query(`
		SELECT `+invoiceColumns+`
		FROM %s.%s
		WHERE extraction_status = @pending
		ORDER BY created_ts
		LIMIT @limit
	`, s.c.cfg.Dataset, invoicesTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "pending", Value: string(invoices.ExtractionPending)},
		{Name: "limit", Value: int64(limit)},
	}

	return s.queryInvoices(ctx, q, "ListPendingExtractions")
}

// ListUnlinkedInvoices returns the owner's unlinked invoices in the
// matcher's shape.
func (s *InvoiceStore) ListUnlinkedInvoices(ctx context.Context, ownerID string) ([]matching.Invoice, error) {
	q := s.c.query(`
		SELECT `+invoiceColumns+`
		FROM %s.%s
		WHERE user_id = @user_id
		  AND linked_transaction_id IS NULL
		ORDER BY created_ts
	`, s.c.cfg.Dataset, invoicesTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: ownerID},
	}

	rows, err := s.queryInvoices(ctx, q, "ListUnlinkedInvoices")
	if err != nil {
		return nil, err
	}

	out := make([]matching.Invoice, 0, len(rows))
	for _, inv := range rows {
		out = append(out, matching.Invoice{
			ID:            inv.ID,
			FileName:      inv.FileName,
			Vendor:        inv.Vendor,
			InvoiceDate:   inv.InvoiceDate,
			InvoiceAmount: inv.InvoiceAmount,
		})
	}
	return out, nil
}

func (s *InvoiceStore) queryInvoices(ctx context.Context, q *bigquery.Query, opName string) ([]*invoices.Invoice, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", opName, err)
	}

	var out []*invoices.Invoice
	for {
		var row InvoiceRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", opName, err)
		}
		out = append(out, invoiceFromRow(&row))
	}

	return out, nil
}
