// Package invoices owns invoice records: upload metadata, the field
// extraction lifecycle, and linking invoices to transactions.
package invoices

import (
	"context"
	"errors"
	"time"
)

// ExtractionStatus is the invoice's field-extraction lifecycle state.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// MatchType records how an invoice-transaction link came about.
type MatchType string

const (
	// MatchManual is a link the user created explicitly.
	MatchManual MatchType = "manual"

	// MatchSuggested is a link accepted from a computed suggestion.
	MatchSuggested MatchType = "suggested"
)

// Confidence assigned to a link by its match type.
const (
	ManualLinkConfidence    = 1.0
	SuggestedLinkConfidence = 0.8
)

var (
	// ErrNotFound is returned when an invoice does not exist or belongs
	// to a different owner.
	ErrNotFound = errors.New("invoice not found")

	// ErrAlreadyLinked rejects linking an invoice that is already linked
	// to a transaction.
	ErrAlreadyLinked = errors.New("invoice is already linked to a transaction")
)

// Invoice is one uploaded supporting document and its extracted fields.
// Pointer fields stay nil until extraction fills them in.
type Invoice struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`

	ExtractionStatus ExtractionStatus `json:"extraction_status"`

	InvoiceNumber string     `json:"invoice_number,omitempty"`
	InvoiceDate   *time.Time `json:"invoice_date,omitempty"`
	InvoiceAmount *float64   `json:"invoice_amount,omitempty"`
	Vendor        string     `json:"vendor,omitempty"`
	Confidence    float64    `json:"confidence,omitempty"`

	LinkedTransactionID string    `json:"linked_transaction_id,omitempty"`
	MatchType           MatchType `json:"match_type,omitempty"`
	LinkConfidence      float64   `json:"link_confidence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Extracted is the persisted outcome of one extraction run.
type Extracted struct {
	InvoiceNumber string
	InvoiceDate   *time.Time
	Amount        *float64
	Vendor        string
	Confidence    float64
}

// Store persists invoice records. Implementations are external.
type Store interface {
	// CreateInvoice inserts a new invoice record.
	CreateInvoice(ctx context.Context, inv *Invoice) error

	// GetInvoice fetches an invoice by id, scoped to its owner. Returns
	// ErrNotFound when missing or owned by someone else.
	GetInvoice(ctx context.Context, ownerID, invoiceID string) (*Invoice, error)

	// ListInvoices returns the owner's invoices, newest first.
	ListInvoices(ctx context.Context, ownerID string, limit int) ([]*Invoice, error)

	// UpdateExtraction persists the extraction status and, on success,
	// the extracted fields.
	UpdateExtraction(ctx context.Context, ownerID, invoiceID string, status ExtractionStatus, result *Extracted) error

	// LinkInvoice records a link to a transaction with its match type
	// and confidence.
	LinkInvoice(ctx context.Context, ownerID, invoiceID, transactionID string, matchType MatchType, confidence float64) error

	// UnlinkInvoice clears an existing link.
	UnlinkInvoice(ctx context.Context, ownerID, invoiceID string) error
}

// DocumentReference describes a stored document as the document
// provider sees it.
type DocumentReference struct {
	ID         string
	Name       string
	URL        string
	Size       int64
	ModifiedAt time.Time
}

// DocumentProvider resolves and fetches stored documents.
type DocumentProvider interface {
	// Resolve looks up a document by id.
	Resolve(ctx context.Context, documentID string) (*DocumentReference, error)

	// Fetch downloads the document content. The second return is the
	// content type.
	Fetch(ctx context.Context, documentID string) ([]byte, string, error)
}
