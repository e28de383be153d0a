package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-importer/internal/extraction"
	"github.com/dvloznov/bank-importer/internal/jobs"
)

// Service coordinates invoice records, asynchronous extraction and
// transaction linking.
type Service struct {
	store     Store
	docs      DocumentProvider
	extractor extraction.Extractor
	publisher jobs.Publisher
	log       zerolog.Logger

	now func() time.Time
}

func NewService(store Store, docs DocumentProvider, extractor extraction.Extractor, publisher jobs.Publisher, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		docs:      docs,
		extractor: extractor,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// Register creates an invoice record for an already-stored document and
// queues its extraction.
func (s *Service) Register(ctx context.Context, ownerID, documentID string) (*Invoice, error) {
	ref, err := s.docs.Resolve(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("Register: resolving document: %w", err)
	}

	now := s.now()
	inv := &Invoice{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		DocumentID:       documentID,
		FileName:         ref.Name,
		ExtractionStatus: ExtractionPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("Register: creating invoice record: %w", err)
	}

	if _, err := s.RequestExtraction(ctx, ownerID, inv.ID); err != nil {
		// The record exists; extraction can be retried later.
		s.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("Failed to queue extraction for new invoice")
	}

	return inv, nil
}

// Get returns one invoice scoped to its owner.
func (s *Service) Get(ctx context.Context, ownerID, invoiceID string) (*Invoice, error) {
	return s.store.GetInvoice(ctx, ownerID, invoiceID)
}

// List returns the owner's invoices, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]*Invoice, error) {
	return s.store.ListInvoices(ctx, ownerID, limit)
}

// RequestExtraction resets the invoice to pending and publishes an
// extraction job. Returns the job id.
func (s *Service) RequestExtraction(ctx context.Context, ownerID, invoiceID string) (string, error) {
	inv, err := s.store.GetInvoice(ctx, ownerID, invoiceID)
	if err != nil {
		return "", err
	}

	if err := s.store.UpdateExtraction(ctx, ownerID, invoiceID, ExtractionPending, nil); err != nil {
		return "", fmt.Errorf("RequestExtraction: marking pending: %w", err)
	}

	job := &jobs.ExtractInvoiceJob{
		InvoiceID:  inv.ID,
		OwnerID:    ownerID,
		DocumentID: inv.DocumentID,
	}
	if err := s.publisher.PublishExtractInvoice(ctx, job); err != nil {
		return "", fmt.Errorf("RequestExtraction: publishing job: %w", err)
	}

	s.log.Info().
		Str("invoice_id", invoiceID).
		Str("job_id", job.JobID).
		Msg("Extraction queued")
	return job.JobID, nil
}

// HandleJob is the queue handler for extraction jobs. A returned error
// marks the job for retry; terminal outcomes are persisted on the
// invoice either way.
func (s *Service) HandleJob(ctx context.Context, job jobs.Job) error {
	extractJob, ok := job.(*jobs.ExtractInvoiceJob)
	if !ok {
		return fmt.Errorf("HandleJob: unexpected job type %q", job.GetType())
	}
	return s.ProcessExtraction(ctx, extractJob)
}

// ProcessExtraction runs one extraction job: fetch the document, run
// the extractor, persist the outcome.
func (s *Service) ProcessExtraction(ctx context.Context, job *jobs.ExtractInvoiceJob) error {
	inv, err := s.store.GetInvoice(ctx, job.OwnerID, job.InvoiceID)
	if err != nil {
		return fmt.Errorf("ProcessExtraction: loading invoice: %w", err)
	}

	if err := s.store.UpdateExtraction(ctx, job.OwnerID, job.InvoiceID, ExtractionProcessing, nil); err != nil {
		return fmt.Errorf("ProcessExtraction: marking processing: %w", err)
	}

	content, contentType, err := s.docs.Fetch(ctx, job.DocumentID)
	if err != nil {
		s.failExtraction(ctx, job, err)
		return fmt.Errorf("ProcessExtraction: fetching document: %w", err)
	}

	result, err := s.extractor.Extract(ctx, inv.FileName, contentType, content)
	if err != nil {
		s.failExtraction(ctx, job, err)
		return fmt.Errorf("ProcessExtraction: extracting fields: %w", err)
	}

	extracted := &Extracted{
		InvoiceNumber: result.InvoiceNumber,
		InvoiceDate:   result.InvoiceDate,
		Amount:        result.Amount,
		Vendor:        result.Vendor,
		Confidence:    result.Confidence,
	}
	if err := s.store.UpdateExtraction(ctx, job.OwnerID, job.InvoiceID, ExtractionCompleted, extracted); err != nil {
		return fmt.Errorf("ProcessExtraction: persisting result: %w", err)
	}

	s.log.Info().
		Str("invoice_id", job.InvoiceID).
		Str("vendor", result.Vendor).
		Float64("confidence", result.Confidence).
		Msg("Invoice extraction persisted")
	return nil
}

func (s *Service) failExtraction(ctx context.Context, job *jobs.ExtractInvoiceJob, cause error) {
	if err := s.store.UpdateExtraction(ctx, job.OwnerID, job.InvoiceID, ExtractionFailed, nil); err != nil {
		s.log.Error().Err(err).Str("invoice_id", job.InvoiceID).Msg("Failed to record extraction failure")
	}
	s.log.Warn().Err(cause).Str("invoice_id", job.InvoiceID).Msg("Invoice extraction failed")
}

// Link attaches an invoice to a transaction. Manual links carry full
// confidence; links accepted from suggestions carry 0.8.
func (s *Service) Link(ctx context.Context, ownerID, invoiceID, transactionID string, matchType MatchType) error {
	inv, err := s.store.GetInvoice(ctx, ownerID, invoiceID)
	if err != nil {
		return err
	}
	if inv.LinkedTransactionID != "" {
		return fmt.Errorf("%w: transaction %s", ErrAlreadyLinked, inv.LinkedTransactionID)
	}

	confidence := ManualLinkConfidence
	if matchType == MatchSuggested {
		confidence = SuggestedLinkConfidence
	}

	if err := s.store.LinkInvoice(ctx, ownerID, invoiceID, transactionID, matchType, confidence); err != nil {
		return fmt.Errorf("Link: %w", err)
	}

	s.log.Info().
		Str("invoice_id", invoiceID).
		Str("transaction_id", transactionID).
		Str("match_type", string(matchType)).
		Msg("Invoice linked")
	return nil
}

// Unlink detaches an invoice from its transaction.
func (s *Service) Unlink(ctx context.Context, ownerID, invoiceID string) error {
	if _, err := s.store.GetInvoice(ctx, ownerID, invoiceID); err != nil {
		return err
	}
	if err := s.store.UnlinkInvoice(ctx, ownerID, invoiceID); err != nil {
		return fmt.Errorf("Unlink: %w", err)
	}

	s.log.Info().Str("invoice_id", invoiceID).Msg("Invoice unlinked")
	return nil
}
