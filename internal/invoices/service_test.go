package invoices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-importer/internal/extraction"
	"github.com/dvloznov/bank-importer/internal/jobs"
)

type fakeStore struct {
	invoices map[string]*Invoice
	linkErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{invoices: make(map[string]*Invoice)}
}

func (f *fakeStore) CreateInvoice(_ context.Context, inv *Invoice) error {
	cp := *inv
	f.invoices[inv.ID] = &cp
	return nil
}

func (f *fakeStore) GetInvoice(_ context.Context, ownerID, invoiceID string) (*Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeStore) ListInvoices(_ context.Context, ownerID string, _ int) ([]*Invoice, error) {
	var out []*Invoice
	for _, inv := range f.invoices {
		if inv.OwnerID == ownerID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateExtraction(_ context.Context, ownerID, invoiceID string, status ExtractionStatus, result *Extracted) error {
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.OwnerID != ownerID {
		return ErrNotFound
	}
	inv.ExtractionStatus = status
	if result != nil {
		inv.InvoiceNumber = result.InvoiceNumber
		inv.InvoiceDate = result.InvoiceDate
		inv.InvoiceAmount = result.Amount
		inv.Vendor = result.Vendor
		inv.Confidence = result.Confidence
	}
	return nil
}

func (f *fakeStore) LinkInvoice(_ context.Context, ownerID, invoiceID, transactionID string, matchType MatchType, confidence float64) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.OwnerID != ownerID {
		return ErrNotFound
	}
	inv.LinkedTransactionID = transactionID
	inv.MatchType = matchType
	inv.LinkConfidence = confidence
	return nil
}

func (f *fakeStore) UnlinkInvoice(_ context.Context, ownerID, invoiceID string) error {
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.OwnerID != ownerID {
		return ErrNotFound
	}
	inv.LinkedTransactionID = ""
	inv.MatchType = ""
	inv.LinkConfidence = 0
	return nil
}

type fakeDocs struct {
	refs    map[string]*DocumentReference
	content []byte
	mime    string
	err     error
}

func (f *fakeDocs) Resolve(_ context.Context, documentID string) (*DocumentReference, error) {
	ref, ok := f.refs[documentID]
	if !ok {
		return nil, errors.New("document not found")
	}
	return ref, nil
}

func (f *fakeDocs) Fetch(_ context.Context, _ string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.content, f.mime, nil
}

type fakeExtractor struct {
	result *extraction.Result
	err    error
}

func (f *fakeExtractor) Extract(_ context.Context, _, _ string, _ []byte) (*extraction.Result, error) {
	return f.result, f.err
}

type fakePublisher struct {
	published []*jobs.ExtractInvoiceJob
	err       error
}

func (f *fakePublisher) PublishExtractInvoice(_ context.Context, job *jobs.ExtractInvoiceJob) error {
	if f.err != nil {
		return f.err
	}
	if job.JobID == "" {
		job.JobID = "job-1"
	}
	f.published = append(f.published, job)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newTestService(store *fakeStore, docs *fakeDocs, ext *fakeExtractor, pub *fakePublisher) *Service {
	s := NewService(store, docs, ext, pub, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC) }
	return s
}

func seedInvoice(store *fakeStore, id, ownerID string) {
	store.invoices[id] = &Invoice{
		ID:               id,
		OwnerID:          ownerID,
		DocumentID:       "doc-" + id,
		FileName:         "facture_edf.pdf",
		ExtractionStatus: ExtractionPending,
	}
}

func TestRegisterQueuesExtraction(t *testing.T) {
	store := newFakeStore()
	docs := &fakeDocs{refs: map[string]*DocumentReference{
		"doc-1": {ID: "doc-1", Name: "facture_edf.pdf", Size: 1024},
	}}
	pub := &fakePublisher{}
	svc := newTestService(store, docs, &fakeExtractor{}, pub)

	inv, err := svc.Register(context.Background(), "user-1", "doc-1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if inv.FileName != "facture_edf.pdf" {
		t.Errorf("FileName = %q, want facture_edf.pdf", inv.FileName)
	}
	if inv.ExtractionStatus != ExtractionPending {
		t.Errorf("ExtractionStatus = %q, want pending", inv.ExtractionStatus)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published job, got %d", len(pub.published))
	}
	if pub.published[0].InvoiceID != inv.ID {
		t.Errorf("job invoice id = %q, want %q", pub.published[0].InvoiceID, inv.ID)
	}
}

func TestProcessExtractionSuccess(t *testing.T) {
	store := newFakeStore()
	seedInvoice(store, "inv-1", "user-1")

	amount := 120.50
	invoiceDate := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	ext := &fakeExtractor{result: &extraction.Result{
		InvoiceNumber: "F-2025-001",
		InvoiceDate:   &invoiceDate,
		Amount:        &amount,
		Vendor:        "EDF",
		Confidence:    0.95,
	}}
	docs := &fakeDocs{content: []byte("pdf"), mime: "application/pdf"}
	svc := newTestService(store, docs, ext, &fakePublisher{})

	job := &jobs.ExtractInvoiceJob{JobID: "job-1", InvoiceID: "inv-1", OwnerID: "user-1", DocumentID: "doc-inv-1"}
	if err := svc.ProcessExtraction(context.Background(), job); err != nil {
		t.Fatalf("ProcessExtraction() error = %v", err)
	}

	inv := store.invoices["inv-1"]
	if inv.ExtractionStatus != ExtractionCompleted {
		t.Errorf("ExtractionStatus = %q, want completed", inv.ExtractionStatus)
	}
	if inv.Vendor != "EDF" {
		t.Errorf("Vendor = %q, want EDF", inv.Vendor)
	}
	if inv.InvoiceAmount == nil || *inv.InvoiceAmount != 120.50 {
		t.Errorf("InvoiceAmount = %v, want 120.50", inv.InvoiceAmount)
	}
}

func TestProcessExtractionFailureMarksInvoice(t *testing.T) {
	store := newFakeStore()
	seedInvoice(store, "inv-1", "user-1")

	ext := &fakeExtractor{err: errors.New("model unavailable")}
	docs := &fakeDocs{content: []byte("pdf"), mime: "application/pdf"}
	svc := newTestService(store, docs, ext, &fakePublisher{})

	job := &jobs.ExtractInvoiceJob{JobID: "job-1", InvoiceID: "inv-1", OwnerID: "user-1", DocumentID: "doc-inv-1"}
	if err := svc.ProcessExtraction(context.Background(), job); err == nil {
		t.Fatal("ProcessExtraction() expected error")
	}

	if got := store.invoices["inv-1"].ExtractionStatus; got != ExtractionFailed {
		t.Errorf("ExtractionStatus = %q, want failed", got)
	}
}

func TestLinkConfidenceByMatchType(t *testing.T) {
	tests := []struct {
		name      string
		matchType MatchType
		want      float64
	}{
		{"manual", MatchManual, 1.0},
		{"suggested", MatchSuggested, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			seedInvoice(store, "inv-1", "user-1")
			svc := newTestService(store, &fakeDocs{}, &fakeExtractor{}, &fakePublisher{})

			if err := svc.Link(context.Background(), "user-1", "inv-1", "tx-1", tt.matchType); err != nil {
				t.Fatalf("Link() error = %v", err)
			}

			inv := store.invoices["inv-1"]
			if inv.LinkedTransactionID != "tx-1" {
				t.Errorf("LinkedTransactionID = %q, want tx-1", inv.LinkedTransactionID)
			}
			if inv.LinkConfidence != tt.want {
				t.Errorf("LinkConfidence = %v, want %v", inv.LinkConfidence, tt.want)
			}
		})
	}
}

func TestLinkAlreadyLinked(t *testing.T) {
	store := newFakeStore()
	seedInvoice(store, "inv-1", "user-1")
	store.invoices["inv-1"].LinkedTransactionID = "tx-0"
	svc := newTestService(store, &fakeDocs{}, &fakeExtractor{}, &fakePublisher{})

	err := svc.Link(context.Background(), "user-1", "inv-1", "tx-1", MatchManual)
	if !errors.Is(err, ErrAlreadyLinked) {
		t.Errorf("Link() error = %v, want ErrAlreadyLinked", err)
	}
}

func TestUnlink(t *testing.T) {
	store := newFakeStore()
	seedInvoice(store, "inv-1", "user-1")
	store.invoices["inv-1"].LinkedTransactionID = "tx-1"
	store.invoices["inv-1"].MatchType = MatchManual
	svc := newTestService(store, &fakeDocs{}, &fakeExtractor{}, &fakePublisher{})

	if err := svc.Unlink(context.Background(), "user-1", "inv-1"); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if got := store.invoices["inv-1"].LinkedTransactionID; got != "" {
		t.Errorf("LinkedTransactionID = %q, want empty", got)
	}
}

func TestGetScopedToOwner(t *testing.T) {
	store := newFakeStore()
	seedInvoice(store, "inv-1", "user-1")
	svc := newTestService(store, &fakeDocs{}, &fakeExtractor{}, &fakePublisher{})

	if _, err := svc.Get(context.Background(), "user-2", "inv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
