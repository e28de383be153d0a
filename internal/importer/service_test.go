package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-importer/internal/categorize"
	"github.com/dvloznov/bank-importer/internal/statement"
)

type fakeStore struct {
	jobs map[string]*Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*Job{}}
}

func (f *fakeStore) CreateImport(_ context.Context, job *Job) error {
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeStore) GetImport(_ context.Context, ownerID, importID string) (*Job, error) {
	job, ok := f.jobs[importID]
	if !ok || job.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (f *fakeStore) UpdateImport(_ context.Context, job *Job) error {
	if _, ok := f.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeStore) ListImports(_ context.Context, ownerID string, _ int) ([]*Job, error) {
	var out []*Job
	for _, job := range f.jobs {
		if job.OwnerID == ownerID {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeTransactionStore struct {
	created   []*Transaction
	withdrawn []string

	// failRows makes CreateTransaction fail for the given row indexes.
	failRows map[int]bool
}

func (f *fakeTransactionStore) CreateTransaction(_ context.Context, tx *Transaction) (string, error) {
	if f.failRows[tx.RowIndex] {
		return "", fmt.Errorf("insert refused for row %d", tx.RowIndex)
	}
	f.created = append(f.created, tx)
	return tx.ID, nil
}

func (f *fakeTransactionStore) WithdrawByImport(_ context.Context, _, importID string) error {
	f.withdrawn = append(f.withdrawn, importID)
	return nil
}

func (f *fakeTransactionStore) ListByImport(_ context.Context, _, _ string) ([]string, error) {
	var ids []string
	for _, tx := range f.created {
		ids = append(ids, tx.ID)
	}
	return ids, nil
}

type echoCategoryStore struct{}

func (echoCategoryStore) LookupBySlug(_ context.Context, slug string) (string, error) {
	return "id-" + slug, nil
}

func newTestService(txs *fakeTransactionStore) (*Service, *fakeStore) {
	store := newFakeStore()
	categorizer := categorize.New(echoCategoryStore{}, zerolog.Nop())
	svc := NewService(store, txs, categorizer, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC) }
	return svc, store
}

func csvUpload(name, body string) Upload {
	return Upload{FileName: name, Size: int64(len(body)), Content: []byte(body)}
}

func TestStartImportPreview(t *testing.T) {
	svc, store := newTestService(&fakeTransactionStore{})

	body := "Date,Montant,Détail 1\n" +
		"13/06/2025,-25.50,RESTAURANT ABC\n" +
		"14/06/2025,1200.00,VIREMENT SALAIRE\n"
	result, err := svc.StartImport(context.Background(), "user-1", csvUpload("releve.csv", body))
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	if result.Detected != 2 {
		t.Errorf("Detected = %d, want 2", result.Detected)
	}
	if result.Job.Status != StatusPending {
		t.Errorf("Status = %q, want pending", result.Job.Status)
	}
	if result.Job.TotalRows != 2 {
		t.Errorf("TotalRows = %d, want 2", result.Job.TotalRows)
	}

	// Expense rows get categorized; income rows do not.
	if got := result.Candidates[0].CategoryID; got != "id-alimentation" {
		t.Errorf("expense CategoryID = %q, want id-alimentation", got)
	}
	if got := result.Candidates[1].CategoryID; got != "" {
		t.Errorf("income CategoryID = %q, want empty", got)
	}

	stored, err := store.GetImport(context.Background(), "user-1", result.Job.ID)
	if err != nil {
		t.Fatalf("GetImport: %v", err)
	}
	if len(stored.Preview) != 2 {
		t.Errorf("persisted preview has %d rows, want 2", len(stored.Preview))
	}
}

func TestStartImportCountsSkippedRows(t *testing.T) {
	svc, _ := newTestService(&fakeTransactionStore{})

	// One column-count mismatch, one row missing its amount.
	body := "Date,Montant,Détail 1\n" +
		"13/06/2025,-25.50\n" +
		"14/06/2025,,NO AMOUNT\n" +
		"15/06/2025,10.00,OK\n"
	result, err := svc.StartImport(context.Background(), "user-1", csvUpload("releve.csv", body))
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	if result.Detected != 1 {
		t.Errorf("Detected = %d, want 1", result.Detected)
	}
	if result.Job.SkippedRows != 2 {
		t.Errorf("SkippedRows = %d, want 2", result.Job.SkippedRows)
	}
	if result.Job.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", result.Job.TotalRows)
	}
}

func TestStartImportPersistsCappedPreview(t *testing.T) {
	svc, store := newTestService(&fakeTransactionStore{})

	var b strings.Builder
	b.WriteString("Date,Montant,Détail 1\n")
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "13/06/2025,-%d.00,ROW %d\n", i+1, i)
	}

	result, err := svc.StartImport(context.Background(), "user-1", csvUpload("releve.csv", b.String()))
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	// The caller still sees every candidate.
	if result.Detected != 15 {
		t.Errorf("Detected = %d, want 15", result.Detected)
	}

	stored, err := store.GetImport(context.Background(), "user-1", result.Job.ID)
	if err != nil {
		t.Fatalf("GetImport: %v", err)
	}
	if len(stored.Preview) != 10 {
		t.Errorf("persisted preview has %d rows, want 10", len(stored.Preview))
	}
}

func TestStartImportRejectsUpload(t *testing.T) {
	svc, _ := newTestService(&fakeTransactionStore{})

	_, err := svc.StartImport(context.Background(), "user-1", csvUpload("scan.pdf", "data"))
	if !errors.Is(err, statement.ErrUnsupportedFormat) {
		t.Errorf("bad extension error = %v, want ErrUnsupportedFormat", err)
	}

	_, err = svc.StartImport(context.Background(), "user-1", Upload{
		FileName: "big.csv",
		Size:     statement.MaxFileSize + 1,
	})
	if !errors.Is(err, statement.ErrFileTooLarge) {
		t.Errorf("oversize error = %v, want ErrFileTooLarge", err)
	}
}

func TestConfirmImportPartialFailure(t *testing.T) {
	txs := &fakeTransactionStore{failRows: map[int]bool{2: true}}
	svc, store := newTestService(txs)

	var b strings.Builder
	b.WriteString("Date,Montant,Détail 1\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "13/06/2025,-%d.00,ROW %d\n", i+1, i)
	}
	preview, err := svc.StartImport(context.Background(), "user-1", csvUpload("releve.csv", b.String()))
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	result, err := svc.ConfirmImport(context.Background(), "user-1", preview.Job.ID, preview.Candidates)
	if err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}

	if result.Imported != 4 || result.Failed != 1 {
		t.Errorf("Imported/Failed = %d/%d, want 4/1", result.Imported, result.Failed)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed despite one failure", result.Status)
	}
	if len(result.Errors) != 1 || result.Errors[0].RowIndex != 2 {
		t.Errorf("Errors = %+v, want one entry for row 2", result.Errors)
	}

	stored, _ := store.GetImport(context.Background(), "user-1", preview.Job.ID)
	if stored.SuccessfulRows != 4 || stored.FailedRows != 1 {
		t.Errorf("stored counters = %d/%d, want 4/1", stored.SuccessfulRows, stored.FailedRows)
	}
	if stored.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestConfirmImportAllRowsFail(t *testing.T) {
	txs := &fakeTransactionStore{failRows: map[int]bool{0: true, 1: true}}
	svc, _ := newTestService(txs)

	body := "Date,Montant,Détail 1\n13/06/2025,-1.00,A\n13/06/2025,-2.00,B\n"
	preview, err := svc.StartImport(context.Background(), "user-1", csvUpload("releve.csv", body))
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	result, err := svc.ConfirmImport(context.Background(), "user-1", preview.Job.ID, preview.Candidates)
	if err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("Status = %q, want failed when every row fails", result.Status)
	}
}

func TestConfirmImportTwiceRejected(t *testing.T) {
	svc, _ := newTestService(&fakeTransactionStore{})

	body := "Date,Montant,Détail 1\n13/06/2025,-1.00,A\n"
	preview, err := svc.StartImport(context.Background(), "user-1", csvUpload("releve.csv", body))
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	if _, err := svc.ConfirmImport(context.Background(), "user-1", preview.Job.ID, preview.Candidates); err != nil {
		t.Fatalf("first ConfirmImport: %v", err)
	}

	_, err = svc.ConfirmImport(context.Background(), "user-1", preview.Job.ID, preview.Candidates)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("second ConfirmImport error = %v, want ErrInvalidState", err)
	}
}

func TestCancelImportWithdrawsTransactions(t *testing.T) {
	txs := &fakeTransactionStore{}
	svc, store := newTestService(txs)

	body := "Date,Montant,Détail 1\n13/06/2025,-1.00,A\n"
	preview, err := svc.StartImport(context.Background(), "user-1", csvUpload("releve.csv", body))
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	if _, err := svc.ConfirmImport(context.Background(), "user-1", preview.Job.ID, preview.Candidates); err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}

	if err := svc.CancelImport(context.Background(), "user-1", preview.Job.ID); err != nil {
		t.Fatalf("CancelImport: %v", err)
	}

	if len(txs.withdrawn) != 1 || txs.withdrawn[0] != preview.Job.ID {
		t.Errorf("withdrawn = %v, want the cancelled import", txs.withdrawn)
	}
	stored, _ := store.GetImport(context.Background(), "user-1", preview.Job.ID)
	if stored.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", stored.Status)
	}
}

func TestCancelImportMidCommitRejected(t *testing.T) {
	svc, store := newTestService(&fakeTransactionStore{})

	job := &Job{ID: "imp-1", OwnerID: "user-1", Status: StatusProcessing}
	if err := store.CreateImport(context.Background(), job); err != nil {
		t.Fatalf("CreateImport: %v", err)
	}

	err := svc.CancelImport(context.Background(), "user-1", "imp-1")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("CancelImport error = %v, want ErrInvalidState", err)
	}
}

func TestImportScopedToOwner(t *testing.T) {
	svc, _ := newTestService(&fakeTransactionStore{})

	body := "Date,Montant,Détail 1\n13/06/2025,-1.00,A\n"
	preview, err := svc.StartImport(context.Background(), "user-1", csvUpload("releve.csv", body))
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	if _, err := svc.GetPreview(context.Background(), "user-2", preview.Job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPreview as other owner error = %v, want ErrNotFound", err)
	}
	if _, err := svc.ConfirmImport(context.Background(), "user-2", preview.Job.ID, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("ConfirmImport as other owner error = %v, want ErrNotFound", err)
	}
}

func TestConfirmImportEmptyRowSet(t *testing.T) {
	svc, _ := newTestService(&fakeTransactionStore{})

	body := "Date,Montant,Détail 1\n13/06/2025,-1.00,A\n"
	preview, err := svc.StartImport(context.Background(), "user-1", csvUpload("releve.csv", body))
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}

	// Confirming zero rows is a no-op commit, not a failure.
	result, err := svc.ConfirmImport(context.Background(), "user-1", preview.Job.ID, nil)
	if err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}
	if result.Imported != 0 || result.Failed != 0 {
		t.Errorf("Imported/Failed = %d/%d, want 0/0", result.Imported, result.Failed)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", result.Status)
	}
}
