package statement

import (
	"io"
	"testing"
	"time"
)

func TestCSVReaderZipsHeader(t *testing.T) {
	content := []byte("Date,Montant,Détail 1\n13/06/2025,-25.50,RESTAURANT ABC\n14/06/2025,1200.00,VIREMENT SALAIRE\n")

	r, err := newCSVReader(content)
	if err != nil {
		t.Fatalf("newCSVReader: %v", err)
	}

	row, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if row["Date"] != "13/06/2025" || row["Montant"] != "-25.50" || row["Détail 1"] != "RESTAURANT ABC" {
		t.Errorf("unexpected first row: %v", row)
	}

	row, err = r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if row["Montant"] != "1200.00" {
		t.Errorf("unexpected second row: %v", row)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next after last row = %v, want io.EOF", err)
	}
}

func TestCSVReaderSkipsMismatchedRecords(t *testing.T) {
	content := []byte("Date,Montant,Détail 1\n13/06/2025,-25.50\n14/06/2025,10.00,OK\n")

	r, err := newCSVReader(content)
	if err != nil {
		t.Fatalf("newCSVReader: %v", err)
	}

	row, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if row["Détail 1"] != "OK" {
		t.Errorf("expected mismatched record to be skipped, got %v", row)
	}
	if r.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", r.Skipped())
	}
}

func TestCSVReaderEmptyFile(t *testing.T) {
	if _, err := newCSVReader(nil); err == nil {
		t.Error("expected error for empty file")
	}
}

func TestCSVReaderReset(t *testing.T) {
	content := []byte("Date,Montant,Détail 1\n13/06/2025,-25.50,A\n")

	r, err := newCSVReader(content)
	if err != nil {
		t.Fatalf("newCSVReader: %v", err)
	}

	if _, err := r.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next = %v, want io.EOF", err)
	}

	r.Reset()

	row, err := r.Next()
	if err != nil {
		t.Fatalf("Next after Reset: %v", err)
	}
	if row["Détail 1"] != "A" {
		t.Errorf("unexpected row after Reset: %v", row)
	}
}

// The French export shape: a day/month/year date, a comma-free negative
// amount and a split description resolve into an expense candidate.
func TestCSVRowToCandidate(t *testing.T) {
	content := []byte("Date,Montant,Détail 1\n13/06/2025,-25.50,RESTAURANT ABC\n")

	r, err := newCSVReader(content)
	if err != nil {
		t.Fatalf("newCSVReader: %v", err)
	}

	row, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	now := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)
	c, ok := BuildCandidate(row, 1, now)
	if !ok {
		t.Fatal("BuildCandidate returned ok=false")
	}

	if got, want := c.Date, time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Date = %v, want %v", got, want)
	}
	if c.Amount != 25.50 {
		t.Errorf("Amount = %v, want 25.50", c.Amount)
	}
	if c.Type != TypeExpense {
		t.Errorf("Type = %q, want %q", c.Type, TypeExpense)
	}
	if c.OriginalAmount != -25.50 {
		t.Errorf("OriginalAmount = %v, want -25.50", c.OriginalAmount)
	}
	if c.Description != "RESTAURANT ABC" {
		t.Errorf("Description = %q", c.Description)
	}
	if c.DateDefaulted {
		t.Error("DateDefaulted = true for a parseable date")
	}
}
