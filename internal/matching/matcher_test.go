package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	d := date(s)
	return &d
}

func amountPtr(v float64) *float64 {
	return &v
}

func TestScoreDateBands(t *testing.T) {
	tx := Transaction{Date: date("2025-06-16"), Amount: 0, Description: ""}

	tests := []struct {
		name        string
		invoiceDate string
		want        float64
	}{
		{"same day", "2025-06-16", 0.3},
		{"seven days", "2025-06-09", 0.3},
		{"eight days", "2025-06-08", 0.2},
		{"thirty days", "2025-05-17", 0.2},
		{"ninety days", "2025-03-18", 0.1},
		{"ninety one days", "2025-03-17", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := Invoice{InvoiceDate: datePtr(tt.invoiceDate)}
			got, _ := Score(tx, inv)
			if got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreAmountBands(t *testing.T) {
	tx := Transaction{Date: date("2025-01-01"), Amount: 100}

	tests := []struct {
		name   string
		amount float64
		want   float64
	}{
		{"exact", 100, 0.4},
		{"five percent", 95, 0.4},
		{"ten percent", 90, 0.3},
		{"twenty percent", 80, 0.2},
		{"too far", 70, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := Invoice{InvoiceAmount: amountPtr(tt.amount)}
			got, _ := Score(tx, inv)
			if got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreLexicalOverlap(t *testing.T) {
	tests := []struct {
		name        string
		description string
		fileName    string
		vendor      string
		want        float64
	}{
		{"token inside file name", "achat restaurant", "facture_restaurant.pdf", "", 0.1},
		{"case folded", "EDF Prelevement", "edf prelevement mai.pdf", "", 0.2},
		{"vendor contributes", "paiement orange mobile", "doc.pdf", "orange", 0.1},
		{"capped at three tokens", "a b c d e", "a b c d e", "", 0.3},
		{"no overlap", "loyer juin", "amazon.pdf", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := Transaction{Date: date("2020-01-01"), Amount: 0, Description: tt.description}
			inv := Invoice{FileName: tt.fileName, Vendor: tt.vendor}
			got, _ := Score(tx, inv)
			if got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreCombined(t *testing.T) {
	tx := Transaction{
		Date:        date("2025-06-16"),
		Amount:      100.00,
		Description: "Achat restaurant",
	}
	inv := Invoice{
		FileName:      "facture_restaurant.pdf",
		InvoiceDate:   datePtr("2025-06-16"),
		InvoiceAmount: amountPtr(100.00),
	}

	score, reasons := Score(tx, inv)
	if score < 0.7 {
		t.Errorf("Score() = %v, want >= 0.7", score)
	}
	if len(reasons) != 3 {
		t.Fatalf("expected 3 reasons, got %d: %v", len(reasons), reasons)
	}
}

func TestScoreReasonsOmitZeroSignals(t *testing.T) {
	tx := Transaction{Date: date("2025-06-16"), Amount: 100, Description: "loyer juin"}
	inv := Invoice{
		FileName:      "amazon.pdf",
		InvoiceDate:   datePtr("2024-01-01"),
		InvoiceAmount: amountPtr(100),
	}

	_, reasons := Score(tx, inv)
	if len(reasons) != 1 {
		t.Fatalf("expected only the amount reason, got %v", reasons)
	}
}

func TestScoreMissingExtractedFields(t *testing.T) {
	tx := Transaction{Date: date("2025-06-16"), Amount: 100, Description: "achat"}
	inv := Invoice{FileName: "doc.pdf"}

	score, reasons := Score(tx, inv)
	if score != 0 {
		t.Errorf("Score() = %v, want 0", score)
	}
	if len(reasons) != 0 {
		t.Errorf("expected no reasons, got %v", reasons)
	}
}

func TestRankThresholdAndOrder(t *testing.T) {
	tx := Transaction{Date: date("2025-06-16"), Amount: 100, Description: "achat"}

	invoices := []Invoice{
		{ID: "weak", InvoiceDate: datePtr("2025-05-01")},                                    // 0.2, discarded
		{ID: "medium", InvoiceDate: datePtr("2025-06-16")},                                  // 0.3, kept
		{ID: "strong", InvoiceDate: datePtr("2025-06-16"), InvoiceAmount: amountPtr(100)},   // 0.7
		{ID: "medium-2", InvoiceDate: datePtr("2025-06-15")},                                // 0.3, ties with medium
	}

	got := Rank(tx, invoices)
	if len(got) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(got))
	}
	if got[0].InvoiceID != "strong" {
		t.Errorf("top suggestion = %q, want strong", got[0].InvoiceID)
	}
	// Stable sort: equal scores keep input order.
	if got[1].InvoiceID != "medium" || got[2].InvoiceID != "medium-2" {
		t.Errorf("tie order = %q, %q; want medium, medium-2", got[1].InvoiceID, got[2].InvoiceID)
	}
}

func TestRankTruncatesToTopFive(t *testing.T) {
	tx := Transaction{Date: date("2025-06-16"), Amount: 100, Description: "achat"}

	var invoices []Invoice
	for i := 0; i < 8; i++ {
		invoices = append(invoices, Invoice{
			ID:            string(rune('a' + i)),
			InvoiceDate:   datePtr("2025-06-16"),
			InvoiceAmount: amountPtr(100),
		})
	}

	got := Rank(tx, invoices)
	if len(got) != 5 {
		t.Fatalf("expected 5 suggestions, got %d", len(got))
	}
	// Stable sort preserves input order among equals.
	for i, s := range got {
		if want := string(rune('a' + i)); s.InvoiceID != want {
			t.Errorf("suggestion[%d] = %q, want %q", i, s.InvoiceID, want)
		}
	}
}

type stubTransactionSource struct {
	tx  *Transaction
	err error
}

func (s *stubTransactionSource) GetTransaction(_ context.Context, _, _ string) (*Transaction, error) {
	return s.tx, s.err
}

type stubInvoiceSource struct {
	invoices []Invoice
	err      error
}

func (s *stubInvoiceSource) ListUnlinkedInvoices(_ context.Context, _ string) ([]Invoice, error) {
	return s.invoices, s.err
}

func TestSuggestInvoices(t *testing.T) {
	tx := &Transaction{
		ID:          "tx-1",
		Date:        date("2025-06-16"),
		Amount:      100,
		Description: "Achat restaurant",
	}
	invoices := []Invoice{
		{ID: "inv-1", FileName: "facture_restaurant.pdf", InvoiceDate: datePtr("2025-06-16"), InvoiceAmount: amountPtr(100)},
		{ID: "inv-2", FileName: "other.pdf", InvoiceDate: datePtr("2020-01-01")},
	}

	m := NewMatcher(&stubTransactionSource{tx: tx}, &stubInvoiceSource{invoices: invoices}, zerolog.Nop())
	got, err := m.SuggestInvoices(context.Background(), "user-1", "tx-1")
	if err != nil {
		t.Fatalf("SuggestInvoices() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(got))
	}
	if got[0].InvoiceID != "inv-1" {
		t.Errorf("suggestion = %q, want inv-1", got[0].InvoiceID)
	}
	if len(got[0].Reasons) == 0 {
		t.Error("expected non-empty reasons")
	}
}

func TestSuggestInvoicesTransactionLookupError(t *testing.T) {
	wantErr := errors.New("not found")
	m := NewMatcher(&stubTransactionSource{err: wantErr}, &stubInvoiceSource{}, zerolog.Nop())

	_, err := m.SuggestInvoices(context.Background(), "user-1", "missing")
	if !errors.Is(err, wantErr) {
		t.Errorf("SuggestInvoices() error = %v, want %v", err, wantErr)
	}
}
