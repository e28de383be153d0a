// Package matching scores candidate pairings between transactions and
// unlinked supporting documents to power suggested reconciliation.
package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// Transaction is the matcher's view of a committed transaction.
type Transaction struct {
	ID          string
	Date        time.Time
	Amount      float64
	Description string
}

// Invoice is one unlinked document candidate. The extracted fields are
// optional: a signal whose input is absent simply contributes zero.
type Invoice struct {
	ID            string
	FileName      string
	Vendor        string
	InvoiceDate   *time.Time
	InvoiceAmount *float64
}

// Suggestion is a scored, ranked pairing. Reasons follow the signal
// order (date, amount, lexical) and omit signals that contributed
// nothing.
type Suggestion struct {
	InvoiceID string   `json:"invoice_id"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons"`
}

const (
	// scoreThreshold discards weak pairings before ranking.
	scoreThreshold = 0.3

	// maxSuggestions caps the ranked list.
	maxSuggestions = 5
)

// Score computes the additive match score in [0,1] for one pairing,
// along with the human-readable reasons for each contributing signal.
func Score(tx Transaction, inv Invoice) (float64, []string) {
	score := 0.0
	var reasons []string

	if inv.InvoiceDate != nil {
		days := math.Abs(tx.Date.Sub(*inv.InvoiceDate).Hours() / 24)
		var contribution float64
		switch {
		case days <= 7:
			contribution = 0.3
		case days <= 30:
			contribution = 0.2
		case days <= 90:
			contribution = 0.1
		}
		if contribution > 0 {
			score += contribution
			reasons = append(reasons, fmt.Sprintf("dates close (%d day(s) apart)", int(math.Round(days))))
		}
	}

	if inv.InvoiceAmount != nil {
		diff := math.Abs(tx.Amount - *inv.InvoiceAmount)
		ratio := diff / math.Max(tx.Amount, *inv.InvoiceAmount)
		var contribution float64
		switch {
		case ratio <= 0.05:
			contribution = 0.4
		case ratio <= 0.10:
			contribution = 0.3
		case ratio <= 0.20:
			contribution = 0.2
		}
		if contribution > 0 {
			score += contribution
			reasons = append(reasons, fmt.Sprintf("amounts similar (%.2f difference)", diff))
		}
	}

	common := commonTokens(tx.Description, inv.FileName+" "+inv.Vendor)
	if len(common) > 0 {
		score += math.Min(0.3, 0.1*float64(len(common)))
		shown := common
		if len(shown) > 3 {
			shown = shown[:3]
		}
		reasons = append(reasons, "shared keywords: "+strings.Join(shown, ", "))
	}

	return score, reasons
}

// Rank scores every invoice against the transaction, discards pairings
// below the threshold, sorts descending by score (stable, so input
// order breaks ties) and truncates to the top suggestions.
func Rank(tx Transaction, invoices []Invoice) []Suggestion {
	var suggestions []Suggestion
	for _, inv := range invoices {
		score, reasons := Score(tx, inv)
		if score < scoreThreshold {
			continue
		}
		suggestions = append(suggestions, Suggestion{InvoiceID: inv.ID, Score: score, Reasons: reasons})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}

// commonTokens intersects the case-folded token sets of both texts,
// preserving first-seen order from the transaction description. Tokens
// split on any non-alphanumeric rune so "facture_restaurant.pdf" still
// yields "restaurant".
func commonTokens(a, b string) []string {
	bTokens := make(map[string]bool)
	for _, tok := range tokenize(b) {
		bTokens[tok] = true
	}

	seen := make(map[string]bool)
	var common []string
	for _, tok := range tokenize(a) {
		if bTokens[tok] && !seen[tok] {
			seen[tok] = true
			common = append(common, tok)
		}
	}
	return common
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TransactionSource resolves the transaction being matched.
type TransactionSource interface {
	GetTransaction(ctx context.Context, ownerID, transactionID string) (*Transaction, error)
}

// InvoiceSource lists the owner's unlinked document candidates.
type InvoiceSource interface {
	ListUnlinkedInvoices(ctx context.Context, ownerID string) ([]Invoice, error)
}

// Matcher wires the scoring to the external stores.
type Matcher struct {
	txs      TransactionSource
	invoices InvoiceSource
	log      zerolog.Logger
}

func NewMatcher(txs TransactionSource, invoices InvoiceSource, log zerolog.Logger) *Matcher {
	return &Matcher{txs: txs, invoices: invoices, log: log}
}

// SuggestInvoices computes ranked suggestions for one transaction.
// Suggestions are ephemeral: nothing is persisted here.
func (m *Matcher) SuggestInvoices(ctx context.Context, ownerID, transactionID string) ([]Suggestion, error) {
	tx, err := m.txs.GetTransaction(ctx, ownerID, transactionID)
	if err != nil {
		return nil, err
	}

	invoices, err := m.invoices.ListUnlinkedInvoices(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("SuggestInvoices: listing invoices: %w", err)
	}

	suggestions := Rank(*tx, invoices)
	m.log.Debug().
		Str("transaction_id", transactionID).
		Int("candidates", len(invoices)).
		Int("suggestions", len(suggestions)).
		Msg("Invoice suggestions computed")
	return suggestions, nil
}
