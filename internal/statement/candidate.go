package statement

import (
	"time"
)

// TransactionType splits candidates by the sign of the parsed amount.
type TransactionType string

const (
	TypeExpense TransactionType = "expense"
	TypeIncome  TransactionType = "income"
)

// Candidate is a parsed, normalized, not-yet-persisted transaction row.
// Amount is always non-negative; the sign lives in Type and
// OriginalAmount.
type Candidate struct {
	RowIndex       int             `json:"row_index"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	Amount         float64         `json:"amount"`
	Type           TransactionType `json:"type"`
	CategoryID     string          `json:"category_id,omitempty"`
	OperationType  string          `json:"operation_type,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Memo           string          `json:"memo,omitempty"`
	RawCategory    string          `json:"raw_category,omitempty"`
	OriginalAmount float64         `json:"original_amount"`

	// DateDefaulted marks rows whose date could not be parsed and fell
	// back to the import date. The leniency keeps the row; the flag
	// keeps it observable.
	DateDefaulted bool `json:"date_defaulted,omitempty"`
}

// BuildCandidate turns one raw row into a Candidate via field
// resolution and normalization. Rows missing any of date, amount or
// description are invalid: the second return is false and the row is
// silently dropped from the candidate stream.
func BuildCandidate(row RawRow, index int, now time.Time) (Candidate, bool) {
	fields := ResolveFields(row)
	return buildFrom(fields.Date, fields.Amount, fields.Description, index, now, func(c *Candidate) {
		c.OperationType = NormalizeText(fields.OperationType)
		c.Reference = NormalizeText(fields.Reference)
	})
}

// BuildQIFCandidate builds a Candidate from a qif reader row, whose
// keys are already canonical tags. The record's own category label is
// carried along for label-based categorization.
func BuildQIFCandidate(row RawRow, index int, now time.Time) (Candidate, bool) {
	return buildFrom(row[QIFDate], row[QIFAmount], row[QIFDescription], index, now, func(c *Candidate) {
		c.Memo = NormalizeText(row[QIFMemo])
		c.RawCategory = NormalizeText(row[QIFCategory])
	})
}

func buildFrom(rawDate, rawAmount, rawDescription string, index int, now time.Time, extra func(*Candidate)) (Candidate, bool) {
	description := NormalizeText(rawDescription)
	if rawDate == "" || rawAmount == "" || description == "" {
		return Candidate{}, false
	}

	amount, err := NormalizeAmount(rawAmount)
	if err != nil {
		return Candidate{}, false
	}

	date, defaulted := NormalizeDate(rawDate, now)

	c := Candidate{
		RowIndex:       index,
		Date:           date,
		Description:    description,
		OriginalAmount: amount,
		DateDefaulted:  defaulted,
	}
	if amount < 0 {
		c.Type = TypeExpense
		c.Amount = -amount
	} else {
		c.Type = TypeIncome
		c.Amount = amount
	}

	extra(&c)
	return c, true
}
