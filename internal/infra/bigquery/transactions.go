package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-importer/internal/importer"
	"github.com/dvloznov/bank-importer/internal/matching"
)

const (
	transactionStatusActive    = "active"
	transactionStatusWithdrawn = "withdrawn"
)

// TransactionStore persists committed transactions. Inserts use the
// streaming inserter; withdrawal is a status flip via DML, never a
// physical delete.
type TransactionStore struct {
	c   *Client
	now func() time.Time
}

var _ importer.TransactionStore = (*TransactionStore)(nil)
var _ matching.TransactionSource = (*TransactionStore)(nil)

func NewTransactionStore(c *Client) *TransactionStore {
	return &TransactionStore{c: c, now: time.Now}
}

// CreateTransaction inserts one committed transaction and returns its id.
func (s *TransactionStore) CreateTransaction(ctx context.Context, tx *importer.Transaction) (string, error) {
	row := transactionRowFromDomain(tx, s.now())

	inserter := s.c.table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return "", fmt.Errorf("CreateTransaction: inserting row: %w", err)
	}
	return row.TransactionID, nil
}

// WithdrawByImport marks every active transaction of one import as
// withdrawn.
func (s *TransactionStore) WithdrawByImport(ctx context.Context, ownerID, importID string) error {
	q := s.c.query(`
		UPDATE %s.%s
		SET status = @withdrawn
		WHERE import_id = @import_id
		  AND user_id = @user_id
		  AND status = @active
	`, s.c.cfg.Dataset, transactionsTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "withdrawn", Value: transactionStatusWithdrawn},
		{Name: "import_id", Value: importID},
		{Name: "user_id", Value: ownerID},
		{Name: "active", Value: transactionStatusActive},
	}

	return runDML(ctx, q, "WithdrawByImport")
}

// ListByImport returns the ids of the import's active transactions.
func (s *TransactionStore) ListByImport(ctx context.Context, ownerID, importID string) ([]string, error) {
	q := s.c.query(`
		SELECT transaction_id
		FROM %s.%s
		WHERE import_id = @import_id
		  AND user_id = @user_id
		  AND status = @active
		ORDER BY row_index
	`, s.c.cfg.Dataset, transactionsTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "import_id", Value: importID},
		{Name: "user_id", Value: ownerID},
		{Name: "active", Value: transactionStatusActive},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListByImport: query read: %w", err)
	}

	var ids []string
	for {
		var row struct {
			TransactionID string `bigquery:"transaction_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListByImport: iter next: %w", err)
		}
		ids = append(ids, row.TransactionID)
	}

	return ids, nil
}

// GetTransaction fetches one active transaction in the matcher's shape.
func (s *TransactionStore) GetTransaction(ctx context.Context, ownerID, transactionID string) (*matching.Transaction, error) {
	q := s.c.query(`
		SELECT
			transaction_id,
			transaction_date,
			amount,
			description
		FROM %s.%s
		WHERE transaction_id = @transaction_id
		  AND user_id = @user_id
		  AND status = @active
	`, s.c.cfg.Dataset, transactionsTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
		{Name: "user_id", Value: ownerID},
		{Name: "active", Value: transactionStatusActive},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: query read: %w", err)
	}

	var row TransactionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetTransaction: transaction %s: %w", transactionID, importer.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: iter next: %w", err)
	}

	return &matching.Transaction{
		ID:          row.TransactionID,
		Date:        row.TransactionDate.In(time.UTC),
		Amount:      floatFromRat(row.Amount),
		Description: row.Description,
	}, nil
}

// ListByDateRange returns the owner's active transactions in the date
// window, oldest first.
func (s *TransactionStore) ListByDateRange(ctx context.Context, ownerID string, start, end time.Time) ([]*TransactionRow, error) {
	q := s.c.query(`
		SELECT
			transaction_id,
			user_id,
			import_id,
			transaction_date,
			description,
			amount,
			original_amount,
			transaction_type,
			category_id,
			source,
			operation_type,
			external_reference,
			row_index,
			status,
			created_ts
		FROM %s.%s
		WHERE user_id = @user_id
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		  AND status = @active
		ORDER BY transaction_date, created_ts
	`, s.c.cfg.Dataset, transactionsTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: ownerID},
		{Name: "start_date", Value: start.Format(dateFormat)},
		{Name: "end_date", Value: end.Format(dateFormat)},
		{Name: "active", Value: transactionStatusActive},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListByDateRange: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListByDateRange: iter next: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
