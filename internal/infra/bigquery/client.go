// Package bigquery implements the persistent stores (imports,
// transactions, categories, invoices) on top of BigQuery.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const (
	importsTable      = "imports"
	transactionsTable = "transactions"
	categoriesTable   = "categories"
	invoicesTable     = "invoices"

	dateFormat = "2006-01-02"
)

// Config identifies the dataset all stores operate on. There is no
// default project: deployments must configure it explicitly.
type Config struct {
	ProjectID string
	Dataset   string
}

// Client wraps a shared BigQuery client with the dataset configuration.
// All stores hold one Client so the process keeps a single connection.
type Client struct {
	bq  *bigquery.Client
	cfg Config
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("NewClient: project ID is required")
	}
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("NewClient: dataset is required")
	}

	bq, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewClient: bigquery client: %w", err)
	}
	return &Client{bq: bq, cfg: cfg}, nil
}

// Close closes the underlying BigQuery client.
func (c *Client) Close() error {
	if c.bq != nil {
		return c.bq.Close()
	}
	return nil
}

func (c *Client) table(name string) *bigquery.Table {
	return c.bq.DatasetInProject(c.cfg.ProjectID, c.cfg.Dataset).Table(name)
}

// query builds a query with the dataset qualifier substituted for %s
// occurrences in the template.
func (c *Client) query(template string, args ...interface{}) *bigquery.Query {
	return c.bq.Query(fmt.Sprintf(template, args...))
}

// runDML runs a DML statement to completion.
func runDML(ctx context.Context, q *bigquery.Query, opName string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", opName, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", opName, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", opName, err)
	}
	return nil
}
