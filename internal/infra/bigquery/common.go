// Package bigquery persists provider and invoice documents in the analytics
// warehouse. Every operation exists both as a package-level XxxWithClient
// function and as a method on a repository holding a shared client.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const (
	providersTable = "providers"
	invoicesTable  = "invoices"
	batchRunsTable = "batch_runs"
)

// Dataset locates the warehouse dataset all repositories write to. It is
// constructed from the batch configuration and passed in explicitly.
type Dataset struct {
	ProjectID string
	DatasetID string
}

func (d Dataset) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// runDML executes a DML query and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

// Client bundles one shared warehouse connection with the dataset it serves.
type Client struct {
	bq *bigquery.Client
	ds Dataset
}

// NewClient opens a warehouse client for the dataset.
func NewClient(ctx context.Context, ds Dataset) (*Client, error) {
	bq, err := bigquery.NewClient(ctx, ds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating client: %w", err)
	}
	return &Client{bq: bq, ds: ds}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.bq != nil {
		return c.bq.Close()
	}
	return nil
}

// Providers returns the provider repository backed by this client.
func (c *Client) Providers() *ProviderRepository {
	return &ProviderRepository{client: c.bq, ds: c.ds}
}

// Invoices returns the invoice repository backed by this client.
func (c *Client) Invoices() *InvoiceRepository {
	return &InvoiceRepository{client: c.bq, ds: c.ds}
}

// BatchRuns returns the batch-run repository backed by this client.
func (c *Client) BatchRuns() *BatchRunRepository {
	return &BatchRunRepository{client: c.bq, ds: c.ds}
}
