package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dmorales/accounting-etl/internal/reconciler"
)

// InvoiceRow is the warehouse shape of one uploaded invoice reference.
type InvoiceRow struct {
	UID                  string              `bigquery:"uid"`
	SupplierID           string              `bigquery:"supplier_id"`
	InvoiceID            string              `bigquery:"invoice_id"`
	FileDescription      string              `bigquery:"file_description"`
	InvoiceType          string              `bigquery:"invoice_type"`
	ExtractedDescription bigquery.NullString `bigquery:"extracted_description"`
	CreatedTS            time.Time           `bigquery:"created_ts"`
}

// InvoiceExistsWithClient reports whether the tenant already holds an
// invoice with the given identifier.
func InvoiceExistsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, uid, invoiceID string) (bool, error) {
	queryStr := fmt.Sprintf(`
		SELECT COUNT(*) AS cnt
		FROM %s
		WHERE uid = @uid AND invoice_id = @invoice_id`, ds.table(invoicesTable))

	q := client.Query(queryStr)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "uid", Value: uid},
		{Name: "invoice_id", Value: invoiceID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("InvoiceExistsWithClient: executing query: %w", err)
	}

	var row struct {
		Cnt int64 `bigquery:"cnt"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return false, fmt.Errorf("InvoiceExistsWithClient: reading count: %w", err)
	}
	return row.Cnt > 0, nil
}

// InsertInvoiceWithClient streams a new invoice row into the warehouse.
func InsertInvoiceWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, inv *reconciler.Invoice) error {
	row := &InvoiceRow{
		UID:             inv.UID,
		SupplierID:      inv.SupplierID,
		InvoiceID:       inv.InvoiceID,
		FileDescription: inv.FileDescription,
		InvoiceType:     inv.InvoiceType,
		CreatedTS:       time.Now().UTC(),
	}
	if inv.ExtractedDescription != nil {
		row.ExtractedDescription = nullString(*inv.ExtractedDescription)
	}

	inserter := client.Dataset(ds.DatasetID).Table(invoicesTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertInvoiceWithClient: inserting row: %w", err)
	}
	return nil
}

// InvoiceRepository wraps the invoice table operations around one shared
// client. It satisfies the reconciler's InvoiceStore interface.
type InvoiceRepository struct {
	client *bigquery.Client
	ds     Dataset
}

func (r *InvoiceRepository) Exists(ctx context.Context, uid, invoiceID string) (bool, error) {
	return InvoiceExistsWithClient(ctx, r.client, r.ds, uid, invoiceID)
}

func (r *InvoiceRepository) Insert(ctx context.Context, inv *reconciler.Invoice) error {
	return InsertInvoiceWithClient(ctx, r.client, r.ds, inv)
}
