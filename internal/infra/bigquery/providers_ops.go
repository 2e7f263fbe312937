package bigquery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dmorales/accounting-etl/internal/reconciler"
)

// fiscalColumns is the set of provider columns the fiscal-update flow may
// touch. Anything else in an update map is rejected before it reaches SQL.
var fiscalColumns = map[string]bool{
	"fiscal_responsibility": true,
	"activity":              true,
	"city":                  true,
	"business_name":         true,
	"branch_office":         true,
}

type storedProviderRow struct {
	ProviderID   string   `bigquery:"provider_id"`
	TaxID        string   `bigquery:"tax_id"`
	AccountCodes []string `bigquery:"account_codes"`
}

// ListProvidersByUIDWithClient returns the key, tax id and account codes of
// every provider owned by the tenant.
func ListProvidersByUIDWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, uid string) ([]reconciler.StoredProvider, error) {
	queryStr := fmt.Sprintf(`
		SELECT provider_id, tax_id, account_codes
		FROM %s
		WHERE uid = @uid`, ds.table(providersTable))

	q := client.Query(queryStr)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "uid", Value: uid},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListProvidersByUIDWithClient: executing query: %w", err)
	}

	var providers []reconciler.StoredProvider
	for {
		var row storedProviderRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListProvidersByUIDWithClient: iterating results: %w", err)
		}
		providers = append(providers, reconciler.StoredProvider{
			Key:          row.ProviderID,
			TaxID:        row.TaxID,
			AccountCodes: row.AccountCodes,
		})
	}
	return providers, nil
}

// InsertProviderWithClient writes a new provider row. The insert is a DML
// statement rather than a streaming insert: rows in the streaming buffer
// cannot be updated or deleted, and both the merge updates and the
// clean-slate delete of a rerun must be able to touch the row immediately.
func InsertProviderWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, uid, externalID string, p *reconciler.Provider) error {
	row, err := rowFromProvider(uid, externalID, p, time.Now())
	if err != nil {
		return fmt.Errorf("InsertProviderWithClient: %w", err)
	}

	queryStr, params := providerInsertQuery(ds, row)
	q := client.Query(queryStr)
	q.Parameters = params

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertProviderWithClient: %w", err)
	}
	return nil
}

// providerInsertQuery builds the INSERT statement and parameters for a new
// provider row. The balance column is only written when the row carries one.
func providerInsertQuery(ds Dataset, row *ProviderRow) (string, []bigquery.QueryParameter) {
	columns := []string{
		"provider_id", "uid", "tax_id", "name", "description",
		"account_codes", "default_account_code", "person_type", "id_type",
		"transactions", "extra", "created_ts",
	}
	params := []bigquery.QueryParameter{
		{Name: "provider_id", Value: row.ProviderID},
		{Name: "uid", Value: row.UID},
		{Name: "tax_id", Value: row.TaxID},
		{Name: "name", Value: row.Name},
		{Name: "description", Value: row.Description},
		{Name: "account_codes", Value: row.AccountCodes},
		{Name: "default_account_code", Value: row.DefaultAccountCode},
		{Name: "person_type", Value: row.PersonType},
		{Name: "id_type", Value: row.IDType},
		{Name: "transactions", Value: row.Transactions},
		{Name: "extra", Value: row.Extra},
		{Name: "created_ts", Value: row.CreatedTS},
	}
	if row.Balance != nil {
		columns = append(columns, "balance")
		params = append(params, bigquery.QueryParameter{Name: "balance", Value: row.Balance})
	}

	placeholders := make([]string, len(columns))
	for i, col := range columns {
		placeholders[i] = "@" + col
	}
	queryStr := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (%s)`,
		ds.table(providersTable), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	return queryStr, params
}

// UpdateProviderWithClient overwrites the scalar columns of an existing
// provider, replaces its account codes with the merged set and appends the
// new transactions. It returns the number of rows the statement touched.
func UpdateProviderWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, uid, key string, p *reconciler.Provider, accountCodes []string) (int64, error) {
	txs, err := encodeTransactions(p.Transactions)
	if err != nil {
		return 0, fmt.Errorf("UpdateProviderWithClient: %w", err)
	}

	assignments := []string{
		"name = @name",
		"description = @description",
		"account_codes = @account_codes",
		"default_account_code = @default_account_code",
		"person_type = @person_type",
		"id_type = @id_type",
		"transactions = ARRAY_CONCAT(IFNULL(transactions, []), @new_transactions)",
		"updated_ts = @updated_ts",
	}
	params := []bigquery.QueryParameter{
		{Name: "name", Value: p.Name},
		{Name: "description", Value: p.Description},
		{Name: "account_codes", Value: accountCodes},
		{Name: "default_account_code", Value: firstOrEmpty(accountCodes)},
		{Name: "person_type", Value: p.PersonType},
		{Name: "id_type", Value: p.IDType},
		{Name: "new_transactions", Value: txs},
		{Name: "updated_ts", Value: time.Now().UTC()},
		{Name: "uid", Value: uid},
		{Name: "key", Value: key},
	}
	if p.HasBalance {
		assignments = append(assignments, "balance = @balance")
		params = append(params, bigquery.QueryParameter{Name: "balance", Value: p.Balance.Rat()})
	}

	queryStr := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE uid = @uid AND provider_id = @key`,
		ds.table(providersTable), strings.Join(assignments, ",\n\t\t    "))

	q := client.Query(queryStr)
	q.Parameters = params

	affected, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("UpdateProviderWithClient: %w", err)
	}
	return affected, nil
}

// UpdateProviderFieldsWithClient sets the given fiscal columns on one
// provider row. Column names outside the fiscal set are rejected.
func UpdateProviderFieldsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, uid, key string, fields map[string]string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if !fiscalColumns[name] {
			return 0, fmt.Errorf("UpdateProviderFieldsWithClient: column %q is not updatable", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	assignments := make([]string, 0, len(names)+1)
	params := []bigquery.QueryParameter{
		{Name: "uid", Value: uid},
		{Name: "key", Value: key},
		{Name: "updated_ts", Value: time.Now().UTC()},
	}
	for _, name := range names {
		assignments = append(assignments, fmt.Sprintf("%s = @%s", name, name))
		params = append(params, bigquery.QueryParameter{Name: name, Value: fields[name]})
	}
	assignments = append(assignments, "updated_ts = @updated_ts")

	queryStr := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE uid = @uid AND provider_id = @key`,
		ds.table(providersTable), strings.Join(assignments, ", "))

	q := client.Query(queryStr)
	q.Parameters = params

	affected, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("UpdateProviderFieldsWithClient: %w", err)
	}
	return affected, nil
}

// DeleteProvidersByUIDWithClient removes every provider owned by the tenant
// ahead of a full reload.
func DeleteProvidersByUIDWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, uid string) (int64, error) {
	queryStr := fmt.Sprintf(`
		DELETE FROM %s
		WHERE uid = @uid`, ds.table(providersTable))

	q := client.Query(queryStr)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "uid", Value: uid},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("DeleteProvidersByUIDWithClient: %w", err)
	}
	return affected, nil
}

func firstOrEmpty(codes []string) string {
	if len(codes) > 0 {
		return codes[0]
	}
	return ""
}

// ProviderRepository wraps the provider table operations around one shared
// client. It satisfies the reconciler's ProviderStore interface.
type ProviderRepository struct {
	client *bigquery.Client
	ds     Dataset
}

func (r *ProviderRepository) ListByUID(ctx context.Context, uid string) ([]reconciler.StoredProvider, error) {
	return ListProvidersByUIDWithClient(ctx, r.client, r.ds, uid)
}

func (r *ProviderRepository) Insert(ctx context.Context, uid, externalID string, p *reconciler.Provider) error {
	return InsertProviderWithClient(ctx, r.client, r.ds, uid, externalID, p)
}

func (r *ProviderRepository) Update(ctx context.Context, uid, key string, p *reconciler.Provider, accountCodes []string) (int64, error) {
	return UpdateProviderWithClient(ctx, r.client, r.ds, uid, key, p, accountCodes)
}

func (r *ProviderRepository) UpdateFields(ctx context.Context, uid, key string, fields map[string]string) (int64, error) {
	return UpdateProviderFieldsWithClient(ctx, r.client, r.ds, uid, key, fields)
}

func (r *ProviderRepository) DeleteByUID(ctx context.Context, uid string) (int64, error) {
	return DeleteProvidersByUIDWithClient(ctx, r.client, r.ds, uid)
}
