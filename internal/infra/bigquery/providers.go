package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dmorales/accounting-etl/internal/reconciler"
)

// ProviderRow is the warehouse shape of a consolidated provider. Transactions
// are kept as a repeated column of JSON-encoded movement records so appends
// never rewrite history.
type ProviderRow struct {
	ProviderID           string                 `bigquery:"provider_id"`
	UID                  string                 `bigquery:"uid"`
	TaxID                string                 `bigquery:"tax_id"`
	Name                 string                 `bigquery:"name"`
	Description          bigquery.NullString    `bigquery:"description"`
	AccountCodes         []string               `bigquery:"account_codes"`
	DefaultAccountCode   bigquery.NullString    `bigquery:"default_account_code"`
	PersonType           string                 `bigquery:"person_type"`
	IDType               string                 `bigquery:"id_type"`
	Balance              *big.Rat               `bigquery:"balance"`
	FiscalResponsibility bigquery.NullString    `bigquery:"fiscal_responsibility"`
	Activity             bigquery.NullString    `bigquery:"activity"`
	City                 bigquery.NullString    `bigquery:"city"`
	BusinessName         bigquery.NullString    `bigquery:"business_name"`
	BranchOffice         bigquery.NullString    `bigquery:"branch_office"`
	Transactions         []string               `bigquery:"transactions"`
	Extra                bigquery.NullString    `bigquery:"extra"`
	CreatedTS            time.Time              `bigquery:"created_ts"`
	UpdatedTS            bigquery.NullTimestamp `bigquery:"updated_ts"`
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// encodeTransactions serializes movement records for the repeated column.
func encodeTransactions(txs []map[string]string) ([]string, error) {
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		raw, err := json.Marshal(tx)
		if err != nil {
			return nil, fmt.Errorf("encoding transaction: %w", err)
		}
		encoded = append(encoded, string(raw))
	}
	return encoded, nil
}

// rowFromProvider maps a consolidated provider onto its warehouse row.
func rowFromProvider(uid, externalID string, p *reconciler.Provider, now time.Time) (*ProviderRow, error) {
	txs, err := encodeTransactions(p.Transactions)
	if err != nil {
		return nil, err
	}
	row := &ProviderRow{
		ProviderID:   externalID,
		UID:          uid,
		TaxID:        p.TaxID,
		Name:         p.Name,
		Description:  nullString(p.Description),
		AccountCodes: p.AccountCodes,
		PersonType:   p.PersonType,
		IDType:       p.IDType,
		Transactions: txs,
		CreatedTS:    now.UTC(),
	}
	if len(p.AccountCodes) > 0 {
		row.DefaultAccountCode = nullString(p.AccountCodes[0])
	}
	if p.HasBalance {
		row.Balance = p.Balance.Rat()
	}
	if len(p.Extra) > 0 {
		raw, err := json.Marshal(p.Extra)
		if err != nil {
			return nil, fmt.Errorf("encoding extra fields: %w", err)
		}
		row.Extra = nullString(string(raw))
	}
	return row, nil
}
