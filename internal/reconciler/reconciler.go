// Package reconciler consolidates provider rows arriving from multiple source
// files and merges them into the persisted store: deduplicated by identifier,
// idempotent across repeated runs.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmorales/accounting-etl/internal/identifier"
	"github.com/dmorales/accounting-etl/internal/logger"
)

// RawRow is one provider row read from a source file.
type RawRow struct {
	SourceFile string
	Line       int // 1-based line in the source file, for fallout reports

	TaxID       string // cleaned, digits only; "" means the row is unusable
	Name        string
	Description string
	AccountCode string
	Date        string // raw date cell, feeds generated external IDs
	Balance     string // raw accumulated balance cell

	// Transaction carries the row's transaction sub-record fields
	// (voucher, date, detail, debits, credits, ...). Nil when the row has
	// no transaction data.
	Transaction map[string]string

	// Extra holds the remaining non-standard columns of the row.
	Extra map[string]string
}

// Provider is the consolidated in-memory record for one identifier within a
// batch. It only lives for the duration of a run; the store owns the
// persisted form.
type Provider struct {
	TaxID        string
	Name         string
	Description  string
	AccountCodes []string // first-appearance order, no duplicates
	PersonType   string
	IDType       string
	Balance      decimal.Decimal
	HasBalance   bool
	Transactions []map[string]string // append semantics, never deduplicated
	Extra        map[string]string

	date string // first non-empty raw date across the group
}

// Fallout describes one row or group that could not be processed.
type Fallout struct {
	SourceFile string
	Line       int
	TaxID      string
	Reason     string
}

// Stats summarizes a batch run.
type Stats struct {
	Created int
	Updated int
	Skipped int
	Failed  int
	Fallout []Fallout
}

func (s *Stats) fail(f Fallout) {
	s.Failed++
	s.Fallout = append(s.Fallout, f)
}

// Consolidate groups rows by identifier and merges each group into one
// Provider: first-non-empty wins for scalar fields, account codes are
// union-ed preserving first-seen order, transactions are appended one per
// contributing row. Rows without an identifier go to the returned stats as
// failures; they never abort the batch.
func Consolidate(rows []RawRow) ([]*Provider, *Stats) {
	stats := &Stats{}
	byTaxID := make(map[string]*Provider)
	var order []*Provider

	for _, row := range rows {
		if row.TaxID == "" {
			stats.fail(Fallout{
				SourceFile: row.SourceFile,
				Line:       row.Line,
				Reason:     "missing required identifier",
			})
			continue
		}

		p, ok := byTaxID[row.TaxID]
		if !ok {
			personType, idType := identifier.ClassifyPersonType(row.TaxID)
			p = &Provider{
				TaxID:      row.TaxID,
				PersonType: personType,
				IDType:     idType,
				Extra:      map[string]string{},
			}
			byTaxID[row.TaxID] = p
			order = append(order, p)
		}

		if p.Name == "" {
			p.Name = row.Name
		}
		if p.Description == "" {
			p.Description = row.Description
		}
		if p.date == "" {
			p.date = row.Date
		}
		if !p.HasBalance {
			if amount, ok := identifier.ParseAmount(row.Balance); ok {
				p.Balance = amount
				p.HasBalance = true
			}
		}
		if row.AccountCode != "" {
			p.AccountCodes = appendUnique(p.AccountCodes, row.AccountCode)
		}
		if row.Transaction != nil {
			p.Transactions = append(p.Transactions, row.Transaction)
		}
		for k, v := range row.Extra {
			if _, seen := p.Extra[k]; !seen {
				p.Extra[k] = v
			}
		}
	}

	return order, stats
}

// StoredProvider is the slice of a persisted record the reconciler needs to
// decide between update and insert.
type StoredProvider struct {
	Key          string // storage key of the persisted record
	TaxID        string
	AccountCodes []string
}

// ProviderStore is the persistence surface the reconciler drives.
type ProviderStore interface {
	// ListByUID returns the providers persisted under the tenant.
	ListByUID(ctx context.Context, uid string) ([]StoredProvider, error)
	// Insert creates a new provider record under the generated external ID.
	Insert(ctx context.Context, uid, externalID string, p *Provider) error
	// Update merges the consolidated provider into an existing record.
	// accountCodes is the full merged code list to persist. It returns the
	// number of records actually modified.
	Update(ctx context.Context, uid, key string, p *Provider, accountCodes []string) (int64, error)
	// UpdateFields sets individual scalar fields on an existing record.
	UpdateFields(ctx context.Context, uid, key string, fields map[string]string) (int64, error)
	// DeleteByUID removes every provider of the tenant (clean-slate reload).
	DeleteByUID(ctx context.Context, uid string) (int64, error)
}

// Reconciler applies consolidated providers to the store.
type Reconciler struct {
	store  ProviderStore
	now    func() time.Time
	suffix func() string
}

// New creates a Reconciler over the given store.
func New(store ProviderStore) *Reconciler {
	return &Reconciler{
		store:  store,
		now:    time.Now,
		suffix: randomSuffix,
	}
}

// Run reconciles the rows of one batch against the tenant's persisted
// providers. A single group's failure is logged and counted, and the run
// continues; only the initial store listing can fail the whole batch.
func (r *Reconciler) Run(ctx context.Context, uid string, rows []RawRow) (*Stats, error) {
	log := logger.FromContext(ctx)

	providers, stats := Consolidate(rows)

	existing, err := r.store.ListByUID(ctx, uid)
	if err != nil {
		return stats, fmt.Errorf("Run: listing providers for uid %s: %w", uid, err)
	}
	byTaxID := make(map[string]StoredProvider, len(existing))
	for _, sp := range existing {
		if sp.TaxID != "" {
			byTaxID[sp.TaxID] = sp
		}
	}

	for _, p := range providers {
		if sp, ok := byTaxID[p.TaxID]; ok {
			merged := unionCodes(sp.AccountCodes, p.AccountCodes)
			affected, err := r.store.Update(ctx, uid, sp.Key, p, merged)
			if err != nil {
				log.Error().Err(err).Str("tax_id", p.TaxID).Msg("Failed to update provider")
				stats.fail(Fallout{TaxID: p.TaxID, Reason: fmt.Sprintf("update: %v", err)})
				continue
			}
			if affected == 0 {
				log.Warn().Str("tax_id", p.TaxID).Msg("Provider update was a no-op")
			} else {
				log.Info().Str("tax_id", p.TaxID).Strs("account_codes", merged).Msg("Updated provider")
			}
			stats.Updated++
			continue
		}

		externalID := GenerateExternalID(p.date, r.now(), r.suffix)
		if err := r.store.Insert(ctx, uid, externalID, p); err != nil {
			log.Error().Err(err).Str("tax_id", p.TaxID).Msg("Failed to insert provider")
			stats.fail(Fallout{TaxID: p.TaxID, Reason: fmt.Sprintf("insert: %v", err)})
			continue
		}
		log.Info().Str("tax_id", p.TaxID).Str("external_id", externalID).Msg("Created provider")
		stats.Created++
		byTaxID[p.TaxID] = StoredProvider{Key: externalID, TaxID: p.TaxID, AccountCodes: p.AccountCodes}
	}

	return stats, nil
}

// CleanSlate removes every provider of the tenant ahead of a full reload.
func (r *Reconciler) CleanSlate(ctx context.Context, uid string) (int64, error) {
	return r.store.DeleteByUID(ctx, uid)
}

func appendUnique(codes []string, code string) []string {
	for _, c := range codes {
		if c == code {
			return codes
		}
	}
	return append(codes, code)
}

// unionCodes merges new codes into existing, preserving first-seen order.
func unionCodes(existing, incoming []string) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	for _, code := range incoming {
		merged = appendUnique(merged, code)
	}
	return merged
}
