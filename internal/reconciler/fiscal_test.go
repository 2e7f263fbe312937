package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFiscalUpdates(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	_, err := r.Run(ctx, "tenant-1", []RawRow{{TaxID: "900123456", Name: "ACME"}})
	require.NoError(t, err)

	stats, err := r.ApplyFiscalUpdates(ctx, "tenant-1", []FiscalUpdate{
		{TaxID: "900123456", Activity: "4711", City: "11001", BusinessName: "ACME SAS"},
		{TaxID: "555555555", Activity: "4711"}, // unknown provider
		{TaxID: ""},                            // unusable row
		{TaxID: "900123456"},                   // nothing to set
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)

	for _, rec := range store.records {
		assert.Equal(t, "4711", rec.fields["activity"])
		assert.Equal(t, "11001", rec.fields["city"])
		assert.Equal(t, "ACME SAS", rec.fields["business_name"])
		// Empty fields never overwrite.
		_, hasBranch := rec.fields["branch_office"]
		assert.False(t, hasBranch)
	}
}
