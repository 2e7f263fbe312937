package reconciler

import (
	"context"
	"fmt"
)

// Invoice is one invoice document ready to persist.
type Invoice struct {
	UID             string
	SupplierID      string
	InvoiceID       string
	FileDescription string
	InvoiceType     string

	// ExtractedDescription is the field pulled from the archive's PDF;
	// nil when extraction found nothing.
	ExtractedDescription *string
}

// InvoiceStore is the persistence surface for invoice documents.
type InvoiceStore interface {
	Exists(ctx context.Context, uid, invoiceID string) (bool, error)
	Insert(ctx context.Context, inv *Invoice) error
}

// InvoiceUploader applies strictly insert-if-absent semantics keyed by
// (UID, invoiceId): an invoice seen before is skipped, never updated.
type InvoiceUploader struct {
	store InvoiceStore
}

// NewInvoiceUploader creates an InvoiceUploader over the given store.
func NewInvoiceUploader(store InvoiceStore) *InvoiceUploader {
	return &InvoiceUploader{store: store}
}

// Insert persists the invoice unless one already exists for the same
// (UID, invoiceId). Returns whether a new document was created.
func (u *InvoiceUploader) Insert(ctx context.Context, inv *Invoice) (bool, error) {
	if inv.InvoiceID == "" {
		return false, fmt.Errorf("Insert: invoice has no identifier")
	}
	exists, err := u.store.Exists(ctx, inv.UID, inv.InvoiceID)
	if err != nil {
		return false, fmt.Errorf("Insert: existence check for invoice %s: %w", inv.InvoiceID, err)
	}
	if exists {
		return false, nil
	}
	if err := u.store.Insert(ctx, inv); err != nil {
		return false, fmt.Errorf("Insert: inserting invoice %s: %w", inv.InvoiceID, err)
	}
	return true, nil
}
