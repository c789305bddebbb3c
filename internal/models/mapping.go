package models

import (
	"time"

	"github.com/google/uuid"
)

// MappingKind names the logical mapping table a record belongs to.
type MappingKind string

const (
	MappingInvoice       MappingKind = "invoice"
	MappingPayment       MappingKind = "payment"
	MappingSalesReceipt  MappingKind = "sales_receipt"
	MappingCharge        MappingKind = "charge"
	MappingChargeInvoice MappingKind = "charge_invoice"
	MappingChargeFailure MappingKind = "charge_failure"
	MappingRefundReceipt MappingKind = "refund_receipt"
	MappingCreditMemo    MappingKind = "credit_memo"
	MappingItem          MappingKind = "item"
	MappingSalesOrder    MappingKind = "sales_order"
)

// MappingRecord links a Stripe object to the QBO document created for it.
// Records are insert-only.
type MappingRecord struct {
	ID                int64       `json:"id"`
	TenantID          uuid.UUID   `json:"tenant_id"`
	Kind              MappingKind `json:"kind"`
	ProviderID        string      `json:"provider_id"`
	TargetID          string      `json:"target_id"`
	SecondaryTargetID *string     `json:"secondary_target_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}
