// Package domain contains the immutable credit ledger. Every credit balance
// change appends a row here; rows are never updated or deleted.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reason classifies a ledger entry.
type Reason string

const (
	ReasonPurchase   Reason = "purchase"
	ReasonRefund     Reason = "refund"
	ReasonAdd        Reason = "add"
	ReasonAutoRefill Reason = "auto_refill"
	ReasonBonus      Reason = "bonus"
	ReasonOther      Reason = "other"
)

// Entry is one immutable credit movement. Exactly one of ProfileID or
// OrganizationID is set; the balance column is the post-entry balance and
// must never go negative.
type Entry struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ProfileID      *uuid.UUID `gorm:"type:uuid;index"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index"`

	Delta   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Balance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Reason  Reason          `gorm:"type:text;not null;index"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	RecordedAt time.Time `gorm:"not null;index"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "credit_ledger" }

var (
	ErrInvalidEntryOwner = errors.New("invalid_ledger_owner")
	ErrNegativeBalance   = errors.New("negative_ledger_balance")
)

// AppendTx inserts an entry inside the caller's transaction. Kept as a
// helper rather than a service because the ledger is only ever written as
// part of another operation's transaction.
func AppendTx(ctx context.Context, tx *gorm.DB, entry *Entry) error {
	profileSet := entry.ProfileID != nil && *entry.ProfileID != uuid.Nil
	orgSet := entry.OrganizationID != nil && *entry.OrganizationID != uuid.Nil
	if profileSet == orgSet {
		return ErrInvalidEntryOwner
	}
	if entry.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	return tx.WithContext(ctx).Create(entry).Error
}
