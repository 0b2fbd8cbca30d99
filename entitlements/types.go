package entitlements

import (
	"fmt"
	"time"
)

// Entitlement represents a user's grant (e.g., premium), with optional metadata.
type Entitlement struct {
	Name      string                 `json:"name"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
	RevokedAt *time.Time             `json:"revoked_at,omitempty"`
	Source    string                 `json:"source,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// FromRecord builds the entitlement view of a transaction record.
func FromRecord(rec TransactionRecord, source string) Entitlement {
	e := Entitlement{
		Name:      rec.ProductID,
		ExpiresAt: rec.ExpiresAt,
		RevokedAt: rec.RevokedAt,
		Source:    source,
	}
	md := map[string]interface{}{}
	if rec.ID != "" {
		md["transaction_id"] = rec.ID
	}
	if rec.OriginalID != "" {
		md["original_transaction_id"] = rec.OriginalID
	}
	if rec.IsUpgraded {
		md["upgraded"] = true
	}
	if len(md) > 0 {
		e.Metadata = md
	}
	return e
}

// Verification is the outcome of the store's signature check on a transaction.
type Verification string

const (
	Verified   Verification = "verified"
	Unverified Verification = "unverified"
)

// TransactionRecord is one transaction as delivered by the entitlement store.
// Only Verification == Verified counts as verified; any other value, including
// the empty string, is treated as unverified.
type TransactionRecord struct {
	ID                string       `json:"id"`
	OriginalID        string       `json:"original_id,omitempty"`
	ProductID         string       `json:"product_id"`
	Verification      Verification `json:"verification"`
	VerificationError string       `json:"verification_error,omitempty"`
	PurchasedAt       time.Time    `json:"purchased_at"`
	RevokedAt         *time.Time   `json:"revoked_at,omitempty"`
	RevocationReason  string       `json:"revocation_reason,omitempty"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty"`
	IsUpgraded        bool         `json:"is_upgraded"`
	Environment       string       `json:"environment,omitempty"`
}

func (r TransactionRecord) Verified() bool { return r.Verification == Verified }

// VerificationErr returns a *VerificationError for unverified records and nil otherwise.
func (r TransactionRecord) VerificationErr() error {
	if r.Verified() {
		return nil
	}
	return &VerificationError{TransactionID: r.ID, Detail: r.VerificationError}
}

// VerificationError reports a transaction whose signature could not be verified.
// It is never fatal: the transaction simply does not entitle.
type VerificationError struct {
	TransactionID string
	Detail        string
}

func (e *VerificationError) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = "unverified"
	}
	if e.TransactionID == "" {
		return "transaction verification failed: " + detail
	}
	return fmt.Sprintf("transaction %s verification failed: %s", e.TransactionID, detail)
}

// PeriodUnit is the billing period granularity of a subscription product.
type PeriodUnit string

const (
	PeriodDay   PeriodUnit = "day"
	PeriodWeek  PeriodUnit = "week"
	PeriodMonth PeriodUnit = "month"
	PeriodYear  PeriodUnit = "year"
)

// Period is e.g. {Unit: month, Value: 1}.
type Period struct {
	Unit  PeriodUnit `json:"unit"`
	Value int        `json:"value"`
}

// Product is a catalog entry. DisplayPrice is already formatted by the store.
type Product struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	DisplayPrice string `json:"display_price"`
	CurrencyCode string `json:"currency_code,omitempty"`
	Period       Period `json:"period"`
}
