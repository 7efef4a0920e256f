package models

import (
	"time"

	"gorm.io/gorm"
)

// SaleOrderModel is the resource name used for attachments, messages and activities.
const SaleOrderModel = "sale.order"

// SignatureStatus is the lifecycle state of an order's signature request.
type SignatureStatus string

const (
	SignatureStatusDraft     SignatureStatus = "draft"
	SignatureStatusSent      SignatureStatus = "sent"
	SignatureStatusSigned    SignatureStatus = "signed"
	SignatureStatusExpired   SignatureStatus = "expired"
	SignatureStatusCancelled SignatureStatus = "cancelled"
)

// IsTerminal reports whether no further status change is expected for the cycle.
func (s SignatureStatus) IsTerminal() bool {
	return s == SignatureStatusSigned || s == SignatureStatusExpired || s == SignatureStatusCancelled
}

// SaleOrder is a quotation or confirmed order of a customer.
type SaleOrder struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name  string `gorm:"size:64;uniqueIndex;not null" json:"name"`
	State string `gorm:"size:20;not null;default:'draft'" json:"state"`

	PartnerID uint     `gorm:"index;not null" json:"partner_id"`
	Partner   *Partner `gorm:"foreignKey:PartnerID" json:"partner,omitempty"`

	// UserID is the salesperson in charge; follow-up activities are assigned to them.
	UserID *uint `gorm:"index" json:"user_id,omitempty"`
	User   *User `gorm:"foreignKey:UserID" json:"-"`

	Currency    string          `gorm:"size:3;not null;default:'EUR'" json:"currency"`
	AmountTotal float64         `gorm:"not null;default:0" json:"amount_total"`
	Lines       []SaleOrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`

	Signature SignatureRequest   `gorm:"embedded;embeddedPrefix:signature_" json:"signature"`
	History   []SignatureHistory `gorm:"foreignKey:SaleOrderID" json:"history,omitempty"`
}

// SaleOrderLine is a product line of an order.
type SaleOrderLine struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	OrderID     uint    `gorm:"index;not null" json:"order_id"`
	Sequence    int     `gorm:"not null;default:10" json:"sequence"`
	Description string  `gorm:"size:500;not null" json:"description"`
	Quantity    float64 `gorm:"not null" json:"quantity"`
	UnitPrice   float64 `gorm:"not null" json:"unit_price"`
}

// Subtotal returns quantity times unit price.
func (l SaleOrderLine) Subtotal() float64 {
	return l.Quantity * l.UnitPrice
}

// SignatureRequest is the signature state carried by an order. Signer and
// placement are frozen when the transaction is created so that a failed
// launch can be retried with the same parameters.
type SignatureRequest struct {
	TransactionUUID *string         `gorm:"size:64;uniqueIndex" json:"transaction_uuid,omitempty"`
	DocumentID      string          `gorm:"size:128" json:"document_id,omitempty"`
	URL             string          `gorm:"size:1024" json:"url,omitempty"`
	Status          SignatureStatus `gorm:"size:20;not null;default:'draft'" json:"status"`

	TemplateID  *uint  `json:"template_id,omitempty"`
	SignerID    *uint  `json:"signer_id,omitempty"`
	SignerName  string `gorm:"size:255" json:"signer_name,omitempty"`
	SignerEmail string `gorm:"size:255" json:"signer_email,omitempty"`
	SignerPhone string `gorm:"size:50" json:"signer_phone,omitempty"`

	Page          int           `json:"page,omitempty"`
	XAxis         int           `json:"x_axis,omitempty"`
	YAxis         int           `json:"y_axis,omitempty"`
	SignatureType SignatureType `gorm:"size:20" json:"signature_type,omitempty"`

	// LaunchingAt marks a launch call in flight for the current transaction.
	LaunchingAt      *time.Time `json:"-"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	SignedAt         *time.Time `json:"signed_at,omitempty"`
	SignedDocumentID *uint      `json:"signed_document_id,omitempty"`
}

// UUID returns the transaction uuid or an empty string.
func (s *SignatureRequest) UUID() string {
	if s.TransactionUUID == nil {
		return ""
	}
	return *s.TransactionUUID
}

// HasTransaction reports whether a transaction was created for the current cycle.
func (s *SignatureRequest) HasTransaction() bool {
	return s.UUID() != ""
}

// LaunchPending reports a cycle whose transaction exists but was never launched.
// SentAt is only set by a successful launch; the signer url may legitimately be empty.
func (s *SignatureRequest) LaunchPending() bool {
	return s.HasTransaction() && s.SentAt == nil && s.Status == SignatureStatusSent
}

// Refreshable reports whether asking the API for the status makes sense.
func (s *SignatureRequest) Refreshable() bool {
	return s.HasTransaction() && !s.Status.IsTerminal()
}

// CanSend reports whether a new cycle may start without discarding an active one.
func (s *SignatureRequest) CanSend() bool {
	return s.Status == SignatureStatusDraft || s.Status.IsTerminal()
}

// History outcomes.
const (
	HistoryOutcomeLaunched  = "launched"
	HistoryOutcomeAbandoned = "abandoned"
)

// SignatureHistory records one signature request sent for an order. Rows are never updated.
type SignatureHistory struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	SaleOrderID     uint      `gorm:"index;not null" json:"sale_order_id"`
	TransactionUUID string    `gorm:"size:64;not null" json:"transaction_uuid"`
	SignerID        *uint     `json:"signer_id,omitempty"`
	Recipient       string    `gorm:"size:255;not null" json:"recipient"`
	TemplateID      *uint     `gorm:"index" json:"template_id,omitempty"`
	Outcome         string    `gorm:"size:20;not null" json:"outcome"`
	SentAt          time.Time `gorm:"not null" json:"sent_at"`
}
