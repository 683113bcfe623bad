package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentType represents how a payment was settled
type PaymentType string

const (
	PaymentTypeCash     PaymentType = "CASH"
	PaymentTypeCheck    PaymentType = "CHECK"
	PaymentTypeCard     PaymentType = "CARD"
	PaymentTypeTransfer PaymentType = "TRANSFER"
	PaymentTypeCredit   PaymentType = "CREDIT"
)

// IsValid checks if the payment type is valid
func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypeCash, PaymentTypeCheck, PaymentTypeCard, PaymentTypeTransfer, PaymentTypeCredit:
		return true
	}
	return false
}

// Payment is an append-only settlement applied to one invoice.
// (ReceiptNumber, InvoiceID) is its natural key.
type Payment struct {
	shared.BaseEntity
	ReceiptNumber string          `json:"receipt_number"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	PaymentType   PaymentType     `json:"payment_type"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	Source        SyncSource      `json:"source"`
	Concept       string          `json:"concept,omitempty"`
}

// NewPayment creates a payment against invoiceID
func NewPayment(
	invoiceID uuid.UUID,
	receiptNumber string,
	amount decimal.Decimal,
	paidAt time.Time,
	paymentType PaymentType,
	source SyncSource,
) (*Payment, error) {
	if strings.TrimSpace(receiptNumber) == "" {
		return nil, shared.NewDomainError("INVALID_RECEIPT_NUMBER", "Receipt number cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainErrorf("INVALID_AMOUNT", "Payment amount must be positive, got %s", amount)
	}
	if !paymentType.IsValid() {
		return nil, shared.NewDomainErrorf("INVALID_PAYMENT_TYPE", "Invalid payment type: %s", paymentType)
	}
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	return &Payment{
		BaseEntity:    shared.NewBaseEntity(),
		ReceiptNumber: receiptNumber,
		Amount:        amount,
		PaymentDate:   paidAt,
		PaymentType:   paymentType,
		InvoiceID:     invoiceID,
		Source:        source,
	}, nil
}

// PaymentEvent is an entry on a document's payment timeline
type PaymentEvent struct {
	ID            uuid.UUID       `json:"id"`
	DocumentID    uuid.UUID       `json:"document_id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	ReceiptNumber string          `json:"receipt_number"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewPaymentEvent creates a timeline entry for payment p on documentID
func NewPaymentEvent(documentID uuid.UUID, p *Payment) PaymentEvent {
	return PaymentEvent{
		ID:            uuid.New(),
		DocumentID:    documentID,
		InvoiceID:     p.InvoiceID,
		ReceiptNumber: p.ReceiptNumber,
		Amount:        p.Amount,
		OccurredAt:    p.PaymentDate,
	}
}

// CreditNote cancels an invoice. It is applied, never stored.
type CreditNote struct {
	ReceiptNumber    string
	InvoiceNumberRaw string
	Amount           decimal.Decimal
	Reason           string
	Date             time.Time
}
