package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/notaria/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements billing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db   *gorm.DB
	caps Capabilities
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB, caps Capabilities) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db, caps: caps}
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByAnyNumber matches spellings against the canonical and raw columns
func (r *GormInvoiceRepository) FindByAnyNumber(ctx context.Context, spellings []string) (*billing.Invoice, error) {
	if len(spellings) == 0 {
		return nil, shared.ErrNotFound
	}
	var model models.InvoiceModel
	err := r.db.WithContext(ctx).
		Where("invoice_number IN ? OR invoice_number_raw IN ?", spellings, spellings).
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpenBySource lists non-superseded PENDING/PARTIAL invoices of source
func (r *GormInvoiceRepository) FindOpenBySource(ctx context.Context, source billing.SyncSource) ([]*billing.Invoice, error) {
	var rows []models.InvoiceModel
	err := r.db.WithContext(ctx).
		Where("sync_source = ? AND status IN ? AND superseded_at IS NULL",
			source, []billing.InvoiceStatus{billing.InvoiceStatusPending, billing.InvoiceStatusPartial}).
		Order("invoice_number").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*billing.Invoice, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// Create inserts a new invoice. A duplicate number is shared.ErrAlreadyExists.
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	db := r.db.WithContext(ctx)
	if r.caps.OnConflict {
		db = db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "invoice_number"}}, DoNothing: true})
	}
	result := db.Create(model)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return shared.ErrAlreadyExists
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrAlreadyExists
	}
	return nil
}

// Update writes inv if its version is unchanged since it was read, then bumps it
func (r *GormInvoiceRepository) Update(ctx context.Context, inv *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	model.Version = inv.Version + 1

	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("invoice %s: %w", inv.InvoiceNumber, shared.ErrConcurrencyConflict)
	}
	inv.IncrementVersion()
	return nil
}

// GormPaymentRepository implements billing.PaymentRepository using GORM
type GormPaymentRepository struct {
	db   *gorm.DB
	caps Capabilities
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB, caps Capabilities) *GormPaymentRepository {
	return &GormPaymentRepository{db: db, caps: caps}
}

// Create inserts a payment; an existing (receipt, invoice) pair is
// billing.ErrIdempotencyConflict and leaves the transaction usable.
func (r *GormPaymentRepository) Create(ctx context.Context, p *billing.Payment) error {
	db := r.db.WithContext(ctx)
	if r.caps.OnConflict {
		db = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "receipt_number"}, {Name: "invoice_id"}},
			DoNothing: true,
		})
	}
	result := db.Create(models.PaymentModelFromDomain(p))
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return billing.ErrIdempotencyConflict
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return billing.ErrIdempotencyConflict
	}
	return nil
}

// Exists checks the (receipt, invoice) natural key
func (r *GormPaymentRepository) Exists(ctx context.Context, receiptNumber string, invoiceID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("receipt_number = ? AND invoice_id = ?", receiptNumber, invoiceID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SumByInvoice totals every payment recorded against invoiceID
func (r *GormPaymentRepository) SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Select("SUM(amount)").
		Where("invoice_id = ?", invoiceID).
		Row().Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// ListByInvoice returns payments of invoiceID oldest first
func (r *GormPaymentRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*billing.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("payment_date ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*billing.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

var (
	_ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
	_ billing.PaymentRepository = (*GormPaymentRepository)(nil)
)
