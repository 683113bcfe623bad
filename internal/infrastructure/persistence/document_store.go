package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/notaria/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormDocumentStore implements billing.DocumentStore over the documents table.
// It only writes billing columns; the workflow status is never touched.
type GormDocumentStore struct {
	db   *gorm.DB
	caps Capabilities
}

// NewGormDocumentStore creates a new GormDocumentStore
func NewGormDocumentStore(db *gorm.DB, caps Capabilities) *GormDocumentStore {
	return &GormDocumentStore{db: db, caps: caps}
}

// FindByProtocolNumber finds the document carrying protocolNumber
func (s *GormDocumentStore) FindByProtocolNumber(ctx context.Context, protocolNumber string) (*billing.DocumentRef, error) {
	var model models.DocumentModel
	if err := s.db.WithContext(ctx).
		Where("protocol_number = ?", protocolNumber).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	ref := model.ToDomain()
	return &ref, nil
}

// FindByInvoiceNumberField finds documents whose invoice number equals value
func (s *GormDocumentStore) FindByInvoiceNumberField(ctx context.Context, value string) ([]billing.DocumentRef, error) {
	var rows []models.DocumentModel
	if err := s.db.WithContext(ctx).
		Where("invoice_number = ?", value).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDocumentRefs(rows), nil
}

// FindByInvoiceNumberSuffix finds documents whose invoice number ends with suffix
func (s *GormDocumentStore) FindByInvoiceNumberSuffix(ctx context.Context, suffix string, limit int) ([]billing.DocumentRef, error) {
	var rows []models.DocumentModel
	if err := s.db.WithContext(ctx).
		Where(`invoice_number LIKE ? ESCAPE '\'`, "%"+escapeLike(suffix)).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDocumentRefs(rows), nil
}

// FindCandidatesByClientNameFragment returns the newest documents whose client
// name contains fragment, optionally only those no invoice points to yet
func (s *GormDocumentStore) FindCandidatesByClientNameFragment(ctx context.Context, fragment string, onlyUnlinked bool, limit int) ([]billing.DocumentRef, error) {
	query := s.db.WithContext(ctx).Model(&models.DocumentModel{}).
		Where(s.caps.containsCondition("client_name")+` ESCAPE '\'`, "%"+escapeLike(fragment)+"%")
	if onlyUnlinked {
		query = query.Where("NOT EXISTS (SELECT 1 FROM invoices i WHERE i.document_id = documents.id)")
	}
	var rows []models.DocumentModel
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDocumentRefs(rows), nil
}

// SetInvoiceNumber fills the invoice number only when it is empty
func (s *GormDocumentStore) SetInvoiceNumber(ctx context.Context, documentID uuid.UUID, number string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.DocumentModel{}).
		Where("id = ? AND (invoice_number IS NULL OR invoice_number = '')", documentID).
		Updates(map[string]any{"invoice_number": number, "updated_at": time.Now()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdatePaymentConfirmed marks the document as paid
func (s *GormDocumentStore) UpdatePaymentConfirmed(ctx context.Context, documentID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.DocumentModel{}).
		Where("id = ?", documentID).
		Updates(map[string]any{"payment_confirmed": true, "updated_at": time.Now()}).Error
}

// AnnotateCreditNote records why and when the document's invoice was cancelled
func (s *GormDocumentStore) AnnotateCreditNote(ctx context.Context, documentID uuid.UUID, note billing.CreditNoteAnnotation) error {
	return s.db.WithContext(ctx).Model(&models.DocumentModel{}).
		Where("id = ?", documentID).
		Updates(map[string]any{
			"credit_note_reason":          note.Reason,
			"credit_note_previous_status": string(note.PreviousStatus),
			"credit_note_at":              note.Date,
			"updated_at":                  time.Now(),
		}).Error
}

// AppendPaymentEvent adds an entry to the document's payment timeline
func (s *GormDocumentStore) AppendPaymentEvent(ctx context.Context, event billing.PaymentEvent) error {
	return s.db.WithContext(ctx).Create(models.PaymentEventModelFromDomain(event)).Error
}

func toDocumentRefs(rows []models.DocumentModel) []billing.DocumentRef {
	out := make([]billing.DocumentRef, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

var _ billing.DocumentStore = (*GormDocumentStore)(nil)
