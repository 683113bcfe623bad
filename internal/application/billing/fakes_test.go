package billing

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MemoryInvoiceRepository is an in-memory billing.InvoiceRepository with
// optimistic version checks
type MemoryInvoiceRepository struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]billing.Invoice
}

func NewMemoryInvoiceRepository() *MemoryInvoiceRepository {
	return &MemoryInvoiceRepository{invoices: make(map[uuid.UUID]billing.Invoice)}
}

func (r *MemoryInvoiceRepository) FindByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &inv, nil
}

func (r *MemoryInvoiceRepository) FindByAnyNumber(_ context.Context, spellings []string) (*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if slices.Contains(spellings, inv.InvoiceNumber) || slices.Contains(spellings, inv.InvoiceNumberRaw) {
			return &inv, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *MemoryInvoiceRepository) FindOpenBySource(_ context.Context, source billing.SyncSource) ([]*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*billing.Invoice
	for _, inv := range r.invoices {
		if inv.SyncSource == source && inv.Status.IsOpen() && inv.SupersededAt == nil {
			out = append(out, &inv)
		}
	}
	return out, nil
}

func (r *MemoryInvoiceRepository) Create(_ context.Context, inv *billing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return shared.ErrAlreadyExists
		}
	}
	r.invoices[inv.ID] = *inv
	return nil
}

func (r *MemoryInvoiceRepository) Update(_ context.Context, inv *billing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[inv.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != inv.Version {
		return shared.ErrConcurrencyConflict
	}
	inv.IncrementVersion()
	r.invoices[inv.ID] = *inv
	return nil
}

func (r *MemoryInvoiceRepository) ByNumber(number string) *billing.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.InvoiceNumber == number {
			return &inv
		}
	}
	return nil
}

func (r *MemoryInvoiceRepository) Put(inv *billing.Invoice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[inv.ID] = *inv
}

func (r *MemoryInvoiceRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invoices)
}

// MemoryPaymentRepository enforces the (receipt, invoice) natural key
type MemoryPaymentRepository struct {
	mu       sync.Mutex
	payments []*billing.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{}
}

func (r *MemoryPaymentRepository) Create(_ context.Context, p *billing.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payments {
		if existing.ReceiptNumber == p.ReceiptNumber && existing.InvoiceID == p.InvoiceID {
			return billing.ErrIdempotencyConflict
		}
	}
	r.payments = append(r.payments, p)
	return nil
}

func (r *MemoryPaymentRepository) Exists(_ context.Context, receipt string, invoiceID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ReceiptNumber == receipt && p.InvoiceID == invoiceID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryPaymentRepository) SumByInvoice(_ context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (r *MemoryPaymentRepository) ListByInvoice(_ context.Context, invoiceID uuid.UUID) ([]*billing.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*billing.Payment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryPaymentRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

// MemoryDocumentStore is an in-memory billing.DocumentStore
type MemoryDocumentStore struct {
	mu          sync.Mutex
	docs        []*billing.DocumentRef
	linked      map[uuid.UUID]bool
	confirmed   map[uuid.UUID]bool
	annotations map[uuid.UUID]billing.CreditNoteAnnotation
	events      []billing.PaymentEvent
}

func NewMemoryDocumentStore(docs ...billing.DocumentRef) *MemoryDocumentStore {
	s := &MemoryDocumentStore{
		linked:      make(map[uuid.UUID]bool),
		confirmed:   make(map[uuid.UUID]bool),
		annotations: make(map[uuid.UUID]billing.CreditNoteAnnotation),
	}
	for i := range docs {
		d := docs[i]
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		s.docs = append(s.docs, &d)
	}
	return s
}

func (s *MemoryDocumentStore) FindByProtocolNumber(_ context.Context, protocol string) (*billing.DocumentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.ProtocolNumber == protocol {
			c := *d
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *MemoryDocumentStore) FindByInvoiceNumberField(_ context.Context, value string) ([]billing.DocumentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.DocumentRef
	for _, d := range s.docs {
		if d.InvoiceNumber != "" && d.InvoiceNumber == value {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemoryDocumentStore) FindByInvoiceNumberSuffix(_ context.Context, suffix string, limit int) ([]billing.DocumentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.DocumentRef
	for _, d := range s.docs {
		if d.InvoiceNumber != "" && strings.HasSuffix(d.InvoiceNumber, suffix) && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemoryDocumentStore) FindCandidatesByClientNameFragment(_ context.Context, fragment string, onlyUnlinked bool, limit int) ([]billing.DocumentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.DocumentRef
	for _, d := range s.docs {
		if onlyUnlinked && s.linked[d.ID] {
			continue
		}
		if strings.Contains(strings.ToUpper(d.ClientName), strings.ToUpper(fragment)) && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemoryDocumentStore) SetInvoiceNumber(_ context.Context, id uuid.UUID, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.ID == id && d.InvoiceNumber == "" {
			d.InvoiceNumber = number
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryDocumentStore) UpdatePaymentConfirmed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed[id] = true
	return nil
}

func (s *MemoryDocumentStore) AnnotateCreditNote(_ context.Context, id uuid.UUID, note billing.CreditNoteAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotations[id] = note
	return nil
}

func (s *MemoryDocumentStore) AppendPaymentEvent(_ context.Context, e billing.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemoryDocumentStore) Confirmed(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed[id]
}

func (s *MemoryDocumentStore) Events() []billing.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// MockSyncLogRepository is a mock implementation of billing.SyncLogRepository
type MockSyncLogRepository struct {
	mock.Mock
}

func (m *MockSyncLogRepository) Save(ctx context.Context, l *billing.SyncLog) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *MockSyncLogRepository) FindLatest(ctx context.Context, types ...billing.FileType) (*billing.SyncLog, error) {
	args := m.Called(ctx, types)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SyncLog), args.Error(1)
}

func (m *MockSyncLogRepository) FindRecent(ctx context.Context, limit int) ([]*billing.SyncLog, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.SyncLog), args.Error(1)
}

// MemoryIdempotencyStore is a minimal shared.IdempotencyStore
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (s *MemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *MemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *MemoryIdempotencyStore) Close() error { return nil }

type testEnv struct {
	invoices   *MemoryInvoiceRepository
	payments   *MemoryPaymentRepository
	documents  *MemoryDocumentStore
	canon      *billing.Canonicalizer
	reconciler *Reconciler
}

func newTestEnv(docs ...billing.DocumentRef) *testEnv {
	env := &testEnv{
		invoices:  NewMemoryInvoiceRepository(),
		payments:  NewMemoryPaymentRepository(),
		documents: NewMemoryDocumentStore(docs...),
		canon:     billing.NewCanonicalizer(nil),
	}
	tx := NewNoOpTransactionScope(env.invoices, env.payments, env.documents)
	env.reconciler = NewReconciler(tx, env.canon, NewLinker(env.canon, nil), nil)
	return env
}

func (s *MemoryDocumentStore) MarkLinked(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linked[id] = true
}

func (s *MemoryDocumentStore) Annotation(id uuid.UUID) (billing.CreditNoteAnnotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.annotations[id]
	return a, ok
}

func (s *MemoryDocumentStore) Doc(id uuid.UUID) billing.DocumentRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.ID == id {
			return *d
		}
	}
	return billing.DocumentRef{}
}
