package ar

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/netline-isp/billing/internal/customers"
	"github.com/netline-isp/billing/internal/shared"
)

// RepositoryPort defines data access methods for billing.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	ListOverdueCandidates(ctx context.Context, today time.Time) ([]int64, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	MarkPaymentNotified(ctx context.Context, id int64) error
}

// TxRepository exposes operations that run inside one transaction.
type TxRepository interface {
	HasInvoiceForPeriod(ctx context.Context, customerID int64, start, end time.Time) (bool, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertPayment(ctx context.Context, pay Payment) (Payment, error)
}

// CustomerDirectory is the subscriber lookup used by billing runs.
type CustomerDirectory interface {
	ListActive(ctx context.Context) ([]customers.Customer, error)
	Get(ctx context.Context, id int64) (customers.Customer, error)
	GetPlan(ctx context.Context, id int64) (customers.Plan, error)
	Suspend(ctx context.Context, id int64) (bool, error)
}

// IdempotencyPort claims request keys within the caller's transaction.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// Locker guards billing runs against concurrent execution.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// AuditPort records billing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheInvalidator is bumped after ledger-affecting writes.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Recorder receives billing counters.
type Recorder interface {
	InvoicesGenerated(n int)
	PaymentRecorded(method string, amount int64)
	InvoicesMarkedOverdue(n int)
}

// Config tunes billing behaviour.
type Config struct {
	Location       *time.Location
	DefaultDueDays int
	LockTTL        time.Duration
}

// Service handles invoice and payment business logic.
type Service struct {
	repo        RepositoryPort
	customers   CustomerDirectory
	integration IntegrationHandler
	fullyPaid   []FullyPaidHandler
	idempotency IdempotencyPort
	locker      Locker
	notifier    PaymentNotifier
	audit       AuditPort
	cache       CacheInvalidator
	metrics     Recorder
	logger      *slog.Logger
	cfg         Config
	now         func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, directory CustomerDirectory, cfg Config, logger *slog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultDueDays <= 0 {
		cfg.DefaultDueDays = 10
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, customers: directory, cfg: cfg, logger: logger, now: time.Now}
}

// SetIntegrationHandler wires ledger auto-posting.
func (s *Service) SetIntegrationHandler(handler IntegrationHandler) {
	s.integration = handler
}

// AddFullyPaidHandler registers a consumer of invoice settlement.
func (s *Service) AddFullyPaidHandler(handler FullyPaidHandler) {
	if handler != nil {
		s.fullyPaid = append(s.fullyPaid, handler)
	}
}

// SetIdempotencyStore enables Idempotency-Key handling for payments.
func (s *Service) SetIdempotencyStore(store IdempotencyPort) {
	s.idempotency = store
}

// SetLocker configures the billing run lock.
func (s *Service) SetLocker(locker Locker) {
	s.locker = locker
}

// SetNotifier configures the post-commit payment notification.
func (s *Service) SetNotifier(notifier PaymentNotifier) {
	s.notifier = notifier
}

// SetAudit configures audit logging.
func (s *Service) SetAudit(audit AuditPort) {
	s.audit = audit
}

// SetCache configures report cache invalidation.
func (s *Service) SetCache(cache CacheInvalidator) {
	s.cache = cache
}

// SetMetrics configures billing counters.
func (s *Service) SetMetrics(metrics Recorder) {
	s.metrics = metrics
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) today() time.Time {
	return shared.DateOf(s.now(), s.cfg.Location)
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.WarnContext(ctx, "report cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = "system"
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publishFullyPaid(ctx context.Context, inv Invoice) error {
	evt := shared.InvoiceFullyPaid{InvoiceID: inv.ID, CustomerID: inv.CustomerID, PaidAt: s.now()}
	for _, h := range s.fullyPaid {
		if err := h.HandleInvoiceFullyPaid(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// GetInvoice returns one invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, shared.Invalid("ar: invoice id required")
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	return inv, shared.Persistence("ar: get invoice", err)
}

// ListInvoices returns invoices matching filter.
func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Invalid("ar: unknown status %q", filter.Status)
	}
	invoices, err := s.repo.ListInvoices(ctx, filter)
	return invoices, shared.Persistence("ar: list invoices", err)
}

// GetPayment returns one payment.
func (s *Service) GetPayment(ctx context.Context, id int64) (Payment, error) {
	if id <= 0 {
		return Payment{}, shared.Invalid("ar: payment id required")
	}
	pay, err := s.repo.GetPayment(ctx, id)
	return pay, shared.Persistence("ar: get payment", err)
}

// ListPayments returns payments matching filter.
func (s *Service) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	payments, err := s.repo.ListPayments(ctx, filter)
	return payments, shared.Persistence("ar: list payments", err)
}

// MarkPaymentNotified flags a payment receipt as delivered.
func (s *Service) MarkPaymentNotified(ctx context.Context, id int64) error {
	return shared.Persistence("ar: mark notified", s.repo.MarkPaymentNotified(ctx, id))
}
