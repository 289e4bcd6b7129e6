package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/netline-isp/billing/internal/accounting"
	"github.com/netline-isp/billing/internal/ar"
	"github.com/netline-isp/billing/internal/customers"
	"github.com/netline-isp/billing/internal/expenses"
	"github.com/netline-isp/billing/internal/integration"
	"github.com/netline-isp/billing/internal/notify"
	"github.com/netline-isp/billing/internal/observability"
	"github.com/netline-isp/billing/internal/platform/cache"
	"github.com/netline-isp/billing/internal/reporting"
	"github.com/netline-isp/billing/internal/shared"
)

// Deps carries the infrastructure shared by every binary.
type Deps struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	// Notifier receives payment ids after commit. Nil disables receipts.
	Notifier ar.PaymentNotifier
}

// Services is the wired domain layer.
type Services struct {
	Accounting  *accounting.Service
	Billing     *ar.Service
	Expenses    *expenses.Service
	Reporting   *reporting.Service
	Receipts    *notify.Service
	Idempotency *shared.IdempotencyStore
}

// NewServices wires repositories, posting hooks and services together.
func NewServices(d Deps) *Services {
	cfg := d.Config
	loc := cfg.Location()
	auditLogger := shared.NewAuditLogger(d.Pool)
	reportCache := cache.NewVersioned(d.Redis, cfg.ReportCacheTTL)
	idempotency := shared.NewIdempotencyStore(d.Pool)

	accountingRepo := accounting.NewRepository(d.Pool)
	accountingService := accounting.NewService(accountingRepo, auditLogger, reportCache)
	accountingService.SetLogger(d.Logger)
	hooks := integration.NewHooks(accountingService, accountingRepo, cfg.AccountRoles())

	customerRepo := customers.NewRepository(d.Pool)
	arRepo := ar.NewRepository(d.Pool)
	billing := ar.NewService(arRepo, customerRepo, ar.Config{
		Location:       loc,
		DefaultDueDays: cfg.BillingDefaultDueDays,
		LockTTL:        cfg.BillingLockTTL,
	}, d.Logger)
	billing.SetIntegrationHandler(hooks)
	billing.AddFullyPaidHandler(customers.NewStatusHandler(customerRepo, d.Logger))
	billing.SetIdempotencyStore(idempotency)
	billing.SetAudit(auditLogger)
	billing.SetCache(reportCache)
	if d.Redis != nil {
		billing.SetLocker(shared.NewLocker(d.Redis))
	}
	if d.Notifier != nil {
		billing.SetNotifier(d.Notifier)
	}
	if d.Metrics != nil {
		billing.SetMetrics(d.Metrics)
	}

	expenseService := expenses.NewService(expenses.NewRepository(d.Pool), hooks, auditLogger, reportCache, loc)
	expenseService.SetLogger(d.Logger)

	reportingService := reporting.NewService(reporting.NewRepository(d.Pool), reportCache, d.Logger, loc)
	reportingService.SetAudit(auditLogger)
	if d.Metrics != nil {
		reportingService.SetMetrics(d.Metrics)
	}

	receipts := notify.NewService(
		notify.NewRepository(d.Pool),
		arRepo,
		newSender(cfg, d.Logger),
		notify.NewRenderer(language.English, cfg.NotifyCurrency),
		d.Logger,
	)

	return &Services{
		Accounting:  accountingService,
		Billing:     billing,
		Expenses:    expenseService,
		Reporting:   reportingService,
		Receipts:    receipts,
		Idempotency: idempotency,
	}
}

func newSender(cfg *Config, logger *slog.Logger) notify.Sender {
	if cfg.NotifyGatewayURL == "" {
		return notify.NewLogSender(logger)
	}
	return notify.NewWebhookSender(cfg.NotifyGatewayURL, cfg.NotifyGatewayToken, &http.Client{Timeout: 10 * time.Second})
}
