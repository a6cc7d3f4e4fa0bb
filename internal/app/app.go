package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/atvirokodosprendimai/invoices/internal/adapters/events"
	"github.com/atvirokodosprendimai/invoices/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/invoices/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/invoices/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/core/ports"
	"github.com/atvirokodosprendimai/invoices/internal/core/usecase"
	"github.com/atvirokodosprendimai/invoices/internal/i18n"
	"github.com/atvirokodosprendimai/invoices/internal/logging"
	"github.com/atvirokodosprendimai/invoices/internal/metrics"
	"github.com/atvirokodosprendimai/invoices/internal/module"
	"github.com/atvirokodosprendimai/invoices/internal/searcher"
	"github.com/atvirokodosprendimai/invoices/migrations"
)

type Config struct {
	Addr   string
	DBPath string

	BootstrapAPIKey  string
	BootstrapTenant  string
	BootstrapKeyName string
	BootstrapRights  string

	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration

	OutboxInterval  time.Duration
	OutboxBatchSize int

	ModuleConfigPath string
	SessionTTL       time.Duration
	MutationTimeout  time.Duration
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openStore(ctx context.Context, path string, log zerolog.Logger) (*gormsqlite.DB, error) {
	db, err := gormsqlite.Open(path, logging.Component(log, "sqlite"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	version, err := migrations.Up(ctx, writeSQLDB)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Int64("schema_version", version).Str("path", path).Msg("invoice store ready")
	return db, nil
}

func NewServer(ctx context.Context, cfg Config, log zerolog.Logger) (*http.Server, io.Closer, error) {
	db, err := openStore(ctx, cfg.DBPath, log)
	if err != nil {
		return nil, nil, err
	}

	mod := module.InvoiceModule(module.Config{})
	if cfg.ModuleConfigPath != "" {
		overrides, err := module.LoadOverrides(cfg.ModuleConfigPath)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		mod = module.InvoiceModule(overrides)
	}

	bundle, err := i18n.Load(language.English)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("load translations: %w", err)
	}

	schema, err := usecase.NewInvoiceSchema()
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	m := metrics.New()
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	invoiceStore := sqliteadapter.NewInvoiceStore(db)
	auditTrailRepo := sqliteadapter.NewAuditTrailRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)
	journalRepo := sqliteadapter.NewJournalRepository(db)

	invoiceService := usecase.NewInvoiceService(invoiceStore, auditTrailRepo, schema)
	authService := usecase.NewAuthService(apiKeyRepo)
	mutationService := usecase.NewMutationService(invoiceService, logging.Component(log, "mutations"), m, cfg.MutationTimeout)
	journalService := usecase.NewJournalService(journalRepo, logging.Component(log, "journal"), m)

	var publisher ports.EventPublisher = events.NewLogPublisher(logging.Component(log, "events"))
	if cfg.WebhookURL != "" {
		publisher = events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
	}
	interval := cfg.OutboxInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	batch := cfg.OutboxBatchSize
	if batch <= 0 {
		batch = 100
	}
	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, publisher, logging.Component(log, "outbox"), m, interval, batch).
		WithCodec(usecase.NewInvoiceEventCodec())
	dispatcher.Start(context.Background())

	sessions := searcher.NewRegistry(searcher.RegistryConfig{
		Mutations: mutationService,
		Journal:   journalService,
		Navigator: mod,
		Bundle:    bundle,
		Metrics:   m,
		Log:       logging.Component(log, "searcher"),
		TTL:       cfg.SessionTTL,
	})

	if cfg.BootstrapAPIKey != "" {
		if err := bootstrapKey(apiKeyRepo, cfg); err != nil {
			_ = sessions.Close()
			_ = dispatcher.Close()
			_ = db.Close()
			return nil, nil, err
		}
	}

	handler := httpapi.NewHandler(httpapi.Services{
		Invoices:  invoiceService,
		Auth:      authService,
		Journal:   journalService,
		Mutations: mutationService,
		Sessions:  sessions,
		Module:    mod,
		Bundle:    bundle,
		Metrics:   m,
		Log:       logging.Component(log, "http"),
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Order matters: in-flight mutations settle before sessions stop journaling them.
	return server, resourceCloser{closers: []io.Closer{mutationService, sessions, dispatcher, db}}, nil
}

func bootstrapKey(repo ports.APIKeyRepository, cfg Config) error {
	tenant := cfg.BootstrapTenant
	if tenant == "" {
		tenant = "default"
	}
	name := cfg.BootstrapKeyName
	if name == "" {
		name = "bootstrap"
	}
	rights, err := domain.ParsePermissions(cfg.BootstrapRights)
	if err != nil {
		return fmt.Errorf("bootstrap rights: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = repo.Upsert(ctx, domain.APIKey{
		TokenHash: usecase.HashToken(cfg.BootstrapAPIKey),
		TenantID:  tenant,
		Name:      name,
		Rights:    rights,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("bootstrap api key: %w", err)
	}
	return nil
}

// ImportInvoices reads a JSON array of invoice documents from path and upserts them for tenant.
func ImportInvoices(ctx context.Context, dbPath, tenant, path string, log zerolog.Logger) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read import file: %w", err)
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return 0, fmt.Errorf("decode import file: %w", err)
	}

	db, err := openStore(ctx, dbPath, log)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	schema, err := usecase.NewInvoiceSchema()
	if err != nil {
		return 0, err
	}
	svc := usecase.NewInvoiceService(sqliteadapter.NewInvoiceStore(db), sqliteadapter.NewAuditTrailRepository(db), schema)
	return svc.Import(ctx, tenant, docs, domain.MutationMetadata{Actor: "import", Source: "cli"})
}
