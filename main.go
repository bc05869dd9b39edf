package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	apihttp "cashdesk-cloud/internal/api/http"
	"cashdesk-cloud/internal/audit"
	"cashdesk-cloud/internal/auth"
	"cashdesk-cloud/internal/eventing"
	"cashdesk-cloud/internal/eventing/eventbus"
	eventingrepo "cashdesk-cloud/internal/eventing/infrastructure/postgres"
	masterdatarepo "cashdesk-cloud/internal/masterdata/infrastructure/postgres"
	masterdatahttp "cashdesk-cloud/internal/masterdata/interfaces/http"
	"cashdesk-cloud/internal/observability/metrics"
	reconcileapp "cashdesk-cloud/internal/reconcile/application"
	reconcileevents "cashdesk-cloud/internal/reconcile/application/events"
	reconcilerepo "cashdesk-cloud/internal/reconcile/infrastructure/postgres"
	reconcileinterfaces "cashdesk-cloud/internal/reconcile/interfaces"
	sessionapp "cashdesk-cloud/internal/session/application"
	sessionevents "cashdesk-cloud/internal/session/application/events"
	sessionrepo "cashdesk-cloud/internal/session/infrastructure/postgres"
	sessioninterfaces "cashdesk-cloud/internal/session/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	registerChecker := auth.NewRegisterChecker(db)
	auditRepo := audit.NewRepository(db)

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(reconcileevents.LedgerSettled{})
	registry.Register(sessionevents.SessionOpened{})
	registry.Register(sessionevents.SessionClosed{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, cfg.TenantID, baseBus)

	// The invoicing consumer represents the tax invoice emission handoff.
	// Processed-store bookkeeping keeps it idempotent across redeliveries.
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[reconcileevents.LedgerSettled](), "invoicing.dispatch", func(ctx context.Context, event any) error {
		evt, ok := event.(reconcileevents.LedgerSettled)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		logger.Printf("invoice dispatch: tenant=%s ledger=%s protocol=%s amount=%s",
			evt.TenantID, evt.LedgerID, evt.ProtocolKey, evt.AmountDue)
		return nil
	}, processedStore)

	ledgerRepo := reconcilerepo.NewRepository(db)
	sessionRepo := sessionrepo.NewRepository(db)
	registerRepo := masterdatarepo.NewRegisterRepository(db)

	profiles, err := reconcileapp.LoadProfiles()
	if err != nil {
		logger.Fatalf("field profiles error: %v", err)
	}

	var ledgerPublisher reconcileapp.EventPublisher = reconcileinterfaces.NewOutboxPublisher(publisher)
	if !cfg.OutboxEnabled {
		ledgerPublisher = reconcileinterfaces.NewLoggingPublisher(logger)
	}
	importService := reconcileapp.NewImportService(ledgerRepo, profiles, logger, nil, newLedgerID)
	paymentService := reconcileapp.NewPaymentService(ledgerRepo, ledgerPublisher, logger, nil)
	queryService := reconcileapp.NewQueryService(ledgerRepo, nil)
	migrationService := reconcileapp.NewMigrationService(ledgerRepo, sessionRepo, logger)
	sessionService := sessionapp.NewService(sessionRepo, migrationService, queryService, ledgerPublisher, logger, nil, newSessionID)

	importHandler, err := reconcileinterfaces.NewImportHandler(importService, auditRepo)
	if err != nil {
		logger.Fatalf("import handler error: %v", err)
	}
	paymentHandler, err := reconcileinterfaces.NewPaymentHandler(paymentService, auditRepo)
	if err != nil {
		logger.Fatalf("payment handler error: %v", err)
	}
	ledgerHandler, err := reconcileinterfaces.NewLedgerHandler(queryService)
	if err != nil {
		logger.Fatalf("ledger handler error: %v", err)
	}
	bookExporter, err := reconcileinterfaces.NewSessionBookExporter(queryService)
	if err != nil {
		logger.Fatalf("book exporter error: %v", err)
	}
	sessionHandler, err := sessioninterfaces.NewHandler(sessionService, registerChecker, bookExporter, auditRepo)
	if err != nil {
		logger.Fatalf("session handler error: %v", err)
	}
	registersHandler, err := masterdatahttp.NewHandler(registerRepo, auditRepo)
	if err != nil {
		logger.Fatalf("registers handler error: %v", err)
	}

	// Background outbox drain. Inline dispatch on publish is best-effort;
	// this loop picks up what it missed.
	if cfg.OutboxEnabled {
		go runOutboxDrain(dispatcher, cfg, logger)
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/imports", importHandler)
	mux.Handle("/api/v1/payments", paymentHandler)
	mux.Handle("/api/v1/payments/settle", paymentHandler)
	mux.Handle("/api/v1/ledgers", ledgerHandler)
	mux.Handle("/api/v1/ledgers/", ledgerHandler)
	mux.Handle("/api/v1/sessions", sessionHandler)
	mux.Handle("/api/v1/sessions/", sessionHandler)
	mux.Handle("/api/v1/registers", registersHandler)
	mux.Handle("/api/v1/registers/", registersHandler)
	mux.Handle("/api/v1/reports/collections", apihttp.NewCollectionsHandler(db))
	mux.Handle("/api/v1/exports/collections.csv", apihttp.NewExportCollectionsCSVHandler(db))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func runOutboxDrain(dispatcher *eventing.Dispatcher, cfg config, logger *log.Logger) {
	ticker := time.NewTicker(cfg.DispatchInterval)
	defer ticker.Stop()
	for range ticker.C {
		result, err := dispatcher.Dispatch(context.Background(), cfg.DispatchBatch)
		if err != nil {
			logger.Printf("outbox dispatch error: %v", err)
		}
		metrics.AddOutboxDispatch(metrics.DispatchSent, result.Sent)
		metrics.AddOutboxDispatch(metrics.DispatchFailed, result.Failed)
	}
}

type config struct {
	DatabaseURL      string
	HTTPAddr         string
	TenantID         string
	JWTSecret        string
	DispatchInterval time.Duration
	DispatchBatch    int
	OutboxEnabled    bool
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:         getenvDefault("TENANT_ID", "tenant-demo"),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", 5*time.Second),
		DispatchBatch:    getenvIntDefault("OUTBOX_DISPATCH_BATCH", 50),
		OutboxEnabled:    getenvBoolDefault("OUTBOX_ENABLED", true),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func newLedgerID() string {
	return "led-" + eventing.NewEventID()
}

func newSessionID() string {
	return "ses-" + eventing.NewEventID()
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
