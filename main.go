package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/affordeals/storefront/internal/api"
	"github.com/affordeals/storefront/internal/auth"
	"github.com/affordeals/storefront/internal/db"
	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/payment"
	"github.com/affordeals/storefront/internal/services"
	"github.com/affordeals/storefront/internal/store"
	"github.com/affordeals/storefront/pkg/config"
	"github.com/stripe/stripe-go/v76"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.LoadConfig()
	ctx := context.Background()

	// Initialize OpenTelemetry metrics
	var appMetrics *metrics.AppMetrics
	if cfg.MetricsEnabled {
		m, meterProvider, err := metrics.InitMetrics(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize metrics: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := meterProvider.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error shutting down meter provider: %v", err)
			}
		}()
		appMetrics = m
	} else {
		log.Println("Metrics disabled")
		appMetrics = metrics.NewNoop(cfg.OTELServiceName)
	}

	// Initialize storage
	var (
		repo   store.Repository
		pinger api.Pinger
	)
	switch cfg.StoreBackend {
	case "memory":
		log.Println("Using in-memory store; data is lost on restart")
		repo = store.NewMemory()
	case "mysql":
		database, err := db.NewDB(ctx, cfg.GetDSN(), cfg.OTELServiceName)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		schemaSQL, err := os.ReadFile(cfg.SchemaPath)
		if err != nil {
			log.Printf("Warning: Could not read %s: %v", cfg.SchemaPath, err)
			log.Println("Assuming database schema already exists")
		} else if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
			log.Printf("Warning: Could not initialize schema: %v", err)
			log.Println("Assuming database schema already exists")
		}

		appMetrics.SetDBSystem("mysql")
		repo = store.NewMySQL(database.DB, appMetrics)
		pinger = database
	default:
		log.Fatalf("Unknown STORE_BACKEND %q (want mysql or memory)", cfg.StoreBackend)
	}

	provider, err := newPaymentProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to configure payments: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Println("Warning: JWT_SECRET is empty; every bearer token will be rejected")
	}

	// Initialize services
	authz := auth.Policy{}
	catalogService := services.NewCatalogService(repo, appMetrics, authz)
	cartService := services.NewCartService(repo, appMetrics)
	orderService := services.NewOrderService(repo, appMetrics, authz, provider, cfg.PaymentCurrency)
	reviewService := services.NewReviewService(repo, appMetrics)
	profileService := services.NewProfileService(repo, authz)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go cartService.MonitorActiveCarts(monitorCtx, 30*time.Second)

	app := api.NewApp(cfg, pinger, appMetrics, catalogService, cartService, orderService, reviewService, profileService)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GetAppPortInt()),
		Handler:      otelhttp.NewHandler(app.Handler(), cfg.OTELServiceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %d (store=%s, payments=%s)", cfg.GetAppPortInt(), cfg.StoreBackend, cfg.PaymentProvider)
		log.Printf("OTLP endpoint: %s", cfg.OTELExporterOTLPEndpoint)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopMonitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func newPaymentProvider(cfg *config.Config) (payment.Provider, error) {
	client := payment.NewHTTPClient(30 * time.Second)

	switch cfg.PaymentProvider {
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required for PAYMENT_PROVIDER=stripe")
		}
		return payment.NewStripe(cfg.StripeSecretKey, stripe.NewBackends(client)), nil
	case "intasend":
		if cfg.IntaSendPublicKey == "" {
			return nil, fmt.Errorf("INTASEND_PUBLIC_KEY is required for PAYMENT_PROVIDER=intasend")
		}
		return payment.NewIntaSend(cfg.IntaSendBaseURL, cfg.IntaSendPublicKey, cfg.PaymentRedirectURL, client), nil
	case "none", "":
		return payment.Noop{}, nil
	}
	return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q (want stripe, intasend or none)", cfg.PaymentProvider)
}
