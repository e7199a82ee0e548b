package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/shirthaus/api/internal/di"
	"github.com/shirthaus/api/internal/handlers"
	"github.com/shirthaus/api/internal/payments"
	"github.com/shirthaus/api/internal/platform/auth"
	"github.com/shirthaus/api/internal/platform/config"
	pfirestore "github.com/shirthaus/api/internal/platform/firestore"
	"github.com/shirthaus/api/internal/platform/idempotency"
	"github.com/shirthaus/api/internal/platform/jobs"
	"github.com/shirthaus/api/internal/platform/observability"
	"github.com/shirthaus/api/internal/platform/secrets"
	platformstorage "github.com/shirthaus/api/internal/platform/storage"
	"github.com/shirthaus/api/internal/platform/textutil"
	firestoreRepo "github.com/shirthaus/api/internal/repositories/firestore"
	"github.com/shirthaus/api/internal/services"
	"github.com/shirthaus/api/internal/shipping"
)

const tempOrderPurgeInterval = 10 * time.Minute

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(
			"Stripe.APIKey",
			"Stripe.WebhookSecret",
			"Shipping.APIKey",
			"Shipping.WebhookSecret",
		),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(ctx, firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	gcsClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	labelWriter, err := platformstorage.NewGCSBucketWriter(gcsClient, cfg.Storage.LabelsBucket)
	if err != nil {
		logger.Fatal("failed to initialise labels bucket writer", zap.Error(err))
	}
	labelArchive, err := platformstorage.NewLabelArchive(labelWriter, nil)
	if err != nil {
		logger.Fatal("failed to initialise label archive", zap.Error(err))
	}
	reportWriter, err := platformstorage.NewGCSBucketWriter(gcsClient, cfg.Storage.ExportsBucket)
	if err != nil {
		logger.Fatal("failed to initialise exports bucket writer", zap.Error(err))
	}
	reportStore, err := platformstorage.NewReportStore(reportWriter)
	if err != nil {
		logger.Fatal("failed to initialise report store", zap.Error(err))
	}

	labelLinks := newLabelLinks(logger, cfg)

	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey: cfg.Stripe.APIKey,
		Logger: zapEventLogger(logger.Named("stripe")),
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
	}

	carrier, err := shipping.NewClient(shipping.ClientConfig{
		BaseURL: cfg.Shipping.BaseURL,
		APIKey:  cfg.Shipping.APIKey,
		Timeout: cfg.Shipping.Timeout,
		Logger:  zapEventLogger(logger.Named("shipping")),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipping client", zap.Error(err))
	}
	carrierVerifier, err := shipping.NewWebhookVerifier(cfg.Shipping.WebhookSecret)
	if err != nil {
		logger.Fatal("failed to initialise shipping webhook verifier", zap.Error(err))
	}

	var notifications services.NotificationPublisher
	var pubsubClient *pubsub.Client
	if topicID := strings.TrimSpace(cfg.Notifications.TopicID); topicID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Notifications.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err := jobs.NewPubSubNotificationPublisher(pubsubClient.Topic(topicID))
		if err != nil {
			logger.Fatal("failed to initialise notification publisher", zap.Error(err))
		}
		notifications = publisher
	} else {
		logger.Warn("notifications topic not configured; customer emails are disabled")
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	container, err := di.NewContainer(ctx, cfg, registry, di.Collaborators{
		Gateway:       gateway,
		Carrier:       carrier,
		Labels:        labelArchive,
		Reports:       reportStore,
		Notifications: notifications,
		Sanitizer:     textutil.NewPrintSanitizer(),
		Build:         buildInfo,
		Logger:        zapEventLogger(logger.Named("services")),
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup
	startIdempotencyCleanup(backgroundCtx, &backgroundWG, logger, cfg, idempotencyStore)
	startTempOrderPurge(backgroundCtx, &backgroundWG, logger, container.Services.Checkout)

	checkoutHandlers := handlers.NewCheckoutHandlers(container.Services.Checkout)
	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders)
	voucherHandlers := handlers.NewVoucherHandlers(container.Services.Vouchers)
	webhookHandlers := handlers.NewWebhookHandlers(container.Services.Checkout, container.Services.Orders, cfg.Stripe.WebhookSecret, carrierVerifier)
	stockHandlers := handlers.NewStockHandlers(container.Services.Stock)
	var labelLinkProvider handlers.LabelLinkProvider
	if labelLinks != nil {
		labelLinkProvider = labelLinks
	}
	adminOrderHandlers := handlers.NewAdminOrderHandlers(container.Services.Orders, labelLinkProvider)
	adminVoucherHandlers := handlers.NewAdminVoucherHandlers(container.Services.Vouchers)
	adminReportHandlers := handlers.NewAdminReportHandlers(container.Services.Reports)
	healthHandlers := handlers.NewHealthHandlers(container.Services.System)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(traceProjectID(cfg)),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(traceProjectID(cfg)),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithVoucherRoutes(voucherHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithAdminRoutes(func(r chi.Router) {
			stockHandlers.Routes(r)
			adminOrderHandlers.Routes(r)
			adminVoucherHandlers.Routes(r)
			adminReportHandlers.Routes(r)
		}),
		handlers.WithPublicMiddlewares(
			handlers.RateLimit(cfg.RateLimits.DefaultPerMinute, time.Minute),
			idempotencyMiddleware,
		),
		handlers.WithWebhookMiddlewares(
			handlers.RateLimit(cfg.RateLimits.WebhookBurst, time.Minute),
		),
		handlers.WithAdminMiddlewares(
			handlers.RateLimit(cfg.RateLimits.AuthenticatedPerMinute, time.Minute),
			authenticator.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("shirthaus api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// zapEventLogger adapts the structured event callback used across services to zap.
func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}

func newLabelLinks(logger *zap.Logger, cfg config.Config) *platformstorage.LabelLinks {
	signerKey := strings.TrimSpace(cfg.Storage.SignerKey)
	if signerKey == "" {
		logger.Warn("storage signer key not configured; label download links are disabled")
		return nil
	}
	signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(signerKey))
	if err != nil {
		logger.Fatal("failed to parse storage signer key", zap.Error(err))
	}
	signedURLClient, err := platformstorage.NewClient(signer)
	if err != nil {
		logger.Fatal("failed to initialise signed url client", zap.Error(err))
	}
	links, err := platformstorage.NewLabelLinks(signedURLClient, cfg.Storage.LabelsBucket)
	if err != nil {
		logger.Fatal("failed to initialise label links", zap.Error(err))
	}
	return links
}

func startIdempotencyCleanup(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger, cfg config.Config, store *idempotency.FirestoreStore) {
	if cfg.Idempotency.CleanupInterval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanupLogger := logger.Named("idempotency")
		ticker := time.NewTicker(cfg.Idempotency.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, time.Minute)
				removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func startTempOrderPurge(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger, checkout services.CheckoutService) {
	if checkout == nil {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		purgeLogger := logger.Named("checkout")
		ticker := time.NewTicker(tempOrderPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, time.Minute)
				purged, err := checkout.PurgeExpiredTempOrders(runCtx)
				cancel()
				if err != nil {
					purgeLogger.Error("temp order purge error", zap.Error(err))
					continue
				}
				if purged > 0 {
					purgeLogger.Info("purged expired temp orders", zap.Int("count", purged))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projectMap) > 0 {
		secretProjects := make(map[string]string, len(projectMap))
		for envName, project := range projectMap {
			secretProjects[strings.ToLower(envName)] = project
		}
		opts = append(opts, secrets.WithProjectMap(secretProjects))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
