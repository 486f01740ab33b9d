// Command server starts the Chapelcast media API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chapelcast/internal/api"
	"chapelcast/internal/ingest"
	"chapelcast/internal/objectstore"
	"chapelcast/internal/observability/logging"
	"chapelcast/internal/observability/metrics"
	"chapelcast/internal/server"
	"chapelcast/internal/storage"
	"chapelcast/internal/transcode"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to the JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing a Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	slotLimit := flag.Int("rate-slot-limit", 0, "maximum upload slots per window for a single IP")
	slotWindow := flag.Duration("rate-slot-window", 0, "window for counting upload slot requests")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed slot throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed slot throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	adminOrigins := flag.String("cors-admin-origins", "", "comma separated origins allowed to call the staff endpoints")
	siteOrigins := flag.String("cors-site-origins", "", "comma separated origins of the public website")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectPublicEndpoint := flag.String("object-public-endpoint", "", "public endpoint used in browser-facing URLs")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectUseSSL := flag.Bool("object-use-ssl", false, "enable TLS for object storage requests")
	objectPublicPrefix := flag.String("object-public-prefix", "", "key prefix granted anonymous read access")
	objectPresignExpiry := flag.Duration("object-presign-expiry", 0, "default lifetime for presigned URLs")
	maxUploadBytes := flag.Int64("max-upload-bytes", 0, "maximum declared upload size in bytes")
	slotExpiry := flag.Duration("slot-expiry", 0, "lifetime of presigned upload URLs")
	sourceExpiry := flag.Duration("source-expiry", 0, "lifetime of the source URL handed to the transcoder")
	playbackPolicy := flag.String("playback-policy", "", "playback policy applied to submissions (public or signed)")
	progressiveDownload := flag.Bool("progressive-download", false, "request an MP4 rendition alongside the stream")
	pollInterval := flag.Duration("poll-interval", 0, "interval between background status sweeps")
	pollStallAfter := flag.Duration("poll-stall-after", 0, "flag assets stuck in a non-terminal state for longer than this")
	shutdownTimeout := flag.Duration("shutdown-timeout", 0, "graceful shutdown deadline")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CHAPELCAST_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CHAPELCAST_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("CHAPELCAST_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("CHAPELCAST_ADDR"))

	tlsCertPath := firstNonEmpty(*tlsCert, os.Getenv("CHAPELCAST_TLS_CERT"))
	tlsKeyPath := firstNonEmpty(*tlsKey, os.Getenv("CHAPELCAST_TLS_KEY"))

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	objectCfg := objectstore.Config{
		Endpoint:       firstNonEmpty(*objectEndpoint, os.Getenv("CHAPELCAST_OBJECT_ENDPOINT")),
		PublicEndpoint: firstNonEmpty(*objectPublicEndpoint, os.Getenv("CHAPELCAST_OBJECT_PUBLIC_ENDPOINT")),
		Region:         firstNonEmpty(*objectRegion, os.Getenv("CHAPELCAST_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(*objectAccessKey, os.Getenv("CHAPELCAST_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*objectSecretKey, os.Getenv("CHAPELCAST_OBJECT_SECRET_KEY")),
		Bucket:         firstNonEmpty(*objectBucket, os.Getenv("CHAPELCAST_OBJECT_BUCKET")),
		UseSSL:         resolveBool(*objectUseSSL, "CHAPELCAST_OBJECT_USE_SSL"),
		PublicPrefix:   firstNonEmpty(*objectPublicPrefix, os.Getenv("CHAPELCAST_OBJECT_PUBLIC_PREFIX")),
		PresignExpiry:  resolveDuration(*objectPresignExpiry, "CHAPELCAST_OBJECT_PRESIGN_EXPIRY", 0),
	}
	if err := objectCfg.Validate(); err != nil {
		logger.Error("invalid object storage configuration", "error", err)
		os.Exit(1)
	}
	objects, err := objectstore.New(bootCtx, objectCfg)
	if err != nil {
		logger.Error("failed to initialise object storage", "error", err)
		os.Exit(1)
	}

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("CHAPELCAST_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" && driver != "postgres" {
		logger.Error("production mode requires the postgres datastore driver", "driver", driver)
		os.Exit(1)
	}

	var repo storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("CHAPELCAST_DATA"))
		repo, err = storage.NewStorage(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.PostgresOption
		maxConns := resolveInt(*postgresMaxConns, "CHAPELCAST_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "CHAPELCAST_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "CHAPELCAST_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "CHAPELCAST_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "CHAPELCAST_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if connectTimeout := resolveDuration(*postgresConnectTimeout, "CHAPELCAST_POSTGRES_CONNECT_TIMEOUT", 0); connectTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithConnectTimeout(connectTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("CHAPELCAST_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithApplicationName(appName))
		}
		repo, err = storage.NewPostgresRepository(bootCtx, postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	// Both backing services must answer before the API accepts traffic. A
	// missing bucket is created here rather than at first upload.
	probes, probeCtx := errgroup.WithContext(bootCtx)
	probes.Go(func() error {
		if err := objects.EnsureBucket(probeCtx); err != nil {
			return err
		}
		return objects.Healthy(probeCtx)
	})
	probes.Go(func() error {
		return repo.Ping(probeCtx)
	})
	if err := probes.Wait(); err != nil {
		logger.Error("startup probe failed", "error", err)
		os.Exit(1)
	}

	transcodeCfg, err := transcode.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load transcoder configuration", "error", err)
		os.Exit(1)
	}
	for _, warning := range transcodeCfg.CredentialWarnings() {
		logger.Warn(warning)
	}
	var transcoder transcode.Client
	if transcodeCfg.Enabled() {
		client, err := transcode.NewHTTPClient(transcodeCfg)
		if err != nil {
			logger.Error("failed to initialise transcode client", "error", err)
			os.Exit(1)
		}
		transcoder = client
	}

	ingestCfg := ingest.Config{
		MaxUploadSizeBytes:  resolveInt64(*maxUploadBytes, "CHAPELCAST_MAX_UPLOAD_BYTES"),
		SlotExpiry:          resolveDuration(*slotExpiry, "CHAPELCAST_SLOT_EXPIRY", 0),
		SourceExpiry:        resolveDuration(*sourceExpiry, "CHAPELCAST_SOURCE_EXPIRY", 0),
		ProgressiveDownload: resolveBool(*progressiveDownload, "CHAPELCAST_PROGRESSIVE_DOWNLOAD"),
	}
	if policy := firstNonEmpty(*playbackPolicy, os.Getenv("CHAPELCAST_PLAYBACK_POLICY")); policy != "" {
		parsed, err := parsePlaybackPolicy(policy)
		if err != nil {
			logger.Error("invalid playback policy", "error", err)
			os.Exit(1)
		}
		ingestCfg.PlaybackPolicy = parsed
	}
	service := ingest.NewService(repo, objects, transcoder, ingestCfg, logging.WithComponent(logger, "ingest"))

	poller := ingest.NewPoller(ingest.PollerConfig{
		Service:    service,
		Repo:       repo,
		Interval:   resolveDuration(*pollInterval, "CHAPELCAST_INGEST_POLL_INTERVAL", 0),
		StallAfter: resolveDuration(*pollStallAfter, "CHAPELCAST_INGEST_STALL_AFTER", 0),
		Logger:     logging.WithComponent(logger, "poller"),
	})
	if transcoder != nil {
		poller.Start()
	}

	handler := api.NewHandler(repo, service, objects, transcodeCfg, recorder, logger)

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: tlsCertPath,
			KeyFile:  tlsKeyPath,
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "CHAPELCAST_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "CHAPELCAST_RATE_GLOBAL_BURST"),
			SlotLimit:     resolveInt(*slotLimit, "CHAPELCAST_RATE_SLOT_LIMIT"),
			SlotWindow:    resolveDuration(*slotWindow, "CHAPELCAST_RATE_SLOT_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("CHAPELCAST_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("CHAPELCAST_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*redisTimeout, "CHAPELCAST_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			AdminOrigins: splitAndTrim(firstNonEmpty(*adminOrigins, os.Getenv("CHAPELCAST_CORS_ADMIN_ORIGINS"))),
			SiteOrigins:  splitAndTrim(firstNonEmpty(*siteOrigins, os.Getenv("CHAPELCAST_CORS_SITE_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Chapelcast media API listening", "addr", listenAddr, "mode", serverMode, "transcoding", transcoder != nil)
		if tlsCertPath != "" && tlsKeyPath != "" {
			logger.Info("TLS enabled", "cert_file", tlsCertPath)
		}
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	timeout := resolveDuration(*shutdownTimeout, "CHAPELCAST_SHUTDOWN_TIMEOUT", 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	if err := poller.Shutdown(ctx); err != nil {
		logger.Warn("failed to stop status poller", "error", err)
	}
	if err := repo.Close(ctx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	logger.Info("server stopped")
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/assets.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("CHAPELCAST_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func parsePlaybackPolicy(raw string) (transcode.PlaybackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "public":
		return transcode.PlaybackPublic, nil
	case "signed":
		return transcode.PlaybackSigned, nil
	default:
		return "", errors.New("playback policy must be public or signed")
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt64(flagValue int64, envKey string) int64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseInt(strings.TrimSpace(env), 10, 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
