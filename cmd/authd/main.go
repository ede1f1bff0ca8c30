package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/api"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/apikey"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/config"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/edge"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/httputil"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/middleware"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/observability"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/rbac"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/secrets"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/session"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/storage"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/token"
)

var (
	rolesFile  = flag.String("roles-file", "", "YAML role definitions to seed the RBAC engine (overrides DOTMAC_RBAC_ROLES_FILE)")
	routesFile = flag.String("routes-file", "", "YAML route table for the authorization edge (overrides DOTMAC_ROUTES_FILE)")
)

// maxRequestBody caps API request bodies. Role config imports are the
// largest legitimate payload and stay well under this.
const maxRequestBody = 1 << 20

func main() {
	flag.Parse()

	// Flags beat environment; config reads the environment, so push them
	// in before loading.
	if *rolesFile != "" {
		os.Setenv("DOTMAC_RBAC_ROLES_FILE", *rolesFile)
	}
	if *routesFile != "" {
		os.Setenv("DOTMAC_ROUTES_FILE", *routesFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	// Libraries logging through slog (the recovery middleware above all)
	// join the same JSON stream.
	slog.SetDefault(logger.Slog())

	// logrus carries the audit log sink and the roles watcher.
	logrusLog := logrus.New()
	logrusLog.SetFormatter(&logrus.JSONFormatter{})
	logrusLog.SetLevel(logrusLevel(cfg.Observability.LogLevel))

	// Redis is optional; without it the session store, quota counters and
	// rate limiter run in memory.
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = storage.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		log.Printf("Connected to redis at %s", cfg.Redis.Addr)
	} else {
		log.Println("No redis configured, using in-memory session store and counters")
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		if redisClient != nil {
			storage.InstrumentMetrics(redisClient, metrics)
		}
	}

	auditSink, err := buildAuditSink(cfg.Audit, logrusLog, metrics)
	if err != nil {
		log.Fatalf("Failed to build audit sink: %v", err)
	}

	keys := secrets.NewStaticProvider()
	if err := keys.SetKey(token.DefaultKeyApp, secrets.Key{
		ID:     cfg.Token.SigningKeyID,
		Secret: []byte(cfg.Token.SigningSecret),
	}); err != nil {
		log.Fatalf("Failed to install signing key: %v", err)
	}

	tokens := token.NewService(keys,
		token.WithIssuer(cfg.Token.Issuer),
		token.WithAudience(cfg.Token.Audience),
		token.WithAccessTTL(cfg.Token.AccessTTL),
		token.WithRefreshTTL(cfg.Token.RefreshTTL),
		token.WithServiceTokenTTL(cfg.Token.ServiceTTL),
		token.WithRevocationCapacity(cfg.Token.RevocationCapacity),
		token.WithAuditLogger(auditSink),
	)

	// One counter backs API key quotas, the edge rate limiter and sweep
	// accounting, so budgets hold across replicas when Redis is on.
	var counter quota.Counter
	var sessionStore session.Store
	if redisClient != nil {
		counter = quota.NewRedisCounter(redisClient, cfg.Redis.KeyPrefix)
		sessionStore = session.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
	} else {
		counter = quota.NewMemoryCounter()
		sessionStore = session.NewMemoryStore()
	}

	sessions := session.NewManager(sessionStore,
		session.WithTTL(cfg.Session.TTL),
		session.WithSlidingTTL(cfg.Session.Sliding),
		session.WithMaxPerUser(cfg.Session.MaxPerUser),
		session.WithAuditLogger(auditSink),
		session.WithSweepCounter(counter, quota.WindowDay),
	)

	roles := rbac.NewEngine(
		rbac.WithCacheSize(cfg.RBAC.CacheSize),
		rbac.WithAuditLogger(auditSink),
	)
	var watcher *rbac.Watcher
	if cfg.RBAC.RolesFile != "" {
		if cfg.RBAC.WatchRoles {
			watcher, err = rbac.NewWatcher(roles, cfg.RBAC.RolesFile, logrusLog)
			if err != nil {
				log.Fatalf("Failed to watch roles file: %v", err)
			}
			log.Printf("Watching roles file %s", cfg.RBAC.RolesFile)
		} else {
			data, err := os.ReadFile(cfg.RBAC.RolesFile)
			if err != nil {
				log.Fatalf("Failed to read roles file: %v", err)
			}
			if err := roles.ImportYAML(data); err != nil {
				log.Fatalf("Failed to load roles file: %v", err)
			}
			log.Printf("Loaded roles from %s", cfg.RBAC.RolesFile)
		}
	}
	if metrics != nil {
		observability.RegisterDecisionCacheStats(registry, func() observability.DecisionCacheStats {
			s := roles.Stats()
			return observability.DecisionCacheStats{
				Hits:      s.CacheHits,
				Misses:    s.CacheMisses,
				Evictions: s.CacheEvictions,
				Size:      s.CacheSize,
			}
		})
	}

	keyWindow, err := quota.ParseWindow(cfg.APIKey.DefaultRateWindow)
	if err != nil {
		log.Fatalf("Invalid api key rate window: %v", err)
	}
	apiKeys := apikey.NewEngine(apikey.NewMemoryStore(), roles, counter,
		apikey.WithMaxKeysPerUser(cfg.APIKey.MaxKeysPerUser),
		apikey.WithDefaultRateLimit(cfg.APIKey.DefaultRateLimit, keyWindow),
		apikey.WithAuditLogger(auditSink),
	)

	routes, err := loadRoutes(cfg.Server.RoutesFile)
	if err != nil {
		log.Fatalf("Failed to load route table: %v", err)
	}
	if cfg.Server.RoutesFile == "" {
		logger.Warn("No routes file configured; the built-in table trusts the network for credential exchange and locks management routes to admins")
	} else {
		log.Printf("Loaded route table from %s", cfg.Server.RoutesFile)
	}

	authOpts := []edge.Option{
		edge.WithTokenVerifier(tokens),
		edge.WithServiceVerifier(tokens),
		edge.WithKeyAuthenticator(apiKeys),
		edge.WithRoleChecker(roles),
		edge.WithSessionChecker(sessions),
		edge.WithAuditLogger(auditSink),
		edge.WithCookieName(cfg.Session.CookieName),
		edge.WithTenantHeader(cfg.Server.TenantHeader),
	}
	if cfg.Server.AdminMFAMaxAge > 0 {
		authOpts = append(authOpts, edge.WithMFAPolicy(edge.TierMFAPolicy{
			MaxAge: map[edge.Tier]time.Duration{edge.TierAdmin: cfg.Server.AdminMFAMaxAge},
		}))
	}
	if metrics != nil {
		authOpts = append(authOpts, edge.WithObserver(decisionObserver(metrics)))
	}
	authority := edge.NewAuthority(cfg.Server.ServiceName, routes, authOpts...)

	apiServer := api.NewServer(tokens, sessions, apiKeys, roles)
	router := apiServer.Router()
	router.Use(authority.Middleware())

	// Outermost first: recovery wraps everything, metrics observe
	// rate-limited responses, the body cap applies before handlers read.
	chain := []func(http.Handler) http.Handler{httputil.RecoveryMiddleware}
	if metrics != nil {
		chain = append(chain, observability.HTTPMetricsMiddleware(metrics))
	}
	if cfg.Server.RateLimit > 0 {
		edgeWindow, err := quota.ParseWindow(cfg.Server.RateWindow)
		if err != nil {
			log.Fatalf("Invalid edge rate window: %v", err)
		}
		limiter := middleware.NewClientRateLimiter(counter, cfg.Server.RateLimit, edgeWindow)
		chain = append(chain, limiter.Middleware)
		log.Printf("Edge rate limit: %d requests per client per %s", cfg.Server.RateLimit, cfg.Server.RateWindow)
	}
	chain = append(chain, httputil.MaxBytesMiddleware(maxRequestBody))
	handler := httputil.Chain(chain...)(router)

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(redisClient)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}

	apiSrv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthSrv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Session.SweepSchedule, func() {
		defer observability.RecoverPanic(logger, "session sweep")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		removed, err := sessions.DeleteExpired(ctx)
		if err != nil {
			logger.WithError(err).Warn("Expired session sweep failed")
			return
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("Swept expired sessions")
		}
	}); err != nil {
		log.Fatalf("Failed to schedule session sweep: %v", err)
	}
	sweeper.Start()
	log.Printf("Session sweep schedule: %s", cfg.Session.SweepSchedule)

	shutdown := observability.NewShutdownManager(logger, apiSrv, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthSrv.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		select {
		case <-sweeper.Stop().Done():
			return nil
		case <-ctx.Done():
			return fmt.Errorf("session sweep still running at shutdown deadline")
		}
	})
	if watcher != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return watcher.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return auditSink.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		log.Printf("Starting %s on %s (version %s)", cfg.Server.ServiceName, apiSrv.Addr, observability.Version)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("Health and metrics on %s", healthSrv.Addr)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Infof("Received signal %s, starting graceful shutdown", sig)
		case <-gctx.Done():
			// A listener failed; unwind whatever did start.
		}
		return shutdown.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("authd exited: %v", err)
	}
	log.Println("authd stopped")
}

// buildAuditSink assembles the audit pipeline: the configured sink, a
// metrics fan-out when metrics are on, and a bounded async front so engines
// never wait on sink latency.
func buildAuditSink(cfg config.AuditConfig, logrusLog *logrus.Logger, metrics *observability.Metrics) (audit.Logger, error) {
	var sink audit.Logger
	switch cfg.Sink {
	case "none":
		sink = audit.NewNoOpLogger()
	case "log":
		sink = audit.NewLogrusLogger(logrusLog)
	case "file":
		fc := audit.DefaultFileLoggerConfig()
		fc.BasePath = cfg.FilePath
		fl, err := audit.NewFileLogger(fc)
		if err != nil {
			return nil, err
		}
		sink = fl
	case "both":
		fc := audit.DefaultFileLoggerConfig()
		fc.BasePath = cfg.FilePath
		fl, err := audit.NewFileLogger(fc)
		if err != nil {
			return nil, err
		}
		sink = audit.NewMultiLogger(audit.NewLogrusLogger(logrusLog), fl)
	default:
		return nil, fmt.Errorf("unknown audit sink %q", cfg.Sink)
	}

	if metrics != nil {
		sink = audit.NewMultiLogger(sink, observability.NewAuditMetricsLogger(metrics))
	}
	if cfg.Sink == "none" && metrics == nil {
		return sink, nil
	}
	return audit.NewAsyncLogger(sink, audit.DefaultAsyncLoggerConfig()), nil
}

// decisionObserver feeds the authorization metrics from edge decisions. An
// allowed bearer decision doubles as a successful token verification, and an
// allowed key decision as a successful key authentication; the engines only
// audit the failure sides.
func decisionObserver(metrics *observability.Metrics) edge.Observer {
	return func(d *edge.Decision, denial *edge.AuthError, elapsed time.Duration) {
		outcome, code := "allowed", ""
		if denial != nil {
			outcome, code = "denied", string(denial.Code)
		}
		metrics.AuthzDecisionsTotal.WithLabelValues(string(d.Tier), outcome, code).Inc()
		metrics.AuthzDecisionDuration.WithLabelValues(string(d.Tier)).Observe(elapsed.Seconds())

		if d.Allowed {
			switch {
			case d.Context.KeyID != "":
				metrics.APIKeyAuthTotal.WithLabelValues("ok").Inc()
			case d.Context.UserID != "" && !d.Context.IsService:
				metrics.TokenVerifiesTotal.WithLabelValues("ok").Inc()
			}
		}
	}
}

// loadRoutes builds the edge route table, from the configured file or the
// built-in defaults.
func loadRoutes(path string) (*edge.RouteTable, error) {
	if path != "" {
		return edge.LoadRouteTable(path)
	}
	return defaultRouteTable(), nil
}

// defaultRouteTable is the posture used when no routes file is given. The
// credential plane is open: those endpoints either carry their credential in
// the body (refresh, verify) or are issuance calls made by platform services
// that a bare deployment trusts by network position. Management routes need
// an admin-grade permission, and anything unlisted requires a valid user
// token. Deployments exposing authd beyond a trusted segment must ship a
// routes file.
func defaultRouteTable() *edge.RouteTable {
	return edge.MustNewRouteTable(edge.TierAuthenticated,
		// Credential plane.
		edge.Rule{Path: "/auth/tokens", Method: "POST|DELETE", Tier: edge.TierPublic},
		edge.Rule{Path: "/auth/tokens/refresh", Method: "POST", Tier: edge.TierPublic},
		edge.Rule{Path: "/auth/tokens/verify", Method: "POST", Tier: edge.TierPublic},
		edge.Rule{Path: "/auth/service-tokens", Method: "POST", Tier: edge.TierPublic},
		edge.Rule{Path: "/auth/apikeys/verify", Method: "POST", Tier: edge.TierPublic},
		edge.Rule{Path: "/auth/sessions", Method: "POST", Tier: edge.TierPublic},
		edge.Rule{Path: "/auth/sessions/*", Method: "*", Tier: edge.TierPublic},
		edge.Rule{Path: "/auth/permissions/check", Method: "POST", Tier: edge.TierPublic},

		// Management plane. Permissions line up with the seeded system
		// roles: admin covers users, roles and keys; the service registry
		// needs super_admin.
		edge.Rule{Path: "/auth/roles*", Method: "*", Tier: edge.TierAdmin, RequiredPermission: "manage:role"},
		edge.Rule{Path: "/auth/rbac/*", Method: "*", Tier: edge.TierAdmin, RequiredPermission: "manage:role"},
		edge.Rule{Path: "/auth/users/*", Method: "*", Tier: edge.TierAdmin, RequiredPermission: "manage:user"},
		edge.Rule{Path: "/auth/apikeys*", Method: "*", Tier: edge.TierAdmin, RequiredPermission: "manage:api_key"},
		edge.Rule{Path: "/auth/services*", Method: "*", Tier: edge.TierAdmin, RequiredPermission: "manage:service"},
	)
}

// logrusLevel maps the application log level onto logrus for the audit and
// watcher loggers.
func logrusLevel(level observability.LogLevel) logrus.Level {
	switch level {
	case observability.DebugLevel:
		return logrus.DebugLevel
	case observability.WarnLevel:
		return logrus.WarnLevel
	case observability.ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
