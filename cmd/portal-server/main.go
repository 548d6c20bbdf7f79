package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kaiprevention/portal/internal/config"
	"github.com/kaiprevention/portal/internal/domain/account"
	"github.com/kaiprevention/portal/internal/domain/catalog"
	"github.com/kaiprevention/portal/internal/domain/explorer"
	"github.com/kaiprevention/portal/internal/domain/findings"
	"github.com/kaiprevention/portal/internal/domain/report"
	"github.com/kaiprevention/portal/internal/domain/studies"
	"github.com/kaiprevention/portal/internal/platform/db"
	"github.com/kaiprevention/portal/internal/platform/middleware"
	"github.com/kaiprevention/portal/internal/platform/render"
	"github.com/kaiprevention/portal/internal/platform/session"
	"github.com/kaiprevention/portal/internal/platform/upstream"
	"github.com/kaiprevention/portal/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-server",
		Short: "KAI patient portal",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeDB, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeDB, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, db.Migrations()), pool.Close, nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the portal configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	})
	return cmd
}

// printConfig lists the effective settings. Secrets are only reported as
// set or unset.
func printConfig(w io.Writer, cfg *config.Config) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ENV\t%s\n", cfg.Env)
	fmt.Fprintf(tw, "PORT\t%s\n", cfg.Port)
	fmt.Fprintf(tw, "API_BASE_URL\t%s\n", cfg.APIBaseURL)
	fmt.Fprintf(tw, "SESSION_SECRET\t%s\n", setOrUnset(cfg.SessionSecret))
	fmt.Fprintf(tw, "SESSION_TTL\t%s\n", cfg.SessionTTL)
	fmt.Fprintf(tw, "SESSION_COOKIE_SECURE\t%t\n", cfg.SessionCookieSecure)
	fmt.Fprintf(tw, "DATABASE_URL\t%s\n", setOrUnset(cfg.DatabaseURL))
	fmt.Fprintf(tw, "UPSTREAM_TIMEOUT\t%s\n", cfg.UpstreamTimeout)
	fmt.Fprintf(tw, "REQUEST_TIMEOUT\t%s\n", cfg.RequestTimeout)
	fmt.Fprintf(tw, "URL_DEBOUNCE\t%s\n", cfg.URLDebounce)
	fmt.Fprintf(tw, "PATHOLOGY_INFO_API_KEY\t%s\n", setOrUnset(cfg.PathologyInfoAPIKey))
	fmt.Fprintf(tw, "ACTIVE_PATHOLOGIES_ONLY\t%t\n", cfg.ActivePathologies)
	fmt.Fprintf(tw, "RATE_LIMIT\t%g/s burst %d\n", cfg.RateLimitRPS, cfg.RateLimitBurst)
	tw.Flush()
}

func newFindingsRepository(client *upstream.Client, cfg *config.Config) *findings.APIRepository {
	repo := findings.NewAPIRepository(client)
	repo.ActiveOnly = cfg.ActivePathologies
	return repo
}

func setOrUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return "(set)"
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the body systems known to the portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tCOLUMN\tICON")
			for _, e := range catalog.All() {
				col := "left"
				if e.Column == catalog.Right {
					col = "right"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.Name, col, e.Icon)
			}
			return tw.Flush()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	bg, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Session revocations and access audit live in Postgres when configured.
	deps := serverDeps{}
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(bg, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		store := session.NewPGStore(pool)
		go store.RunPurge(bg, time.Hour, logger)
		deps.revocations = store
		deps.audit = middleware.NewPGAuditRecorder(pool)
		deps.dbHealth = db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) })
	} else {
		store := session.NewMemoryStore(time.Minute)
		defer store.Close()
		deps.revocations = store
		logger.Warn().Msg("DATABASE_URL is unset; logouts are kept in memory and access audit is log-only")
	}

	e, err := newServer(cfg, logger, deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("api", cfg.APIBaseURL).Msg("starting portal")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopBackground()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// serverDeps are the stateful collaborators chosen by runServer.
type serverDeps struct {
	revocations session.RevocationStore
	// audit is nil when access records are only logged.
	audit    middleware.AuditRecorder
	dbHealth echo.HandlerFunc
}

// newServer wires the portal's routes and middleware.
func newServer(cfg *config.Config, logger zerolog.Logger, deps serverDeps) (*echo.Echo, error) {
	key, err := session.DeriveKey([]byte(cfg.SessionSecret), session.PurposeCookie)
	if err != nil {
		return nil, err
	}
	manager := session.NewManager(key, cfg.SessionTTL, cfg.SessionCookieSecure)
	resolver := session.NewResolver(manager, deps.revocations, logger)

	renderer, err := render.New()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.HTTPErrorHandler = render.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.BodyLimit("64K"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, isStreamingPath))
	e.Use(echomw.CSRFWithConfig(echomw.CSRFConfig{
		Skipper:        skipCSRF,
		TokenLookup:    "form:_csrf,header:X-CSRF-Token",
		CookieName:     "kai_csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.SessionCookieSecure,
		CookieSameSite: http.SameSiteLaxMode,
	}))
	e.Use(middleware.Audit(logger, deps.audit))

	// Upstream API
	client := upstream.NewClient(cfg.APIBaseURL, cfg.UpstreamTimeout, upstream.WithLogger(logger))
	findingsRepo := newFindingsRepository(client, cfg)
	hub := websocket.NewHub(logger)

	rateCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateCfg.BurstSize = cfg.RateLimitBurst
	}

	// Health and assets
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if deps.dbHealth != nil {
		e.GET("/health/db", deps.dbHealth)
	}
	e.StaticFS("/static", render.Static())
	e.GET("/", session.RootRedirect(resolver, account.HomePath, account.LoginPath, nil))

	public := e.Group("")
	protected := e.Group("", session.Gate(resolver, session.GateConfig{LoginPath: account.LoginPath}))

	account.NewHandler(account.NewAPIRepository(client), resolver, hub, logger).
		RegisterRoutes(public, protected, middleware.RateLimit(rateCfg))
	studies.NewHandler(studies.NewService(studies.NewAPIRepository(client), findingsRepo, logger)).
		RegisterRoutes(protected)
	explorer.NewHandler(findingsRepo, findings.NewAPIInfoRepository(client, cfg.PathologyInfoAPIKey), hub, renderer, cfg.URLDebounce, logger).
		RegisterRoutes(protected)
	report.NewHandler(report.NewAPIRepository(client), logger).
		RegisterRoutes(protected)

	return e, nil
}

// isStreamingPath exempts responses that outlive the request deadline: the
// report PDF is relayed while the upstream is still sending it.
func isStreamingPath(path string) bool {
	return strings.HasPrefix(path, "/static/") || strings.HasSuffix(path, "/pdf")
}

func skipCSRF(c echo.Context) bool {
	p := c.Request().URL.Path
	return strings.HasPrefix(p, "/static/") || p == "/health" || p == "/health/db"
}
