package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/referral/intake/internal/config"
	"github.com/referral/intake/internal/domain/referral"
	"github.com/referral/intake/internal/platform/auth"
	"github.com/referral/intake/internal/platform/captcha"
	"github.com/referral/intake/internal/platform/db"
	"github.com/referral/intake/internal/platform/middleware"
	"github.com/referral/intake/internal/platform/render"
	"github.com/referral/intake/internal/platform/webhook"
)

const (
	version             = "0.1.0"
	defaultAdminTimeout = 30 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "referral-server",
		Short: "Doctor referral intake server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the referral intake server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a referral form JSON file to PDF without submitting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			out, _ := cmd.Flags().GetString("out")
			if input == "" {
				return fmt.Errorf("--input is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			var in referral.FormInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}

			renderer := newRenderer(cfg, zerolog.Nop())
			sections := referral.BuildSections(in, nil, practiceFromConfig(cfg.Practice), time.Now())
			doc, err := renderer.Render(cmd.Context(), render.NewCanvas(render.DefaultCanvasWidth), sections)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, doc.Data, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			fmt.Printf("Wrote %s (%d page(s), %d bytes).\n", out, doc.Pages, len(doc.Data))
			return nil
		},
	}
	cmd.Flags().String("input", "", "Path to a referral form JSON file")
	cmd.Flags().String("out", webhook.PDFFileName, "Output PDF path")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.HasDatabase() {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() && cfg.AdminJWTSecret == "" {
		logger.Warn().Msg("ENV=development without ADMIN_JWT_SECRET: admin API is open to every request")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := serverDeps{
		deliveries: webhook.NewInMemoryDeliveryStore(0),
		drafts:     referral.NewDraftStore(),
	}

	// Database
	if cfg.HasDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		deps.pool = pool
		deps.migrator = db.NewMigrator(pool, db.Migrations())
		deps.receipts = referral.NewReceiptRepoPG(pool)
		if statuses, err := deps.migrator.Status(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not read migration status")
		} else if n := db.Pending(statuses); n > 0 {
			logger.Warn().Int("pending", n).Msg("database has pending migrations, run `referral-server migrate up`")
		}
	} else {
		deps.receipts = referral.NewInMemoryReceiptRepo(0)
		logger.Info().Msg("DATABASE_URL not set, keeping submission receipts in memory")
	}

	e, err := newServer(cfg, logger, deps)
	if err != nil {
		return err
	}

	go sweepDrafts(ctx, deps.drafts, cfg.DraftTTL, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

type serverDeps struct {
	pool       *pgxpool.Pool
	migrator   *db.Migrator
	receipts   referral.ReceiptRepository
	deliveries webhook.DeliveryStore
	drafts     *referral.DraftStore
}

// newServer wires the echo instance: global middleware, the form page, the
// referral API, and the admin API.
func newServer(cfg *config.Config, logger zerolog.Logger, deps serverDeps) (*echo.Echo, error) {
	pages, err := referral.NewPageRenderer()
	if err != nil {
		return nil, err
	}

	extractIP, err := ipExtractor(cfg)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = pages
	e.IPExtractor = extractIP

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders(middleware.PageContentSecurityPolicy))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if deps.pool != nil {
		e.GET("/health/db", db.HealthHandler(deps.pool, deps.migrator))
	}

	apiV1 := e.Group("/api/v1",
		middleware.BodyLimit(cfg.MaxUploadSize),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			ExpiresIn:         cfg.RateLimitTTL,
		}),
	)

	adminTimeout := cfg.AdminTimeout
	if adminTimeout <= 0 {
		adminTimeout = defaultAdminTimeout
	}
	admin := apiV1.Group("/admin",
		middleware.SecurityHeaders(middleware.APIContentSecurityPolicy),
		adminAuth(cfg),
		middleware.RequestTimeout(adminTimeout),
	)

	hooks := webhook.NewClient(
		webhook.Endpoints{DocumentURL: cfg.Webhook.DocumentURL, RecordURL: cfg.Webhook.RecordURL},
		webhook.WithTimeout(cfg.Webhook.Timeout),
		webhook.WithSecret(cfg.Webhook.Secret),
		webhook.WithDeliveryStore(deps.deliveries),
		webhook.WithLogger(logger),
	)

	opts := []referral.SubmitterOption{
		referral.WithReceipts(deps.receipts),
		referral.WithPractice(practiceFromConfig(cfg.Practice)),
	}
	if v := newCaptcha(cfg.Captcha); v != nil {
		opts = append(opts, referral.WithCaptcha(v))
	}
	svc := referral.NewSubmitter(newRenderer(cfg, logger), hooks, logger, opts...)

	siteKey := ""
	if cfg.Captcha.Required {
		siteKey = cfg.Captcha.SiteKey
	}
	referral.NewHandler(svc, deps.drafts, deps.receipts, siteKey).RegisterRoutes(e.Group(""), apiV1, admin)
	webhook.NewDeliveryHandler(deps.deliveries).RegisterRoutes(admin.Group("", auth.RequireRole("admin")))

	return e, nil
}

// ipExtractor returns the client address source. Without TRUSTED_PROXIES the
// peer address is used and forwarding headers are ignored. With it, the
// X-Forwarded-For chain is walked back through the listed ranges only.
func ipExtractor(cfg *config.Config) (echo.IPExtractor, error) {
	nets, err := cfg.TrustedProxyNets()
	if err != nil {
		return nil, err
	}
	if len(nets) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

func adminAuth(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.AdminJWTSecret != "" {
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AdminJWTIssuer,
			SigningKey: []byte(cfg.AdminJWTSecret),
		})
	}
	return auth.DevAuthMiddleware()
}

func newRenderer(cfg *config.Config, logger zerolog.Logger) *render.Renderer {
	return render.New(
		render.NewTextRasterizer(cfg.Render.Scale),
		render.Options{
			Width:   cfg.Render.Width,
			Quality: cfg.Render.Quality,
			Title:   referral.LabelHighlight,
		},
		logger,
	)
}

// newCaptcha returns nil when the gate is off.
func newCaptcha(cfg config.CaptchaConfig) captcha.Verifier {
	switch {
	case !cfg.Required:
		return nil
	case cfg.Secret != "":
		return captcha.NewRecaptcha(cfg.Secret)
	default:
		return captcha.RequireToken{}
	}
}

func practiceFromConfig(pc config.PracticeConfig) referral.Practice {
	p := referral.DefaultPractice()
	if pc.Name != "" {
		p.Name = pc.Name
	}
	if lines := pc.AddressLines(); len(lines) > 0 {
		p.Address = lines
	}
	if pc.Phone != "" {
		p.Phone = pc.Phone
	}
	if pc.Email != "" {
		p.Email = pc.Email
	}
	if pc.Website != "" {
		p.Website = pc.Website
	}
	return p
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = referral.DefaultDraftTTL
	}
	return min(max(ttl/4, time.Minute), time.Hour)
}

func sweepDrafts(ctx context.Context, drafts *referral.DraftStore, ttl time.Duration, logger zerolog.Logger) {
	if ttl <= 0 {
		ttl = referral.DefaultDraftTTL
	}
	ticker := time.NewTicker(sweepInterval(ttl))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := drafts.Sweep(ttl, now); len(removed) > 0 {
				logger.Info().Int("count", len(removed)).Int("remaining", drafts.Len()).Msg("swept idle drafts")
			}
		}
	}
}
