// Package server
//
// @title SoulNet API
// @version 1.0
// @description Backend for the SoulNet social network: identities, profile documents, posts and image storage
// @host localhost:8080
// @BasePath /
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/soulnet-app/soulnet/internal/auth"
	"github.com/soulnet-app/soulnet/internal/config"
	"github.com/soulnet-app/soulnet/internal/models"
	"github.com/soulnet-app/soulnet/internal/storage"
)

// TaskEnqueuer is the part of the asynq client the handlers use.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Deps are the collaborators New would otherwise build from config.
type Deps struct {
	DB    *gorm.DB
	Store storage.Store
	Tasks TaskEnqueuer
	// OAuth overrides the Google OAuth config; nil derives it from config.
	OAuth *oauth2.Config
	// UserInfoURL overrides the provider's profile endpoint.
	UserInfoURL string
}

// Server represents the HTTP server
type Server struct {
	router      *gin.Engine
	db          *gorm.DB
	config      *config.Config
	logger      zerolog.Logger
	validator   *validator.Validate
	tasks       TaskEnqueuer
	asynqClient *asynq.Client
	store       storage.Store
	oauth       *oauth2.Config
	userInfoURL string
	limiter     *loginLimiter
	version     string
	now         func() time.Time
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	db, err := initDatabase(cfg, zlog)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(cfg, zlog)
	if err != nil {
		return nil, err
	}

	// Initialize Asynq client for enqueueing tasks
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Redis.Address,
	})

	s, err := NewWithDeps(cfg, zlog, version, Deps{DB: db, Store: store, Tasks: asynqClient})
	if err != nil {
		asynqClient.Close()
		return nil, err
	}
	s.asynqClient = asynqClient
	return s, nil
}

// NewWithDeps builds a server around existing collaborators.
func NewWithDeps(cfg *config.Config, zlog zerolog.Logger, version string, deps Deps) (*Server, error) {
	if err := models.AutoMigrate(deps.DB); err != nil {
		return nil, err
	}

	if err := loadJWTSecret(deps.DB, zlog); err != nil {
		return nil, err
	}

	oauthCfg := deps.OAuth
	if oauthCfg == nil && cfg.Google.Enabled() {
		oauthCfg = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
			RedirectURL:  cfg.HTTP.PublicURL + "/api/auth/federated/google/callback",
		}
	}
	userInfoURL := deps.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}

	s := &Server{
		db:          deps.DB,
		config:      cfg,
		logger:      zlog,
		validator:   registerValidators(),
		tasks:       deps.Tasks,
		store:       deps.Store,
		oauth:       oauthCfg,
		userInfoURL: userInfoURL,
		limiter:     newLoginLimiter(loginRateLimit, loginBurst),
		version:     version,
		now:         time.Now,
	}

	s.setupRouter()
	return s, nil
}

// loadJWTSecret reads the signing secret, generating and persisting one on
// first boot.
func loadJWTSecret(db *gorm.DB, zlog zerolog.Logger) error {
	var cfg models.Config
	err := db.First(&cfg).Error
	if err == nil {
		auth.InitializeJWT(cfg.JWTSecret)
		zlog.Debug().Msg("Loaded JWT secret from database")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load config: %w", err)
	}

	secret, err := auth.GenerateSecret(32)
	if err != nil {
		return err
	}
	if err := db.Create(&models.Config{JWTSecret: secret}).Error; err != nil {
		return fmt.Errorf("failed to persist JWT secret: %w", err)
	}
	auth.InitializeJWT(secret)
	zlog.Info().Msg("Generated new JWT secret")
	return nil
}

// registerValidators adds custom rules to gin's binding validator.
func registerValidators() *validator.Validate {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		v = validator.New()
	}

	// Display names: printable, no leading/trailing space, no angle brackets.
	_ = v.RegisterValidation("displayname", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}
		if len([]rune(value)) > 50 || value[0] == ' ' || value[len(value)-1] == ' ' {
			return false
		}
		for _, r := range value {
			if r < 0x20 || r == '<' || r == '>' || r == 0x7f {
				return false
			}
		}
		return true
	})
	return v
}

// initDatabase opens PostgreSQL for postgres:// URLs and SQLite otherwise.
func initDatabase(cfg *config.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	}

	if cfg.Database.IsPostgres() {
		db, err := gorm.Open(postgres.New(postgres.Config{
			DriverName: "postgres",
			DSN:        cfg.Database.URL,
		}), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		zlog.Info().Msg("Connected to PostgreSQL")
		return db, nil
	}

	return openSQLite(cfg.Database.URL, gormCfg, zlog)
}

func openSQLite(path string, gormCfg *gorm.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	const (
		maxOpenConns      = 8         // Reduced for SQLite efficiency
		maxIdleConns      = 4         // Reduced proportionally
		connMaxLifetime   = 300       // 5 minutes
		busyTimeout       = 5000      // 5 seconds
		cacheSize         = 10000     // 10MB
		walAutocheckpoint = 1000      // WAL auto-checkpoint pages
		mmapSize          = 134217728 // 128MB
	)

	db, err := gorm.Open(sqlite.Open(path), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode must be set first
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA wal_autocheckpoint=%d", walAutocheckpoint),
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		fmt.Sprintf("PRAGMA cache_size=-%d", cacheSize),
		"PRAGMA foreign_keys=1",
		"PRAGMA temp_store=2",
		fmt.Sprintf("PRAGMA mmap_size=%d", mmapSize),
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	var walMode string
	db.Raw("PRAGMA journal_mode").Scan(&walMode)
	zlog.Debug().Str("path", path).Str("journal_mode", walMode).Msg("Opened SQLite database")

	return db, nil
}

// OpenDatabase is initDatabase for other binaries.
func OpenDatabase(cfg *config.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	return initDatabase(cfg, zlog)
}

// initStorage connects to the configured bucket, or falls back to an
// in-process store served by this server.
func initStorage(cfg *config.Config, zlog zerolog.Logger) (storage.Store, error) {
	if cfg.Storage.Enabled() {
		return storage.NewS3Store(context.Background(), cfg.Storage, zlog)
	}
	zlog.Warn().Msg("S3_BUCKET not set, keeping uploads in memory")
	return storage.NewMemoryStore(cfg.HTTP.PublicURL + objectsPath), nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// cors.New panics on an empty origin list; no origins means no
	// cross-origin access at all.
	if len(s.config.HTTP.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.HTTP.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Cache-Control"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		s.logger.Warn().Msg("CORS_ORIGINS is empty, cross-origin requests are not allowed")
	}

	// Health check endpoint (no auth required)
	s.router.GET("/health", s.healthCheck)

	// Public auth endpoints
	public := s.router.Group("/api/auth")
	{
		public.POST("/register", s.register)
		public.POST("/login", s.login)
		public.POST("/password-reset", s.requestPasswordReset)
		public.POST("/password-reset/confirm", s.confirmPasswordReset)
		public.GET("/federated/google/start", s.googleStart)
		public.GET("/federated/google/callback", s.googleCallback)
		public.POST("/federated/exchange", s.federatedExchange)
	}

	// Public reads
	s.router.GET("/api/posts", s.listPosts)
	s.router.GET("/api/posts/:id", s.getPost)
	if _, ok := s.store.(storage.Reader); ok {
		s.router.GET(objectsPath+"/*key", s.getObject)
		s.router.HEAD(objectsPath+"/*key", s.getObject)
	}

	// Authenticated API routes (JWT required)
	api := s.router.Group("/api")
	api.Use(JWTAuthMiddleware(s.db, s.logger))
	{
		api.POST("/auth/logout", s.logout)
		api.GET("/auth/me", s.getCurrentUser)
		api.POST("/auth/reauthenticate", s.reauthenticate)
		api.POST("/auth/password", s.updatePassword)

		api.GET("/users/:id/document", s.getUserDocument)
		api.PATCH("/profile", s.updateProfile)

		api.PUT("/storage/objects/*key", s.putObject)

		api.POST("/posts", s.createPost)
		api.PUT("/posts/:id", s.updatePost)

		admin := api.Group("/admin")
		admin.Use(AdminOnlyMiddleware(s.logger))
		{
			admin.GET("/users", s.listUsers)
			admin.PUT("/users/:id/role", s.setUserRole)
			admin.GET("/uploads", s.listUploads)
			admin.DELETE("/uploads/:id", s.deleteUpload)
			admin.GET("/jobs", s.getJobs)
			admin.POST("/jobs/cleanup", s.triggerCleanup)
		}
	}

	s.setupPages()
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// @Router /health [get]
// @Success 200 {object} map[string]interface{}
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "soulnet-api",
		"version":   s.version,
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// GetDB returns the database connection for use by workers
func (s *Server) GetDB() *gorm.DB {
	return s.db
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.config.HTTP.Addr

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	if s.asynqClient != nil {
		if err := s.asynqClient.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing Asynq client")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	// Close database connection to flush WAL writes
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing database")
		}
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
