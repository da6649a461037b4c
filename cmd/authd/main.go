package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinzhu/copier"
	"github.com/redis/go-redis/v9"

	"github.com/spendlyzer/auth/pkg/audit"
	"github.com/spendlyzer/auth/pkg/client"
	"github.com/spendlyzer/auth/pkg/geo"
	"github.com/spendlyzer/auth/pkg/login"
	"github.com/spendlyzer/auth/pkg/loginflow"
	loginflowapi "github.com/spendlyzer/auth/pkg/loginflow/api"
	"github.com/spendlyzer/auth/pkg/notification"
	"github.com/spendlyzer/auth/pkg/ratelimit"
	"github.com/spendlyzer/auth/pkg/sessions"
	sessionsapi "github.com/spendlyzer/auth/pkg/sessions/api"
	tg "github.com/spendlyzer/auth/pkg/tokengenerator"
	"github.com/spendlyzer/auth/pkg/trusteddevice"
	trusteddeviceapi "github.com/spendlyzer/auth/pkg/trusteddevice/api"
	"github.com/spendlyzer/auth/pkg/twofa"
	twofaapi "github.com/spendlyzer/auth/pkg/twofa/api"
)

type DbConfig struct {
	Host     string `env:"AUTH_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"AUTH_PG_PORT" env-default:"5432"`
	Database string `env:"AUTH_PG_DATABASE" env-default:"auth_db"`
	User     string `env:"AUTH_PG_USER" env-default:"auth"`
	Password string `env:"AUTH_PG_PASSWORD" env-default:"pwd"`
}

func (d DbConfig) toDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.Database)
}

type JwtConfig struct {
	JwtSecret         string        `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer            string        `env:"JWT_ISSUER" env-default:"spendlyzer-auth"`
	Audience          string        `env:"JWT_AUDIENCE" env-default:"spendlyzer"`
	AccessTokenExpiry time.Duration `env:"ACCESS_TOKEN_EXPIRY" env-default:"30m"`
	TempTokenExpiry   time.Duration `env:"TEMP_TOKEN_EXPIRY" env-default:"5m"`
	CookieHttpOnly    bool          `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure      bool          `env:"COOKIE_SECURE" env-default:"false"`
}

type ServerConfig struct {
	Host string `env:"AUTH_HOST" env-default:"localhost"`
	Port uint16 `env:"AUTH_PORT" env-default:"4000"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:""`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type EmailConfig struct {
	Host     string `env:"SMTP_HOST" env-default:"localhost"`
	Port     int    `env:"SMTP_PORT" env-default:"1025"`
	Username string `env:"SMTP_USERNAME" env-default:""`
	Password string `env:"SMTP_PASSWORD" env-default:""`
	From     string `env:"SMTP_FROM" env-default:"noreply@spendlyzer.com"`
	TLS      bool   `env:"SMTP_TLS" env-default:"false"`
}

type TrustConfig struct {
	TrustTTL   time.Duration `env:"DEVICE_TRUST_TTL" env-default:"168h"`
	MaxDevices int           `env:"MAX_TRUSTED_DEVICES" env-default:"5"`
	GeoBaseURL string        `env:"GEO_API_BASE_URL" env-default:"http://ip-api.com/json"`
}

type TwoFaConfig struct {
	Issuer          string        `env:"TWOFA_ISSUER" env-default:"Spendlyzer"`
	TempCodeTTL     time.Duration `env:"TWOFA_CODE_TTL" env-default:"10m"`
	MaxTempAttempts int           `env:"TWOFA_MAX_ATTEMPTS" env-default:"3"`
}

type AttemptConfig struct {
	MaxAttempts int64         `env:"LOGIN_MAX_ATTEMPTS" env-default:"5"`
	Window      time.Duration `env:"LOGIN_ATTEMPT_WINDOW" env-default:"15m"`
}

type Config struct {
	DbConfig      DbConfig
	ServerConfig  ServerConfig
	JwtConfig     JwtConfig
	RedisConfig   RedisConfig
	EmailConfig   EmailConfig
	TwilioConfig  notification.TwilioConfig
	TrustConfig   TrustConfig
	TwoFaConfig   TwoFaConfig
	AttemptConfig AttemptConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	config := Config{}
	cleanenv.ReadEnv(&config)

	pool, err := pgxpool.New(context.Background(), config.DbConfig.toDatabaseURL())
	if err != nil {
		slog.Error("Failed creating dbpool", "db", config.DbConfig.Database, "host", config.DbConfig.Host, "port", config.DbConfig.Port, "user", config.DbConfig.User)
		os.Exit(-1)
	}

	// Notification manager with email and sms channels
	var smtpConfig notification.SMTPConfig
	copier.Copy(&smtpConfig, &config.EmailConfig)
	notificationManager, err := notification.NewNotificationManagerWithOptions(
		notification.WithSMTP(smtpConfig),
		notification.WithTwilio(config.TwilioConfig),
		notification.WithDefaultTemplates(),
	)
	if err != nil {
		slog.Error("Failed to initialize notification manager", "err", err)
		os.Exit(-1)
	}

	auditSink := audit.SlogSink{Logger: logger}

	// Repositories
	loginRepo := login.NewPostgresCredentialRepository(pool)
	twofaRepo := twofa.NewPostgresRepository(pool)
	deviceRepo := trusteddevice.NewPostgresRepository(pool)
	sessionRepo := sessions.NewPostgresRepository(pool)

	// Services
	loginService := login.NewLoginService(loginRepo)
	twoFaService := twofa.NewTwoFaService(twofaRepo, notificationManager,
		twofa.WithIssuer(config.TwoFaConfig.Issuer),
		twofa.WithTempCodeTTL(config.TwoFaConfig.TempCodeTTL),
		twofa.WithMaxTempAttempts(config.TwoFaConfig.MaxTempAttempts),
		twofa.WithTwoFaAuditSink(auditSink),
	)
	locator := geo.NewHTTPLocator(geo.WithBaseURL(config.TrustConfig.GeoBaseURL))
	deviceService := trusteddevice.NewService(deviceRepo, locator,
		trusteddevice.WithTrustTTL(config.TrustConfig.TrustTTL),
		trusteddevice.WithMaxDevices(config.TrustConfig.MaxDevices),
		trusteddevice.WithAuditSink(auditSink),
	)
	sessionService := sessions.NewService(sessionRepo)

	jwtService := tg.NewJwtService(
		tg.WithDefaultTokenGenerator(tg.NewJwtTokenGenerator(config.JwtConfig.JwtSecret, config.JwtConfig.Issuer, config.JwtConfig.Audience)),
		tg.WithTokenGenerator(tg.TEMP_TOKEN_NAME, tg.NewTempTokenGenerator(config.JwtConfig.JwtSecret, config.JwtConfig.Issuer, config.JwtConfig.Audience)),
		tg.WithCookieSetter(tg.ACCESS_TOKEN_NAME, tg.NewCookieSetter(config.JwtConfig.CookieHttpOnly, config.JwtConfig.CookieSecure)),
		tg.WithCookieSetter(tg.TRUSTED_DEVICE_TOKEN_NAME, tg.NewTrustedDeviceCookieSetter(config.JwtConfig.CookieSecure)),
		tg.WithAccessTokenExpiry(config.JwtConfig.AccessTokenExpiry),
		tg.WithTempTokenExpiry(config.JwtConfig.TempTokenExpiry),
	)

	// Attempt limiter backs onto Redis when configured, otherwise an
	// in-process fallback.
	var attemptLimiter ratelimit.AttemptLimiter
	if config.RedisConfig.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     config.RedisConfig.Addr,
			Password: config.RedisConfig.Password,
			DB:       config.RedisConfig.DB,
		})
		attemptLimiter = ratelimit.NewRedisAttemptLimiter(redisClient, "auth:attempts", config.AttemptConfig.MaxAttempts, config.AttemptConfig.Window)
		slog.Info("Attempt limiter using redis", "addr", config.RedisConfig.Addr)
	} else {
		attemptLimiter = ratelimit.NewInMemAttemptLimiter(config.AttemptConfig.MaxAttempts, config.AttemptConfig.Window)
	}

	flow := loginflow.NewLoginFlowService(&loginflow.ServiceDependencies{
		LoginService:   loginService,
		TwoFaService:   twoFaService,
		DeviceService:  deviceService,
		SessionService: sessionService,
		JwtService:     jwtService,
	},
		loginflow.WithAttemptLimiter(attemptLimiter),
		loginflow.WithAuditSink(auditSink),
	)

	// Handlers
	authHandler := loginflowapi.NewAuthHandler(flow, loginService, jwtService, loginflowapi.WithAuditSink(auditSink))
	twofaHandler := twofaapi.NewHandler(twoFaService)
	deviceHandler := trusteddeviceapi.NewHandler(deviceService, jwtService)
	sessionHandler := sessionsapi.NewHandler(sessionService)

	tokenAuth := jwtauth.New("HS256", []byte(config.JwtConfig.JwtSecret), nil)

	rateLimitConfig := ratelimit.DefaultConfig()
	rateLimitConfig.EndpointLimits = map[string]ratelimit.EndpointLimit{
		"POST /auth/signin":     {Capacity: 10, RefillRate: 10.0 / 60.0},
		"POST /auth/verify-2fa": {Capacity: 10, RefillRate: 10.0 / 60.0},
	}
	rateLimiter := ratelimit.NewMiddleware(rateLimitConfig)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rateLimiter.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/auth/signin", authHandler.Signin)
	r.Post("/auth/verify-2fa", authHandler.VerifyTwoFA)
	r.Post("/auth/register", authHandler.Register)

	r.Group(func(r chi.Router) {
		r.Use(client.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Use(client.AuthUserMiddleware)
		r.Use(client.TokenFreshnessMiddleware(flow))

		r.Post("/auth/reset-password", authHandler.ResetPassword)
		r.Mount("/users/2fa", twofaHandler.Routes())
		r.Mount("/trusted-devices", deviceHandler.Routes())
		r.Delete("/trust-device/{device_id}", deviceHandler.RevokeDevice)
		r.Mount("/sessions", sessionHandler.Routes())
	})

	addr := fmt.Sprintf("%s:%d", config.ServerConfig.Host, config.ServerConfig.Port)
	slog.Info("Starting auth server", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("Server stopped", "err", err)
		os.Exit(-1)
	}
}
