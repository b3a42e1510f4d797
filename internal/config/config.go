package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Loyalty program rules
	Loyalty LoyaltyConfig `env:",prefix=LOYALTY_"`

	// Commerce platform admin API
	Shopify ShopifyConfig `env:",prefix=SHOPIFY_"`

	// Transactional email provider
	Email EmailConfig `env:",prefix=EMAIL_"`

	// Credential handling
	Auth AuthConfig `env:",prefix=AUTH_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Driver      string `env:"DRIVER,default=postgres"` // postgres or memory
	Host        string `env:"HOST,default=localhost"`
	Port        string `env:"PORT,default=5432"`
	User        string `env:"USER,default=postgres"`
	Password    string `env:"PASSWORD,default=postgres"`
	Name        string `env:"NAME,default=loyalty"`
	SSLMode     string `env:"SSL_MODE,default=disable"`
	MaxConns    int    `env:"MAX_CONNS,default=25"`
	MinConns    int    `env:"MIN_CONNS,default=5"`
	AutoMigrate bool   `env:"AUTO_MIGRATE,default=true"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment        string `env:"ENVIRONMENT,default=development"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
	LogFile            string `env:"LOG_FILE"`
	Debug              bool   `env:"DEBUG,default=false"`
	ExposeErrorDetails bool   `env:"EXPOSE_ERROR_DETAILS,default=false"`
	CORSOrigin         string `env:"CORS_ORIGIN,default=*"`
}

// LoyaltyConfig holds the point conversion and code issuance rules.
type LoyaltyConfig struct {
	EarnPointsPerUnit    int64  `env:"EARN_POINTS_PER_UNIT,default=10"`
	RedeemPointsPerUnit  int64  `env:"REDEEM_POINTS_PER_UNIT,default=10"`
	MinRedeemPoints      int64  `env:"MIN_REDEEM_POINTS,default=10"`
	CodePrefix           string `env:"CODE_PREFIX,default=ALOHA"`
	CodeValidityDays     int    `env:"CODE_VALIDITY_DAYS,default=90"`
	GiftCardPrefix       string `env:"GIFT_CARD_PREFIX,default=GIFT"`
	GiftCardValidityDays int    `env:"GIFT_CARD_VALIDITY_DAYS,default=365"`
	WelcomePrefix        string `env:"WELCOME_PREFIX,default=BIENVENUE"`
	WelcomePercent       int64  `env:"WELCOME_PERCENT,default=10"`
	WelcomeValidityDays  int    `env:"WELCOME_VALIDITY_DAYS,default=30"`
	ProgramFile          string `env:"PROGRAM_FILE"`
}

// ShopifyConfig holds the Admin API credentials and client limits.
type ShopifyConfig struct {
	Domain        string        `env:"DOMAIN"`
	AccessToken   string        `env:"ACCESS_TOKEN"`
	APIVersion    string        `env:"API_VERSION,default=2024-10"`
	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	RateLimit     float64       `env:"RATE_LIMIT,default=2"`
	RateBurst     int           `env:"RATE_BURST,default=40"`
	Timeout       time.Duration `env:"TIMEOUT,default=10s"`
}

// EmailConfig selects and configures the email provider.
type EmailConfig struct {
	Provider      string `env:"PROVIDER,default=none"` // resend, smtp or none
	From          string `env:"FROM,default=Aloha <noreply@example.com>"`
	ResendAPIKey  string `env:"RESEND_API_KEY"`
	ResendBaseURL string `env:"RESEND_BASE_URL,default=https://api.resend.com"`
	AudienceID    string `env:"AUDIENCE_ID"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT,default=587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	ResetURL      string `env:"RESET_URL,default=http://localhost:3000/reset-password"`
	ShopURL       string `env:"SHOP_URL,default=http://localhost:3000"`
}

// AuthConfig holds password and reset token policy.
type AuthConfig struct {
	BcryptCost        int           `env:"BCRYPT_COST,default=10"`
	MinPasswordLength int           `env:"MIN_PASSWORD_LENGTH,default=6"`
	ResetTokenTTL     time.Duration `env:"RESET_TOKEN_TTL,default=1h"`
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the ledger cannot run with.
func (c *Config) Validate() error {
	if c.Loyalty.EarnPointsPerUnit <= 0 || c.Loyalty.RedeemPointsPerUnit <= 0 {
		return fmt.Errorf("points per currency unit must be positive")
	}
	if c.Loyalty.MinRedeemPoints <= 0 {
		return fmt.Errorf("minimum redeemable points must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Email.Provider {
	case "resend", "smtp", "none":
	default:
		return fmt.Errorf("unknown email provider %q", c.Email.Provider)
	}
	return nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
