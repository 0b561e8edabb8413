package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EscrowMemory   = "memory"
	EscrowPostgres = "postgres"
	EscrowDynamoDB = "dynamodb"
)

type Config struct {
	HTTPPort string `envconfig:"APP_PORT" default:"9000"`
	DSN      string `envconfig:"APP_DSN" default:""`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	WordPressURL    string        `envconfig:"WORDPRESS_URL"`
	ConsumerKey     string        `envconfig:"WC_CONSUMER_KEY"`
	ConsumerSecret  string        `envconfig:"WC_CONSUMER_SECRET"`
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"15s"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeCurrency      string `envconfig:"STRIPE_CURRENCY" default:"eur"`

	PayPalClientID     string `envconfig:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string `envconfig:"PAYPAL_CLIENT_SECRET"`
	PayPalBaseURL      string `envconfig:"PAYPAL_BASE_URL" default:"https://api-m.sandbox.paypal.com"`

	EscrowBackend    string        `envconfig:"ESCROW_BACKEND" default:"memory"`
	EscrowTTL        time.Duration `envconfig:"ESCROW_TTL" default:"48h"`
	EscrowTable      string        `envconfig:"ESCROW_TABLE" default:"dreamshop-order-escrow"`
	AWSRegion        string        `envconfig:"AWS_REGION" default:"eu-south-1"`
	DynamoDBEndpoint string        `envconfig:"DYNAMODB_ENDPOINT" default:""`

	KafkaBrokersRaw string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic      string `envconfig:"KAFKA_TOPIC" default:"dreamshop.payment-events"`
	KafkaGroupID    string `envconfig:"KAFKA_GROUP_ID" default:"dreamshop-audit"`

	RateRPS   int `envconfig:"RATE_RPS" default:"10"`
	RateBurst int `envconfig:"RATE_BURST" default:"20"`

	ShippingZonesRefresh time.Duration `envconfig:"SHIPPING_ZONES_REFRESH" default:"10m"`

	AuditBatchSize     int           `envconfig:"AUDIT_BATCH_SIZE" default:"20"`
	AuditFlushInterval time.Duration `envconfig:"AUDIT_FLUSH_INTERVAL" default:"2s"`
	AuditFilter        string        `envconfig:"AUDIT_FILTER" default:""`
}

// LoadConfig reads an optional .env file and then the process environment.
// The returned bool reports whether a .env file was found.
func LoadConfig() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, dotenv, fmt.Errorf("process env: %w", err)
	}
	return &cfg, dotenv, nil
}

func (c *Config) Validate() error {
	var errs error
	if c.JWTSecret == "" {
		errs = errors.Join(errs, errors.New("JWT_SECRET is required"))
	}
	if c.WordPressURL == "" {
		errs = errors.Join(errs, errors.New("WORDPRESS_URL is required"))
	}
	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		errs = errors.Join(errs, errors.New("WC_CONSUMER_KEY and WC_CONSUMER_SECRET are required"))
	}
	switch c.EscrowBackend {
	case EscrowMemory, EscrowDynamoDB:
	case EscrowPostgres:
		if c.DSN == "" {
			errs = errors.Join(errs, errors.New("ESCROW_BACKEND=postgres needs APP_DSN"))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown ESCROW_BACKEND %q", c.EscrowBackend))
	}
	if c.EscrowTTL < 24*time.Hour {
		errs = errors.Join(errs, errors.New("ESCROW_TTL must outlive a checkout session (>= 24h)"))
	}
	return errs
}

func (c *Config) KafkaBrokers() []string {
	if strings.TrimSpace(c.KafkaBrokersRaw) == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokersRaw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}
