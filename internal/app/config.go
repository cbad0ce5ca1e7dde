package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (BACKOFFICE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"HTTP listen address (webhook + probes)"`
	DatabaseURL string `usage:"PostgreSQL connection URL (BACKOFFICE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	Gateway    GatewayConfig
	Catalog    CatalogConfig
	Settlement SettlementConfig
	Reconcile  ReconcileConfig
	Membership MembershipConfig
	Graceful   GracefulConfig
}

// GatewayConfig points at the external payment provider.
type GatewayConfig struct {
	BaseURL   string        `default:"https://api.tosspayments.com" usage:"Payment gateway API base URL" flag:"gateway-url"`
	SecretKey string        `usage:"Payment gateway merchant secret key" flag:"gateway-secret"`
	Timeout   time.Duration `default:"10s" usage:"Per-call gateway timeout"`
}

// CatalogConfig points at the read-only product directory service.
type CatalogConfig struct {
	BaseURL string        `default:"http://catalog:8080" usage:"Product directory base URL" flag:"catalog-url"`
	Timeout time.Duration `default:"5s" usage:"Per-call directory timeout"`
}

// SettlementConfig controls payout computation and scheduling.
type SettlementConfig struct {
	CommissionRate string `default:"0.10" usage:"Platform commission rate, e.g. 0.10" flag:"commission-rate"`
	PayoutSpec     string `default:"0 0 6 1 * *" usage:"Payout batch cron spec (with seconds)" flag:"payout-spec"`
}

// ReconcileConfig controls the stuck-order repair job.
type ReconcileConfig struct {
	Spec  string        `default:"0 */30 * * * *" usage:"Reconciliation cron spec (with seconds)" flag:"reconcile-spec"`
	Grace time.Duration `default:"30m" usage:"How long an order may stay unconfirmed before reconciliation"`
}

// MembershipConfig controls recurring billing.
type MembershipConfig struct {
	BillingSpec     string `default:"0 0 4 * * *" usage:"Recurring charge cron spec (with seconds)" flag:"billing-spec"`
	TerminationSpec string `default:"0 0 5 * * *" usage:"Termination cron spec (with seconds)" flag:"termination-spec"`
	MonthlyPrice    string `default:"4900" usage:"Monthly plan price" flag:"monthly-price"`
	YearlyPrice     string `default:"49000" usage:"Yearly plan price" flag:"yearly-price"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// CommissionRate parses the configured commission rate.
func (c *Config) CommissionRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Settlement.CommissionRate)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse commission rate")
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.Errorf("commission rate %s out of range [0, 1]", rate)
	}
	return rate, nil
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BACKOFFICE",
		Files:     []string{"config.yaml", "/etc/backoffice/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set BACKOFFICE_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the application's
// BACKOFFICE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
