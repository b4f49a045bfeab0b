package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/bookingd/internal/httpapi"
	"github.com/MarkoPoloResearchLab/bookingd/internal/refgen"
	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "BOOKINGD"

	flagEnvFile         = "env-file"
	flagListenAddr      = "listen-addr"
	flagDatabaseURL     = "database-url"
	flagStoreBackend    = "store-backend"
	flagPaystackSecret  = "paystack-secret-key"
	flagWebhookSecret   = "paystack-webhook-secret"
	flagPaystackBaseURL = "paystack-base-url"
	flagGatewayTimeout  = "gateway-timeout"
	flagPriceTolerance  = "price-tolerance"
	flagCurrency        = "currency"
	flagCallbackURL     = "callback-url"
	flagAllowedOrigins  = "allowed-origins"
	flagRabbitURL       = "rabbitmq-url"
	flagRabbitExchange  = "rabbitmq-exchange"
	flagSweepInterval   = "sweep-interval"
	flagStaleAfter      = "stale-after"
	flagWebhookReverify = "webhook-reverify"
	flagNodeID          = "node-id"

	defaultDatabaseURL    = "sqlite:///tmp/bookingd.db"
	defaultListenAddr     = ":8080"
	defaultRabbitExchange = "bookings"
	defaultPriceTolerance = "0.01"

	autoNodeID = -1
	maxNodeID  = 1023

	storeBackendGorm = "gorm"
	storeBackendPgx  = "pgx"
)

type runtimeConfig struct {
	HTTP            httpapi.Config
	DatabaseURL     string
	StoreBackend    string
	PaystackSecret  string
	WebhookSecret   string
	PaystackBaseURL string
	GatewayTimeout  time.Duration
	PriceTolerance  decimal.Decimal
	CallbackURL     string
	RabbitURL       string
	RabbitExchange  string
	SweepInterval   time.Duration
	StaleAfter      time.Duration
	WebhookReverify bool
	NodeID          int64
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bookingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "bookingd",
		Short:         "Home-services booking and payment reconciliation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String(flagEnvFile, ".env", "optional dotenv file loaded before reading the environment")
	flags.String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	flags.String(flagDatabaseURL, defaultDatabaseURL, "postgres:// or sqlite:// connection string")
	flags.String(flagStoreBackend, storeBackendGorm, "booking store implementation: gorm or pgx (postgres only)")
	flags.String(flagPaystackSecret, "", "Paystack secret key")
	flags.String(flagWebhookSecret, "", "webhook signing secret, defaults to the secret key")
	flags.String(flagPaystackBaseURL, "", "Paystack API base URL")
	flags.Duration(flagGatewayTimeout, booking.DefaultGatewayTimeout, "timeout for each gateway call")
	flags.String(flagPriceTolerance, defaultPriceTolerance, "accepted relative difference between client and server price")
	flags.String(flagCurrency, booking.CatalogCurrency.String(), "default currency of client price estimates")
	flags.String(flagCallbackURL, "", "URL the gateway redirects to after checkout")
	flags.String(flagAllowedOrigins, "", "comma-separated CORS origins")
	flags.String(flagRabbitURL, "", "RabbitMQ URL for follow-up events; empty logs them instead")
	flags.String(flagRabbitExchange, defaultRabbitExchange, "RabbitMQ topic exchange for follow-up events")
	flags.Duration(flagSweepInterval, time.Minute, "interval between stale booking sweeps, 0 disables the sweeper")
	flags.Duration(flagStaleAfter, 15*time.Minute, "age after which a pending booking is re-verified")
	flags.Bool(flagWebhookReverify, false, "re-verify webhook outcomes with the gateway before applying them")
	flags.Int64(flagNodeID, autoNodeID, "snowflake node id (0-1023) for payment references, unique per running instance; -1 derives one from the hostname")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	envFile, err := cmd.Flags().GetString(flagEnvFile)
	if err != nil {
		return err
	}
	if err := loadDotEnv(envFile); err != nil {
		return err
	}

	settings := viper.New()
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	for _, name := range []string{
		flagListenAddr, flagDatabaseURL, flagStoreBackend, flagPaystackSecret, flagWebhookSecret,
		flagPaystackBaseURL, flagGatewayTimeout, flagPriceTolerance, flagCurrency, flagCallbackURL,
		flagAllowedOrigins, flagRabbitURL, flagRabbitExchange, flagSweepInterval, flagStaleAfter,
		flagWebhookReverify, flagNodeID,
	} {
		if err := settings.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}
	// Unprefixed names used by common hosting platforms.
	if err := settings.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}
	if err := settings.BindEnv(flagPaystackSecret, envPrefix+"_PAYSTACK_SECRET_KEY", "PAYSTACK_SECRET_KEY"); err != nil {
		return err
	}

	tolerance, err := decimal.NewFromString(settings.GetString(flagPriceTolerance))
	if err != nil {
		return fmt.Errorf("price tolerance: %w", err)
	}
	*cfg = runtimeConfig{
		HTTP: httpapi.Config{
			ListenAddr:     settings.GetString(flagListenAddr),
			AllowedOrigins: httpapi.ParseAllowedOrigins(settings.GetString(flagAllowedOrigins)),
			Currency:       settings.GetString(flagCurrency),
			RequestTimeout: settings.GetDuration(flagGatewayTimeout) + 5*time.Second,
		},
		DatabaseURL:     strings.TrimSpace(settings.GetString(flagDatabaseURL)),
		StoreBackend:    strings.ToLower(strings.TrimSpace(settings.GetString(flagStoreBackend))),
		PaystackSecret:  strings.TrimSpace(settings.GetString(flagPaystackSecret)),
		WebhookSecret:   strings.TrimSpace(settings.GetString(flagWebhookSecret)),
		PaystackBaseURL: strings.TrimSpace(settings.GetString(flagPaystackBaseURL)),
		GatewayTimeout:  settings.GetDuration(flagGatewayTimeout),
		PriceTolerance:  tolerance,
		CallbackURL:     strings.TrimSpace(settings.GetString(flagCallbackURL)),
		RabbitURL:       strings.TrimSpace(settings.GetString(flagRabbitURL)),
		RabbitExchange:  strings.TrimSpace(settings.GetString(flagRabbitExchange)),
		SweepInterval:   settings.GetDuration(flagSweepInterval),
		StaleAfter:      settings.GetDuration(flagStaleAfter),
		WebhookReverify: settings.GetBool(flagWebhookReverify),
		NodeID:          settings.GetInt64(flagNodeID),
	}
	return cfg.validate()
}

func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (cfg *runtimeConfig) validate() error {
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.RabbitExchange == "" {
		cfg.RabbitExchange = defaultRabbitExchange
	}
	if err := cfg.HTTP.Validate(); err != nil {
		return err
	}
	if cfg.PaystackSecret == "" {
		return fmt.Errorf("paystack secret key is required")
	}
	switch cfg.StoreBackend {
	case storeBackendGorm:
	case storeBackendPgx:
		if driver, _, err := resolveDriver(cfg.DatabaseURL); err != nil || driver != driverPostgres {
			return fmt.Errorf("store backend %s requires a postgres database url", storeBackendPgx)
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if cfg.PriceTolerance.IsNegative() {
		return fmt.Errorf("price tolerance must not be negative")
	}
	if cfg.NodeID == autoNodeID {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("derive node id: %w", err)
		}
		cfg.NodeID = refgen.NodeIDFromHost(hostname)
	}
	if cfg.NodeID < 0 || cfg.NodeID > maxNodeID {
		return fmt.Errorf("node id %d must be between 0 and %d", cfg.NodeID, maxNodeID)
	}
	if cfg.SweepInterval < 0 || (cfg.SweepInterval > 0 && cfg.StaleAfter <= 0) {
		return fmt.Errorf("sweep interval and stale-after must be positive")
	}
	return nil
}
