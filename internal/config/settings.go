package config

import "time"

// Config holds application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	PayFast  PayFastConfig
	Bank     BankConfig
	Escrow   EscrowConfig
	Payments PaymentsConfig
	Fraud    FraudConfig
	Kafka    KafkaConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Port        string
	CORSOrigins string
	PublicURL   string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// AuthConfig holds JWT settings
type AuthConfig struct {
	JWTSecret string
}

// PayFastConfig holds merchant credentials. Read-only after Load.
type PayFastConfig struct {
	Enabled        bool
	MerchantID     string
	MerchantKey    string
	Passphrase     string
	Sandbox        bool
	ReturnURL      string
	CancelURL      string
	NotifyURL      string
	ValidateRemote bool
	Timeout        time.Duration
}

// BankConfig holds the account details shown for manual transfers
type BankConfig struct {
	Enabled       bool
	AccountName   string
	AccountNumber string
	BankName      string
	BranchCode    string
}

// EscrowConfig controls wallet lifetimes and the optional in-process sweep
type EscrowConfig struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	SweepBatch    int
}

// PaymentsConfig controls payment intent handling
type PaymentsConfig struct {
	Currency         string
	Providers        []string
	IntentTTL        time.Duration
	EnableStripe     bool
	DefaultItemLabel string
}

// FraudConfig holds risk scoring parameters
type FraudConfig struct {
	MaxAmount        float64
	MaxAttemptsHour  int
	MaxDistanceKm    float64
	AllowedStartHour int
	AllowedEndHour   int
	GeoIPURL         string
	HistoryCacheTTL  time.Duration
}

// KafkaConfig holds notification broker settings. Empty brokers disables Kafka.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		App: AppConfig{
			Port:        GetEnv("PORT", "3000"),
			CORSOrigins: GetEnv("CORS_ORIGINS", "http://localhost:5173"),
			PublicURL:   GetEnv("PUBLIC_URL", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "ventureflow"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: GetEnv("JWT_SECRET", "ventureflow"),
		},
		PayFast: PayFastConfig{
			Enabled:        GetBoolEnv("PAYFAST_ENABLED", true),
			MerchantID:     GetEnv("PAYFAST_MERCHANT_ID", "10000100"),
			MerchantKey:    GetEnv("PAYFAST_MERCHANT_KEY", "46f0cd694581a"),
			Passphrase:     GetEnv("PAYFAST_PASSPHRASE", ""),
			Sandbox:        !IsProduction() || GetBoolEnv("PAYFAST_SANDBOX", false),
			ReturnURL:      GetEnv("PAYFAST_RETURN_URL", "http://localhost:5173/investments/success"),
			CancelURL:      GetEnv("PAYFAST_CANCEL_URL", "http://localhost:5173/investments/cancelled"),
			NotifyURL:      GetEnv("PAYFAST_NOTIFY_URL", "http://localhost:3000/api/payments/notify"),
			ValidateRemote: GetBoolEnv("PAYFAST_VALIDATE_REMOTE", false),
			Timeout:        GetDurationEnv("PAYFAST_TIMEOUT", 10*time.Second),
		},
		Bank: BankConfig{
			Enabled:       GetBoolEnv("BANK_TRANSFER_ENABLED", true),
			AccountName:   GetEnv("BANK_ACCOUNT_NAME", "VentureFlow Escrow"),
			AccountNumber: GetEnv("BANK_ACCOUNT_NUMBER", "0000000000"),
			BankName:      GetEnv("BANK_NAME", "First National Bank"),
			BranchCode:    GetEnv("BANK_BRANCH_CODE", "250655"),
		},
		Escrow: EscrowConfig{
			DefaultTTL:    GetDurationEnv("ESCROW_DEFAULT_TTL", 72*time.Hour),
			SweepInterval: GetDurationEnv("ESCROW_SWEEP_INTERVAL", 0),
			SweepBatch:    GetIntEnv("ESCROW_SWEEP_BATCH", 100),
		},
		Payments: PaymentsConfig{
			Currency:         GetEnv("PAYMENT_CURRENCY", "ZAR"),
			Providers:        GetListEnv("PAYMENT_PROVIDERS", []string{"payfast", "bank"}),
			IntentTTL:        GetDurationEnv("PAYMENT_INTENT_TTL", 2*time.Hour),
			EnableStripe:     GetBoolEnv("STRIPE_ENABLED", false),
			DefaultItemLabel: GetEnv("PAYMENT_ITEM_LABEL", "Investment"),
		},
		Fraud: FraudConfig{
			MaxAmount:        float64(GetIntEnv("FRAUD_MAX_AMOUNT", 100000)),
			MaxAttemptsHour:  GetIntEnv("FRAUD_MAX_ATTEMPTS_HOUR", 5),
			MaxDistanceKm:    float64(GetIntEnv("FRAUD_MAX_DISTANCE_KM", 500)),
			AllowedStartHour: GetIntEnv("FRAUD_ALLOWED_START_HOUR", 6),
			AllowedEndHour:   GetIntEnv("FRAUD_ALLOWED_END_HOUR", 23),
			GeoIPURL:         GetEnv("GEOIP_URL", ""),
			HistoryCacheTTL:  GetDurationEnv("FRAUD_HISTORY_CACHE_TTL", time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: GetListEnv("KAFKA_BROKERS", nil),
			Topic:   GetEnv("KAFKA_NOTIFICATION_TOPIC", "investment.notifications"),
		},
	}
}
