package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration from environment variables
type Config struct {
	// Application
	AppPort      string
	StoreBackend string // mysql or memory

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SchemaPath string

	// Authentication
	JWTSecret string

	// Payments
	PaymentProvider       string // stripe, intasend or none
	PaymentCurrency       string
	PaymentCallbackSecret string
	PaymentRedirectURL    string
	StripeSecretKey       string
	IntaSendPublicKey     string
	IntaSendBaseURL       string

	// OpenTelemetry
	MetricsEnabled            bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPHeaders   string // key1=value1,key2=value2
	OTELExporterOTLPInsecure  bool   // true for http://, false for https://
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string
}

// LoadConfig loads configuration from .env file and environment variables with defaults
func LoadConfig() *Config {
	// .env is optional; only complain when it exists and is broken
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	return &Config{
		AppPort:      getEnv("APP_PORT", "8080"),
		StoreBackend: getEnv("STORE_BACKEND", "mysql"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "storefront"),
		SchemaPath: getEnv("DB_SCHEMA_PATH", "schema.sql"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		PaymentProvider:       getEnv("PAYMENT_PROVIDER", "none"),
		PaymentCurrency:       getEnv("PAYMENT_CURRENCY", "USD"),
		PaymentCallbackSecret: getEnv("PAYMENT_CALLBACK_SECRET", ""),
		PaymentRedirectURL:    getEnv("PAYMENT_REDIRECT_URL", ""),
		StripeSecretKey:       getEnv("STRIPE_SECRET_KEY", ""),
		IntaSendPublicKey:     getEnv("INTASEND_PUBLIC_KEY", ""),
		IntaSendBaseURL:       getEnv("INTASEND_BASE_URL", "https://payment.intasend.com"),

		MetricsEnabled:            getEnvBool("METRICS_ENABLED", true),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPHeaders:   getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "storefront"),
		OTELServiceVersion:        getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
	}
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4"
}

// GetAppPortInt returns the application port as an integer
func (c *Config) GetAppPortInt() int {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil {
		return 8080
	}
	return port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
