package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the anonymous report service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port     string
	LogLevel string
	Timezone string

	// Abuse mitigation
	IPHashSalt         string
	ContentHashSalt    string
	MaxSubmissions     int
	RateLimitWindow    time.Duration
	DuplicateWindow    time.Duration
	AbuseStore         string // mysql|memory
	SubmissionLock     string // local|mysql
	SubmissionLockWait time.Duration
	SubmissionLockPool int

	// Evidence handling
	UploadTmpDir         string
	EvidenceRoot         string
	EvidenceDir          string
	MaxEvidenceFiles     int
	MaxEvidenceFileBytes int64
	StripImageMetadata   bool
	MaxImageDimension    int
	MaxImagePixels       int

	// Geocoding
	GeocoderURL       string
	GeocoderUserAgent string
	GeocodeTimeout    time.Duration

	// Admin tokens
	JWTSecret string

	// Heatmap
	HeatmapCellLevel int
	HeatmapMonths    int

	// RabbitMQ configuration
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	HousekeepingInterval time.Duration
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Info("Loaded environment from .env")
	}

	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret"),
		DBName:     getEnv("DB_NAME", "securevoice"),

		// Server defaults
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("TIMEZONE", "Local"),

		// Abuse mitigation defaults
		IPHashSalt:         getEnv("IP_HASH_SALT", "securevoice-anonymous-salt-2026"),
		ContentHashSalt:    getEnv("CONTENT_HASH_SALT", "securevoice-content-salt-2026"),
		MaxSubmissions:     getIntEnv("MAX_ANONYMOUS_SUBMISSIONS", 3),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", 24*time.Hour),
		DuplicateWindow:    getDurationEnv("DUPLICATE_WINDOW", 24*time.Hour),
		AbuseStore:         strings.ToLower(getEnv("ABUSE_STORE", "mysql")),
		SubmissionLock:     strings.ToLower(getEnv("SUBMISSION_LOCK", "local")),
		SubmissionLockWait: getDurationEnv("SUBMISSION_LOCK_WAIT", 10*time.Second),
		SubmissionLockPool: getIntEnv("SUBMISSION_LOCK_POOL", 10),

		// Evidence defaults
		UploadTmpDir:         getEnv("UPLOAD_TMP_DIR", os.TempDir()),
		EvidenceRoot:         getEnv("EVIDENCE_ROOT", "."),
		EvidenceDir:          getEnv("EVIDENCE_DIR", "uploads/anonymous"),
		MaxEvidenceFiles:     getIntEnv("MAX_EVIDENCE_FILES", 10),
		MaxEvidenceFileBytes: int64(getIntEnv("MAX_EVIDENCE_FILE_BYTES", 50*1024*1024)),
		StripImageMetadata:   getBoolEnv("STRIP_IMAGE_METADATA", true),
		MaxImageDimension:    getIntEnv("MAX_IMAGE_DIMENSION", 4096),
		MaxImagePixels:       getIntEnv("MAX_IMAGE_PIXELS", 40_000_000),

		// Geocoding defaults
		GeocoderURL:       getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent: getEnv("GEOCODER_USER_AGENT", "SecureVoice Crime Reporting System"),
		GeocodeTimeout:    getDurationEnv("GEOCODE_TIMEOUT", 5*time.Second),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-here"),

		HeatmapCellLevel: getIntEnv("HEATMAP_CELL_LEVEL", 13),
		HeatmapMonths:    getIntEnv("HEATMAP_MONTHS", 6),

		// RabbitMQ defaults (empty URL disables publishing)
		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "securevoice"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "report.submitted"),

		HousekeepingInterval: getDurationEnv("HOUSEKEEPING_INTERVAL", time.Hour),
	}

	return config
}

// Location returns the time zone used for calendar-day comparisons.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Warnf("Unknown TIMEZONE %q, falling back to local time", c.Timezone)
		return time.Local
	}
	return loc
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
