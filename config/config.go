package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Upload   UploadConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port               string
	GinMode            string
	CORSOrigins        []string
	RateLimitPerMinute int
	MaxRequestBytes    int64
}

type DatabaseConfig struct {
	URL string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
	// RevokeTTL bounds how long a revoked token without an exp claim stays denylisted.
	RevokeTTL time.Duration
}

type AuthConfig struct {
	AdminKey     string
	CookieName   string
	CookieSecure bool
}

type UploadConfig struct {
	Dir               string
	MaxBytes          int64
	AllowedExtensions []string
	AllowedMIMETypes  []string
	StrictValidation  bool
}

type StorageConfig struct {
	Backend    string
	Cloudinary CloudinaryConfig
	S3         S3Config
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

type RedisConfig struct {
	URL string
}

type JobsConfig struct {
	ReconcileInterval time.Duration
	OrphanGracePeriod time.Duration
}

var AppConfig *Config

// Load reads the environment into AppConfig and returns it.
func Load() *Config {
	AppConfig = &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "5050"),
			GinMode:            getEnv("GIN_MODE", "debug"),
			CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
			MaxRequestBytes:    getEnvAsInt64("MAX_REQUEST_BYTES", 12*1024*1024),
		},
		Database: DatabaseConfig{
			URL: getEnv("DB_URL", ""),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-this-in-production"),
			ExpiryHours: getEnvAsInt("JWT_EXPIRY_HOURS", 24),
			RevokeTTL:   getEnvAsDuration("JWT_REVOKE_TTL", 30*24*time.Hour),
		},
		Auth: AuthConfig{
			AdminKey:     getEnv("ADMIN_KEY", ""),
			CookieName:   getEnv("COOKIE_NAME", "token"),
			CookieSecure: getEnvAsBool("COOKIE_SECURE", getEnv("GIN_MODE", "debug") == "release"),
		},
		Upload: UploadConfig{
			Dir:               getEnv("UPLOAD_DIR", "uploads/projects"),
			MaxBytes:          getEnvAsInt64("UPLOAD_MAX_BYTES", 10*1024*1024),
			AllowedExtensions: getEnvAsList("UPLOAD_ALLOWED_EXTENSIONS", []string{".txt"}),
			AllowedMIMETypes:  getEnvAsList("UPLOAD_ALLOWED_MIME_TYPES", []string{"text/plain"}),
			StrictValidation:  getEnvAsBool("STRICT_PROJECT_VALIDATION", false),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "local"),
			Cloudinary: CloudinaryConfig{
				CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
				APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
				APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
				Folder:    getEnv("CLOUDINARY_FOLDER", "projects"),
			},
			S3: S3Config{
				Bucket:   getEnv("S3_BUCKET", ""),
				Region:   getEnv("S3_REGION", "us-east-1"),
				Endpoint: getEnv("S3_ENDPOINT", ""),
				Prefix:   getEnv("S3_PREFIX", "projects/"),
			},
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", time.Hour),
			OrphanGracePeriod: getEnvAsDuration("ORPHAN_GRACE_PERIOD", 24*time.Hour),
		},
	}
	return AppConfig
}

// JWTExpiry returns the token lifetime, or zero when tokens carry no exp claim.
func (c *Config) JWTExpiry() time.Duration {
	if c.JWT.ExpiryHours <= 0 {
		return 0
	}
	return time.Duration(c.JWT.ExpiryHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("⚠️ Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
		log.Printf("⚠️ Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		log.Printf("⚠️ Invalid boolean value for %s, using default %v", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("⚠️ Invalid duration value for %s, using default %v", key, defaultValue)
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
