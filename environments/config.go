package environments

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	WhatsApp WhatsAppConfig
	Dispatch DispatchConfig
	Upload   UploadConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type WhatsAppConfig struct {
	APIURL        string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

type DispatchConfig struct {
	// MessageDelay is the fixed wait between two consecutive sends of one
	// campaign run, to respect provider throughput limits.
	MessageDelay time.Duration
}

type UploadConfig struct {
	Dir       string
	MaxSizeMB int
}

type AuthConfig struct {
	APIKey string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "campaigns"),
			Password: GetEnv("DB_PASSWORD", "campaigns123"),
			DBName:   GetEnv("DB_NAME", "whatsapp_campaigns"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		WhatsApp: WhatsAppConfig{
			APIURL:        GetEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v18.0"),
			PhoneNumberID: GetEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			AccessToken:   GetEnv("WHATSAPP_ACCESS_TOKEN", ""),
			Timeout:       time.Duration(GetEnvAsInt("WHATSAPP_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Dispatch: DispatchConfig{
			MessageDelay: time.Duration(GetEnvAsInt("DISPATCH_MESSAGE_DELAY_MS", 2000)) * time.Millisecond,
		},
		Upload: UploadConfig{
			Dir:       GetEnv("UPLOAD_DIR", "uploads"),
			MaxSizeMB: GetEnvAsInt("UPLOAD_MAX_SIZE_MB", 5),
		},
		Auth: AuthConfig{
			APIKey: GetEnv("API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
