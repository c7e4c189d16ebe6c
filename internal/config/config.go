package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server and the CLI read from the environment.
type Config struct {
	Server struct {
		Port           string
		AllowedOrigins string
	}

	Database struct {
		URL      string
		MaxConns int
		MaxIdle  int
		// Attempts is how many times startup pings the database before giving up.
		Attempts int
		// MigrationsURL is the golang-migrate source, e.g. file://migrations.
		MigrationsURL string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	MQTT struct {
		Broker   string
		ClientID string
		Username string
		Password string
		QoS      byte
	}

	Predict struct {
		URL string
		// Timeout of zero blocks until the endpoint settles.
		Timeout time.Duration
	}

	Intake struct {
		StatusInterval time.Duration
		SessionTTL     time.Duration
		MaxUploadBytes int64
	}

	Engagement struct {
		// ChangeFeed selects the push transport: postgres, redis, mqtt or local.
		ChangeFeed        string
		HeartbeatInterval time.Duration
		CountInterval     time.Duration
		AnalyticsInterval time.Duration
		OfflineAfter      time.Duration
		TestimonialLimit  int
		IPLookupURL       string
	}

	Telegram struct {
		Token        string
		DoctorChatID int64
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server.Port = getEnv("PORT", "8080")
	cfg.Server.AllowedOrigins = getEnv("ALLOWED_ORIGINS", "*")

	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)
	cfg.Database.Attempts = getEnvInt("DB_CONNECT_ATTEMPTS", 10)
	cfg.Database.MigrationsURL = getEnv("MIGRATIONS_URL", "file://migrations")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	// Empty means per process, see DefaultClientID.
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.Predict.URL = getEnv("PREDICT_URL", "http://localhost:8000/predict")

	var err error
	if cfg.Predict.Timeout, err = getEnvDuration("PREDICT_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.Intake.StatusInterval, err = getEnvDuration("INTAKE_STATUS_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Intake.SessionTTL, err = getEnvDuration("INTAKE_SESSION_TTL", time.Hour); err != nil {
		return nil, err
	}
	cfg.Intake.MaxUploadBytes = int64(getEnvInt("INTAKE_MAX_UPLOAD_MB", 20)) << 20

	cfg.Engagement.ChangeFeed = strings.ToLower(getEnv("CHANGE_FEED", "postgres"))
	if cfg.Engagement.HeartbeatInterval, err = getEnvDuration("PRESENCE_HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Engagement.CountInterval, err = getEnvDuration("VISITOR_COUNT_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Engagement.AnalyticsInterval, err = getEnvDuration("ANALYTICS_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.Engagement.OfflineAfter, err = getEnvDuration("PRESENCE_OFFLINE_AFTER", 2*time.Minute); err != nil {
		return nil, err
	}
	cfg.Engagement.TestimonialLimit = getEnvInt("TESTIMONIAL_LIMIT", 6)
	cfg.Engagement.IPLookupURL = getEnv("IP_LOOKUP_URL", "https://api.ipify.org")

	cfg.Telegram.Token = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.Telegram.DoctorChatID, _ = strconv.ParseInt(getEnv("DOCTOR_CHAT_ID", "0"), 10, 64)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	switch cfg.Engagement.ChangeFeed {
	case "postgres", "redis", "mqtt", "local":
	default:
		return nil, fmt.Errorf("unknown CHANGE_FEED %q (want postgres, redis, mqtt or local)", cfg.Engagement.ChangeFeed)
	}

	return cfg, nil
}

// DefaultClientID is the broker client id of one process: binary, host and pid.
// A broker drops the older connection when two clients share an id.
func DefaultClientID(binary string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%s-%d", binary, host, os.Getpid())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
