package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	EventChannel  string

	// Gateway config. Mode selects the transport: "log" (dry-run),
	// "webhook" (session bridge), or "sns".
	GatewayMode      string
	GatewaySendURL   string
	GatewayHealthURL string
	SNSRegion        string

	// Dispatch pacing
	DailyLimit      int
	MinMessageDelay time.Duration
	MaxMessageDelay time.Duration
	MinBatchSize    int
	MaxBatchSize    int
	MinLongPause    time.Duration
	MaxLongPause    time.Duration
	SendTimeout     time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "courier",
		DBPassword: "",
		DBName:     "courier",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,
		EventChannel:  "courier:events",

		GatewayMode: "log",
		SNSRegion:   "us-east-1",

		DailyLimit:      80,
		MinMessageDelay: 8 * time.Second,
		MaxMessageDelay: 25 * time.Second,
		MinBatchSize:    5,
		MaxBatchSize:    7,
		MinLongPause:    1 * time.Minute,
		MaxLongPause:    3 * time.Minute,
		SendTimeout:     30 * time.Second,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if channel := os.Getenv("EVENT_CHANNEL"); channel != "" {
		cfg.EventChannel = channel
	}

	// Gateway config
	if mode := os.Getenv("GATEWAY_MODE"); mode != "" {
		switch mode {
		case "log", "webhook", "sns":
			cfg.GatewayMode = mode
		default:
			return nil, fmt.Errorf("invalid GATEWAY_MODE %q: must be log, webhook, or sns", mode)
		}
	}

	if url := os.Getenv("GATEWAY_SEND_URL"); url != "" {
		cfg.GatewaySendURL = url
	}
	if cfg.GatewayMode == "webhook" && cfg.GatewaySendURL == "" {
		return nil, fmt.Errorf("GATEWAY_SEND_URL is required when GATEWAY_MODE=webhook")
	}

	if url := os.Getenv("GATEWAY_HEALTH_URL"); url != "" {
		cfg.GatewayHealthURL = url
	}

	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.SNSRegion = region
	}

	// Dispatch pacing
	if limit := os.Getenv("DAILY_LIMIT"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil || l <= 0 {
			return nil, fmt.Errorf("invalid DAILY_LIMIT: must be a positive integer")
		}
		cfg.DailyLimit = l
	}

	if err := loadSeconds("MIN_MESSAGE_DELAY_SECONDS", &cfg.MinMessageDelay); err != nil {
		return nil, err
	}
	if err := loadSeconds("MAX_MESSAGE_DELAY_SECONDS", &cfg.MaxMessageDelay); err != nil {
		return nil, err
	}
	if err := loadSeconds("MIN_LONG_PAUSE_SECONDS", &cfg.MinLongPause); err != nil {
		return nil, err
	}
	if err := loadSeconds("MAX_LONG_PAUSE_SECONDS", &cfg.MaxLongPause); err != nil {
		return nil, err
	}
	if err := loadSeconds("SEND_TIMEOUT_SECONDS", &cfg.SendTimeout); err != nil {
		return nil, err
	}

	if size := os.Getenv("MIN_BATCH_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid MIN_BATCH_SIZE: must be a positive integer")
		}
		cfg.MinBatchSize = s
	}

	if size := os.Getenv("MAX_BATCH_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid MAX_BATCH_SIZE: must be a positive integer")
		}
		cfg.MaxBatchSize = s
	}

	if cfg.MaxMessageDelay < cfg.MinMessageDelay {
		return nil, fmt.Errorf("MAX_MESSAGE_DELAY_SECONDS must be >= MIN_MESSAGE_DELAY_SECONDS")
	}
	if cfg.MaxLongPause < cfg.MinLongPause {
		return nil, fmt.Errorf("MAX_LONG_PAUSE_SECONDS must be >= MIN_LONG_PAUSE_SECONDS")
	}
	if cfg.MaxBatchSize < cfg.MinBatchSize {
		return nil, fmt.Errorf("MAX_BATCH_SIZE must be >= MIN_BATCH_SIZE")
	}

	return cfg, nil
}

func loadSeconds(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fmt.Errorf("invalid %s: must be a positive integer of seconds", name)
	}
	*dst = time.Duration(secs) * time.Second
	return nil
}
