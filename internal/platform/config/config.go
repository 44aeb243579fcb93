package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	dErrors "certify/pkg/domain-errors"
)

// Queue backends.
const (
	QueueMemory   = "memory"
	QueuePostgres = "postgres"
	QueueSQLite   = "sqlite"
)

// Content store backends.
const (
	ContentMemory = "memory"
	ContentIPFS   = "ipfs"
	ContentMongo  = "mongo"
)

// Anchor modes.
const (
	AnchorDisabled  = "disabled"
	AnchorSimulated = "simulated"
	AnchorLive      = "live"
)

// Server holds the full process configuration.
type Server struct {
	Addr        string
	PublicURL   string
	Environment string
	LogLevel    string

	DatabaseURL string
	CourseDBDSN string

	Redis   RedisConfig
	Kafka   KafkaConfig
	Email   EmailConfig
	Content ContentConfig
	Anchor  AnchorConfig
	Queue   QueueConfig
	Issuing IssuingConfig
	Admin   AdminConfig
}

// RedisConfig configures the verify lookup cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers     string
	NotifyTopic string
}

type EmailConfig struct {
	SendGridAPIKey string
	From           string
}

// ContentConfig selects where metadata and rendered documents are stored.
type ContentConfig struct {
	Backend     string
	IPFSAPIURL  string
	IPFSGateway string
	MongoURI    string
	MongoDB     string
	Timeout     time.Duration
}

type AnchorConfig struct {
	Mode            string
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	NetworkName     string
	ExplorerURL     string
	Timeout         time.Duration
	LiveVerify      bool
	CacheTTL        time.Duration
}

type QueueConfig struct {
	Backend         string
	SQLitePath      string
	Workers         int
	PollInterval    time.Duration
	LeaseTimeout    time.Duration
	MaxAutoAttempts int
	ReclaimSchedule string
	RetrySchedule   string

	PriorityHigh       int
	PriorityNormal     int
	PriorityLow        int
	HighScoreThreshold int
}

// IssuingConfig holds the certificate issuance rules.
type IssuingConfig struct {
	VerificationSecret  string
	VerificationBaseURL string
	IssuerName          string
	PassingScore        int
	FastCompletionHours float64
}

type AdminConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment take precedence over the file.
func Load(files ...string) (*Server, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "failed to read env file")
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from environment variables with defaults.
func FromEnv() *Server {
	return &Server{
		Addr:        getEnv("CERTIFY_ADDR", ":8080"),
		PublicURL:   getEnv("CERTIFY_PUBLIC_URL", "http://localhost:8080"),
		Environment: getEnv("CERTIFY_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		CourseDBDSN: os.Getenv("COURSE_DB_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     os.Getenv("KAFKA_BROKERS"),
			NotifyTopic: getEnv("KAFKA_NOTIFY_TOPIC", "certificate.notifications"),
		},
		Email: EmailConfig{
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			From:           getEnv("EMAIL_FROM", "certificates@example.com"),
		},
		Content: ContentConfig{
			Backend:     strings.ToLower(getEnv("CONTENT_STORE", ContentMemory)),
			IPFSAPIURL:  getEnv("IPFS_API_URL", "http://localhost:5001"),
			IPFSGateway: getEnv("IPFS_GATEWAY_URL", "https://ipfs.io/ipfs/"),
			MongoURI:    os.Getenv("MONGO_URI"),
			MongoDB:     getEnv("MONGO_DB", "certify"),
			Timeout:     getDuration("CONTENT_STORE_TIMEOUT", 30*time.Second),
		},
		Anchor: AnchorConfig{
			Mode:            strings.ToLower(getEnv("ANCHOR_MODE", AnchorSimulated)),
			RPCURL:          os.Getenv("ANCHOR_RPC_URL"),
			ContractAddress: os.Getenv("ANCHOR_CONTRACT_ADDRESS"),
			PrivateKey:      os.Getenv("ANCHOR_PRIVATE_KEY"),
			NetworkName:     os.Getenv("ANCHOR_NETWORK_NAME"),
			ExplorerURL:     os.Getenv("ANCHOR_EXPLORER_URL"),
			Timeout:         getDuration("ANCHOR_TIMEOUT", 30*time.Second),
			LiveVerify:      getBool("ANCHOR_LIVE_VERIFY", true),
			CacheTTL:        getDuration("ANCHOR_CACHE_TTL", 5*time.Minute),
		},
		Queue: QueueConfig{
			Backend:            strings.ToLower(getEnv("QUEUE_BACKEND", QueueMemory)),
			SQLitePath:         getEnv("QUEUE_SQLITE_PATH", "certify-queue.db"),
			Workers:            getInt("QUEUE_WORKERS", 2),
			PollInterval:       getDuration("QUEUE_POLL_INTERVAL", 5*time.Second),
			LeaseTimeout:       getDuration("QUEUE_LEASE_TIMEOUT", 2*time.Minute),
			MaxAutoAttempts:    getInt("QUEUE_MAX_AUTO_ATTEMPTS", 5),
			ReclaimSchedule:    getEnv("QUEUE_RECLAIM_SCHEDULE", "@every 1m"),
			RetrySchedule:      getEnv("QUEUE_RETRY_SCHEDULE", "@every 10m"),
			PriorityHigh:       getInt("PRIORITY_HIGH", 100),
			PriorityNormal:     getInt("PRIORITY_NORMAL", 50),
			PriorityLow:        getInt("PRIORITY_LOW", 10),
			HighScoreThreshold: getInt("PRIORITY_HIGH_SCORE", 95),
		},
		Issuing: IssuingConfig{
			VerificationSecret:  os.Getenv("CERT_VERIFICATION_SECRET"),
			VerificationBaseURL: getEnv("VERIFICATION_BASE_URL", "http://localhost:8080/verify"),
			IssuerName:          getEnv("ISSUER_NAME", "Certify Academy"),
			PassingScore:        getInt("PASSING_SCORE", 80),
			FastCompletionHours: getFloat("FAST_COMPLETION_HOURS", 24),
		},
		Admin: AdminConfig{
			JWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
			TokenTTL:  getDuration("ADMIN_TOKEN_TTL", time.Hour),
		},
	}
}

// Validate reports settings the process cannot start without.
func (s *Server) Validate() error {
	if strings.TrimSpace(s.Issuing.VerificationSecret) == "" {
		return dErrors.New(dErrors.CodeConfiguration, "CERT_VERIFICATION_SECRET is required")
	}
	if strings.TrimSpace(s.Admin.JWTSecret) == "" {
		return dErrors.New(dErrors.CodeConfiguration, "ADMIN_JWT_SECRET is required")
	}

	switch s.Anchor.Mode {
	case AnchorDisabled, AnchorSimulated:
	case AnchorLive:
		switch {
		case s.Anchor.RPCURL == "":
			return dErrors.New(dErrors.CodeConfiguration, "ANCHOR_RPC_URL is required in live mode")
		case s.Anchor.ContractAddress == "":
			return dErrors.New(dErrors.CodeConfiguration, "ANCHOR_CONTRACT_ADDRESS is required in live mode")
		case s.Anchor.PrivateKey == "":
			return dErrors.New(dErrors.CodeConfiguration, "ANCHOR_PRIVATE_KEY is required in live mode")
		}
	default:
		return dErrors.New(dErrors.CodeConfiguration, "unknown ANCHOR_MODE "+s.Anchor.Mode)
	}

	switch s.Queue.Backend {
	case QueueMemory, QueueSQLite:
	case QueuePostgres:
		if s.DatabaseURL == "" {
			return dErrors.New(dErrors.CodeConfiguration, "DATABASE_URL is required for the postgres queue")
		}
	default:
		return dErrors.New(dErrors.CodeConfiguration, "unknown QUEUE_BACKEND "+s.Queue.Backend)
	}

	switch s.Content.Backend {
	case ContentMemory, ContentIPFS:
	case ContentMongo:
		if s.Content.MongoURI == "" {
			return dErrors.New(dErrors.CodeConfiguration, "MONGO_URI is required for the mongo content store")
		}
	default:
		return dErrors.New(dErrors.CodeConfiguration, "unknown CONTENT_STORE "+s.Content.Backend)
	}

	q := s.Queue
	if !(q.PriorityHigh > q.PriorityNormal && q.PriorityNormal > q.PriorityLow) {
		return dErrors.New(dErrors.CodeConfiguration, "queue priorities must satisfy high > normal > low")
	}
	if s.Issuing.PassingScore < 0 || s.Issuing.PassingScore > 100 {
		return dErrors.New(dErrors.CodeConfiguration, "PASSING_SCORE must be between 0 and 100")
	}
	return nil
}

// IsProduction reports whether the process runs in production.
func (s *Server) IsProduction() bool {
	return s.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return fallback
}
