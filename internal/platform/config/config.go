package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	pkgstrings "kycflow/pkg/platform/strings"
)

// Server captures process-level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	Auth        AuthConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Pipeline    PipelineConfig
	Agents      AgentsConfig
	Notify      NotifyConfig
}

// AuthConfig configures staff bearer tokens.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	// Disabled skips token checks; every caller acts as DevActor.
	Disabled bool
	DevActor string
	// StaffRoles, when set, restricts staff routes to these token roles.
	StaffRoles []string
}

// PostgresConfig selects the durable store. Empty URL means in-memory stores.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// RedisConfig selects the distributed case lock. Empty URL means in-process.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// KafkaConfig enables the audit relay and Kafka notifications.
type KafkaConfig struct {
	Brokers            []string
	AuditTopic         string
	NotificationTopic  string
	ClientID           string
	OutboxPollInterval time.Duration
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// PipelineConfig tunes the coordinator and validation engine.
type PipelineConfig struct {
	StageTimeout            time.Duration
	RetryBackoff            time.Duration
	SanctionScreeningLevels []string
	AutoAdvance             bool
	ValidationRejectBelow   int
	FallbackCeiling         int
	ValidationConcurrency   int
}

// AgentEndpoint is one remote agent.
type AgentEndpoint struct {
	Type      string `yaml:"type"`
	ID        string `yaml:"id"`
	URL       string `yaml:"url"`
	HealthURL string `yaml:"health_url"`
	Token     string `yaml:"token"`
}

// AgentsConfig lists remote agents. Stage types with no endpoint use the
// in-process agents; document validation falls back to rules.
type AgentsConfig struct {
	File          string
	WatchlistFile string
	Endpoints     []AgentEndpoint
}

// NotifyConfig configures customer messaging.
type NotifyConfig struct {
	CompanyName string
}

type agentsFile struct {
	Agents []AgentEndpoint `yaml:"agents"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:        getenv("KYC_ADDR", ":8080"),
		Environment: getenv("KYC_ENV", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        getenv("JWT_ISSUER", "kycflow"),
			Audience:      getenv("JWT_AUDIENCE", "kycflow-staff"),
			Disabled:      os.Getenv("AUTH_DISABLED") == "true",
			DevActor:      getenv("AUTH_DEV_ACTOR", "dev-reviewer"),
			StaffRoles:    pkgstrings.SplitList(os.Getenv("STAFF_ROLES")),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getint("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getint("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLife:  getduration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getint("REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getduration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getduration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getduration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      getduration("CASE_LOCK_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:            pkgstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:         getenv("KAFKA_AUDIT_TOPIC", "kyc.audit"),
			NotificationTopic:  getenv("KAFKA_NOTIFICATION_TOPIC", "kyc.notifications"),
			ClientID:           getenv("KAFKA_CLIENT_ID", "kycflow"),
			OutboxPollInterval: getduration("OUTBOX_POLL_INTERVAL", time.Second),
		},
		Pipeline: PipelineConfig{
			StageTimeout:            getduration("STAGE_TIMEOUT", 30*time.Second),
			RetryBackoff:            getduration("STAGE_RETRY_BACKOFF", 200*time.Millisecond),
			SanctionScreeningLevels: pkgstrings.SplitList(getenv("SANCTION_SCREENING_LEVELS", "medium,high")),
			AutoAdvance:             os.Getenv("PIPELINE_AUTO_ADVANCE") != "false",
			ValidationRejectBelow:   getint("VALIDATION_REJECT_BELOW", 30),
			FallbackCeiling:         getint("VALIDATION_FALLBACK_CEILING", 90),
			ValidationConcurrency:   getint("VALIDATION_CONCURRENCY", 4),
		},
		Agents: AgentsConfig{
			File:          os.Getenv("AGENTS_FILE"),
			WatchlistFile: os.Getenv("WATCHLIST_FILE"),
		},
		Notify: NotifyConfig{
			CompanyName: getenv("COMPANY_NAME", "KYC Onboarding"),
		},
	}

	if cfg.Agents.File != "" {
		data, err := os.ReadFile(cfg.Agents.File)
		if err != nil {
			return Server{}, fmt.Errorf("read agents file: %w", err)
		}
		endpoints, err := ParseAgents(data)
		if err != nil {
			return Server{}, err
		}
		cfg.Agents.Endpoints = endpoints
	}
	return cfg, nil
}

// ParseAgents decodes the YAML agents file.
func ParseAgents(data []byte) ([]AgentEndpoint, error) {
	var f agentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	seen := map[string]bool{}
	for i, a := range f.Agents {
		if a.Type == "" || a.URL == "" {
			return nil, fmt.Errorf("agents[%d]: type and url are required", i)
		}
		if seen[a.Type] {
			return nil, fmt.Errorf("agents[%d]: duplicate agent type %q", i, a.Type)
		}
		seen[a.Type] = true
		if f.Agents[i].ID == "" {
			f.Agents[i].ID = a.Type
		}
		f.Agents[i].Token = os.ExpandEnv(a.Token)
	}
	return f.Agents, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
