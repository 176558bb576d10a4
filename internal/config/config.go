package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
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

	// AWS Services
	AWSRegion          string
	AWSEndpoint        string // LocalStack or other custom endpoint
	SQSTriggerQueueURL string // scheduled-event queue that kicks off dispatch cycles
	SNSReportTopicARN  string // cycle summaries for ops alerting

	// Slack
	SlackSigningSecret string
	SlackAPIURL        string // override for proxies and local stubs
	SlackTimeout       int    // seconds

	// Portal auth
	PortalJWTSecret      string
	PortalAllowedOrigins []string

	// Dispatch
	DispatchToken     string        // bearer token for the manual trigger
	DispatchInterval  time.Duration // in-process timer, 0 disables
	DispatchRateLimit int           // manual triggers per client per minute
	TemplatesFile     string        // optional YAML template source, overrides the database
	WeeklyDigestOnly  bool          // weekly subscribers get the digest and nothing else

	// GROW survey kinds by milestone ordinal
	GrowSurveyMilestones map[int]string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "tandem",
		DBPassword: "",
		DBName:     "tandem",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		AWSRegion: "us-east-1",

		SlackTimeout: 10,

		PortalAllowedOrigins: []string{"http://localhost:5173"},

		DispatchInterval:  15 * time.Minute,
		DispatchRateLimit: 6,
		WeeklyDigestOnly:  true,

		GrowSurveyMilestones: map[int]string{},
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

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	cfg.AWSEndpoint = os.Getenv("AWS_ENDPOINT_URL")

	if url := os.Getenv("SQS_TRIGGER_QUEUE_URL"); url != "" {
		cfg.SQSTriggerQueueURL = url
	}

	if arn := os.Getenv("SNS_REPORT_TOPIC_ARN"); arn != "" {
		cfg.SNSReportTopicARN = arn
	}

	// Slack
	cfg.SlackSigningSecret = os.Getenv("SLACK_SIGNING_SECRET")
	cfg.SlackAPIURL = os.Getenv("SLACK_API_URL")

	if timeout := os.Getenv("SLACK_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SLACK_TIMEOUT: %w", err)
		}
		cfg.SlackTimeout = t
	}

	// Portal
	cfg.PortalJWTSecret = os.Getenv("PORTAL_JWT_SECRET")

	if origins := os.Getenv("PORTAL_ALLOWED_ORIGINS"); origins != "" {
		cfg.PortalAllowedOrigins = splitList(origins)
	}

	// Dispatch
	cfg.DispatchToken = os.Getenv("DISPATCH_TOKEN")

	if interval := os.Getenv("DISPATCH_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid DISPATCH_INTERVAL: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid DISPATCH_INTERVAL: must not be negative")
		}
		cfg.DispatchInterval = d
	}

	if limit := os.Getenv("DISPATCH_RATE_LIMIT"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid DISPATCH_RATE_LIMIT: must be a positive integer")
		}
		cfg.DispatchRateLimit = n
	}

	cfg.TemplatesFile = os.Getenv("NUDGE_TEMPLATES_FILE")

	if only := os.Getenv("WEEKLY_DIGEST_ONLY"); only != "" {
		b, err := strconv.ParseBool(only)
		if err != nil {
			return nil, fmt.Errorf("invalid WEEKLY_DIGEST_ONLY: %w", err)
		}
		cfg.WeeklyDigestOnly = b
	}

	if milestones := os.Getenv("GROW_SURVEY_MILESTONES"); milestones != "" {
		m, err := ParseMilestoneKinds(milestones)
		if err != nil {
			return nil, fmt.Errorf("invalid GROW_SURVEY_MILESTONES: %w", err)
		}
		cfg.GrowSurveyMilestones = m
	}

	return cfg, nil
}

var growKinds = map[string]bool{
	"grow_baseline":  true,
	"grow_midpoint":  true,
	"grow_end":       true,
	"scale_feedback": true,
}

// ParseMilestoneKinds parses "1:grow_baseline,12:grow_midpoint" into an
// ordinal to survey kind map.
func ParseMilestoneKinds(s string) (map[int]string, error) {
	out := make(map[int]string)
	for _, pair := range splitList(s) {
		ord, kind, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%q: expected ordinal:kind", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(ord))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%q: ordinal must be a positive integer", pair)
		}
		kind = strings.TrimSpace(kind)
		if !growKinds[kind] {
			return nil, fmt.Errorf("%q: unknown survey kind %q", pair, kind)
		}
		out[n] = kind
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
