package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where subpilot stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the url of your subpilot instance.
	InstanceURL string
	// JWTSecret signs and verifies dashboard session tokens.
	JWTSecret string

	// Content generation configuration
	AIEnabled    bool   // SUBPILOT_AI_ENABLED
	AIAPIKey     string // SUBPILOT_AI_API_KEY
	AIBaseURL    string // SUBPILOT_AI_BASE_URL (default: https://api.openai.com/v1)
	AIModel      string // SUBPILOT_AI_MODEL (default: gpt-4o-mini)
	AIMaxRetries int    // SUBPILOT_AI_MAX_RETRIES (default: 3)

	// Delivery configuration
	SMTPHost     string // SUBPILOT_SMTP_HOST (empty: log-only delivery)
	SMTPPort     int    // SUBPILOT_SMTP_PORT (default: 587)
	SMTPUsername string // SUBPILOT_SMTP_USERNAME
	SMTPPassword string // SUBPILOT_SMTP_PASSWORD

	// Engine policy knobs
	ExpirationHours  int // SUBPILOT_ENGINE_EXPIRATION_HOURS (default: 48)
	SweepIntervalMin int // SUBPILOT_ENGINE_SWEEP_INTERVAL_MIN (default: 30)
	AnalysisRunHour  int // SUBPILOT_ENGINE_ANALYSIS_RUN_HOUR (default: 3)
	AnalysisSample   int // SUBPILOT_ENGINE_ANALYSIS_SAMPLE (default: 200)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if content generation is enabled and configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && p.AIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from SUBPILOT_* environment variables.
func (p *Profile) FromEnv() {
	p.AIEnabled = os.Getenv("SUBPILOT_AI_ENABLED") == "true"
	p.AIAPIKey = os.Getenv("SUBPILOT_AI_API_KEY")
	p.AIBaseURL = getEnvOrDefault("SUBPILOT_AI_BASE_URL", "https://api.openai.com/v1")
	p.AIModel = getEnvOrDefault("SUBPILOT_AI_MODEL", "gpt-4o-mini")
	if p.AIMaxRetries == 0 {
		p.AIMaxRetries = 3
	}

	p.SMTPHost = os.Getenv("SUBPILOT_SMTP_HOST")
	if p.SMTPPort == 0 {
		p.SMTPPort = 587
	}
	p.SMTPUsername = os.Getenv("SUBPILOT_SMTP_USERNAME")
	p.SMTPPassword = os.Getenv("SUBPILOT_SMTP_PASSWORD")

	if p.JWTSecret == "" {
		p.JWTSecret = os.Getenv("SUBPILOT_JWT_SECRET")
	}

	if p.ExpirationHours == 0 {
		p.ExpirationHours = 48
	}
	if p.SweepIntervalMin == 0 {
		p.SweepIntervalMin = 30
	}
	if p.AnalysisRunHour == 0 {
		p.AnalysisRunHour = 3
	}
	if p.AnalysisSample == 0 {
		p.AnalysisSample = 200
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "subpilot")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/subpilot"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("subpilot_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
