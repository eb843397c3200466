package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Database
	DatabaseURL string `yaml:"database_url"`

	// Server
	ServerPort string `yaml:"server_port"`

	// Jobs
	DataRoot             string        `yaml:"data_root"`
	MaxConcurrentJobs    int           `yaml:"max_concurrent_jobs"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	CleanupIntermediates bool          `yaml:"cleanup_intermediates"`
	PendingAlertAfter    time.Duration `yaml:"pending_alert_after"`

	// External tools
	Tools ToolConfig `yaml:"tools"`

	// Object storage mirror (S3-compatible; empty endpoint disables it)
	Storage StorageConfig `yaml:"storage"`
}

// ToolConfig names the external collaborator binaries and their timeouts.
type ToolConfig struct {
	OmegaFold       string        `yaml:"omegafold"`
	Pymol           string        `yaml:"pymol"`
	PrepareReceptor string        `yaml:"prepare_receptor"`
	PrepareLigand   string        `yaml:"prepare_ligand"`
	AGFR            string        `yaml:"agfr"`
	ADCP            string        `yaml:"adcp"`
	Vina            string        `yaml:"vina"`
	ProteinMPNN     string        `yaml:"proteinmpnn_dir"`
	Python          string        `yaml:"python"`
	PredictTimeout  time.Duration `yaml:"predict_timeout"`
	DockTimeout     time.Duration `yaml:"dock_timeout"`
	ScoreTimeout    time.Duration `yaml:"score_timeout"`
	RedesignTimeout time.Duration `yaml:"redesign_timeout"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
}

// StorageConfig configures the S3-compatible artifact mirror.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Load loads configuration from an optional settings.yaml, then applies
// environment variable overrides on top of the defaults.
func Load() (*Config, error) {
	cfg := defaults()

	for _, path := range []string{"settings.yaml", "config/settings.yaml"} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		break
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.DataRoot = getEnv("DATA_ROOT", cfg.DataRoot)
	cfg.MaxConcurrentJobs = getEnvInt("MAX_CONCURRENT_JOBS", cfg.MaxConcurrentJobs)
	cfg.Storage.Endpoint = getEnv("S3_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Region = getEnv("S3_REGION", cfg.Storage.Region)
	cfg.Storage.Bucket = getEnv("S3_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.AccessKey = getEnv("S3_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = getEnv("S3_SECRET_KEY", cfg.Storage.SecretKey)

	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DatabaseURL:          "postgres://localhost/peptide_orchestrator?sslmode=disable",
		ServerPort:           "8022",
		DataRoot:             "./data/jobs",
		MaxConcurrentJobs:    2,
		PollInterval:         5 * time.Second,
		CleanupIntermediates: true,
		PendingAlertAfter:    10 * time.Minute,
		Tools: ToolConfig{
			OmegaFold:       "omegafold",
			Pymol:           "pymol",
			PrepareReceptor: "prepare_receptor",
			PrepareLigand:   "prepare_ligand",
			AGFR:            "agfr",
			ADCP:            "adcp",
			Vina:            "vina",
			ProteinMPNN:     "./ProteinMPNN",
			Python:          "python3",
			PredictTimeout:  30 * time.Minute,
			DockTimeout:     4 * time.Hour,
			ScoreTimeout:    10 * time.Minute,
			RedesignTimeout: 30 * time.Minute,
			DefaultTimeout:  15 * time.Minute,
		},
		Storage: StorageConfig{
			Region: "us-east-1",
			Bucket: "peptide-jobs",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
