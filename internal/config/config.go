package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig is one OpenAI-compatible vision provider entry.
type ModelConfig struct {
	Name           string  `yaml:"name"`
	BaseURL        string  `yaml:"baseURL,omitempty"` // empty = api.openai.com
	APIKey         string  `yaml:"apiKey"`
	Model          string  `yaml:"model"`
	PromptUSDPer1K float64 `yaml:"promptUSDPer1K"`
	OutputUSDPer1K float64 `yaml:"outputUSDPer1K"`
}

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		// client name -> API key; empty map disables auth
		APIKeys map[string]string `yaml:"apiKeys,omitempty"`
	} `yaml:"server"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		// Optional Postgres DSN. When set, triaged issues are mirrored
		// there for long-term archival queries.
		ArchiveDSN string `yaml:"archiveDSN,omitempty"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Cache struct {
		MaxEntries       int           `yaml:"maxEntries"`
		TTL              time.Duration `yaml:"ttl"`
		HammingThreshold int           `yaml:"hammingThreshold"`
	} `yaml:"cache"`

	Analysis struct {
		Models       []ModelConfig `yaml:"models"`
		Quorum       int           `yaml:"quorum"`
		ModelTimeout time.Duration `yaml:"modelTimeout"`
		RetrySweep   time.Duration `yaml:"retrySweep"`
	} `yaml:"analysis"`

	Reports struct {
		MaxWorkers     int           `yaml:"maxWorkers"`
		RatePerMinute  int           `yaml:"ratePerMinute"`
		Retention      time.Duration `yaml:"retention"`
		RetentionSweep time.Duration `yaml:"retentionSweep"`
		StorageTimeout time.Duration `yaml:"storageTimeout"`
	} `yaml:"reports"`
}

// Load baca file config.yaml dan isi default untuk knob yang kosong.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Cache.HammingThreshold == 0 {
		c.Cache.HammingThreshold = 5
	}
	if c.Analysis.Quorum == 0 {
		c.Analysis.Quorum = 2
	}
	if c.Analysis.ModelTimeout == 0 {
		c.Analysis.ModelTimeout = 30 * time.Second
	}
	if c.Analysis.RetrySweep == 0 {
		c.Analysis.RetrySweep = 2 * time.Minute
	}
	if c.Reports.MaxWorkers == 0 {
		c.Reports.MaxWorkers = 3
	}
	if c.Reports.RatePerMinute == 0 {
		c.Reports.RatePerMinute = 10
	}
	if c.Reports.Retention == 0 {
		c.Reports.Retention = 30 * 24 * time.Hour
	}
	if c.Reports.RetentionSweep == 0 {
		c.Reports.RetentionSweep = time.Hour
	}
	if c.Reports.StorageTimeout == 0 {
		c.Reports.StorageTimeout = 30 * time.Second
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// ModelNames returns configured model names in declaration order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Analysis.Models))
	for _, m := range c.Analysis.Models {
		names = append(names, m.Name)
	}
	return names
}
