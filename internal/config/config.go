// Package config loads worker configuration from an optional YAML file with
// environment variable overrides on top. A .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	SiteURL string `yaml:"site_url"`
	TmpDir  string `yaml:"tmp_dir"`

	Browser Browser `yaml:"browser"`
	Export  Export  `yaml:"export"`
	Token   Token   `yaml:"token"`
	Storage Storage `yaml:"storage"`
	Queue   Queue   `yaml:"queue"`
	Metrics Metrics `yaml:"metrics"`
}

type Browser struct {
	Bin               string        `yaml:"bin"`
	Headless          bool          `yaml:"headless"`
	DeviceScaleFactor float64       `yaml:"device_scale_factor"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

type Export struct {
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	StabilityTimeout  time.Duration `yaml:"stability_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	HeightOffset      int           `yaml:"height_offset"`
	MaxContentWidth   int           `yaml:"max_content_width"`
}

type Token struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

type Storage struct {
	Backend string `yaml:"backend"` // "local" or "s3"
	Local   Local  `yaml:"local"`
	S3      S3     `yaml:"s3"`
}

type Local struct {
	Dir string `yaml:"dir"`
}

type S3 struct {
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	URLMode         string        `yaml:"url_mode"`
	PresignedTTL    time.Duration `yaml:"presigned_ttl"`
}

type Queue struct {
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
	Durable string `yaml:"durable"`
}

type Metrics struct {
	Addr string `yaml:"addr"`
}

func Default() Config {
	return Config{
		TmpDir: filepath.Join(os.TempDir(), "rendersnap"),
		Browser: Browser{
			Headless:          true,
			DeviceScaleFactor: 2,
			NavigationTimeout: 30 * time.Second,
		},
		Export: Export{
			NavigationTimeout: 20 * time.Second,
			StabilityTimeout:  20 * time.Second,
			SettleDelay:       500 * time.Millisecond,
			HeightOffset:      85,
			MaxContentWidth:   1800,
		},
		Token: Token{
			TTL: 15 * time.Minute,
		},
		Storage: Storage{
			Backend: "local",
			Local:   Local{Dir: "exports"},
		},
		Queue: Queue{
			URL:     "nats://127.0.0.1:4222",
			Stream:  "EXPORTS",
			Subject: "exports.image",
			Durable: "rendersnap-worker",
		},
		Metrics: Metrics{
			Addr: ":9090",
		},
	}
}

// Load reads the config file at path (optional) on top of defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envString("SITE_URL", &cfg.SiteURL)
	envString("TMP_DIR", &cfg.TmpDir)
	envString("CHROME_BIN", &cfg.Browser.Bin)
	envString("RENDER_TOKEN_SECRET", &cfg.Token.Secret)
	envString("NATS_URL", &cfg.Queue.URL)
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_DIR", &cfg.Storage.Local.Dir)
	envString("S3_BUCKET", &cfg.Storage.S3.Bucket)
	envString("S3_REGION", &cfg.Storage.S3.Region)
	envString("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	envString("S3_ACCESS_KEY_ID", &cfg.Storage.S3.AccessKeyID)
	envString("S3_SECRET_ACCESS_KEY", &cfg.Storage.S3.SecretAccessKey)
	envString("METRICS_ADDR", &cfg.Metrics.Addr)
}

func envString(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}
