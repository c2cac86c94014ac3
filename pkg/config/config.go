package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/auditkit/site-auditor/pkg/utils"
)

// EnvPrefix prefixes every environment override, e.g. SITE_AUDITOR_DATA_DIR.
const EnvPrefix = "SITE_AUDITOR_"

// AppConfig holds the process-wide settings shared by every audit job
type AppConfig struct {
	ListenAddr              string           `yaml:"listen_addr"`
	DataDir                 string           `yaml:"data_dir"`
	StateDir                string           `yaml:"state_dir"`
	HistoryDB               string           `yaml:"history_db"`
	UserAgent               string           `yaml:"user_agent"`
	NumWorkers              int              `yaml:"num_workers"`
	AnalyzeWorkers          int              `yaml:"analyze_workers,omitempty"`
	MaxRequests             int              `yaml:"max_requests"`
	MaxRequestsPerHost      int              `yaml:"max_requests_per_host"`
	RequestsPerSecond       float64          `yaml:"requests_per_second"` // Per host; 0.5 = one request every 2s
	Burst                   int              `yaml:"burst,omitempty"`
	IgnoreRobotsTxt         bool             `yaml:"ignore_robots_txt,omitempty"`
	MaxRetries              int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay       time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay           time.Duration    `yaml:"max_retry_delay,omitempty"`
	SemaphoreAcquireTimeout time.Duration    `yaml:"semaphore_acquire_timeout,omitempty"`
	PerPageTimeout          time.Duration    `yaml:"per_page_timeout,omitempty"`
	GlobalCrawlTimeout      time.Duration    `yaml:"global_crawl_timeout,omitempty"`
	MaxPageSizeBytes        int64            `yaml:"max_page_size_bytes,omitempty"`
	LogCapacity             int              `yaml:"log_capacity,omitempty"`
	PersistVisited          bool             `yaml:"persist_visited,omitempty"`
	TokenizerEncoding       string           `yaml:"tokenizer_encoding,omitempty"`
	ProgressWeights         ProgressWeights  `yaml:"progress_weights,omitempty"`
	HTTPClientSettings      HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// ProgressWeights are the shares of the 0-100 progress scale given to each
// stage, applied in pipeline order. They must sum to 100.
type ProgressWeights struct {
	Crawl   int `yaml:"crawl"`
	Extract int `yaml:"extract"`
	Analyze int `yaml:"analyze"`
	Report  int `yaml:"report"`
}

// Sum returns the total of all stage weights.
func (w ProgressWeights) Sum() int { return w.Crawl + w.Extract + w.Analyze + w.Report }

// DefaultProgressWeights yields the bands crawl 0-50, extract 50-70,
// analyze 70-85, report 85-100.
var DefaultProgressWeights = ProgressWeights{Crawl: 50, Extract: 20, Analyze: 15, Report: 15}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil = default
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// DefaultUserAgent mimics a desktop browser; many shops block obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// LoadAppConfig reads the YAML file at path (a missing file yields an empty
// config), then applies .env and environment overrides. Defaults are applied
// later by Validate.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: YAML in %s: %v", utils.ErrParsing, path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("%w: reading %s: %w", utils.ErrFilesystem, path, err)
		}
	}

	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SITE_AUDITOR_* variables looked up via lookup.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not an integer", utils.ErrConfigValidation, EnvPrefix, key, v)
		}
		*dst = n
		return nil
	}

	str("LISTEN_ADDR", &c.ListenAddr)
	str("DATA_DIR", &c.DataDir)
	str("STATE_DIR", &c.StateDir)
	str("HISTORY_DB", &c.HistoryDB)
	str("USER_AGENT", &c.UserAgent)
	if err := num("NUM_WORKERS", &c.NumWorkers); err != nil {
		return err
	}
	if err := num("MAX_REQUESTS_PER_HOST", &c.MaxRequestsPerHost); err != nil {
		return err
	}
	if err := num("LOG_CAPACITY", &c.LogCapacity); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "REQUESTS_PER_SECOND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sREQUESTS_PER_SECOND=%q is not a number", utils.ErrConfigValidation, EnvPrefix, v)
		}
		c.RequestsPerSecond = f
	}
	if v, ok := lookup(EnvPrefix + "PERSIST_VISITED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sPERSIST_VISITED=%q is not a boolean", utils.ErrConfigValidation, EnvPrefix, v)
		}
		c.PersistVisited = b
	}
	return nil
}
