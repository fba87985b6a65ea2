package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"lexroute/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEXROUTE_"

// PassphraseEnv names the variable holding the key for "enc:" secrets.
const PassphraseEnv = "LEXROUTE_CONFIG_KEY"

// DefaultPath is used when no --config flag is given.
const DefaultPath = "lexroute.yaml"

// Config is the top-level configuration. It is read once at startup.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Composer   ComposerConfig   `yaml:"composer"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Agents     AgentsConfig     `yaml:"agents"`
	HTTP       HTTPConfig       `yaml:"http"`
	Render     RenderConfig     `yaml:"render"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	Includes   []string         `yaml:"includes,omitempty"`
}

// LLMConfig holds upstream provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures the per-provider circuit breaker.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig configures HTTP connection pooling for a provider.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig describes one upstream model endpoint.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai", "anthropic", "gemini", "bedrock"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// GatewayConfig bounds upstream calls.
type GatewayConfig struct {
	CallTimeout    time.Duration `yaml:"call_timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	QueueTimeout   time.Duration `yaml:"queue_timeout"`
	RetryAfter     time.Duration `yaml:"retry_after"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
	Jitter         float64       `yaml:"jitter"`
}

// ComposerConfig sets model parameters and the prompt budget.
type ComposerConfig struct {
	MaxPromptTokens int     `yaml:"max_prompt_tokens"`
	Tokenizer       string  `yaml:"tokenizer"` // "estimate" or "tiktoken"
	Encoding        string  `yaml:"encoding"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	TopP            float64 `yaml:"top_p"`
}

// NormalizerConfig tunes response parsing.
type NormalizerConfig struct {
	MinResponseChars int `yaml:"min_response_chars"`
}

// DispatchConfig bounds a whole request.
type DispatchConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AgentsConfig selects the agent profiles. Without a file the builtin set is used;
// inline profiles are appended either way.
type AgentsConfig struct {
	File     string                `yaml:"file,omitempty"`
	Fallback string                `yaml:"fallback"`
	Profiles []domain.AgentProfile `yaml:"profiles,omitempty"`
}

// HTTPConfig configures the inbound API listener.
type HTTPConfig struct {
	Addr         string          `yaml:"addr"`
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	WebSocket    WebSocketConfig `yaml:"websocket"`
}

// RateLimitConfig is a per-client-IP token bucket.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// WebSocketConfig configures the stage stream endpoint.
type WebSocketConfig struct {
	Enabled        bool     `yaml:"enabled"`
	OriginPatterns []string `yaml:"origin_patterns,omitempty"`
}

// RenderConfig configures document renderers.
type RenderConfig struct {
	PDF PDFConfig `yaml:"pdf"`
}

// PDFConfig configures the headless Chrome PDF renderer.
type PDFConfig struct {
	Enabled bool `yaml:"enabled"`
	// RemoteURL is a DevTools websocket URL; empty starts a local browser.
	RemoteURL string        `yaml:"remote_url,omitempty"`
	ExecPath  string        `yaml:"exec_path,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SchedulerConfig holds periodic report tasks.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig is one scheduled task.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration ("15m")
	Action   string `yaml:"action"`   // "stats_report" or "breaker_report"
	OneShot  bool   `yaml:"one_shot,omitempty"`
}

// LoggerConfig configures slog output.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig configures OpenTelemetry.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "nvidia",
			Providers: []ProviderConfig{
				{
					Name:    "nvidia",
					Type:    "openai",
					BaseURL: "https://integrate.api.nvidia.com/v1",
					Model:   "nvidia/llama-3.1-nemotron-ultra-253b-v1",
				},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Gateway: GatewayConfig{
			CallTimeout:    60 * time.Second,
			MaxConcurrent:  8,
			QueueTimeout:   2 * time.Second,
			RetryAfter:     5 * time.Second,
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     8 * time.Second,
			Multiplier:     2,
			Jitter:         0.25,
		},
		Composer: ComposerConfig{
			MaxPromptTokens: 12000,
			Tokenizer:       "estimate",
			Encoding:        "cl100k_base",
			Temperature:     0.1,
			MaxTokens:       6000,
			TopP:            0.9,
		},
		Normalizer: NormalizerConfig{MinResponseChars: 100},
		Dispatch:   DispatchConfig{RequestTimeout: 3 * time.Minute},
		Agents:     AgentsConfig{Fallback: "general_legal"},
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:8080",
			MaxBodyBytes: 1 << 20,
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 60,
				Burst:          10,
			},
			WebSocket: WebSocketConfig{Enabled: true},
		},
		Render: RenderConfig{
			PDF: PDFConfig{Enabled: true, Timeout: 30 * time.Second},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{Exporter: "noop"},
	}
}

// Load reads config from a YAML file, falling back to defaults when the file
// does not exist. Environment overrides and secret decryption are applied
// before validation.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for commands that need only part of the
// configuration.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("%w: read config: %w", domain.ErrConfigLoad, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve config path: %w", domain.ErrConfigLoad, err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %w", domain.ErrConfigLoad, err)
	}

	// Includes apply in order beneath the main file, which is re-applied last.
	if len(cfg.Includes) > 0 {
		fragments, err := collectFragments(absPath, cfg.Includes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
		}
		fragments = append(fragments, fragment{path: absPath, data: data})
		for _, f := range fragments {
			if err := yaml.Unmarshal(f.data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrConfigLoad, f.path, err)
			}
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(PassphraseEnv); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrDecryption, err)
		}
	}
	return cfg, nil
}

// ApplyEnvOverrides maps LEXROUTE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	envString("LLM_DEFAULT_PROVIDER", &cfg.LLM.DefaultProvider)
	envBool("LLM_CIRCUIT_BREAKER_ENABLED", &cfg.LLM.CircuitBreaker.Enabled)

	// Per-provider overrides: LEXROUTE_LLM_PROVIDER_<NAME>_API_KEY, _MODEL, _BASE_URL.
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		name := providerEnvName(p.Name)
		envString("LLM_PROVIDER_"+name+"_API_KEY", &p.APIKey)
		envString("LLM_PROVIDER_"+name+"_MODEL", &p.Model)
		envString("LLM_PROVIDER_"+name+"_BASE_URL", &p.BaseURL)
	}

	envDuration("GATEWAY_CALL_TIMEOUT", &cfg.Gateway.CallTimeout)
	envInt("GATEWAY_MAX_CONCURRENT", &cfg.Gateway.MaxConcurrent)
	envDuration("GATEWAY_QUEUE_TIMEOUT", &cfg.Gateway.QueueTimeout)
	envInt("GATEWAY_MAX_RETRIES", &cfg.Gateway.MaxRetries)

	envInt("COMPOSER_MAX_PROMPT_TOKENS", &cfg.Composer.MaxPromptTokens)
	envString("COMPOSER_TOKENIZER", &cfg.Composer.Tokenizer)

	envDuration("DISPATCH_REQUEST_TIMEOUT", &cfg.Dispatch.RequestTimeout)
	envString("AGENTS_FILE", &cfg.Agents.File)

	envString("HTTP_ADDR", &cfg.HTTP.Addr)
	envBool("HTTP_RATE_LIMIT_ENABLED", &cfg.HTTP.RateLimit.Enabled)
	if v := os.Getenv(EnvPrefix + "HTTP_TRUSTED_PROXIES"); v != "" {
		cfg.HTTP.RateLimit.TrustedProxies = splitAndTrim(v, ",")
	}
	if v := os.Getenv(EnvPrefix + "HTTP_WS_ORIGINS"); v != "" {
		cfg.HTTP.WebSocket.OriginPatterns = splitAndTrim(v, ",")
	}

	envBool("RENDER_PDF_ENABLED", &cfg.Render.PDF.Enabled)
	envString("RENDER_PDF_REMOTE_URL", &cfg.Render.PDF.RemoteURL)

	envBool("SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)

	envString("LOGGER_LEVEL", &cfg.Logger.Level)
	envString("LOGGER_FORMAT", &cfg.Logger.Format)
	envString("LOGGER_OUTPUT", &cfg.Logger.Output)

	envBool("TRACER_ENABLED", &cfg.Tracer.Enabled)
	envString("TRACER_EXPORTER", &cfg.Tracer.Exporter)
}

func providerEnvName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}

func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets finds "enc:..." values in provider API keys and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if !strings.HasPrefix(key, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
		}
		cfg.LLM.Providers[i].APIKey = decrypted
	}

	if strings.HasPrefix(cfg.Render.PDF.RemoteURL, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(cfg.Render.PDF.RemoteURL, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("render.pdf.remote_url: %w", err)
		}
		cfg.Render.PDF.RemoteURL = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
