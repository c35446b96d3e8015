package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/resilience"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/store"
	"github.com/Aman-CERP/trialscope/internal/telemetry"
	"github.com/Aman-CERP/trialscope/internal/verify"
)

// Project config file names, in order of preference.
const (
	ProjectConfigFile    = ".trialscope.yaml"
	ProjectConfigFileAlt = ".trialscope.yml"
)

// Config represents the complete trialscope configuration.
type Config struct {
	Version    int                     `yaml:"version" json:"version"`
	Search     SearchConfig            `yaml:"search" json:"search"`
	Store      store.Config            `yaml:"store" json:"store"`
	Oracle     oracle.Config           `yaml:"oracle" json:"oracle"`
	Cache      CacheConfig             `yaml:"cache" json:"cache"`
	Verify     verify.Config           `yaml:"verify" json:"verify"`
	Resilience resilience.Config       `yaml:"resilience" json:"resilience"`
	Server     ServerConfig            `yaml:"server" json:"server"`
	Tracing    telemetry.TracingConfig `yaml:"tracing" json:"tracing"`
}

// SearchConfig configures retrieval and rank fusion.
// Values come from, in increasing precedence:
//  1. User config (~/.config/trialscope/config.yaml)
//  2. Project config (.trialscope.yaml)
//  3. Env vars (TRIALSCOPE_SEARCH_MODE, TRIALSCOPE_RRF_CONSTANT, ...)
type SearchConfig struct {
	// Mode is the default retrieval strategy: hybrid, keyword or semantic.
	Mode string `yaml:"mode" json:"mode"`

	PageSize int `yaml:"page_size" json:"page_size"`

	// RRFConstant is the RRF smoothing parameter (k).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// RankWindow is how many candidates each retriever contributes to fusion.
	RankWindow int `yaml:"rank_window" json:"rank_window"`

	// SimilarityFloor drops vector candidates below this cosine similarity.
	SimilarityFloor float64 `yaml:"similarity_floor" json:"similarity_floor"`
	MaxBoost        float64 `yaml:"max_boost" json:"max_boost"`
	EmbeddingDims   int     `yaml:"embedding_dims" json:"embedding_dims"`

	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`

	// SynonymsFile is a YAML map of extra medical synonyms.
	SynonymsFile string `yaml:"synonyms_file" json:"synonyms_file"`
}

// CacheConfig sizes the three service caches.
type CacheConfig struct {
	ValidationTTL   time.Duration `yaml:"validation_ttl" json:"validation_ttl"`
	ValidationSize  int           `yaml:"validation_size" json:"validation_size"`
	AnswerTTL       time.Duration `yaml:"answer_ttl" json:"answer_ttl"`
	AnswerSize      int           `yaml:"answer_size" json:"answer_size"`
	ExplanationTTL  time.Duration `yaml:"explanation_ttl" json:"explanation_ttl"`
	ExplanationSize int           `yaml:"explanation_size" json:"explanation_size"`
}

// ServerConfig configures the HTTP and MCP servers.
type ServerConfig struct {
	// Transport is stdio (MCP over stdin/stdout) or http (API plus MCP at /mcp).
	Transport   string `yaml:"transport" json:"transport"`
	Addr        string `yaml:"addr" json:"addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
	Metrics     bool   `yaml:"metrics" json:"metrics"`
	MaxSessions int    `yaml:"max_sessions" json:"max_sessions"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			Mode:            string(search.ModeHybrid),
			PageSize:        search.DefaultPageSize,
			RRFConstant:     search.DefaultRankConstant,
			RankWindow:      search.DefaultWindowSize,
			SimilarityFloor: search.DefaultSimilarityFloor,
			MaxBoost:        search.DefaultMaxBoost,
			EmbeddingDims:   search.DefaultDimensions,
			LexicalWeight:   1,
			VectorWeight:    1,
		},
		Store:  store.DefaultConfig(),
		Oracle: oracle.DefaultConfig(),
		Cache: CacheConfig{
			ValidationTTL:   time.Hour,
			ValidationSize:  256,
			AnswerTTL:       30 * time.Minute,
			AnswerSize:      128,
			ExplanationTTL:  time.Hour,
			ExplanationSize: 512,
		},
		Verify:     verify.DefaultConfig(),
		Resilience: resilience.DefaultConfig(),
		Server: ServerConfig{
			Transport:   "stdio",
			Addr:        "127.0.0.1:8765",
			LogLevel:    "info",
			Metrics:     true,
			MaxSessions: 1024,
		},
		Tracing: telemetry.DefaultTracingConfig(),
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/trialscope/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/trialscope/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "trialscope", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "trialscope", "config.yaml")
	}
	return filepath.Join(home, ".config", "trialscope", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/trialscope/config.yaml)
//  3. Project config (.trialscope.yaml in dir)
//  4. Environment variables (TRIALSCOPE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, trialerrors.New(trialerrors.ErrCodeConfigInvalid, "invalid configuration", err).
			WithSuggestion("Run 'trialscope config show' to inspect the effective settings")
	}

	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, or "" when
// there is none.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{ProjectConfigFile, ProjectConfigFileAlt} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

// loadFromFile loads .trialscope.yaml, falling back to .trialscope.yml.
func (c *Config) loadFromFile(dir string) error {
	if path := ProjectConfigPath(dir); path != "" {
		return c.loadYAML(path)
	}
	return nil
}

// loadYAML decodes a YAML file over the current values. Keys absent from
// the file keep their current value; unknown keys are an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yamlUnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// yamlUnmarshalStrict decodes data into v, rejecting unknown keys.
func yamlUnmarshalStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

// applyEnvOverrides applies TRIALSCOPE_* environment variable overrides.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRIALSCOPE_SEARCH_MODE"); v != "" {
		c.Search.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("TRIALSCOPE_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("TRIALSCOPE_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("TRIALSCOPE_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 {
			c.Search.VectorWeight = w
		}
	}

	if v := os.Getenv("TRIALSCOPE_STORE_BACKEND"); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TRIALSCOPE_ES_ADDRESSES"); v != "" {
		c.Store.Addresses = splitList(v)
	}
	if v := os.Getenv("TRIALSCOPE_ES_INDEX"); v != "" {
		c.Store.Index = v
	}
	if v := os.Getenv("TRIALSCOPE_ES_API_KEY"); v != "" {
		c.Store.APIKey = v
	}
	if v := os.Getenv("TRIALSCOPE_ES_USERNAME"); v != "" {
		c.Store.Username = v
	}
	if v := os.Getenv("TRIALSCOPE_ES_PASSWORD"); v != "" {
		c.Store.Password = v
	}
	if v := os.Getenv("TRIALSCOPE_LOCAL_PATH"); v != "" {
		c.Store.LocalPath = v
	}

	if v := os.Getenv("TRIALSCOPE_ORACLE_PROVIDER"); v != "" {
		c.Oracle.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("TRIALSCOPE_OLLAMA_HOST"); v != "" {
		c.Oracle.Host = v
	}
	if v := os.Getenv("TRIALSCOPE_ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}
	if v := os.Getenv("TRIALSCOPE_EMBED_MODEL"); v != "" {
		c.Oracle.EmbedModel = v
	}
	// GEMINI_API_KEY is the name the Gemini tooling uses.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Oracle.APIKey = v
	}
	if v := os.Getenv("TRIALSCOPE_ORACLE_API_KEY"); v != "" {
		c.Oracle.APIKey = v
	}

	if v := os.Getenv("TRIALSCOPE_JUDGE_ENABLED"); v != "" {
		c.Verify.JudgeEnabled = strings.ToLower(v) == "true" || v == "1"
	}

	if v := os.Getenv("TRIALSCOPE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("TRIALSCOPE_TRANSPORT"); v != "" {
		c.Server.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("TRIALSCOPE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TRIALSCOPE_TRACING_EXPORTER"); v != "" {
		c.Tracing.Exporter = strings.ToLower(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FindProjectRoot finds the project root directory.
// It looks for a .trialscope.yaml/.yml file or .git directory by walking up
// the directory tree, and returns startDir when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := absDir
	for {
		if ProjectConfigPath(dir) != "" || dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch search.Mode(strings.ToLower(c.Search.Mode)) {
	case search.ModeHybrid, search.ModeKeyword, search.ModeSemantic:
	default:
		return fmt.Errorf("search.mode must be 'hybrid', 'keyword' or 'semantic', got %s", c.Search.Mode)
	}
	if c.Search.PageSize < 1 || c.Search.PageSize > search.MaxPageSize {
		return fmt.Errorf("search.page_size must be between 1 and %d, got %d", search.MaxPageSize, c.Search.PageSize)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.RankWindow < c.Search.PageSize {
		return fmt.Errorf("search.rank_window must be at least page_size (%d), got %d", c.Search.PageSize, c.Search.RankWindow)
	}
	if c.Search.SimilarityFloor < 0 || c.Search.SimilarityFloor > 1 {
		return fmt.Errorf("search.similarity_floor must be between 0 and 1, got %f", c.Search.SimilarityFloor)
	}
	if c.Search.MaxBoost < 1 {
		return fmt.Errorf("search.max_boost must be at least 1, got %f", c.Search.MaxBoost)
	}
	if c.Search.EmbeddingDims <= 0 {
		return fmt.Errorf("search.embedding_dims must be positive, got %d", c.Search.EmbeddingDims)
	}
	if c.Search.LexicalWeight < 0 || c.Search.VectorWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.LexicalWeight+c.Search.VectorWeight == 0 {
		return fmt.Errorf("search.lexical_weight and search.vector_weight cannot both be 0")
	}

	switch c.Store.Backend {
	case store.BackendElasticsearch:
		if len(c.Store.Addresses) == 0 {
			return fmt.Errorf("store.addresses is required for the elasticsearch backend")
		}
		if c.Store.Index == "" {
			return fmt.Errorf("store.index is required for the elasticsearch backend")
		}
	case store.BackendLocal:
		if c.Store.LocalPath == "" {
			return fmt.Errorf("store.local_path is required for the local backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'elasticsearch' or 'local', got %s", c.Store.Backend)
	}

	validProviders := map[string]bool{
		oracle.ProviderOllama: true, oracle.ProviderGemini: true,
		oracle.ProviderStatic: true, oracle.ProviderNone: true,
	}
	if !validProviders[strings.ToLower(c.Oracle.Provider)] {
		return fmt.Errorf("oracle.provider must be 'ollama', 'gemini', 'static' or 'none', got %s", c.Oracle.Provider)
	}
	if p := strings.ToLower(c.Oracle.EmbedProvider); p != "" && !validProviders[p] {
		return fmt.Errorf("oracle.embed_provider must be 'ollama', 'gemini', 'static' or 'none', got %s", c.Oracle.EmbedProvider)
	}
	if c.Oracle.Timeout < 0 || c.Oracle.RateLimit < 0 || c.Oracle.Burst < 0 {
		return fmt.Errorf("oracle timeout, rate_limit and burst must be non-negative")
	}

	for name, size := range map[string]int{
		"validation_size":  c.Cache.ValidationSize,
		"answer_size":      c.Cache.AnswerSize,
		"explanation_size": c.Cache.ExplanationSize,
	} {
		if size <= 0 {
			return fmt.Errorf("cache.%s must be positive, got %d", name, size)
		}
	}

	if c.Verify.TotalTolerance < 0 || c.Verify.ApproxTolerance < 0 || c.Verify.EnrollmentTolerance < 0 {
		return fmt.Errorf("verify tolerances must be non-negative")
	}
	if c.Verify.FieldWindow <= 0 {
		return fmt.Errorf("verify.field_window must be positive, got %d", c.Verify.FieldWindow)
	}

	validTransports := map[string]bool{"stdio": true, "http": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return c.Tracing.Validate()
}

// EngineConfig returns the search engine settings.
func (c *Config) EngineConfig() search.EngineConfig {
	cfg := search.DefaultEngineConfig()
	cfg.DefaultMode = search.Mode(strings.ToLower(c.Search.Mode))
	cfg.StoreTimeout = c.Store.Timeout
	cfg.Builder.Dimensions = c.Search.EmbeddingDims
	cfg.Builder.SimilarityFloor = c.Search.SimilarityFloor
	cfg.Builder.MaxBoost = c.Search.MaxBoost
	cfg.Builder.PageSize = c.Search.PageSize
	cfg.Builder.Fusion = search.FusionSpec{
		RankConstant:  c.Search.RRFConstant,
		WindowSize:    c.Search.RankWindow,
		LexicalWeight: c.Search.LexicalWeight,
		VectorWeight:  c.Search.VectorWeight,
	}
	return cfg
}

// OracleConfig returns the oracle settings with the shared resilience
// policy applied.
func (c *Config) OracleConfig() oracle.Config {
	cfg := c.Oracle
	cfg.Resilience = c.Resilience
	if cfg.Dimensions == 0 {
		cfg.Dimensions = c.Search.EmbeddingDims
	}
	return cfg
}

// StoreConfig returns the store settings with the shared embedding size.
func (c *Config) StoreConfig() store.Config {
	cfg := c.Store
	cfg.Dimensions = c.Search.EmbeddingDims
	return cfg
}

// LoadSynonyms reads a YAML map of term to synonyms.
func LoadSynonyms(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonyms file %s: %w", path, err)
	}
	var synonyms map[string][]string
	if err := yaml.Unmarshal(data, &synonyms); err != nil {
		return nil, fmt.Errorf("failed to parse synonyms file %s: %w", path, err)
	}
	return synonyms, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
