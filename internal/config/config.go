// Package config provides layered configuration for arbor: environment
// variables (ARBOR_-prefixed) with a YAML file overlay and built-in
// defaults, in the style of the teacher's internal/config package.
//
// The effective configuration is an immutable value built once at
// construction and swapped wholesale under a write lock on Reload — no
// component reads individual fields from a mutable global (Design Note §9).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for arbor.
type Config struct {
	Scoring   ScoringConfig
	Reflection ReflectionConfig
	Scheduler SchedulerConfig
	Gate      GateConfig
	Storage   StorageConfig
}

// ScoringConfig is the §4.2/§6 scoring.* surface.
type ScoringConfig struct {
	RecencyWeight    float64 `yaml:"recency_weight"`
	ImportanceWeight float64 `yaml:"importance_weight"`
	RelevanceWeight  float64 `yaml:"relevance_weight"`
	DecayLambda      float64 `yaml:"decay_lambda"`

	ContextSimilarityWeight float64 `yaml:"context_similarity_weight"`
	ImportanceFactorWeight  float64 `yaml:"importance_factor_weight"`
	AccessPatternWeight     float64 `yaml:"access_pattern_weight"`
	MaxAccessCountForNorm   int     `yaml:"max_access_count_for_norm"`
}

// ReflectionConfig is the §4.3/§6 reflection.* surface.
type ReflectionConfig struct {
	ImportanceTriggerThreshold float64       `yaml:"importance_trigger_threshold"`
	MaxMemoriesPerReflection   int           `yaml:"max_memories_per_reflection"`
	TargetInsightsPerReflection int          `yaml:"target_insights_per_reflection"`
	ClusteringSimilarityThreshold float64    `yaml:"clustering_similarity_threshold"`
	MinClusterSize             int           `yaml:"min_cluster_size"`
	TemporalAnalysisWindowDays int           `yaml:"temporal_analysis_window_days"`
	ReflectionCooldown         time.Duration `yaml:"-"`
	ReflectionCooldownHours    float64       `yaml:"reflection_cooldown_hours"`
	InsightImportanceMultiplier float64      `yaml:"insight_importance_multiplier"`
	MinImportanceForInput      float64       `yaml:"min_importance_for_input"`
}

// SchedulerConfig is the §4.4/§6 scheduler.* surface.
type SchedulerConfig struct {
	CheckInterval            time.Duration `yaml:"-"`
	CheckIntervalMinutes     int           `yaml:"check_interval_minutes"`
	MinReflectionInterval    time.Duration `yaml:"-"`
	MinReflectionIntervalMinutes int       `yaml:"min_reflection_interval_minutes"`
	MaxConcurrentSessions    int           `yaml:"max_concurrent_sessions"`
	SessionTimeout           time.Duration `yaml:"-"`
	SessionTimeoutMinutes    int           `yaml:"session_timeout_minutes"`
	MaxRetryAttempts         int           `yaml:"max_retry_attempts"`
	RetryBackoffMultiplier   float64       `yaml:"retry_backoff_multiplier"`
	ShutdownTimeout          time.Duration `yaml:"-"`
	PriorityThresholds       PriorityThresholds `yaml:"priority_thresholds"`
}

// PriorityThresholds maps accumulated importance onto a ReflectionPriority
// band, ported from background_reflection_service.rs's PriorityThresholds.
type PriorityThresholds struct {
	CriticalPatternThreshold float64 `yaml:"critical_pattern_threshold"`
	HighImportanceThreshold  float64 `yaml:"high_importance_threshold"`
	MediumImportanceThreshold float64 `yaml:"medium_importance_threshold"`
	LowImportanceThreshold   float64 `yaml:"low_importance_threshold"`
}

// GateConfig is the §4.5/§6 gate.* surface.
type GateConfig struct {
	Auth GateAuthConfig
	Rate GateRateConfig
}

// GateAuthConfig controls the Request Gate's authentication behavior.
type GateAuthConfig struct {
	Enabled          bool     `yaml:"enabled"`
	JWTExpirySeconds int      `yaml:"jwt_expiry_seconds"`
	RequiredScopes   []string `yaml:"required_scopes"`

	// BearerTokens maps a static bearer token to the client ID it
	// authenticates as, checked with a constant-time comparison
	// (mcp_server/auth.rs's "Bearer " scheme).
	BearerTokens map[string]string `yaml:"bearer_tokens"`

	// APIKeys maps an API key value to its client metadata
	// (mcp_server/auth.rs's "ApiKey "/x-api-key scheme).
	APIKeys map[string]APIKeyInfo `yaml:"api_keys"`

	// AllowedCertificateFingerprints is the set of client certificate
	// thumbprints accepted via the x-client-cert-thumbprint credential.
	AllowedCertificateFingerprints []string `yaml:"allowed_certificate_fingerprints"`
}

// APIKeyInfo is the metadata an API key resolves to, ported from
// mcp_server/auth.rs's ApiKeyInfo.
type APIKeyInfo struct {
	ClientID  string   `yaml:"client_id"`
	Scopes    []string `yaml:"scopes"`
	ExpiresAt *time.Time `yaml:"expires_at"`
}

// GateRateConfig controls the Request Gate's rate limiting behavior.
type GateRateConfig struct {
	Enabled               bool               `yaml:"enabled"`
	GlobalRPM             float64            `yaml:"global_rpm"`
	GlobalBurst           int                `yaml:"global_burst"`
	PerClientRPM          float64            `yaml:"per_client_rpm"`
	PerClientBurst        int                `yaml:"per_client_burst"`
	PerToolRPM            map[string]float64 `yaml:"per_tool_rpm"`
	PerToolBurst          map[string]int     `yaml:"per_tool_burst"`
	SilentModeMultiplier  float64            `yaml:"silent_mode_multiplier"`
	WhitelistClients      []string           `yaml:"whitelist_clients"`
	ClientTTL             time.Duration      `yaml:"-"`
	ClientTTLMinutes      int                `yaml:"client_ttl_minutes"`
	CleanupInterval       time.Duration      `yaml:"-"`
	CleanupIntervalMinutes int               `yaml:"cleanup_interval_minutes"`
}

// StorageConfig selects and configures the Memory Store backend.
type StorageConfig struct {
	Engine string `yaml:"engine"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
	EmbeddingDimension int `yaml:"embedding_dimension"`
}

// Default returns the built-in default configuration, matching the
// defaults enumerated throughout spec.md §4 and §6.
func Default() *Config {
	cfg := &Config{
		Scoring: ScoringConfig{
			RecencyWeight:    1.0 / 3.0,
			ImportanceWeight: 1.0 / 3.0,
			RelevanceWeight:  1.0 / 3.0,
			DecayLambda:      0.005,

			ContextSimilarityWeight: 0.6,
			ImportanceFactorWeight:  0.25,
			AccessPatternWeight:     0.15,
			MaxAccessCountForNorm:   100,
		},
		Reflection: ReflectionConfig{
			ImportanceTriggerThreshold:   150,
			MaxMemoriesPerReflection:     100,
			TargetInsightsPerReflection:  5,
			ClusteringSimilarityThreshold: 0.75,
			MinClusterSize:               3,
			TemporalAnalysisWindowDays:   30,
			ReflectionCooldownHours:      6,
			InsightImportanceMultiplier:  1.5,
			MinImportanceForInput:        0.3,
		},
		Scheduler: SchedulerConfig{
			CheckIntervalMinutes:         15,
			MinReflectionIntervalMinutes: 0,
			MaxConcurrentSessions:        2,
			SessionTimeoutMinutes:        10,
			MaxRetryAttempts:             3,
			RetryBackoffMultiplier:       2.0,
			ShutdownTimeout:              30 * time.Second,
			PriorityThresholds: PriorityThresholds{
				CriticalPatternThreshold:  500.0,
				HighImportanceThreshold:   300.0,
				MediumImportanceThreshold: 200.0,
				LowImportanceThreshold:    100.0,
			},
		},
		Gate: GateConfig{
			Auth: GateAuthConfig{
				Enabled:                        false,
				JWTExpirySeconds:               3600,
				RequiredScopes:                 []string{},
				BearerTokens:                   map[string]string{},
				APIKeys:                        map[string]APIKeyInfo{},
				AllowedCertificateFingerprints: []string{},
			},
			Rate: GateRateConfig{
				Enabled:        true,
				GlobalRPM:      1000,
				GlobalBurst:    50,
				PerClientRPM:   100,
				PerClientBurst: 10,
				PerToolRPM: map[string]float64{
					"store_memory":           50,
					"search_memory":          200,
					"get_statistics":         20,
					"what_did_you_remember":  30,
					"harvest_conversation":   100,
					"get_harvester_metrics":  10,
					"migrate_memory":         20,
					"delete_memory":          10,
				},
				PerToolBurst: map[string]int{
					"store_memory":          5,
					"search_memory":         20,
					"get_statistics":        2,
					"what_did_you_remember": 3,
					"harvest_conversation":  10,
					"get_harvester_metrics": 1,
					"migrate_memory":        2,
					"delete_memory":         1,
				},
				SilentModeMultiplier:   0.5,
				WhitelistClients:       []string{},
				ClientTTLMinutes:       60,
				CleanupIntervalMinutes: 15,
			},
		},
		Storage: StorageConfig{
			Engine:             "sqlite",
			DSN:                "./data/arbor.db",
			EmbeddingDimension: 768,
		},
	}
	cfg.resolveDurations()
	return cfg
}

// resolveDurations derives the time.Duration fields from their *Minutes /
// *Hours counterparts after a Default()/Load()/unmarshal pass.
func (c *Config) resolveDurations() {
	c.Reflection.ReflectionCooldown = time.Duration(c.Reflection.ReflectionCooldownHours * float64(time.Hour))
	c.Scheduler.CheckInterval = time.Duration(c.Scheduler.CheckIntervalMinutes) * time.Minute
	c.Scheduler.MinReflectionInterval = time.Duration(c.Scheduler.MinReflectionIntervalMinutes) * time.Minute
	c.Scheduler.SessionTimeout = time.Duration(c.Scheduler.SessionTimeoutMinutes) * time.Minute
	c.Gate.Rate.ClientTTL = time.Duration(c.Gate.Rate.ClientTTLMinutes) * time.Minute
	c.Gate.Rate.CleanupInterval = time.Duration(c.Gate.Rate.CleanupIntervalMinutes) * time.Minute
}

// Validate enforces the invariants spec.md §4.2 requires of a loaded
// configuration: lambda is positive, the scoring weights have a positive
// sum (Normalize then rescales them to 1), and MaxConcurrentSessions is at
// least 1.
func (c *Config) Validate() error {
	if c.Scoring.DecayLambda <= 0 {
		return fmt.Errorf("config: scoring.decay_lambda must be > 0, got %v", c.Scoring.DecayLambda)
	}
	sum := c.Scoring.RecencyWeight + c.Scoring.ImportanceWeight + c.Scoring.RelevanceWeight
	if sum <= 0 {
		return fmt.Errorf("config: scoring weights must sum to a positive value, got %v", sum)
	}
	if c.Scheduler.MaxConcurrentSessions < 1 {
		return fmt.Errorf("config: scheduler.max_concurrent_sessions must be >= 1")
	}
	return nil
}

// Normalize rescales the three scoring weights so they sum to exactly 1,
// per spec.md §9's "normalize on load" resolution of the Open Question.
// Declared weights that already sum near 1 are treated as a hint only.
func (c *Config) Normalize() {
	sum := c.Scoring.RecencyWeight + c.Scoring.ImportanceWeight + c.Scoring.RelevanceWeight
	if sum <= 0 {
		c.Scoring.RecencyWeight, c.Scoring.ImportanceWeight, c.Scoring.RelevanceWeight = 1.0/3.0, 1.0/3.0, 1.0/3.0
		return
	}
	c.Scoring.RecencyWeight /= sum
	c.Scoring.ImportanceWeight /= sum
	c.Scoring.RelevanceWeight /= sum
}

// Load builds a Config from defaults, an optional YAML file (yamlPath, may
// be empty), then environment variable overrides — each layer takes
// precedence over the last, matching the teacher's buildBaseConfig layering
// of env-vars-over-defaults, generalized to add a file layer beneath env.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.resolveDurations()
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := getEnvFloat("ARBOR_SCORING_RECENCY_WEIGHT"); ok {
		cfg.Scoring.RecencyWeight = v
	}
	if v, ok := getEnvFloat("ARBOR_SCORING_IMPORTANCE_WEIGHT"); ok {
		cfg.Scoring.ImportanceWeight = v
	}
	if v, ok := getEnvFloat("ARBOR_SCORING_RELEVANCE_WEIGHT"); ok {
		cfg.Scoring.RelevanceWeight = v
	}
	if v, ok := getEnvFloat("ARBOR_SCORING_DECAY_LAMBDA"); ok {
		cfg.Scoring.DecayLambda = v
	}
	if v := os.Getenv("ARBOR_STORAGE_ENGINE"); v != "" {
		cfg.Storage.Engine = v
	}
	if v := os.Getenv("ARBOR_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v, ok := getEnvInt("ARBOR_SCHEDULER_MAX_CONCURRENT_SESSIONS"); ok {
		cfg.Scheduler.MaxConcurrentSessions = v
	}
	if v, ok := getEnvBool("ARBOR_GATE_AUTH_ENABLED"); ok {
		cfg.Gate.Auth.Enabled = v
	}
	if v, ok := getEnvBool("ARBOR_GATE_RATE_ENABLED"); ok {
		cfg.Gate.Rate.Enabled = v
	}
	if v := os.Getenv("ARBOR_GATE_RATE_WHITELIST_CLIENTS"); v != "" {
		cfg.Gate.Rate.WhitelistClients = strings.Split(v, ",")
	}
}

func getEnvFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func getEnvInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}

// Store holds the current effective Config behind a read-write lock. Reload
// constructs a brand-new Config and swaps the pointer; readers never see a
// torn value (Design Note §9: "reload means constructing a new config and
// swapping the reference under a write lock").
type Store struct {
	mu  sync.RWMutex
	cur *Config
}

// NewStore wraps an already-loaded Config in a Store.
func NewStore(cfg *Config) *Store {
	return &Store{cur: cfg}
}

// Get returns the current effective Config. The returned pointer must be
// treated as immutable by the caller.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Reload atomically replaces the effective Config.
func (s *Store) Reload(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = cfg
}
