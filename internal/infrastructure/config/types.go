package config

import "github.com/plaidhost/plaid/internal/domain/message"

// LimitSpec decodes a TOML limit value that is either the literal string
// "unlimited" or a non-negative integer, mirroring spec.md's
// `Limit ∈ {Unlimited, Limited(n)}`.
type LimitSpec struct {
	Unlimited bool
	Value     uint64
}

// ToLimit converts the decoded spec into a domain Limit.
func (l LimitSpec) ToLimit() message.Limit {
	if l.Unlimited {
		return message.Unlimited()
	}
	return message.Limited(l.Value)
}

// WebhooksConfig is decoded from the `webhooks` TOML file.
type WebhooksConfig struct {
	Listeners map[string]ListenerConfig `mapstructure:"listeners"`
	Routes    []RouteConfig             `mapstructure:"routes"`
}

// ListenerConfig describes one of the two (internal/external) HTTP listeners.
type ListenerConfig struct {
	Address  string `mapstructure:"address"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// RouteConfig is one webhook route entry.
type RouteConfig struct {
	Listener        string          `mapstructure:"listener"`
	Path            string          `mapstructure:"path"`
	LogType         string          `mapstructure:"log_type"`
	AllowedHeaders  []string        `mapstructure:"allowed_headers"`
	LogbacksAllowed string          `mapstructure:"logbacks_allowed"`
	GetMode         *GetModeConfig  `mapstructure:"get_mode"`
}

// GetModeConfig decodes a route's GET behavior.
type GetModeConfig struct {
	Kind         string `mapstructure:"kind"` // "static" | "rule" | "upstream"
	StaticBody   string `mapstructure:"static_body"`
	RuleModule   string `mapstructure:"rule_module"`
	CachingMode  string `mapstructure:"caching_mode"` // "none" | "timed" | "fingerprinted"
	TimedSeconds int    `mapstructure:"timed_seconds"`
	UpstreamBody string `mapstructure:"upstream_body"`
}

// LoadingConfig is decoded from the `loading` TOML file: module discovery,
// quotas, and signing requirements.
type LoadingConfig struct {
	ModuleDir             string            `mapstructure:"module_dir"`
	SingleThreadedRules   []string          `mapstructure:"single_threaded_rules"`
	LogTypeOverrides      map[string]string `mapstructure:"log_type_overrides"`
	ComputationAmount     AmountConfig      `mapstructure:"computation_amount"`
	MemoryPageCount       AmountConfig      `mapstructure:"memory_page_count"`
	StorageSizeLimit      AmountConfig      `mapstructure:"storage_size_limit"`
	PersistentResponseSize AmountConfig     `mapstructure:"persistent_response_size"`
	LRUCacheSize          int               `mapstructure:"lru_cache_size"`
	TestModeExemptions    []string          `mapstructure:"test_mode_exemptions"`
	AccessoryUniversal    map[string]string `mapstructure:"accessory_data_universal"`
	AccessoryLogTypeOverrides map[string]map[string]string `mapstructure:"accessory_data_log_type_overrides"`
	AccessoryFileOverrides    map[string]map[string]string `mapstructure:"accessory_data_file_overrides"`
	SecretsAllowed        map[string][]string `mapstructure:"secrets_allowed"`
	Signing               SigningConfig     `mapstructure:"signing"`
}

// AmountConfig is a default value plus an optional per-module override
// table, matching the original loader's `LimitAmount` shape.
type AmountConfig struct {
	Default        uint64            `mapstructure:"default"`
	LogType        map[string]uint64 `mapstructure:"log_type"`
	ModuleOverrides map[string]uint64 `mapstructure:"module_overrides"`
}

// Resolve picks the effective value for filename/logType: module override
// wins, then log-type override, then default.
func (a AmountConfig) Resolve(filename, logType string) uint64 {
	if v, ok := a.ModuleOverrides[filename]; ok {
		return v
	}
	if v, ok := a.LogType[logType]; ok {
		return v
	}
	return a.Default
}

// SigningConfig describes the authorized-signer set and threshold.
type SigningConfig struct {
	SignaturesRequired int      `mapstructure:"signatures_required"`
	AuthorizedSigners  []string `mapstructure:"authorized_signers"`
	SignaturesDir      string   `mapstructure:"signatures_dir"`
}

// NetworkTargetConfig is one named outbound HTTP target reachable via
// make_named_request.
type NetworkTargetConfig struct {
	URL                 string            `mapstructure:"url"`
	Method              string            `mapstructure:"method"`
	Headers             map[string]string `mapstructure:"headers"`
	AllowedRules        []string          `mapstructure:"allowed_rules"`
	AvailableInTestMode bool              `mapstructure:"available_in_test_mode"`
	TimeoutSeconds      int               `mapstructure:"timeout_seconds"`
	ReturnCode          bool              `mapstructure:"return_code"`
	ReturnBody          bool              `mapstructure:"return_body"`
}

// APIAdapterConfig is a generic cloud/SaaS capability, opaque beyond its
// allowlist and metering configuration (spec.md scopes individual
// connectors out as external collaborators).
type APIAdapterConfig struct {
	AllowedRules        []string `mapstructure:"allowed_rules"`
	AvailableInTestMode bool     `mapstructure:"available_in_test_mode"`
	ComputationCost     uint64   `mapstructure:"computation_cost"`
}

// ApisConfig is decoded from the `apis` TOML file.
type ApisConfig struct {
	Network map[string]NetworkTargetConfig `mapstructure:"network"`
	API     map[string]APIAdapterConfig    `mapstructure:"api"`
}

// IntervalGeneratorConfig describes a cron-style timer generator.
type IntervalGeneratorConfig struct {
	Name     string `mapstructure:"name"`
	Schedule string `mapstructure:"schedule"`
	LogType  string `mapstructure:"log_type"`
}

// WebSocketGeneratorConfig describes a websocket tailer generator.
type WebSocketGeneratorConfig struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	LogType string `mapstructure:"log_type"`
}

// QueueGeneratorConfig describes an SQS-style poller generator.
type QueueGeneratorConfig struct {
	Name           string `mapstructure:"name"`
	QueueURL       string `mapstructure:"queue_url"`
	Region         string `mapstructure:"region"`
	LogType        string `mapstructure:"log_type"`
	PollSeconds    int    `mapstructure:"poll_seconds"`
}

// DataConfig is decoded from the `data` TOML file: generator definitions.
type DataConfig struct {
	Interval  []IntervalGeneratorConfig  `mapstructure:"interval"`
	WebSocket []WebSocketGeneratorConfig `mapstructure:"websocket"`
	Queue     []QueueGeneratorConfig     `mapstructure:"queue"`
}

// SharedDBConfig describes one shared storage namespace's allowlist.
type SharedDBConfig struct {
	Read      []string `mapstructure:"r"`
	ReadWrite []string `mapstructure:"rw"`
	SizeLimit string   `mapstructure:"size_limit"`
}

// StorageConfig is decoded from the `storage` TOML file.
type StorageConfig struct {
	Backend    string                    `mapstructure:"backend"` // "memory" (default) | "bolt" | "dynamodb"
	BoltPath   string                    `mapstructure:"bolt_path"`
	DynamoTable string                   `mapstructure:"dynamo_table"`
	DynamoRegion string                  `mapstructure:"dynamo_region"`
	SharedDBs  map[string]SharedDBConfig `mapstructure:"shared_dbs"`
}

// NamedCacheConfig is a cache instance's allowlist and test-mode gate.
type NamedCacheConfig struct {
	AllowedRules        []string `mapstructure:"allowed_rules"`
	AvailableInTestMode bool     `mapstructure:"available_in_test_mode"`
	Capacity            int      `mapstructure:"capacity"`
}

// CacheConfig is decoded from the `cache` TOML file.
type CacheConfig struct {
	DefaultCapacity int                         `mapstructure:"default_capacity"`
	Named           map[string]NamedCacheConfig `mapstructure:"named"`
}

// LoggingConfig is decoded from the `logging` TOML file.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" | "json"
}

// ExecutorConfig is decoded from the `executor` TOML file.
type ExecutorConfig struct {
	ExecutionThreads int  `mapstructure:"execution_threads"`
	QueueDepth       int  `mapstructure:"queue_depth"`
	TestMode         bool `mapstructure:"test_mode"`
	CapabilityCallCost uint64 `mapstructure:"capability_call_cost"`
	// InvocationTimeoutSeconds bounds the wall-clock duration of a single
	// invocation, as a backstop alongside the computation meter (spec.md
	// §4.E: a wall-clock ceiling on top of the metered one, for a rule
	// blocked in a slow host call rather than burning compute). Zero means
	// no wall-clock ceiling.
	InvocationTimeoutSeconds int `mapstructure:"invocation_timeout_seconds"`
}

// Config is the fully assembled boot-time configuration set, one field per
// TOML file named in spec.md §6.
type Config struct {
	Webhooks WebhooksConfig
	Loading  LoadingConfig
	Apis     ApisConfig
	Data     DataConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Logging  LoggingConfig
	Executor ExecutorConfig
}
