package types

import "time"

// Mode constants for gateway operation
const (
	ModeLocal  = "local"  // In-memory store, no Redis
	ModeRemote = "remote" // Postgres + Redis
)

// AppConfig is the root configuration for the volops gateway
type AppConfig struct {
	Mode       string `key:"mode" json:"mode"` // "local" or "remote"
	DebugMode  bool   `key:"debugMode" json:"debug_mode"`
	PrettyLogs bool   `key:"prettyLogs" json:"pretty_logs"`

	Database   DatabaseConfig   `key:"database" json:"database"`
	Gateway    GatewayConfig    `key:"gateway" json:"gateway"`
	Auth       AuthConfig       `key:"auth" json:"auth"`
	Index      IndexConfig      `key:"index" json:"index"`
	Sync       SyncConfig       `key:"sync" json:"sync"`
	Pagination PaginationConfig `key:"pagination" json:"pagination"`
	Seed       SeedConfig       `key:"seed" json:"seed"`
}

// IsLocalMode returns true if running in local mode (no Redis/Postgres)
func (c *AppConfig) IsLocalMode() bool {
	return c.Mode == ModeLocal
}

// ----------------------------------------------------------------------------
// Database Configuration
// ----------------------------------------------------------------------------

type DatabaseConfig struct {
	Redis    RedisConfig    `key:"redis" json:"redis"`
	Postgres PostgresConfig `key:"postgres" json:"postgres"`
}

type RedisMode string

const (
	RedisModeSingle  RedisMode = "single"
	RedisModeCluster RedisMode = "cluster"
)

type RedisConfig struct {
	Mode         RedisMode     `key:"mode" json:"mode"`
	Addrs        []string      `key:"addrs" json:"addrs"`
	Username     string        `key:"username" json:"username"`
	Password     string        `key:"password" json:"password"`
	ClientName   string        `key:"clientName" json:"client_name"`
	PoolSize     int           `key:"poolSize" json:"pool_size"`
	MinIdleConns int           `key:"minIdleConns" json:"min_idle_conns"`
	DialTimeout  time.Duration `key:"dialTimeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `key:"readTimeout" json:"read_timeout"`
	WriteTimeout time.Duration `key:"writeTimeout" json:"write_timeout"`
	MaxRetries   int           `key:"maxRetries" json:"max_retries"`
}

// IsConfigured returns true if at least one redis address is set
func (c RedisConfig) IsConfigured() bool {
	return len(c.Addrs) > 0 && c.Addrs[0] != ""
}

type PostgresConfig struct {
	Host            string        `key:"host" json:"host"`
	Port            int           `key:"port" json:"port"`
	User            string        `key:"user" json:"user"`
	Password        string        `key:"password" json:"password"`
	Database        string        `key:"database" json:"database"`
	SSLMode         string        `key:"sslMode" json:"ssl_mode"`
	MaxOpenConns    int           `key:"maxOpenConns" json:"max_open_conns"`
	MaxIdleConns    int           `key:"maxIdleConns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `key:"connMaxLifetime" json:"conn_max_lifetime"`
}

// ----------------------------------------------------------------------------
// Gateway Configuration
// ----------------------------------------------------------------------------

type GatewayConfig struct {
	HTTP            HTTPConfig    `key:"http" json:"http"`
	ShutdownTimeout time.Duration `key:"shutdownTimeout" json:"shutdown_timeout"`
}

type HTTPConfig struct {
	Host             string     `key:"host" json:"host"`
	Port             int        `key:"port" json:"port"`
	EnablePrettyLogs bool       `key:"enablePrettyLogs" json:"enable_pretty_logs"`
	CORS             CORSConfig `key:"cors" json:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `key:"allowOrigins" json:"allow_origins"`
	AllowedMethods []string `key:"allowMethods" json:"allow_methods"`
	AllowedHeaders []string `key:"allowHeaders" json:"allow_headers"`
}

// ----------------------------------------------------------------------------
// Auth Configuration
// ----------------------------------------------------------------------------

// AuthConfig configures bearer token verification for mutating routes
type AuthConfig struct {
	Secret     string        `key:"secret" json:"secret"`         // HS256 signing key
	Issuer     string        `key:"issuer" json:"issuer"`         // expected iss claim, empty = any
	AdminToken string        `key:"adminToken" json:"admin_token"` // static token, empty = disabled
	TokenTTL   time.Duration `key:"tokenTTL" json:"token_ttl"`     // lifetime of tokens minted by the CLI
}

// ----------------------------------------------------------------------------
// Search Index Configuration
// ----------------------------------------------------------------------------

const (
	IndexBackendSQLite        = "sqlite"
	IndexBackendElasticsearch = "elasticsearch"
)

type IndexConfig struct {
	Backend       string              `key:"backend" json:"backend"` // "sqlite" or "elasticsearch"
	SQLite        SQLiteIndexConfig   `key:"sqlite" json:"sqlite"`
	Elasticsearch ElasticsearchConfig `key:"elasticsearch" json:"elasticsearch"`
	SearchLimit   int                 `key:"searchLimit" json:"search_limit"` // max ids returned per search
	CacheSize     int                 `key:"cacheSize" json:"cache_size"`     // search result cache entries, 0 = off
	CacheTTL      time.Duration       `key:"cacheTTL" json:"cache_ttl"`
}

type SQLiteIndexConfig struct {
	Path string `key:"path" json:"path"` // ":memory:" for an ephemeral index
}

type ElasticsearchConfig struct {
	URL       string        `key:"url" json:"url"`
	IndexName string        `key:"indexName" json:"index_name"`
	Timeout   time.Duration `key:"timeout" json:"timeout"`
}

// SyncConfig configures the index outbox used to retry failed index writes
type SyncConfig struct {
	Outbox      bool          `key:"outbox" json:"outbox"` // requires redis
	Group       string        `key:"group" json:"group"`
	Consumer    string        `key:"consumer" json:"consumer"` // defaults to hostname
	MaxAttempts int           `key:"maxAttempts" json:"max_attempts"`
	RetryDelay  time.Duration `key:"retryDelay" json:"retry_delay"`
	ReadBlock   time.Duration `key:"readBlock" json:"read_block"`
}

type PaginationConfig struct {
	DefaultPerPage int `key:"defaultPerPage" json:"default_per_page"`
	MaxPerPage     int `key:"maxPerPage" json:"max_per_page"`
}

// ----------------------------------------------------------------------------
// Seed Configuration
// ----------------------------------------------------------------------------

// SeedConfig lists reference data ensured on startup
type SeedConfig struct {
	Partners    []PartnerSeed `key:"partners" json:"partners"`
	Frequencies []string      `key:"frequencies" json:"frequencies"`
}

type PartnerSeed struct {
	Name string   `key:"name" json:"name"`
	Tags []string `key:"tags" json:"tags"`
}
