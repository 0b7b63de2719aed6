package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Security  SecurityConfig  `mapstructure:"security"`
	World     WorldConfig     `mapstructure:"world"`
	Targeting TargetingConfig `mapstructure:"targeting"`
	LOS       LOSConfig       `mapstructure:"los"`
	Cooldown  CooldownConfig  `mapstructure:"cooldown"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Rotation  RotationConfig  `mapstructure:"rotation"`
	Fishing   FishingConfig   `mapstructure:"fishing"`
	Script    ScriptConfig    `mapstructure:"script"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Debug        bool   `mapstructure:"debug"`
	AdminKey     string `mapstructure:"admin_key"`
	AdminKeyHash string `mapstructure:"admin_key_hash"` // bcrypt; takes precedence over AdminKey
	TickMs       int    `mapstructure:"tick_ms"`        // producer tick driving refresh, dispatch and evaluation
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedIPs     []string `mapstructure:"allowed_ips"`
}

type WorldConfig struct {
	Provider        string        `mapstructure:"provider"` // only "sim" ships in-tree
	SimScenario     string        `mapstructure:"sim_scenario"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type TargetingConfig struct {
	ReactionCacheSize   int      `mapstructure:"reaction_cache_size"`
	GroupContestMode    bool     `mapstructure:"group_contest_mode"`
	MaxEnemyRange       float64  `mapstructure:"max_enemy_range"`
	MaxAnyRange         float64  `mapstructure:"max_any_range"`
	MeleeRange          float64  `mapstructure:"melee_range"`
	OnlyCombat          bool     `mapstructure:"only_combat"`
	Tanking             bool     `mapstructure:"tanking"`
	BlacklistNames      []string `mapstructure:"blacklist_names"`
	BlacklistSubstrings []string `mapstructure:"blacklist_substrings"`
}

type LOSConfig struct {
	NearThreshold float64 `mapstructure:"near_threshold"`
	FarThreshold  float64 `mapstructure:"far_threshold"`
	Band          float64 `mapstructure:"band"`
	ClearFraction float64 `mapstructure:"clear_fraction"`
}

type CooldownConfig struct {
	GCD time.Duration `mapstructure:"gcd"`
}

type DispatchConfig struct {
	QueueCap     int `mapstructure:"queue_cap"`
	DrainPerTick int `mapstructure:"drain_per_tick"`
}

type RotationConfig struct {
	ProfilesDir   string `mapstructure:"profiles_dir"`
	ActiveProfile string `mapstructure:"active_profile"`
	Enabled       bool   `mapstructure:"enabled"`
}

type FishingConfig struct {
	SpellID        uint32        `mapstructure:"spell_id"`
	BobberName     string        `mapstructure:"bobber_name"`
	MaxDistance    float64       `mapstructure:"max_distance"`
	BiteTimeoutMin time.Duration `mapstructure:"bite_timeout_min"`
	BiteTimeoutMax time.Duration `mapstructure:"bite_timeout_max"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

type ScriptConfig struct {
	VMPoolSize int           `mapstructure:"vm_pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	FaultRPS   float64 `mapstructure:"fault_rps"`
	FaultBurst int     `mapstructure:"fault_burst"`
}

// DefaultBlacklistNames are critters and quest props that are never worth a cast.
var DefaultBlacklistNames = []string{
	"deer", "sheep", "toad", "frog", "squirrel", "rat", "snake", "cow",
	"rabbit", "hare", "adder",
	"nightmarish book of ascension", "destined book of ascension",
	"lootbot 3000", "unholy champion", "putrid thrall", "kerg pebblecutter",
}

// DefaultBlacklistSubstrings match anywhere in a lower-cased unit name.
var DefaultBlacklistSubstrings = []string{"totem", "whelp", "dragon"}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated only from defaults. Tests and the
// simulated provider use it when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.tick_ms", 50)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/rotationbot.db")
	v.SetDefault("database.mysql_max_open", 10)
	v.SetDefault("database.mysql_max_idle", 2)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.key_prefix", "rotationbot:")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "12h")
	v.SetDefault("security.rate_limit_rps", 20)
	v.SetDefault("security.rate_limit_burst", 40)
	v.SetDefault("world.provider", "sim")
	v.SetDefault("world.refresh_interval", "500ms")
	v.SetDefault("targeting.reaction_cache_size", 30)
	v.SetDefault("targeting.group_contest_mode", false)
	v.SetDefault("targeting.max_enemy_range", 40.0)
	v.SetDefault("targeting.max_any_range", 40.0)
	v.SetDefault("targeting.melee_range", 5.0)
	v.SetDefault("targeting.only_combat", true)
	v.SetDefault("targeting.tanking", false)
	v.SetDefault("targeting.blacklist_names", DefaultBlacklistNames)
	v.SetDefault("targeting.blacklist_substrings", DefaultBlacklistSubstrings)
	v.SetDefault("los.near_threshold", 0.7)
	v.SetDefault("los.far_threshold", 0.8)
	v.SetDefault("los.band", 20.0)
	v.SetDefault("los.clear_fraction", 0.99)
	v.SetDefault("cooldown.gcd", "1500ms")
	v.SetDefault("dispatch.queue_cap", 64)
	v.SetDefault("dispatch.drain_per_tick", 8)
	v.SetDefault("rotation.profiles_dir", "./rotations")
	v.SetDefault("rotation.enabled", false)
	v.SetDefault("fishing.spell_id", 7620)
	v.SetDefault("fishing.bobber_name", "Fishing Bobber")
	v.SetDefault("fishing.max_distance", 30.0)
	v.SetDefault("fishing.bite_timeout_min", "5s")
	v.SetDefault("fishing.bite_timeout_max", "20s")
	v.SetDefault("fishing.poll_interval", "200ms")
	v.SetDefault("script.vm_pool_size", 4)
	v.SetDefault("script.timeout", "50ms")
	v.SetDefault("log.fault_rps", 0.2)
	v.SetDefault("log.fault_burst", 1)
}
