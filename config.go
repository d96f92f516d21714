package hashcache

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Config is the file form of a cache setup:
//
//	backend: redis
//	redis:
//	  addr: cache.internal:6379
//	  password: ${REDIS_PASSWORD}
//	  db: 2
//	  pool_size: 16
//	  pool_timeout: 2s
//	  conn_max_idle_time: 1h
type Config struct {
	Backend Backend       `yaml:"backend"`
	Shards  int           `yaml:"shards"`
	Redis   RedisSettings `yaml:"redis"`
}

// RedisSettings is the serializable subset of RedisConfig.
type RedisSettings struct {
	Addr            string   `yaml:"addr"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	DB              int      `yaml:"db"`
	PoolSize        int      `yaml:"pool_size"`
	MinIdleConns    int      `yaml:"min_idle_conns"`
	PoolTimeout     Duration `yaml:"pool_timeout"`
	DialTimeout     Duration `yaml:"dial_timeout"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ConnMaxIdleTime Duration `yaml:"conn_max_idle_time"`
}

// RedisConfig converts the settings; the engine owns the resulting pool.
func (s RedisSettings) RedisConfig() RedisConfig {
	return RedisConfig{
		Addr:            s.Addr,
		Username:        s.Username,
		Password:        s.Password,
		DB:              s.DB,
		PoolSize:        s.PoolSize,
		MinIdleConns:    s.MinIdleConns,
		PoolTimeout:     time.Duration(s.PoolTimeout),
		DialTimeout:     time.Duration(s.DialTimeout),
		ReadTimeout:     time.Duration(s.ReadTimeout),
		WriteTimeout:    time.Duration(s.WriteTimeout),
		ConnMaxIdleTime: time.Duration(s.ConnMaxIdleTime),
	}
}

// Duration accepts "1d2h", "500ms", "1w" and the like in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return str2duration.String(time.Duration(d)), nil
}

// ParseBackend maps "memory" or "redis" (any case) to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory", "local", "":
		return BackendMemory, nil
	case "redis":
		return BackendRedis, nil
	default:
		return 0, errors.Newf("unknown backend %q", s)
	}
}

func (b *Backend) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := ParseBackend(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b Backend) MarshalYAML() (any, error) { return b.String(), nil }

// ParseConfig decodes YAML. ${VAR} references are expanded from the
// environment first, so secrets need not live in the file.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, errors.Wrap(err, "hashcache: parse config")
	}
	if cfg.Backend == 0 {
		cfg.Backend = BackendMemory
	}
	if cfg.Shards < 0 {
		return Config{}, errors.Newf("hashcache: shards must be >= 0, got %d", cfg.Shards)
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "hashcache: read config %s", path)
	}
	return ParseConfig(data)
}

// New builds the Cache described by cfg. opts.Shards, when set, wins over
// cfg.Shards.
func New(ctx context.Context, cfg Config, opts Options) (*Cache, error) {
	opts.Shards = coalesce(opts.Shards, cfg.Shards)
	switch cfg.Backend {
	case BackendMemory, 0:
		return NewMemory(opts), nil
	case BackendRedis:
		return NewRedis(ctx, cfg.Redis.RedisConfig(), opts)
	default:
		return nil, newError(KindOther, "new", "", errors.Newf("unknown backend %d", cfg.Backend))
	}
}
