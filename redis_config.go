package hashcache

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis engine. Either pass a ready Client or let
// the engine build one from Addr and the pool settings.
type RedisConfig struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this cache exclusively owns Client

	// Used only when Client is nil; the engine then owns the pool.
	Addr     string // host[:port]; port defaults to 6379, empty => localhost
	Username string
	Password string
	DB       int

	PoolSize        int           // 0 => go-redis default (10 per CPU)
	MinIdleConns    int
	PoolTimeout     time.Duration // checkout wait; 0 => 5s
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ConnMaxIdleTime time.Duration

	// Resolver looks up the host of Addr on every dial. nil => net.DefaultResolver.
	Resolver *net.Resolver
}

// normalizeAddr fills in the default host and port.
func normalizeAddr(addr string) (string, error) {
	if addr == "" {
		return net.JoinHostPort("localhost", defaultRedisPort), nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// no port (or a bare IPv6 literal)
		host, port = addr, defaultRedisPort
		if len(host) > 1 && host[0] == '[' && host[len(host)-1] == ']' {
			host = host[1 : len(host)-1]
		}
	}
	if host == "" {
		return "", errors.Newf("invalid redis address %q", addr)
	}
	if port == "" {
		port = defaultRedisPort
	}
	return net.JoinHostPort(host, port), nil
}

// options maps cfg onto go-redis options. Retries are disabled: a failed
// command surfaces immediately.
func (cfg RedisConfig) options() (*goredis.Options, error) {
	addr, err := normalizeAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}
	return &goredis.Options{
		Addr:            addr,
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      -1,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     coalesce(cfg.PoolTimeout, defaultPoolTimeout),
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		Dialer:          resolvingDialer(cfg.Resolver, cfg.DialTimeout),
		OnConnect: func(ctx context.Context, cn *goredis.Conn) error {
			return cn.Ping(ctx).Err()
		},
	}, nil
}

// resolvingDialer resolves the host itself and dials the resolved addresses
// in order until one connects.
func resolvingDialer(r *net.Resolver, timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if r == nil {
		r = net.DefaultResolver
	}
	d := &net.Dialer{Timeout: timeout, KeepAlive: 5 * time.Minute}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if net.ParseIP(host) != nil {
			return d.DialContext(ctx, network, addr)
		}
		ips, err := r.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s", host)
		}
		if len(ips) == 0 {
			return nil, errors.Newf("resolve %s: no addresses", host)
		}
		addrs := make([]string, len(ips))
		for i, ip := range ips {
			addrs[i] = net.JoinHostPort(ip.IP.String(), port)
		}
		return dialEach(ctx, d, network, addrs)
	}
}

// dialEach returns the first connection that succeeds, or every dial error
// joined when none does.
func dialEach(ctx context.Context, d *net.Dialer, network string, addrs []string) (net.Conn, error) {
	var errs []error
	for _, a := range addrs {
		conn, err := d.DialContext(ctx, network, a)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
