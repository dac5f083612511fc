package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"

	fqfs "github.com/unkn0wn-root/firequery/firestore"
)

// Config is read from the environment (and an optional .env file).
type Config struct {
	ProjectID       string `env:"FQ_PROJECT_ID,required"`
	CredentialsFile string `env:"FQ_CREDENTIALS_FILE"`
	Emulator        string `env:"FIRESTORE_EMULATOR_HOST"`

	// Path is "collection/doc" for a document or "collection" for a
	// collection query. Overridden by the first argument.
	Path      string `env:"FQ_PATH"`
	Subscribe bool   `env:"FQ_SUBSCRIBE" envDefault:"true"`
	Source    string `env:"FQ_SOURCE" envDefault:"default"`

	Namespace  string        `env:"FQ_NAMESPACE" envDefault:"fqwatch"`
	Provider   string        `env:"FQ_PROVIDER" envDefault:"none"` // none|ristretto|bigcache|redis
	Codec      string        `env:"FQ_CODEC" envDefault:"json"`    // json|msgpack|cbor
	PersistTTL time.Duration `env:"FQ_PERSIST_TTL" envDefault:"10m"`
	RedisAddr  string        `env:"FQ_REDIS_ADDR" envDefault:"localhost:6379"`
	GenTTL     time.Duration `env:"FQ_GEN_TTL" envDefault:"24h"`

	LogLevel string `env:"FQ_LOG_LEVEL" envDefault:"info"`
}

func loadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}
	if len(args) > 0 {
		cfg.Path = args[0]
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	// the Firestore client rejects leading and trailing slashes
	segs, _ := cfg.segments()
	cfg.Path = strings.Join(segs, "/")
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("FQ_PROJECT_ID is required")
	}
	if _, err := c.segments(); err != nil {
		return err
	}
	if _, err := c.source(); err != nil {
		return err
	}
	switch c.Provider {
	case "none", "ristretto", "bigcache", "redis":
	default:
		return fmt.Errorf("FQ_PROVIDER: unknown provider %q", c.Provider)
	}
	switch c.Codec {
	case "json", "msgpack", "cbor":
	default:
		return fmt.Errorf("FQ_CODEC: unknown codec %q", c.Codec)
	}
	return nil
}

// segments splits Path; an even count addresses a document.
func (c *Config) segments() ([]string, error) {
	p := strings.Trim(c.Path, "/")
	if p == "" {
		return nil, fmt.Errorf("FQ_PATH or a path argument is required")
	}
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("path %q has an empty segment", c.Path)
		}
	}
	return segs, nil
}

func (c *Config) isDocument() bool {
	segs, _ := c.segments()
	return len(segs)%2 == 0
}

func (c *Config) source() (fqfs.Source, error) {
	switch strings.ToLower(c.Source) {
	case "", "default":
		return fqfs.SourceDefault, nil
	case "server":
		return fqfs.SourceServer, nil
	case "cache":
		return fqfs.SourceCache, nil
	default:
		return 0, fmt.Errorf("FQ_SOURCE: unknown source %q", c.Source)
	}
}
