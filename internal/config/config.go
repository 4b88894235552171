package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/ccip"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Addr      string
	RPCSocket string

	ParentDomain string
	PrivateKey   string
	SignatureTTL time.Duration

	Store       string
	DBPath      string
	DatabaseURL string

	RedisAddr string
	RedisDB   int
	CacheTTL  time.Duration

	LogLevel  string
	LogFormat string
}

func Default() Config {
	return Config{
		Addr:         ":8080",
		RPCSocket:    "/tmp/uniperk.sock",
		ParentDomain: "uniperk.eth",
		SignatureTTL: ccip.DefaultTTL,
		Store:        StoreSQLite,
		DBPath:       "uniperk.db",
		CacheTTL:     30 * time.Second,
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	parent := strings.Trim(strings.TrimSpace(c.ParentDomain), ".")
	if parent == "" || !strings.Contains(parent, ".") {
		errs = append(errs, fmt.Errorf("parent domain %q must be a dotted name such as uniperk.eth", c.ParentDomain))
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		errs = append(errs, errors.New("signer private key is required"))
	}
	if c.SignatureTTL <= 0 {
		errs = append(errs, errors.New("signature ttl must be positive"))
	}
	switch c.Store {
	case StoreSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, errors.New("sqlite database path is required"))
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("database url is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.RedisAddr != "" && c.CacheTTL <= 0 {
		errs = append(errs, errors.New("cache ttl must be positive when redis is enabled"))
	}
	return errors.Join(errs...)
}
