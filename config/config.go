// Package config loads process configuration from flags and the
// environment, with a .env file picked up when present.
package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	listenFlag = flag.String("listen", "127.0.0.1:5432", "address for the Postgres wire listener")
	dataFlag   = flag.String("data", "data.db", "database file path")
)

const defaultBlockCacheBytes = 32 << 20

type Config struct {
	ListenAddr      string
	DataFile        string
	BlockCacheBytes int64
}

// LoadConfig resolves the configuration; environment variables override
// flag defaults.
func LoadConfig() Config {
	godotenv.Load(".env")
	if !flag.Parsed() {
		flag.Parse()
	}

	cfg := Config{
		ListenAddr:      *listenFlag,
		DataFile:        *dataFlag,
		BlockCacheBytes: defaultBlockCacheBytes,
	}
	if v := os.Getenv("FLINT_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLINT_DATA"); v != "" {
		cfg.DataFile = v
	}
	if v := os.Getenv("FLINT_CACHE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.BlockCacheBytes = n
		}
	}
	return cfg
}
