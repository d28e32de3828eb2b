// Package bootstrap wires the process together: config, storage engine,
// executor and wire server.
package bootstrap

import (
	"go.uber.org/dig"

	"github.com/alexhholmes/flint/config"
	"github.com/alexhholmes/flint/executor"
	"github.com/alexhholmes/flint/server"
	"github.com/alexhholmes/flint/storage"
)

// Run builds the dependency container and serves until the listener fails.
func Run() error {
	container := dig.New()
	constructors := []interface{}{
		config.LoadConfig,
		database,
		executor.New,
		server.New,
	}
	for _, c := range constructors {
		if err := container.Provide(c); err != nil {
			return err
		}
	}
	return container.Invoke(func(s *server.Server) error {
		return s.Start()
	})
}

func database(cfg config.Config) (*storage.Database, error) {
	return storage.Open(cfg.DataFile, cfg.BlockCacheBytes)
}
