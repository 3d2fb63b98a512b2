package db

import (
	"github.com/reelcomic/reelcomic/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Open constructs the shared gorm handle.
func Open(cfg config.Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(dialector, &gorm.Config{TranslateError: true})
}

// Module wires the database connection.
var Module = fx.Module("db",
	fx.Provide(Open),
)
