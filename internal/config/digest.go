package config

import (
	"time"
)

type Digest struct {
	Enabled  bool          `env:"DIGEST_ENABLED" envDefault:"true"`
	Interval time.Duration `env:"DIGEST_INTERVAL" envDefault:"24h"`
	TopLimit int           `env:"DIGEST_TOP_LIMIT" envDefault:"5"`
}
