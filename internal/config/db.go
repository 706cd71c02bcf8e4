package config

type DB struct {
	DSN                string `env:"DATABASE_DSN" envDefault:"host=localhost port=5432 user=postgres password=DB_PASSWORD dbname=postgres sslmode=disable"`
	MaxOpenConnections int    `env:"DATABASE_MAX_OPEN_CONNECTIONS" envDefault:"10"`
	Debug              bool   `env:"DATABASE_DEBUG" envDefault:"false"`
	AutoMigrate        bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"false"`
}
