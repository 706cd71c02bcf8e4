package config

import (
	"fmt"
)

const serviceName = "teams-subscriptions"

type App struct {
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	Prometheus Prometheus
	Health     Health
	DB         DB
	Nats       Nats
	API        API
	Digest     Digest
}

// GenerateGroupName returns queue group name shared by all service instances.
func GenerateGroupName(group string) string {
	return fmt.Sprintf("%s_%s", serviceName, group)
}
