package config

type API struct {
	Listen string `env:"API_HTTP_SERVER_LISTEN" envDefault:":11000"`
}
