package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	UDP struct {
		Port        int  `mapstructure:"port"`
		LogRequests bool `mapstructure:"log_requests"`
	} `mapstructure:"udp"`
	QUIC struct {
		ListenPort         int    `mapstructure:"listen_port"`
		CertPath           string `mapstructure:"cert_path"`
		KeyPath            string `mapstructure:"key_path"`
		HandshakeTimeoutMS int    `mapstructure:"handshake_timeout_ms"`
		IdleTimeoutMS      int    `mapstructure:"idle_timeout_ms"`
		MaxConnections     int    `mapstructure:"max_connections"`
		Enable0RTT         bool   `mapstructure:"enable_0rtt"`
		MaxEarlyData       uint32 `mapstructure:"max_early_data"`
	} `mapstructure:"quic"`
	API struct {
		Port        int  `mapstructure:"port"`
		LogRequests bool `mapstructure:"log_requests"`
	} `mapstructure:"api"`
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Channel  string `mapstructure:"channel"`
	} `mapstructure:"redis"`
	Agones struct {
		Enabled             bool   `mapstructure:"enabled"`
		Namespace           string `mapstructure:"namespace"`
		AllocatorHost       string `mapstructure:"allocator_host"`
		AllocatorClientCert string `mapstructure:"allocator_client_cert"`
		AllocatorClientKey  string `mapstructure:"allocator_client_key"`
		AllocatorCACert     string `mapstructure:"allocator_ca_cert"`
	} `mapstructure:"agones"`
	Routes []struct {
		FQDN   string `mapstructure:"fqdn"`
		Type   string `mapstructure:"type"`
		Target string `mapstructure:"target"`
	} `mapstructure:"routes"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("udp.port", 443)
	viper.SetDefault("udp.log_requests", false)
	viper.SetDefault("quic.listen_port", 4433)
	viper.SetDefault("quic.handshake_timeout_ms", 30000)
	viper.SetDefault("quic.idle_timeout_ms", 30000)
	viper.SetDefault("quic.max_connections", 10000)
	viper.SetDefault("quic.enable_0rtt", true)
	viper.SetDefault("quic.max_early_data", 16384)
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.log_requests", false)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.channel", "porter_routes")
	viper.SetDefault("agones.enabled", false)
	viper.SetDefault("agones.namespace", "default")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WatchForChanges live-reloads route and strategy-relevant config on
// change, the same way cfg.Routes is expected to be re-read without a
// restart. QUIC listener settings (port, cert/key paths, timeouts) are
// read once at startup by cmd/porter3 and are not hot-swapped, since
// rebinding a UDP socket or rotating a *tls.Config mid-flight is out of
// this core's scope.
func WatchForChanges(onChange func(cfg *Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("Config file changed: %s", e.Name)
		var cfg Config
		if err := viper.Unmarshal(&cfg); err != nil {
			log.Printf("Error reloading config: %v", err)
			return
		}
		onChange(&cfg)
	})
	viper.WatchConfig()
}
