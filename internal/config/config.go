package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"/app/data"`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/console.db"`

	// DirectoryPath points at the YAML file listing the host profiles and
	// cluster entries the bridge is allowed to connect to.
	DirectoryPath string `envconfig:"DIRECTORY_PATH" default:"/app/data/directory.yaml"`

	AuthDisabled bool   `envconfig:"AUTH_DISABLED" default:"false"`
	AuthToken    string `envconfig:"AUTH_TOKEN" default:""`

	// Session bridge settings
	ConnectTimeout     string `envconfig:"CONNECT_TIMEOUT" default:"10s"`
	SessionIdleTimeout string `envconfig:"SESSION_IDLE_TIMEOUT" default:"0"`
	AuditRetentionDays int    `envconfig:"AUDIT_RETENTION_DAYS" default:"30"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("CLOUDTERM", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
