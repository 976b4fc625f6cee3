package config

import (
	"time"

	"git.home.luguber.info/inful/cfgsync/internal/activate"
	"git.home.luguber.info/inful/cfgsync/internal/manifest"
)

const (
	DefaultDataDir           = "/var/lib/cfgsync"
	DefaultAWSCLI            = "aws"
	DefaultGitDepth          = 1
	DefaultStateFailureLimit = 3
	DefaultJanitorInterval   = time.Hour
	DefaultScratchMaxAge     = 24 * time.Hour
	DefaultEventsSubject     = "cfgsync.events"
)

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.Manifest == "" {
		cfg.Manifest = manifest.DefaultMarker
	}
	if len(cfg.Activation.Command) == 0 {
		cfg.Activation.Command = append([]string(nil), activate.DefaultCommand...)
	}
	if cfg.Transport.S3.Driver == "" {
		cfg.Transport.S3.Driver = "cli"
	}
	if cfg.Transport.S3.CLIPath == "" {
		cfg.Transport.S3.CLIPath = DefaultAWSCLI
	}
	if cfg.Transport.Git.Depth == 0 {
		cfg.Transport.Git.Depth = DefaultGitDepth
	}
	// explicit zeros are kept; only absent tuning values take the defaults
	if cfg.Daemon.StateFailureLimit == nil {
		limit := DefaultStateFailureLimit
		cfg.Daemon.StateFailureLimit = &limit
	}
	if cfg.Daemon.JanitorInterval == nil {
		interval := DefaultJanitorInterval
		cfg.Daemon.JanitorInterval = &interval
	}
	if cfg.Daemon.ScratchMaxAge == nil {
		age := DefaultScratchMaxAge
		cfg.Daemon.ScratchMaxAge = &age
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = DefaultEventsSubject
	}
}
