package config

import (
	"strings"
	"time"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/transport"
)

func validate(cfg *Config) error {
	switch cfg.Transport.S3.Driver {
	case transport.DriverCLI, transport.DriverSDK:
	default:
		return syncerrors.ConfigInvalid("transport.s3.driver", "must be cli or sdk, got "+cfg.Transport.S3.Driver)
	}

	if len(cfg.Activation.Command) == 0 || strings.TrimSpace(cfg.Activation.Command[0]) == "" {
		return syncerrors.ConfigInvalid("activation.command", "must name an executable")
	}
	if cfg.Transport.Git.Depth < 0 {
		return syncerrors.ConfigInvalid("transport.git.depth", "must not be negative")
	}
	if cfg.StateFailureLimit() < 0 {
		return syncerrors.ConfigInvalid("daemon.state_failure_limit", "must not be negative")
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"activation.timeout", cfg.Activation.Timeout},
		{"daemon.janitor_interval", cfg.JanitorInterval()},
		{"daemon.scratch_max_age", cfg.ScratchMaxAge()},
	}
	for _, d := range durations {
		if d.value < 0 {
			return syncerrors.ConfigInvalid(d.field, "must not be negative")
		}
	}
	return nil
}

// TransportOptions converts the transport section into registry options.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		S3Driver:  c.Transport.S3.Driver,
		AWSCLI:    c.Transport.S3.CLIPath,
		Region:    c.Transport.S3.Region,
		Endpoint:  c.Transport.S3.Endpoint,
		PathStyle: c.Transport.S3.PathStyle,
		GitDepth:  c.Transport.Git.Depth,
	}
}
