package transport

import (
	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// S3 drivers.
const (
	DriverCLI = "cli"
	DriverSDK = "sdk"
)

// Options selects and tunes the built-in backends.
type Options struct {
	S3Driver  string
	AWSCLI    string
	Region    string
	Endpoint  string
	PathStyle bool
	GitDepth  int
}

// NewDefaultRegistry registers the built-in backends: s3 (through the chosen driver),
// file, and the git+ schemes.
func NewDefaultRegistry(opts Options) (*Registry, error) {
	r := NewRegistry()

	switch opts.S3Driver {
	case "", DriverCLI:
		r.Register("s3", NewS3CLI(opts.AWSCLI))
	case DriverSDK:
		r.Register("s3", NewS3SDK(S3SDKOptions{
			Region:    opts.Region,
			Endpoint:  opts.Endpoint,
			PathStyle: opts.PathStyle,
		}))
	default:
		return nil, syncerrors.ConfigInvalid("transport.s3.driver", "unknown driver "+opts.S3Driver)
	}

	r.Register("file", NewFile())

	g := NewGit(opts.GitDepth)
	for _, scheme := range GitSchemes {
		r.Register(scheme, g)
	}
	return r, nil
}
