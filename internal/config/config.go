// Package config loads the module's runtime configuration from command
// line flags and environment variable overrides.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/sebas/rtprecv/internal/errs"
)

const (
	// SAPPort is the well-known UDP port for SAP announcements.
	SAPPort = 9875
	// DefaultSAPAddress is the multicast group used when sap_address is unset.
	DefaultSAPAddress = "224.0.0.56"
)

// Config holds the receiver's module arguments plus ambient flags.
type Config struct {
	Sink       string // required, non-empty; cmd/rtprecv shows it but always attaches sink.LocalMockSink
	SAPAddress string // multicast group for SAP announcements
	LogLevel   string
}

// Load parses flags and applies environment overrides. It returns
// errs.ErrConfig if a required argument is missing.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("rtprecv", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.Sink, "sink", "", "name of the host audio sink to attach playback to (required)")
	fs.StringVar(&cfg.SAPAddress, "sap-address", DefaultSAPAddress, "multicast group for SAP announcements")
	fs.StringVar(&cfg.LogLevel, "loglevel", "info", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfig, err)
	}

	if v := os.Getenv("SINK"); v != "" {
		cfg.Sink = v
	}
	if v := os.Getenv("SAP_ADDRESS"); v != "" {
		cfg.SAPAddress = v
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.Sink == "" {
		return nil, fmt.Errorf("%w: sink argument is required", errs.ErrConfig)
	}

	return cfg, nil
}
