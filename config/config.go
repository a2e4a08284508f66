// Package config defines the usbinspector configuration file.
package config

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/usbinspector/logging"
	"go.viam.com/usbinspector/utils"
)

// DefaultMaxParallelLookups bounds how many devices are parsed at once when the config does not.
const DefaultMaxParallelLookups = 4

// A Config describes how usbinspector finds devices and how it reports them.
type Config struct {
	ConfigFilePath string `json:"-"`

	// Snapshot is the path of a JSON device snapshot to read devices from.
	Snapshot string `json:"snapshot,omitempty"`

	// SysfsRoot is where sysfs is mounted, for listing the local machine's devices.
	SysfsRoot string `json:"sysfs_root,omitempty"`

	// LookupTimeout bounds a single USBSTOR parent lookup, e.g. "2s".
	LookupTimeout      string `json:"lookup_timeout,omitempty"`
	MaxParallelLookups int    `json:"max_parallel_lookups,omitempty"`
	Debug              bool   `json:"debug,omitempty"`
	ShowExcluded       bool   `json:"show_excluded,omitempty"`

	// LogFile, when set, also writes logs as JSON to this rotated file.
	LogFile string `json:"log_file,omitempty"`

	lookupTimeout time.Duration
}

// Ensure ensures all parts of the config are valid and fills in defaults.
func (c *Config) Ensure() error {
	if c.LookupTimeout != "" {
		timeout, err := time.ParseDuration(c.LookupTimeout)
		if err != nil {
			return goutils.NewConfigValidationError("lookup_timeout", err)
		}
		if timeout <= 0 {
			return goutils.NewConfigValidationError("lookup_timeout", errors.New("must be positive"))
		}
		c.lookupTimeout = timeout
	}

	switch {
	case c.MaxParallelLookups < 0:
		return goutils.NewConfigValidationError("max_parallel_lookups", errors.New("cannot be negative"))
	case c.MaxParallelLookups == 0:
		c.MaxParallelLookups = DefaultMaxParallelLookups
	}
	return nil
}

// GetLookupTimeout returns the configured lookup timeout, falling back to
// utils.GetLookupTimeout when the config leaves it unset.
func (c *Config) GetLookupTimeout(logger logging.Logger) time.Duration {
	if c.lookupTimeout > 0 {
		return c.lookupTimeout
	}
	return utils.GetLookupTimeout(logger)
}
