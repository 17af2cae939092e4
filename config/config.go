/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config reads the on-disk configuration for the clock
// aggregator daemon and resolves it into the values clockcore.NewCore
// and its collaborators need at construction time.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	ptp "github.com/quietremote/ptpd/protocol"
)

// InterfaceConfig is one data port's static configuration, folding in
// interface.c/interface.h's per-interface fields that the clock
// aggregator's own construction needs or passes through to the Port
// implementation a deployment supplies.
type InterfaceConfig struct {
	// Name is the network interface device name (interface_name).
	Name string `yaml:"name"`
	// Label is the time stamping device name, which can differ from Name
	// when bonding is in effect (interface_label).
	Label string `yaml:"label,omitempty"`
	// Remote is the peer address for a unicast-only port, empty otherwise
	// (interface_remote).
	Remote string `yaml:"remote,omitempty"`
	// VClock is the virtual clock index to time-stamp against, or -1 to
	// use the interface's own PHC.
	VClock int `yaml:"vclock"`
	// FaultResetInterval is the back-off exponent k (2^k seconds) this
	// port's fault timer arms for, clock.c's fault_reset_interval.
	FaultResetInterval uint8 `yaml:"fault_reset_interval"`
}

// Config is the clock aggregator's static configuration, read once at
// startup. It mirrors ptp4u/server/config.go's split of "set once" data
// from the process-level flags that layer on top of it in cmd/ptpclockd.
type Config struct {
	// ClockIdentity, if non-zero, overrides the identity this clock would
	// otherwise derive from PrimaryInterface's MAC address.
	ClockIdentity ptp.ClockIdentity `yaml:"clock_identity,omitempty"`
	// PrimaryInterface is the interface NewClockIdentity derives the
	// clock's identity from when ClockIdentity is left unset.
	PrimaryInterface string `yaml:"primary_interface"`

	Priority1    uint8            `yaml:"priority1"`
	Priority2    uint8            `yaml:"priority2"`
	DomainNumber uint8            `yaml:"domain_number"`
	ClockClass   ptp.ClockClass   `yaml:"clock_class"`
	ClockAccuracy ptp.ClockAccuracy `yaml:"clock_accuracy"`
	TimeSource   ptp.TimeSource   `yaml:"time_source"`

	SlaveOnly   bool `yaml:"slave_only"`
	FreeRunning bool `yaml:"free_running"`
	UTCTimescale bool `yaml:"utc_timescale"`

	LogSyncInterval int `yaml:"log_sync_interval"`
	FreqEstInterval int `yaml:"freq_est_interval"`
	StatsInterval   int `yaml:"stats_interval"`

	ClockDesc string `yaml:"clock_description"`

	ManagementSocket string `yaml:"management_socket"`

	MetricInterval time.Duration `yaml:"metric_interval"`

	Interfaces []InterfaceConfig `yaml:"interfaces"`
}

// ReadConfig reads and validates the YAML configuration at path, the way
// ptp4u/server.ReadDynamicConfig reads its own YAML file.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the parts of Config the YAML unmarshaler can't enforce
// on its own.
func (c *Config) Validate() error {
	if len(c.Interfaces) == 0 {
		return fmt.Errorf("at least one interface is required")
	}
	if c.ClockIdentity == 0 && c.PrimaryInterface == "" {
		return fmt.Errorf("either clock_identity or primary_interface must be set")
	}
	for _, iface := range c.Interfaces {
		if iface.Name == "" {
			return fmt.Errorf("interface entry missing name")
		}
	}
	return nil
}

// FaultResetIntervals builds the map clockcore.Config.FaultResetInterval
// expects, keyed by the port identity a deployment's Port construction
// assigns to each configured interface. identities must be in the same
// order as c.Interfaces.
func (c *Config) FaultResetIntervals(identities []ptp.PortIdentity) (map[ptp.PortIdentity]uint8, error) {
	if len(identities) != len(c.Interfaces) {
		return nil, fmt.Errorf("config: %d port identities for %d configured interfaces", len(identities), len(c.Interfaces))
	}
	out := make(map[ptp.PortIdentity]uint8, len(identities))
	for i, id := range identities {
		out[id] = c.Interfaces[i].FaultResetInterval
	}
	return out, nil
}
