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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ptp "github.com/quietremote/ptpd/protocol"
)

const sampleConfig = `
primary_interface: eth0
priority1: 128
priority2: 128
domain_number: 0
clock_class: 248
clock_accuracy: 254
time_source: 160
log_sync_interval: 0
freq_est_interval: 4
stats_interval: 4
clock_description: "test clock"
management_socket: /var/run/ptpclockd
interfaces:
  - name: eth0
    fault_reset_interval: 4
  - name: eth1
    fault_reset_interval: 4
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ptpclockd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadConfigParsesAndValidates(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	c, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "eth0", c.PrimaryInterface)
	require.Equal(t, uint8(128), c.Priority1)
	require.Len(t, c.Interfaces, 2)
	require.Equal(t, "eth1", c.Interfaces[1].Name)
	require.Equal(t, uint8(4), c.Interfaces[1].FaultResetInterval)
}

func TestReadConfigRejectsNoInterfaces(t *testing.T) {
	path := writeTempConfig(t, "primary_interface: eth0\n")

	_, err := ReadConfig(path)
	require.Error(t, err)
}

func TestReadConfigRejectsMissingIdentitySource(t *testing.T) {
	path := writeTempConfig(t, "interfaces:\n  - name: eth0\n")

	_, err := ReadConfig(path)
	require.Error(t, err)
}

func TestReadConfigRejectsMissingInterfaceName(t *testing.T) {
	path := writeTempConfig(t, "primary_interface: eth0\ninterfaces:\n  - fault_reset_interval: 2\n")

	_, err := ReadConfig(path)
	require.Error(t, err)
}

func TestConfigResolveClockIdentityPrefersExplicitOverride(t *testing.T) {
	c := &Config{ClockIdentity: ptp.ClockIdentity(0xdeadbeefcafe)}

	id, err := c.ResolveClockIdentity()
	require.NoError(t, err)
	require.Equal(t, ptp.ClockIdentity(0xdeadbeefcafe), id)
}

func TestFaultResetIntervalsMatchesIdentitiesToInterfaceOrder(t *testing.T) {
	c := &Config{Interfaces: []InterfaceConfig{
		{Name: "eth0", FaultResetInterval: 2},
		{Name: "eth1", FaultResetInterval: 5},
	}}
	ids := []ptp.PortIdentity{
		{ClockIdentity: 1, PortNumber: 1},
		{ClockIdentity: 1, PortNumber: 2},
	}

	m, err := c.FaultResetIntervals(ids)
	require.NoError(t, err)
	require.Equal(t, uint8(2), m[ids[0]])
	require.Equal(t, uint8(5), m[ids[1]])
}

func TestFaultResetIntervalsRejectsLengthMismatch(t *testing.T) {
	c := &Config{Interfaces: []InterfaceConfig{{Name: "eth0"}}}

	_, err := c.FaultResetIntervals(nil)
	require.Error(t, err)
}
