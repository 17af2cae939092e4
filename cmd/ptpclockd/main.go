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

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quietremote/ptpd/clockcore"
	"github.com/quietremote/ptpd/config"
	"github.com/quietremote/ptpd/port"
	ptp "github.com/quietremote/ptpd/protocol"
	"github.com/quietremote/ptpd/servo"
	"github.com/quietremote/ptpd/timekeeper"
)

// buildPorts is the seam between this process and a concrete Port
// implementation: a real deployment's build replaces it with whatever
// constructs PTP ports (raw sockets, BPF timestamping, a UDS management
// listener) for cfg.Interfaces. Port's contract is an external
// collaborator boundary, not something this repo implements.
var buildPorts = func(cfg *config.Config) (dataPorts []port.Port, mgmt port.Port, err error) {
	return nil, nil, fmt.Errorf("cmd/ptpclockd: no Port implementation is linked into this build")
}

func main() {
	configPath := flag.String("config", "/etc/ptpclockd.yaml", "path to the clock aggregator's YAML configuration")
	logLevel := flag.String("loglevel", "warning", "log level: debug, info, warning, error")
	monitoringAddr := flag.String("monitoringaddr", ":8889", "host:port to serve prometheus metrics on")
	useHardwareClock := flag.Bool("hwclock", true, "discipline the interface's PHC instead of CLOCK_REALTIME")
	flag.Parse()

	switch *logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("unrecognized log level: %v", *logLevel)
	}

	cfg, err := config.ReadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	clockIdentity, err := cfg.ResolveClockIdentity()
	if err != nil {
		log.Fatal(err)
	}

	dataPorts, mgmt, err := buildPorts(cfg)
	if err != nil {
		log.Fatal(err)
	}

	var tk timekeeper.Timekeeper
	if *useHardwareClock {
		tk = timekeeper.NewPHCTimekeeper(fmt.Sprintf("/dev/ptp%d", cfg.Interfaces[0].VClock))
	} else {
		tk = timekeeper.NewPosixTimekeeper()
	}

	sv := servo.NewPiServo(servo.DefaultConfig(), servo.DefaultPiServoCfg(), 0)

	identities := make([]ptp.PortIdentity, len(dataPorts))
	for i, p := range dataPorts {
		identities[i] = p.Identity()
	}
	faultResetIntervals, err := cfg.FaultResetIntervals(identities)
	if err != nil {
		log.Fatal(err)
	}

	coreCfg := clockcore.Config{
		FreeRunning:        cfg.FreeRunning,
		UTCTimescale:       cfg.UTCTimescale,
		FreqEstInterval:    cfg.FreqEstInterval,
		StatsInterval:      cfg.StatsInterval,
		LogSyncInterval:    cfg.LogSyncInterval,
		ClockDesc:          cfg.ClockDesc,
		FaultResetInterval: faultResetIntervals,
		DefaultDS: clockcore.DefaultDS{
			ClockIdentity: clockIdentity,
			Priority1:     cfg.Priority1,
			Priority2:     cfg.Priority2,
			DomainNumber:  cfg.DomainNumber,
			NumberPorts:   uint16(len(dataPorts)),
			SlaveOnly:     cfg.SlaveOnly,
			FreeRunning:   cfg.FreeRunning,
			ClockQuality: ptp.ClockQuality{
				ClockClass:    cfg.ClockClass,
				ClockAccuracy: cfg.ClockAccuracy,
			},
		},
	}

	core, err := clockcore.NewCore(coreCfg, sv, tk, dataPorts, mgmt)
	if err != nil {
		log.Fatal(err)
	}
	prometheus.MustRegister(core.Collectors()...)

	var g errgroup.Group
	stop := make(chan struct{})

	g.Go(func() error {
		return core.Run(stop)
	})

	if *monitoringAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *monitoringAddr, Handler: mux}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics listener failed: %w", err)
			}
			return nil
		})
		defer srv.Shutdown(context.Background())
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Warning("cmd/ptpclockd: sd_notify READY failed")
	} else if ok {
		log.Debug("cmd/ptpclockd: notified systemd readiness")
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("cmd/ptpclockd: exiting")
		close(stop)
		os.Exit(1)
	}
}
