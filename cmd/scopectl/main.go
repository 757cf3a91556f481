// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Command scopectl controls a Combiscope over its serial remote interface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/riclolsen/go-combiscope/clog"
	"github.com/riclolsen/go-combiscope/combiscope"
	"github.com/riclolsen/go-combiscope/internal/config"
	"github.com/riclolsen/go-combiscope/transport"
)

var (
	Version   = "0.3.0"
	BuildTime = "unknown"
)

// app carries what every command needs. The session is opened on first use.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	metrics *combiscope.Metrics
	client  *combiscope.Client

	// panel overrides the configured front panel state for the next dial
	panel *combiscope.FrontPanelMode
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"ports":    {"list serial ports", runPorts},
	"id":       {"print the instrument identity", runIdentify},
	"waveform": {"read a waveform [-ch N] [-reg N] [-count N] [-interval d] [-save] [-publish] [-plot] [-json]", runWaveform},
	"recent":   {"list stored waveforms [-limit N] [-redis -ch N]", runRecent},
	"show":     {"print a stored waveform -id N [-plot] [-json]", runShow},
	"setup":    {"get|put|list|delete instrument setups [-name N] [-file F]", runSetup},
	"trigger":  {"software trigger (TA)", simple((*combiscope.Client).SoftwareTrigger)},
	"arm":      {"arm single shot trigger (AT)", simple((*combiscope.Client).ArmTrigger)},
	"autoset":  {"run autoset (AS)", simple((*combiscope.Client).AutoSet)},
	"default":  {"load the default setup (DS)", simple((*combiscope.Client).DefaultSetup)},
	"reset":    {"reset the instrument software (RI)", simple((*combiscope.Client).ResetInstrument)},
	"panel":    {"set front panel mode: local|remote|lockout", runPanel},
	"text":     {"show text on screen, or -clear", runText},
	"config":   {"print the effective configuration", runConfig},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: scopectl [flags] <command> [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-9s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "configuration file (YAML)")
	port := flag.String("port", "", "serial port, overrides serial.port")
	trace := flag.Bool("trace", false, "debug logging, including every frame sent and received")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("scopectl v%s (Build: %s)\n", Version, BuildTime)
		return 0
	}
	if flag.NArg() == 0 {
		usage()
		return 2
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		usage()
		return 2
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *trace {
		cfg.Log.Level = "debug"
	}

	log, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log}
	if cfg.Monitor.Enabled {
		a.metrics = serveMetrics(ctx, cfg.Monitor.MetricsAddr, log)
	}

	err = cmd.run(ctx, a, flag.Args()[1:])
	if a.client != nil {
		if cerr := a.client.Close(); cerr != nil {
			log.Warnf("Error closing session: %v", cerr)
		}
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		log.Errorf("%s: %v", flag.Arg(0), err)
		return 1
	}
	return 0
}

// portAddress resolves serial.port. A bare number picks a port from the
// enumeration order of "scopectl ports".
func (a *app) portAddress() (string, error) {
	if idx, err := strconv.Atoi(a.cfg.Serial.Port); err == nil {
		return transport.PortByIndex(idx)
	}
	return a.cfg.Serial.Port, nil
}

// session dials the instrument once per run.
func (a *app) session(ctx context.Context) (*combiscope.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	panel := a.cfg.FrontPanelMode()
	if a.panel != nil {
		panel = *a.panel
	}
	option := combiscope.NewOption().
		SetConfig(a.cfg.ProtocolConfig()).
		SetLogProvider(clog.NewLogrusProvider(a.log, "combiscope")).
		SetLogMode(true).
		SetFrontPanelState(panel).
		SetMetrics(a.metrics)

	address, err := a.portAddress()
	if err != nil {
		return nil, err
	}
	serialCfg := option.Config().Serial
	serialCfg.Address = address
	option.SetSerialConfig(serialCfg)

	a.log.Debugf("Opening %s at %d baud, front panel %s", address, a.cfg.Serial.BaudRate, panel)
	client, err := combiscope.Dial(ctx, option)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

// serveMetrics exposes the session collectors on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, log *logrus.Logger) *combiscope.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := combiscope.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return m
}
