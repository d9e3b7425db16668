/*
DESCRIPTION
  stillcam captures still images from a Raspberry Pi camera, or a JPEG file,
  on a configurable cadence and writes each to a file, tagged with metadata
  including the position read from a serial GPS receiver.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// stillcam is a still image capture agent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/stillcam/cadence"
	"github.com/ausocean/stillcam/capture"
	"github.com/ausocean/stillcam/config"
	"github.com/ausocean/stillcam/device"
	devfile "github.com/ausocean/stillcam/device/file"
	"github.com/ausocean/stillcam/device/raspistill"
	"github.com/ausocean/stillcam/telemetry"
	"github.com/ausocean/stillcam/trigger"
	"github.com/ausocean/utils/logging"
)

// Current software version.
const version = "v0.1.0"

// Logging configuration.
const (
	logPath      = "/var/log/stillcam/stillcam.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = false
)

// Exit codes.
const (
	exitUsage    = 64
	exitSoftware = 70
	exitSignal   = 130
)

// Misc constants.
const (
	shutdownGrace = 5 * time.Second
	profilePath   = "stillcam.prof"
	pkg           = "stillcam: "
)

// Short flag names for commonly used variables.
var aliases = map[string]string{
	"o":  config.KeyOutput,
	"l":  config.KeyLatest,
	"q":  config.KeyJPEGQuality,
	"t":  config.KeyTimeout,
	"tl": config.KeyTimelapseInterval,
	"w":  config.KeyWidth,
	"x":  config.KeyExif,
}

// This is set to true if the 'profile' build tag is provided on build.
var canProfile = false

// options holds command line options that are not config variables.
type options struct {
	version    bool
	configFile string
	logPath    string
}

func main() {
	vars, opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(exitUsage)
	}
	if opts.version {
		fmt.Println(version)
		os.Exit(0)
	}

	if opts.configFile != "" {
		fileVars, err := loadFile(opts.configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not load config file: %v\n", err)
			os.Exit(exitUsage)
		}
		// Command line values take precedence.
		for k, v := range vars {
			fileVars[k] = v
		}
		vars = fileVars
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   opts.logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}

	// Create logger that we call methods on to log, which in turn writes to the
	// lumberjack logger and stderr. Stdout is kept free for image output.
	log := logging.New(logVerbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)

	cfg := config.Config{Logger: log}
	err = cfg.Update(vars)
	if err != nil {
		usageError(log, "could not update config", err)
	}
	err = cfg.Validate()
	if err != nil {
		usageError(log, "invalid config", err)
	}
	log.SetLevel(cfg.LogLevel)
	log.Info(pkg+"starting stillcam", "version", version)
	dumpConfig(log, cfg)

	// If stillcam has been built with the profile tag, then we'll start a CPU profile.
	if canProfile {
		profile(log)
		log.Info("profiling started")
	}

	code := run(cfg, log)
	if canProfile {
		pprof.StopCPUProfile()
	}
	os.Exit(code)
}

// run builds the capture pipeline and runs it until its cadence ends or a
// terminating signal is received. It returns the process exit code.
func run(cfg config.Config, log logging.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handleSignals(cancel, log)

	cam, err := newCamera(cfg, log)
	if err != nil {
		log.Error(pkg+"could not create camera", "error", err.Error())
		return exitSoftware
	}
	err = cam.Start()
	if err != nil {
		log.Error(pkg+"could not start camera", "error", err.Error())
		return exitSoftware
	}
	defer func() {
		err := cam.Stop()
		if err != nil {
			log.Warning(pkg+"could not stop camera", "error", err.Error())
		}
	}()

	var fixes *telemetry.Store
	if cfg.GPSDevice != config.Disabled {
		fixes = &telemetry.Store{}
		r, err := telemetry.NewReader(telemetry.Serial(cfg.GPSDevice, cfg.GPSBaud), fixes, log)
		if err != nil {
			log.Error(pkg+"could not open GPS device", "device", cfg.GPSDevice, "error", err.Error())
			return exitSoftware
		}
		go r.Run(ctx)
	}

	schedOpts, closeSources, err := cadenceOptions(ctx, cfg, log)
	if err != nil {
		log.Error(pkg+"could not set up capture trigger", "error", err.Error())
		return exitSoftware
	}
	defer closeSources()
	sched := cadence.New(cfg.Cadence, cfg.Timeout, cfg.TimelapseInterval, log, schedOpts...)

	c := capture.New(cfg, cam, sched, fixes, capture.WithOnCapture(func(s capture.Stats) {
		log.Debug(pkg+"capture done", "attempted", s.Attempted, "completed", s.Completed, "failed", s.Failed)
		daemon.SdNotify(false, "WATCHDOG=1")
	}))

	daemon.SdNotify(false, "READY=1")
	err = c.Run(ctx)
	daemon.SdNotify(false, "STOPPING=1")
	s := c.Stats()
	log.Info(pkg+"finished", "attempted", s.Attempted, "completed", s.Completed, "failed", s.Failed)
	if errors.Is(err, context.Canceled) {
		return exitSignal
	}
	return 0
}

// newCamera returns the configured camera.
func newCamera(cfg config.Config, log logging.Logger) (device.Camera, error) {
	var cam device.Camera
	switch cfg.Input {
	case config.InputFile:
		cam = devfile.New(log)
	default:
		cam = raspistill.New(log)
	}
	err := cam.Set(cfg)
	if err != nil {
		var me device.MultiError
		if !errors.As(err, &me) {
			return nil, err
		}
		log.Warning(pkg+"camera config fields defaulted", "camera", cam.Name(), "error", err.Error())
	}
	return cam, nil
}

// cadenceOptions returns the scheduler options for the configured cadence and
// a function closing any trigger sources opened.
func cadenceOptions(ctx context.Context, cfg config.Config, log logging.Logger) ([]cadence.Option, func(), error) {
	switch cfg.Cadence {
	case cadence.Keypress:
		return []cadence.Option{cadence.WithInput(os.Stdin), cadence.WithPrompt(os.Stderr)}, func() {}, nil

	case cadence.Signal:
		srcs := []trigger.Source{trigger.NewSignal(log)}
		if cfg.TriggerPin != "" {
			g, err := trigger.NewGPIO(cfg.TriggerPin, log)
			if err != nil {
				srcs[0].Close()
				return nil, nil, err
			}
			srcs = append(srcs, g)
		}
		closeAll := func() {
			for _, s := range srcs {
				err := s.Close()
				if err != nil {
					log.Warning(pkg+"could not close trigger source", "error", err.Error())
				}
			}
		}
		return []cadence.Option{cadence.WithNotify(trigger.Merge(ctx, srcs...))}, closeAll, nil

	default:
		return nil, func() {}, nil
	}
}

// handleSignals cancels the run on the first terminating signal. A second
// signal, or the shutdown grace period expiring, exits immediately.
func handleSignals(cancel context.CancelFunc, log logging.Logger) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		s := <-sigs
		log.Info(pkg+"received signal, stopping", "signal", s.String())
		cancel()
		select {
		case s = <-sigs:
			log.Warning(pkg+"received second signal, exiting", "signal", s.String())
		case <-time.After(shutdownGrace):
			log.Warning(pkg+"shutdown timed out, exiting")
		}
		os.Exit(exitSignal)
	}()
}

// parseArgs parses command line arguments into config variables and other
// options. Each config variable has a flag of the same name. The Exif flag
// may be repeated, once per tag.
func parseArgs(args []string, out io.Writer) (map[string]string, options, error) {
	vars := make(map[string]string)
	var opts options

	fs := flag.NewFlagSet("stillcam", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.BoolVar(&opts.version, "version", false, "show version")
	fs.StringVar(&opts.configFile, "config", "", "YAML config file; flags take precedence")
	fs.StringVar(&opts.logPath, "log", logPath, "log file path")

	set := func(name string) func(string) error {
		return func(v string) error {
			if name == config.KeyExif && vars[name] != "" && vars[name] != config.Disabled && v != config.Disabled {
				v = vars[name] + config.ExifSep + v
			}
			vars[name] = v
			return nil
		}
	}
	for _, v := range config.Variables {
		fs.Func(v.Name, v.Type, set(v.Name))
	}
	for short, name := range aliases {
		fs.Func(short, "alias for -"+name, set(name))
	}

	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: stillcam [flags]\n\nTimeout and TimelapseInterval are in milliseconds. Cadence is one of\n%s.\n\n", cadenceNames())
		fs.PrintDefaults()
	}

	err := fs.Parse(args)
	if err != nil {
		return nil, opts, err
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(out, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return nil, opts, errors.New("unexpected arguments")
	}
	return vars, opts, nil
}

func cadenceNames() string {
	var names []string
	for p := cadence.Single; p <= cadence.Immediate; p++ {
		names = append(names, p.String())
	}
	return strings.Join(names, ", ")
}

// loadFile loads config variables from a YAML file. List values are joined
// as Exif tags are.
func loadFile(path string) (map[string]string, error) {
	k := koanf.New(".")
	err := k.Load(file.Provider(path), yaml.Parser())
	if err != nil {
		return nil, err
	}
	vars := make(map[string]string)
	for _, key := range k.Keys() {
		switch v := k.Get(key).(type) {
		case []interface{}:
			vals := make([]string, len(v))
			for i, e := range v {
				vals[i] = fmt.Sprint(e)
			}
			vars[key] = strings.Join(vals, config.ExifSep)
		default:
			vars[key] = fmt.Sprint(v)
		}
	}
	return vars, nil
}

// usageError logs err and exits with the usage status.
func usageError(log logging.Logger, msg string, err error) {
	log.Error(pkg+msg, "error", err.Error())
	fmt.Fprintf(os.Stderr, "%s: %v\nrun stillcam -help for usage\n", msg, err)
	os.Exit(exitUsage)
}

// dumpConfig logs the configuration in use.
func dumpConfig(log logging.Logger, c config.Config) {
	log.Info(pkg+"configuration",
		"input", c.Input,
		"inputPath", c.InputPath,
		"width", c.Width,
		"height", c.Height,
		"quality", c.JPEGQuality,
		"rotation", c.Rotation,
		"cadence", c.Cadence.String(),
		"timeout", c.Timeout.String(),
		"interval", c.TimelapseInterval.String(),
		"output", c.Output,
		"latest", c.Latest,
		"naming", c.Naming,
		"raw", c.Raw,
		"burst", c.Burst,
		"exifDisabled", c.ExifDisabled,
		"exifTags", strings.Join(c.ExifTags, ","),
		"gpsDevice", c.GPSDevice,
		"gpsBaud", c.GPSBaud,
		"buffers", c.BufferCount,
		"bufferSize", c.BufferSize,
	)
}

func profile(l logging.Logger) {
	f, err := os.Create(profilePath)
	if err != nil {
		l.Fatal(pkg+"could not create CPU profile", "error", err.Error())
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		l.Fatal(pkg+"could not start CPU profile", "error", err.Error())
	}
}
