// Command gateway is the thin process entrypoint around package ramses:
// parse flags, open the HGI80, run until signalled, persist state.
// Grounded on the teacher's main.go top-level wiring (kingpin flags,
// zerolog console output, the serial-port open/close helpers), stripped
// of the BigQuery/Kubernetes-specific flags and goroutines DESIGN.md's
// "Dropped teacher code / deps" section accounts for.
package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/ramses"
	"github.com/JorritSalverda/ramses-gateway/scheduler"
)

var (
	// set when building the application
	app       string
	version   string
	branch    string
	revision  string
	buildDate string
	goVersion = runtime.Version()

	hgiDevicePath = kingpin.Flag("hgi-device-path", "Path to usb device connecting HGI80.").Default("/dev/ttyUSB0").OverrideDefaultFromEnvar("HGI_DEVICE_PATH").String()
	stateFilePath = kingpin.Flag("state-file-path", "Path to file with persisted gateway state.").Default("state.json").OverrideDefaultFromEnvar("STATE_FILE_PATH").String()
	allowList     = kingpin.Flag("allow-list", "Comma-separated list of device addresses (xx:nnnnnn) admitted into the entity fabric; empty admits any address.").Envar("ALLOW_LIST").String()
	multiCtl      = kingpin.Flag("allow-multiple-controllers", "Allow more than one controller (independent of the allow-list).").Envar("ALLOW_MULTIPLE_CONTROLLERS").Bool()
	dutyCycle     = kingpin.Flag("duty-cycle-budget", "Fraction of a rolling hour the gateway may spend transmitting.").Default("0.01").Envar("DUTY_CYCLE_BUDGET").Float64()
	pollInterval  = kingpin.Flag("status-poll-interval", "How often to re-poll each device's STATUS discovery class.").Default(scheduler.StatusPeriod.String()).Envar("STATUS_POLL_INTERVAL").Duration()
)

func main() {
	kingpin.Parse()

	initLogging()

	log.Info().
		Str("branch", branch).
		Str("revision", revision).
		Str("buildDate", buildDate).
		Str("goVersion", goVersion).
		Msgf("Starting %v version %v...", app, version)

	opts := []ramses.Option{
		ramses.WithLogger(log.Logger),
		ramses.WithSerialPort(*hgiDevicePath, 115200),
		ramses.WithStateFilePath(*stateFilePath),
		ramses.WithDutyCycleBudget(*dutyCycle),
		ramses.WithDiscoveryPollInterval(*pollInterval),
	}

	if *multiCtl {
		opts = append(opts, ramses.WithMultipleControllersAllowed())
	}

	if addrs, err := parseAllowList(*allowList); err != nil {
		log.Fatal().Err(err).Msg("Failed parsing allow-list")
	} else if len(addrs) > 0 {
		opts = append(opts, ramses.WithAllowList(addrs))
	}

	gwy, err := ramses.New(opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed constructing gateway")
	}

	if err := gwy.LoadState(); err != nil {
		log.Fatal().Err(err).Msgf("Failed loading state from %v", *stateFilePath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gwy.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed starting gateway")
	}

	log.Info().Msgf("Listening to serial usb device at %v...", *hgiDevicePath)
	log.Info().Msg("Waiting for the first message to discover the installation's controller...")

	go periodicallySaveState(ctx, gwy, *stateFilePath)

	<-ctx.Done()

	log.Info().Msg("Shutting down, saving state...")
	if err := gwy.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed stopping gateway cleanly")
	}
	if err := gwy.SaveState(); err != nil {
		log.Error().Err(err).Msgf("Failed saving state to %v", *stateFilePath)
	}
}

func periodicallySaveState(ctx context.Context, gwy *ramses.Gateway, path string) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := gwy.SaveState(); err != nil {
				log.Error().Err(err).Msgf("Failed saving state to %v", path)
			} else {
				log.Info().Msgf("Stored state in %v...", path)
			}
		}
	}
}

func parseAllowList(raw string) ([]address.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var addrs []address.Address
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		addr, err := address.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parsing allow-list entry %q: %w", s, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func initLogging() {
	// log as severity for stackdriver logging to recognize the level
	zerolog.LevelFieldName = "severity"

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return ""
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("| %s: ", i)
	}
	output.FormatFieldValue = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	// use zerolog for any logs sent via standard log library
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}
