package ramses

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/transport"
)

type config struct {
	log zerolog.Logger

	tp           transport.Transport
	serialPort   string
	serialBaud   uint
	dutyCycle    float64
	evofwFlag    byte
	stateFile    string
	pollInterval time.Duration

	allowList                []address.Address
	allowMultipleControllers bool
	fakeAs                   map[string]address.Address
}

func defaultConfig() config {
	return config{
		log:        zerolog.Nop(),
		serialBaud: 115200,
		dutyCycle:  0.01,
		stateFile:  "state.json",
		fakeAs:     make(map[string]address.Address),
	}
}

// Option configures a Gateway at construction (teacher's one-flag-per-
// concern style from main.go's kingpin.Flag(...) call sites,
// translated into functional options per spec §6's "Gateway.start()/
// stop()... language-neutral" public surface).
type Option func(*config)

// WithLogger installs the logger every subsystem derives its own
// component logger from.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithSerialPort opens a real serial transport at path/baud (spec
// §4.2). If WithTransport is also given, in any order, that transport
// is used and the serial port is not opened.
func WithSerialPort(path string, baud uint) Option {
	return func(c *config) {
		c.serialPort = path
		c.serialBaud = baud
	}
}

// WithTransport installs an already-constructed transport (e.g.
// transport.OpenReplay for file playback, or a fake in tests) instead
// of opening a serial port.
func WithTransport(tp transport.Transport) Option {
	return func(c *config) { c.tp = tp }
}

// WithDutyCycleBudget overrides the default 1% rolling-hour write
// budget (spec §4.2).
func WithDutyCycleBudget(budget float64) Option {
	return func(c *config) { c.dutyCycle = budget }
}

// WithStateFilePath sets where LoadState/SaveState persist the JSON
// state cache (spec §6 "State cache"), replacing the teacher's
// ConfigMap sink with a local file per the Non-goal dropping remote
// Kubernetes state storage.
func WithStateFilePath(path string) Option {
	return func(c *config) { c.stateFile = path }
}

// WithAllowList enforces invariant 2 at the entity layer: only these
// addresses are admitted.
func WithAllowList(addrs []address.Address) Option {
	return func(c *config) { c.allowList = addrs }
}

// WithMultipleControllersAllowed opts out of invariant 1's
// single-controller restriction (DESIGN.md Open Question 4).
func WithMultipleControllersAllowed() Option {
	return func(c *config) { c.allowMultipleControllers = true }
}

// WithFakeAs registers self as impersonating target for outbound
// sends (Open Question 2, "fake_addrs"): any Command whose Src is self
// gets re-addressed to target before encoding.
func WithFakeAs(self, target address.Address) Option {
	return func(c *config) { c.fakeAs[self.String()] = target }
}

// WithDiscoveryPollInterval overrides the scheduler's STATUS period
// for tests that can't wait out the real 60s default.
func WithDiscoveryPollInterval(d time.Duration) Option {
	return func(c *config) { c.pollInterval = d }
}
