// Package scheduler drives per-device discovery (spec §4.8): three
// recurring flags per device, SCHEMA (24h), PARAMS (6h) and STATUS
// (60s); SCHEMA fires at once, and each device's PARAMS and STATUS
// tasks are spread by a random 10-20s initial delay to avoid
// synchronized bursts. Grounded on
// original_source/ramses_rf/devices.py's DeviceBase._start_discovery
// (lines 184-195, registering three _add_task periodic calls) and
// evohome_rf/discovery.py, reimplemented without the
// `discover_decorator` wrapper (Design Note §9 "Replace with an
// explicit scheduler... no implicit control flow") as one small
// goroutine-per-task loop.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/address"
)

// DiscoverFlag is one of the three recurring discovery classes.
type DiscoverFlag int

const (
	FlagSchema DiscoverFlag = iota
	FlagParams
	FlagStatus
)

func (f DiscoverFlag) String() string {
	switch f {
	case FlagSchema:
		return "schema"
	case FlagParams:
		return "params"
	case FlagStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Default periods (spec §4.8).
const (
	SchemaPeriod = 24 * time.Hour
	ParamsPeriod = 6 * time.Hour
	StatusPeriod = 60 * time.Second
)

// jitterMin/jitterMax bound the random initial-delay spread (spec
// §4.8 "a random 10-20 s delay spread").
const (
	jitterMin = 10 * time.Second
	jitterMax = 20 * time.Second
)

func jitterDelay() time.Duration {
	span := int64(jitterMax - jitterMin)
	return jitterMin + time.Duration(rand.Int63n(span+1))
}

// DiscoverFunc issues the discovery query appropriate for flag against
// addr (e.g. 0004 zone-name requests for SCHEMA, a 30C9 zone-temperature
// request for STATUS). It must not block past ctx's deadline.
type DiscoverFunc func(ctx context.Context, addr address.Address, flag DiscoverFlag)

// Scheduler runs the discovery tasks for every device registered with
// it. One Scheduler serves the whole gateway.
type Scheduler struct {
	log          zerolog.Logger
	statusPeriod time.Duration
}

// New builds a Scheduler with the default SCHEMA/PARAMS/STATUS periods.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log, statusPeriod: StatusPeriod}
}

// NewWithStatusPeriod builds a Scheduler whose STATUS task fires every
// period instead of the default 60s — the gateway's
// WithDiscoveryPollInterval option threads through to here.
func NewWithStatusPeriod(log zerolog.Logger, period time.Duration) *Scheduler {
	return &Scheduler{log: log, statusPeriod: period}
}

// RegisterDiscovery spawns the SCHEMA/PARAMS/STATUS periodic tasks for
// one newly-seen device (spec §4.8). Each goroutine stops when ctx is
// cancelled.
func (s *Scheduler) RegisterDiscovery(ctx context.Context, addr address.Address, discover DiscoverFunc) {
	delay := jitterDelay()
	s.RegisterTask(ctx, addr, FlagSchema, 0, SchemaPeriod, discover)
	s.RegisterTask(ctx, addr, FlagParams, delay, ParamsPeriod, discover)
	s.RegisterTask(ctx, addr, FlagStatus, delay+time.Second, s.statusPeriod, discover)
}

// RegisterTask spawns a single periodic task: wait initialDelay, fire
// discover once, then fire again every period until ctx is done.
// Exposed as the primitive RegisterDiscovery is built from, so tests
// can drive a single flag on a short period without waiting out the
// real 24h/6h/60s defaults.
func (s *Scheduler) RegisterTask(ctx context.Context, addr address.Address, flag DiscoverFlag, initialDelay, period time.Duration, discover DiscoverFunc) {
	go s.runPeriodic(ctx, addr, flag, initialDelay, period, discover)
}

func (s *Scheduler) runPeriodic(ctx context.Context, addr address.Address, flag DiscoverFlag, initialDelay, period time.Duration, discover DiscoverFunc) {
	timer := time.NewTimer(initialDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.fire(ctx, addr, flag, discover)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, addr, flag, discover)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, addr address.Address, flag DiscoverFlag, discover DiscoverFunc) {
	s.log.Debug().Str("device", addr.String()).Str("flag", flag.String()).Msg("firing discovery task")
	discover(ctx, addr, flag)
}
