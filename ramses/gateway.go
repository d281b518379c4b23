// Package ramses is the library's public surface (spec §6): one
// Gateway type wiring the transport, the send/retry engine, the entity
// fabric, the discovery scheduler and the schedule/fault-log fetchers
// together behind start/stop, send, subscribe and state-cache
// methods. Grounded on the teacher's main.go top-level wiring
// (openSerialPort, commandQueue, messageProcessor, the three
// background goroutines, readStateFromStateFile/
// writeStateToConfigmap), generalised from one big main() into a
// reusable, stoppable type.
package ramses

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/binding"
	"github.com/JorritSalverda/ramses-gateway/command"
	"github.com/JorritSalverda/ramses-gateway/entity"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/fetch"
	"github.com/JorritSalverda/ramses-gateway/message"
	"github.com/JorritSalverda/ramses-gateway/packet"
	"github.com/JorritSalverda/ramses-gateway/scheduler"
	"github.com/JorritSalverda/ramses-gateway/transmit"
	"github.com/JorritSalverda/ramses-gateway/transport"
)

// Gateway is the library's entry point: "Gateway.start()/stop()",
// "Gateway.send_cmd(cmd, callback?)", "Gateway.create_client(...)",
// "Gateway.get_state()/set_state(...)" (spec §6 "Public surface of the
// core").
type Gateway struct {
	cfg config
	log zerolog.Logger

	tp       transport.Transport
	engine   *transmit.Engine
	entities *entity.Gateway
	sched    *scheduler.Scheduler
	schedule *fetch.ScheduleFetcher
	faultLog *fetch.FaultLogFetcher
	cache    *packetCache

	mu        sync.Mutex
	cancel    context.CancelFunc
	running   bool
	discovery map[string]bool // devices already registered with the scheduler

	subMu sync.Mutex
	subs  []*subscriber
}

type subscriber struct {
	msgCh chan *message.Message
	pktCh chan *packet.Packet
}

// New builds a Gateway. It doesn't open the transport or start any
// goroutine until Start is called.
func New(opts ...Option) (*Gateway, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tp == nil && cfg.serialPort == "" {
		return nil, errs.New(errs.InvalidPacket, "ramses.New", "either WithSerialPort or WithTransport is required")
	}

	g := &Gateway{
		cfg:       cfg,
		log:       cfg.log,
		schedule:  fetch.NewScheduleFetcher(),
		faultLog:  fetch.NewFaultLogFetcher(),
		cache:     newPacketCache(),
		discovery: make(map[string]bool),
	}

	var entOpts []entity.Option
	if len(cfg.allowList) > 0 {
		entOpts = append(entOpts, entity.WithAllowList(cfg.allowList))
	}
	if cfg.allowMultipleControllers {
		entOpts = append(entOpts, entity.WithMultipleControllersAllowed())
	}
	g.entities = entity.New(cfg.log, entOpts...)
	if cfg.pollInterval > 0 {
		g.sched = scheduler.NewWithStatusPeriod(cfg.log, cfg.pollInterval)
	} else {
		g.sched = scheduler.New(cfg.log)
	}

	return g, nil
}

// Start opens the transport (if not already supplied via
// WithTransport), launches the transmit engine and the per-message
// dispatch loop, and returns once everything is running. Stop via the
// returned Gateway.Stop, or by cancelling ctx.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return errs.New(errs.CorruptState, "ramses.Gateway.Start", "already running")
	}

	tp := g.cfg.tp
	if tp == nil {
		var err error
		tp, err = transport.Open(transport.Options{
			PortName:        g.cfg.serialPort,
			BaudRate:        g.cfg.serialBaud,
			DutyCycleBudget: g.cfg.dutyCycle,
			EvofwFlag:       g.cfg.evofwFlag,
			Logger:          g.cfg.log,
		})
		if err != nil {
			g.mu.Unlock()
			return err
		}
	}
	g.tp = tp

	g.engine = transmit.New(tp, g.cfg.log, transmit.WithFakeAddrResolver(g.resolveFakeAddr))

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.running = true
	g.mu.Unlock()

	go g.engine.Run(runCtx)
	go g.dispatch(runCtx)

	return nil
}

// Stop cancels every background goroutine and closes the transport.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return nil
	}
	g.cancel()
	g.running = false
	if g.tp != nil {
		return g.tp.Close()
	}
	return nil
}

// resolveFakeAddr implements transmit.FakeAddrResolver: prefer an
// explicit WithFakeAs mapping, falling back to the entity layer's
// per-device FakeAs (Open Question 2).
func (g *Gateway) resolveFakeAddr(cmd command.Command) address.Address {
	if target, ok := g.cfg.fakeAs[cmd.Src.String()]; ok {
		return target
	}
	return g.entities.ResolveFakeAddr(cmd)
}

// dispatch is the single consumer of the engine's inbound channel: it
// feeds every message into the entity fabric, the state cache and any
// subscribed clients, and registers newly-seen devices with the
// discovery scheduler (spec §4.7 item 5, §4.8).
func (g *Gateway) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-g.engine.Out():
			if !ok {
				return
			}
			if err := g.handle(ctx, msg); err != nil {
				g.log.Error().Err(err).Msg("corrupt state: invariant violated, stopping gateway")
				g.Stop()
				return
			}
		}
	}
}

// handle routes msg through the entity fabric. It returns an error only
// for errs.CorruptState (spec §7: "an invariant from §3 is violated
// mid-run. Propagate; gateway stops") — every other routing error is
// logged and the message is dropped.
func (g *Gateway) handle(ctx context.Context, msg message.Message) error {
	g.cache.observe(msg)

	if err := g.entities.Route(msg); err != nil {
		if errs.Of(err) == errs.CorruptState {
			return err
		}
		g.log.Error().Err(err).Msg("dropping message: invariant violated while routing")
		return nil
	}

	g.maybeRegisterDiscovery(ctx, msg.Packet.Src)
	g.publish(&msg)
	return nil
}

func (g *Gateway) maybeRegisterDiscovery(ctx context.Context, src address.Address) {
	key := src.String()
	g.mu.Lock()
	if g.discovery[key] {
		g.mu.Unlock()
		return
	}
	g.discovery[key] = true
	g.mu.Unlock()

	g.sched.RegisterDiscovery(ctx, src, g.discover)
}

// discover issues whatever probe command fits flag (spec §4.8): SCHEMA
// asks for zone names, PARAMS asks for setpoint bounds, STATUS polls
// current temperature. Devices that aren't controllers don't have zones
// to ask about and are not probed; for a controller each probe is a
// best-effort RQ it either answers or ignores.
func (g *Gateway) discover(ctx context.Context, addr address.Address, flag scheduler.DiscoverFlag) {
	d, ok := g.entities.Device(addr)
	if !ok || d.Class() != entity.ClassController {
		return
	}
	switch flag {
	case scheduler.FlagSchema:
		for idx := byte(0); idx < 12; idx++ {
			g.Enqueue(command.GetZoneName(addr, idx), nil)
		}
	case scheduler.FlagParams:
		for idx := byte(0); idx < 12; idx++ {
			g.Enqueue(command.GetZoneInfo(addr, idx), nil)
		}
	case scheduler.FlagStatus:
		g.Enqueue(command.GetZoneTemperature(addr, 0), nil)
	}
}

// Enqueue hands cmd to the transmit engine without waiting for a
// reply; cb may be nil for fire-and-forget probes.
func (g *Gateway) Enqueue(cmd command.Command, cb transmit.Callback) {
	if cb == nil {
		cb = func(message.Message, error) {}
	}
	g.engine.Enqueue(cmd, cb)
}

// enqueueAdapter lets the binding/fetch packages' EnqueueFunc (each
// defined with an unnamed callback type, to keep those packages free
// of an import on transmit) bind against the engine's Callback-typed
// Enqueue, which a direct method value can't satisfy.
func (g *Gateway) enqueueAdapter(cmd command.Command, cb func(message.Message, error)) {
	g.engine.Enqueue(cmd, cb)
}

// SendCmd enqueues cmd and blocks until it settles (spec §6
// "Gateway.send_cmd(cmd, callback?) -> future<Msg>"). cb, if non-nil,
// is also called once with the same final result.
func (g *Gateway) SendCmd(ctx context.Context, cmd command.Command, cb transmit.Callback) (*message.Message, error) {
	resultCh := make(chan struct {
		msg message.Message
		err error
	}, 1)
	g.engine.Enqueue(cmd, func(msg message.Message, err error) {
		if cb != nil {
			cb(msg, err)
		}
		resultCh <- struct {
			msg message.Message
			err error
		}{msg, err}
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, r.err
		}
		return &r.msg, nil
	}
}

// FetchSchedule reassembles zoneIdx's schedule via the chunked 0404
// fetcher and records it on the zone (spec §4.8/§4.9).
func (g *Gateway) FetchSchedule(ctx context.Context, ctl address.Address, zoneIdx byte) (string, error) {
	raw, err := g.schedule.Fetch(ctx, ctl, zoneIdx, g.enqueueAdapter)
	if err != nil {
		return "", err
	}
	if sys, ok := g.entities.System(ctl); ok {
		if zone, ok := sys.Zone(fmt.Sprintf("%02X", zoneIdx)); ok {
			zone.SetSchedule(raw)
		}
	}
	return raw, nil
}

// FetchFaultLog walks ctl's 0418 fault log by index (spec §4.8).
func (g *Gateway) FetchFaultLog(ctx context.Context, ctl address.Address) ([]message.FaultLogEntry, error) {
	return g.faultLog.Fetch(ctx, ctl, g.enqueueAdapter)
}

// Bind runs a binding handshake to completion (spec §4.6), offering
// self's capabilities to whichever controller accepts. Only the
// offeror side is run here.
func (g *Gateway) Bind(ctx context.Context, self address.Address, caps []message.Code) (binding.Result, error) {
	h, err := binding.NewOfferor(self, caps, g.enqueueAdapter, g.log)
	if err != nil {
		return binding.Result{}, err
	}
	return h.Run(ctx), nil
}

// CreateClient subscribes to every message the gateway routes (spec
// §6 "Gateway.create_client(on_message) -> (msg_stream, pkt_stream)").
// onMessage, if non-nil, is called from a goroutine of its own that
// reads msgCh, so each message goes either to onMessage or to a caller
// reading msgCh, not to both. msgCh and pktCh are buffered and never
// block dispatch: a message that finds a subscriber's buffer full is
// dropped for that subscriber.
func (g *Gateway) CreateClient(onMessage func(*message.Message)) (msgCh <-chan *message.Message, pktCh <-chan *packet.Packet, cancel func()) {
	sub := &subscriber{
		msgCh: make(chan *message.Message, 64),
		pktCh: make(chan *packet.Packet, 64),
	}

	g.subMu.Lock()
	g.subs = append(g.subs, sub)
	g.subMu.Unlock()

	if onMessage != nil {
		go func() {
			for msg := range sub.msgCh {
				onMessage(msg)
			}
		}()
	}

	cancelFn := func() {
		g.subMu.Lock()
		defer g.subMu.Unlock()
		for i, s := range g.subs {
			if s == sub {
				g.subs = append(g.subs[:i], g.subs[i+1:]...)
				break
			}
		}
		close(sub.msgCh)
		close(sub.pktCh)
	}
	return sub.msgCh, sub.pktCh, cancelFn
}

func (g *Gateway) publish(msg *message.Message) {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	for _, sub := range g.subs {
		select {
		case sub.msgCh <- msg:
		default:
		}
		select {
		case sub.pktCh <- &msg.Packet:
		default:
		}
	}
}

// GetState snapshots the current topology plus the deduplicated
// packet cache (spec §6 "Gateway.get_state()").
func (g *Gateway) GetState() (State, error) {
	return State{Schema: g.entities.Snapshot(), Packets: g.cache.export()}, nil
}

// Snapshot exposes the current installation topology alone, without
// the packet cache (used by the CLI's `--show-schema`).
func (g *Gateway) Snapshot() entity.Schema {
	return g.entities.Snapshot()
}

// SetState restores a previously captured State by replaying its
// packets through the message parser in dtm order, bypassing the
// transport entirely (spec §6 "Restoring replays packets... in dtm
// order"). The schema half is accepted for round-trip fidelity but not
// separately applied — replay already reconstructs the same topology.
func (g *Gateway) SetState(s State) error {
	for _, line := range restoreOrder(s.Packets) {
		p, err := packet.Decode(line)
		if err != nil {
			g.log.Warn().Err(err).Str("line", line).Msg("skipping corrupt cached packet on restore")
			continue
		}
		msg := message.Parse(p, g.log)
		if err := g.entities.Route(msg); err != nil {
			return err
		}
	}
	return nil
}

// LoadState reads and applies the JSON state cache at the configured
// WithStateFilePath location (default "state.json").
func (g *Gateway) LoadState() error {
	return g.LoadStateFile(g.cfg.stateFile)
}

// SaveState writes the current state cache to the configured
// WithStateFilePath location (default "state.json").
func (g *Gateway) SaveState() error {
	return g.SaveStateFile(g.cfg.stateFile)
}

// LoadStateFile reads and applies the JSON state cache at path, doing
// nothing (not an error) if the file doesn't exist yet — the teacher's
// readStateFromStateFile does the same "first run" check.
func (g *Gateway) LoadStateFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return g.SetState(s)
}

// SaveStateFile writes the current state cache to path as JSON (spec
// §6, replacing the teacher's writeStateToConfigmap ConfigMap sink
// with a local file).
func (g *Gateway) SaveStateFile(path string) error {
	s, err := g.GetState()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
