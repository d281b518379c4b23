// Package transmit is the single cooperative task that owns the send
// path (spec §4.5): a priority queue, per-packet QoS, echo-based send
// confirmation, expected-reply matching, retry/expiry, and ASAP
// preemption. Grounded on spec.md §4.5 directly — no pack repo runs a
// comparable send/retry engine — with the polling-loop shape borrowed
// from original_source/evohome_rf/discovery.py.
package transmit

import (
	"container/heap"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/command"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/message"
	"github.com/JorritSalverda/ramses-gateway/packet"
	"github.com/JorritSalverda/ramses-gateway/transport"
)

// EchoTimeout is how long the engine waits for its own write to come
// back on the receive path before treating it as lost (spec §4.2/§4.5).
const EchoTimeout = 3 * time.Second

// Callback receives the outcome of a Command once the engine considers
// it settled: the matched reply (if any), or a non-nil err — typically
// errs.ExpiredCallback — on timeout/cancellation (spec §4.5 step 5).
type Callback func(msg message.Message, err error)

// FakeAddrResolver substitutes an outbound command's source address
// (spec §9 "fake_addrs"), e.g. when the gateway is impersonating a
// bound device. Return the zero address to leave Src untouched.
type FakeAddrResolver func(command.Command) address.Address

// Engine runs the send/receive loop described by spec §4.5. It also
// demultiplexes the transport's inbound lines: packets consumed as an
// echo or a matched reply never reach Out(); everything else does
// (spec §4.5 "Echo semantics... not delivered to the entity layer").
type Engine struct {
	tp      transport.Transport
	log     zerolog.Logger
	resolve FakeAddrResolver
	out     chan message.Message

	mu     sync.Mutex
	pq     priorityQueue
	seq    int64
	notify chan struct{}
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithFakeAddrResolver installs the address-substitution hook used by
// ToPacket (spec §9, Open Question 2).
func WithFakeAddrResolver(r FakeAddrResolver) Option {
	return func(e *Engine) { e.resolve = r }
}

// New builds an Engine over an already-open transport.
func New(tp transport.Transport, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		tp:     tp,
		log:    log,
		out:    make(chan message.Message, 64),
		notify: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(e)
	}
	if e.resolve == nil {
		e.resolve = func(command.Command) address.Address { return address.Address{} }
	}
	return e
}

// Out delivers every inbound message not consumed as an echo or a
// matched reply (spec §4.5). The entity layer subscribes here.
func (e *Engine) Out() <-chan message.Message { return e.out }

// Enqueue adds cmd to the priority queue and returns immediately; cb
// fires exactly once, on the engine's goroutine, when the command
// settles (spec §4.5 lifecycle) or, with errs.ExpiredCallback, when Run
// returns with the command still pending.
func (e *Engine) Enqueue(cmd command.Command, cb Callback) {
	cmd = cmd.WithDefaults()
	e.mu.Lock()
	e.seq++
	item := &pending{cmd: cmd, seq: e.seq, retriesLeft: cmd.Retries, callback: cb}
	heap.Push(&e.pq, item)
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Engine) popHighest() *pending {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pq.Len() == 0 {
		return nil
	}
	return heap.Pop(&e.pq).(*pending)
}

func (e *Engine) requeue(item *pending) {
	e.mu.Lock()
	heap.Push(&e.pq, item)
	e.mu.Unlock()
}

func (e *Engine) queueHeadIsHigherASAP(active command.Priority) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pq.Len() > 0 && e.pq[0].cmd.Priority == command.Asap && command.Asap > active
}

// Run drives the engine until ctx is cancelled: it services the queue
// one command at a time (spec §4.5 "a single cooperative task owns the
// send path") while continuously demultiplexing inbound lines.
func (e *Engine) Run(ctx context.Context) {
	var active *pending
	var sentPkt packet.Packet
	state := stateIdle
	var timer *time.Timer
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	defer stopTimer()
	defer func() {
		stopped := errs.New(errs.ExpiredCallback, "transmit.Run", "engine stopped")
		if active != nil && state != stateIdle {
			e.settle(active, message.Message{}, stopped)
		}
		for item := e.popHighest(); item != nil; item = e.popHighest() {
			e.settle(item, message.Message{}, stopped)
		}
	}()

	for {
		if state == stateIdle {
			active = e.popHighest()
			if active == nil {
				select {
				case <-ctx.Done():
					return
				case <-e.notify:
					continue
				case line, ok := <-e.tp.Lines():
					if !ok {
						return
					}
					e.handleUnmatchedLine(line)
					continue
				}
			}
			if err := e.transmit(ctx, active, &sentPkt); err != nil {
				e.settle(active, message.Message{}, err)
				state = stateIdle
				continue
			}
			state = stateAwaitingEcho
			timer = time.NewTimer(EchoTimeout)
		}

		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return

		case line, ok := <-e.tp.Lines():
			if !ok {
				return
			}
			p, err := packet.Decode(line)
			if err != nil {
				e.log.Debug().Err(err).Str("line", line).Msg("transmit: dropping invalid packet")
				continue
			}
			msg := message.Parse(p, e.log)

			switch state {
			case stateAwaitingEcho:
				if echoMatches(sentPkt, p) {
					stopTimer()
					if active.cmd.ExpectReply == nil {
						e.settle(active, message.Message{}, nil)
						state = stateIdle
					} else {
						state = stateAwaitingReply
						timer = time.NewTimer(active.cmd.Timeout)
					}
					continue
				}
				e.deliver(msg)

			case stateAwaitingReply:
				if replyMatches(sentPkt, active.cmd, p) {
					stopTimer()
					e.settle(active, msg, nil)
					state = stateIdle
				} else {
					e.deliver(msg)
				}
			}

		case <-timerC:
			stopTimer()
			if active.retriesLeft > 0 {
				active.retriesLeft--
				if err := e.transmit(ctx, active, &sentPkt); err != nil {
					e.settle(active, message.Message{}, err)
					state = stateIdle
					continue
				}
				state = stateAwaitingEcho
				timer = time.NewTimer(EchoTimeout)
			} else {
				e.settle(active, message.Message{}, errs.New(errs.ExpiredCallback, "transmit.Run", "no echo/reply within deadline"))
				state = stateIdle
			}

		case <-e.notify:
			// ASAP preempts a pending send even mid-wait (spec §4.5): bump the
			// active item back onto the queue for another slot and let the
			// next idle iteration pop the ASAP item first. The attempt isn't
			// charged against retriesLeft — it never got to finish.
			if e.queueHeadIsHigherASAP(active.cmd.Priority) {
				stopTimer()
				e.requeue(active)
				active = nil
				state = stateIdle
			}
		}
	}
}

const (
	stateIdle = iota
	stateAwaitingEcho
	stateAwaitingReply
)

func (e *Engine) transmit(ctx context.Context, item *pending, sentPkt *packet.Packet) error {
	fakeAs := e.resolve(item.cmd)
	p, err := command.ToPacket(item.cmd, fakeAs)
	if err != nil {
		return err
	}
	line, err := packet.Encode(p)
	if err != nil {
		return err
	}
	if err := e.tp.Write(ctx, line); err != nil {
		return err
	}
	*sentPkt = p
	return nil
}

func (e *Engine) settle(item *pending, msg message.Message, err error) {
	if item.callback != nil {
		item.callback(msg, err)
	}
}

func (e *Engine) deliver(msg message.Message) {
	select {
	case e.out <- msg:
	default:
		e.log.Warn().Str("code", string(msg.Packet.Code)).Msg("transmit: Out() receiver too slow, dropping message")
	}
}

func (e *Engine) handleUnmatchedLine(line string) {
	p, err := packet.Decode(line)
	if err != nil {
		e.log.Debug().Err(err).Str("line", line).Msg("transmit: dropping invalid packet")
		return
	}
	e.deliver(message.Parse(p, e.log))
}

// echoMatches implements spec §4.5's "equality on (verb, seqn, addrs,
// code, payload)", robust to the leading timestamp/RSSI the codec
// already strips.
func echoMatches(sent, got packet.Packet) bool {
	return sent.Verb == got.Verb &&
		sent.Seqn == got.Seqn &&
		sent.Addr0 == got.Addr0 &&
		sent.Addr1 == got.Addr1 &&
		sent.Addr2 == got.Addr2 &&
		sent.Code == got.Code &&
		sent.Payload == got.Payload
}

// replyMatches implements spec §4.5's "Expected-reply matching": same
// code, the verb the filter names (or an RP when the outbound packet
// was a W), src/dst swapped relative to the outbound packet, and (if
// the filter names one) the same leading idx/domain byte.
func replyMatches(sent packet.Packet, cmd command.Command, got packet.Packet) bool {
	f := cmd.ExpectReply
	if f == nil {
		return false
	}
	verbOK := got.Verb == f.Verb || (sent.Verb == packet.VerbWrite && got.Verb == packet.VerbReply)
	if !verbOK || got.Code != string(f.Code) {
		return false
	}
	if got.Src != sent.Dst || got.Dst != sent.Src {
		return false
	}
	if f.Idx != nil {
		if len(got.Payload) < 2 {
			return false
		}
		b, err := strconv.ParseUint(got.Payload[:2], 16, 8)
		if err != nil || byte(b) != *f.Idx {
			return false
		}
	}
	return true
}
