// Package binding implements the three-way offer/accept/confirm
// handshake spec §4.6 describes for pairing a faked device to a
// controller. No pack repo runs a comparable handshake; the state
// machine is built directly from spec §4.6's two walkthroughs, with
// Design Note §9's "==" vs "=" open question resolved by making every
// transition an explicit assignment rather than a comparison.
package binding

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/command"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/message"
	"github.com/JorritSalverda/ramses-gateway/packet"
)

// State is one node of the handshake (spec §4.6 "state ::= IDLE |
// OFFERED | ACCEPTED | CONFIRMED | FAILED").
type State int

const (
	Idle State = iota
	Offered
	Accepted
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Offered:
		return "OFFERED"
	case Accepted:
		return "ACCEPTED"
	case Confirmed:
		return "CONFIRMED"
	case Failed:
		return "FAILED"
	default:
		return "IDLE"
	}
}

// OfferTimeout/AcceptWindow are the two windows spec §4.6 names: the
// offeror waits up to 3s for a controller's W/1FC9; the acceptor keeps
// retransmitting its accept for up to 300s waiting for the confirm.
const (
	OfferTimeout = 3 * time.Second
	AcceptWindow = 300 * time.Second
)

// acceptRetransmit is how often the acceptor resends its W/1FC9 while
// waiting for the offeror's confirming I (spec §4.6 "retransmit until
// an I/1FC9 is received").
const acceptRetransmit = 3 * time.Second

// Result is delivered to the caller when a Handshake leaves CONFIRMED
// or FAILED.
type Result struct {
	State State
	// Peer is the accepting controller (offeror path) or the offering
	// device (acceptor path).
	Peer address.Address
	Err  error
}

// EnqueueFunc hands one Command to the transmit engine; cb fires once
// the command settles (echoed, replied, or expired). Kept as a narrow
// function type instead of an import of transmit.Engine so this
// package has no dependency on the engine's internals.
type EnqueueFunc func(cmd command.Command, cb func(message.Message, error))

// Handshake runs one instance of the offer/accept/confirm machine.
// Feed every inbound message to it; call Run to drive it to
// completion.
type Handshake struct {
	role    role
	self    address.Address
	caps    map[message.Code]bool
	idx     byte
	enqueue EnqueueFunc
	log     zerolog.Logger

	state State
	peer  address.Address

	incoming chan message.Message
	result   chan Result
}

type role int

const (
	roleOfferor role = iota
	roleAcceptor
)

// NewOfferor builds a Handshake that advertises caps and waits for a
// controller to accept one (spec §4.6 "Offeror path"). caps must be
// non-empty: "only opcodes in an explicit capability set may be
// bound" — an empty set is a precondition error raised before state
// IDLE is left.
func NewOfferor(self address.Address, caps []message.Code, enqueue EnqueueFunc, log zerolog.Logger) (*Handshake, error) {
	if len(caps) == 0 {
		return nil, errs.New(errs.BindingFailed, "binding.NewOfferor", "capability set is empty")
	}
	capSet := make(map[message.Code]bool, len(caps))
	for _, c := range caps {
		capSet[c] = true
	}
	return &Handshake{
		role:     roleOfferor,
		self:     self,
		caps:     capSet,
		enqueue:  enqueue,
		log:      log,
		state:    Idle,
		incoming: make(chan message.Message, 16),
		result:   make(chan Result, 1),
	}, nil
}

// NewAcceptor builds a Handshake that waits for any offer of a code in
// caps and pairs it to idx (spec §4.6 "Acceptor path").
func NewAcceptor(self address.Address, idx byte, caps []message.Code, enqueue EnqueueFunc, log zerolog.Logger) (*Handshake, error) {
	if len(caps) == 0 {
		return nil, errs.New(errs.BindingFailed, "binding.NewAcceptor", "capability set is empty")
	}
	capSet := make(map[message.Code]bool, len(caps))
	for _, c := range caps {
		capSet[c] = true
	}
	return &Handshake{
		role:     roleAcceptor,
		self:     self,
		caps:     capSet,
		idx:      idx,
		enqueue:  enqueue,
		log:      log,
		state:    Idle,
		incoming: make(chan message.Message, 16),
		result:   make(chan Result, 1),
	}, nil
}

// Feed delivers an inbound message to the handshake. Safe to call from
// any goroutine; non-blocking (drops msg when the handshake's inbound
// buffer is full).
func (h *Handshake) Feed(msg message.Message) {
	select {
	case h.incoming <- msg:
	default:
	}
}

// State reports the handshake's current state.
func (h *Handshake) State() State { return h.state }

// Run drives the handshake to CONFIRMED or FAILED and returns the
// outcome. It blocks until settled or ctx is cancelled.
func (h *Handshake) Run(ctx context.Context) Result {
	var res Result
	if h.role == roleOfferor {
		res = h.runOfferor(ctx)
	} else {
		res = h.runAcceptor(ctx)
	}
	h.state = res.State
	return res
}

func (h *Handshake) runOfferor(ctx context.Context) Result {
	codes := make([]message.Code, 0, len(h.caps))
	for c := range h.caps {
		codes = append(codes, c)
	}

	h.state = Offered
	h.enqueue(command.OfferBinding(h.self, codes), func(message.Message, error) {})

	deadline := time.NewTimer(OfferTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{State: Failed, Err: ctx.Err()}
		case <-deadline.C:
			return Result{State: Failed, Err: errs.New(errs.BindingFailed, "binding.runOfferor", "no accept within offer window")}
		case msg := <-h.incoming:
			p := msg.Packet
			if p.Verb != packet.VerbWrite || p.Code != string(message.CodeBind) {
				continue
			}
			if !h.offerAccepted(msg) {
				continue
			}
			h.state = Accepted
			h.peer = p.Src

			confirmed := make(chan error, 1)
			h.enqueue(command.ConfirmBinding(h.self, h.peer), func(_ message.Message, err error) { confirmed <- err })

			select {
			case err := <-confirmed:
				if err != nil {
					return Result{State: Failed, Peer: h.peer, Err: err}
				}
				return Result{State: Confirmed, Peer: h.peer}
			case <-ctx.Done():
				return Result{State: Failed, Peer: h.peer, Err: ctx.Err()}
			}
		}
	}
}

// offerAccepted reports whether msg's 1FC9 records pair at least one
// capability this offeror advertised.
func (h *Handshake) offerAccepted(msg message.Message) bool {
	for _, rec := range msg.List {
		pair, ok := rec.(message.BindPair)
		if ok && h.caps[pair.Code] {
			return true
		}
	}
	return false
}

func (h *Handshake) runAcceptor(ctx context.Context) Result {
	overall := time.NewTimer(AcceptWindow)
	defer overall.Stop()

	// Wait for a matching offer.
	var offeror address.Address
	var offeredCode message.Code
	for offeror == (address.Address{}) {
		select {
		case <-ctx.Done():
			return Result{State: Failed, Err: ctx.Err()}
		case <-overall.C:
			return Result{State: Failed, Err: errs.New(errs.BindingFailed, "binding.runAcceptor", "no offer within accept window")}
		case msg := <-h.incoming:
			p := msg.Packet
			if p.Verb != packet.VerbInform || p.Code != string(message.CodeBind) || !p.Dst.IsNull() {
				continue
			}
			code, ok := h.matchingOffer(msg)
			if !ok {
				continue
			}
			offeror = p.Src
			offeredCode = code
		}
	}

	h.state = Offered
	retransmit := time.NewTicker(acceptRetransmit)
	defer retransmit.Stop()

	send := func() { h.enqueue(command.AcceptBinding(h.self, offeror, h.idx, offeredCode), func(message.Message, error) {}) }
	send()
	h.state = Accepted

	for {
		select {
		case <-ctx.Done():
			return Result{State: Failed, Peer: offeror, Err: ctx.Err()}
		case <-overall.C:
			return Result{State: Failed, Peer: offeror, Err: errs.New(errs.BindingFailed, "binding.runAcceptor", "no confirm within accept window")}
		case <-retransmit.C:
			send()
		case msg := <-h.incoming:
			p := msg.Packet
			if p.Verb != packet.VerbInform || p.Code != string(message.CodeBind) {
				continue
			}
			if !p.Src.Equal(offeror) {
				continue
			}
			h.state = Confirmed
			return Result{State: Confirmed, Peer: offeror}
		}
	}
}

func (h *Handshake) matchingOffer(msg message.Message) (message.Code, bool) {
	for _, rec := range msg.List {
		pair, ok := rec.(message.BindPair)
		if ok && h.caps[pair.Code] {
			return pair.Code, true
		}
	}
	return "", false
}
