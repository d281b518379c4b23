// Package transport owns the serial port (spec §4.2): opening it at
// 115200-8-N-1, framing the byte stream into "\r\n"-terminated lines,
// serialising writes behind a single lock, and pacing outbound traffic
// to respect a duty-cycle budget. Grounded on the teacher's
// openSerialPort/closeSerialPort (main.go), generalised from a
// bufio.Reader.ReadLine loop inlined in main() into a reusable type.
package transport

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/errs"
)

// Options configures a serial Transport. DutyCycleBudget is the
// fraction (0, 1] of the rolling hour the transport may spend writing
// (spec §4.2 default 1%).
type Options struct {
	PortName        string
	BaudRate        uint
	DutyCycleBudget float64
	EvofwFlag       byte // opaque compatibility byte for evofw3 firmware, spec §4.2
	Logger          zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.BaudRate == 0 {
		o.BaudRate = 115200
	}
	if o.DutyCycleBudget == 0 {
		o.DutyCycleBudget = 0.01
	}
	return o
}

// Transport is the serial line abstraction the rest of the engine
// depends on. SerialPort and Replay both implement it.
type Transport interface {
	// Lines returns the channel of framed, raw ASCII lines (without
	// "\r\n") read from the port. Closed when the transport stops.
	Lines() <-chan string
	// Write sends one already-encoded wire line, pacing it against the
	// duty-cycle budget (spec §4.2/§4.5 "Pacing"); it blocks until the
	// line has actually been written or ctx is cancelled.
	Write(ctx context.Context, line string) error
	// Close releases the underlying port/file.
	Close() error
}

// SerialPort is the real, production Transport: a single jacobsa/go-serial
// connection with a write lock and a duty-cycle pacer.
type SerialPort struct {
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex // serialises Write; at most one outbound line in flight (spec §4.2)
	port   io.ReadWriteCloser
	reader *bufio.Reader
	pacer  *Pacer

	lines  chan string
	closed chan struct{}
	once   sync.Once
}

// Open dials the serial port with the 115200-8-N-1 defaults the
// teacher's openSerialPort used, and starts the background reader.
func Open(opts Options) (*SerialPort, error) {
	opts = opts.withDefaults()

	serialOpts := serial.OpenOptions{
		PortName:              opts.PortName,
		BaudRate:              opts.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 2000,
		ParityMode:            serial.PARITY_NONE,
	}

	f, err := serial.Open(serialOpts)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "transport.Open", err)
	}

	sp := &SerialPort{
		opts:   opts,
		log:    opts.Logger,
		port:   f,
		reader: bufio.NewReader(f),
		pacer:  NewPacer(opts.DutyCycleBudget, opts.BaudRate),
		lines:  make(chan string, 64),
		closed: make(chan struct{}),
	}
	go sp.readLoop()
	return sp, nil
}

func (sp *SerialPort) readLoop() {
	defer close(sp.lines)
	for {
		buf, isPrefix, err := sp.reader.ReadLine()
		if err != nil {
			if err != io.EOF {
				sp.log.Warn().Err(err).Msg("serial read failed")
			}
			return
		}
		if isPrefix {
			sp.log.Warn().Str("_msg", string(buf)).Msg("line exceeded buffer, dropping fragment")
			continue
		}
		select {
		case sp.lines <- strings.TrimRight(string(buf), "\r\n"):
		case <-sp.closed:
			return
		}
	}
}

func (sp *SerialPort) Lines() <-chan string { return sp.lines }

// Write paces the line against the duty-cycle budget then performs the
// write under the single write lock (spec §4.2/§4.5).
func (sp *SerialPort) Write(ctx context.Context, line string) error {
	wire := line + "\r\n"

	if err := sp.pacer.Wait(ctx, len(wire)); err != nil {
		return err
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	_, err := sp.port.Write([]byte(wire))
	if err != nil {
		return errs.Wrap(errs.IOError, "transport.Write", err)
	}
	return nil
}

func (sp *SerialPort) Close() error {
	var err error
	sp.once.Do(func() {
		close(sp.closed)
		err = sp.port.Close()
	})
	return err
}
