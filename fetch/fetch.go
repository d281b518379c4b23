// Package fetch implements the two multi-request fetchers spec §4.8/
// §4.9 describe: a chunked schedule fetch (0404) and an index-based
// fault-log fetch (0418). Each fetcher is "a small state machine with
// idle, requesting, assembling, done, failed" (§4.9), driven here as a
// straight-line function rather than an explicit state enum — the
// states are never observed from outside a single fetch call, so a
// goroutine's program counter already is the state machine; grounded
// on original_source/evohome_rf/discovery.py's chunked-request loop
// (GET_SCHED/SET_SCHED), which has no Go-side analog in the rest of
// the pack, so this stays on stdlib concurrency primitives only.
package fetch

import (
	"context"
	"time"

	"github.com/JorritSalverda/ramses-gateway/command"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/message"
)

// EnqueueFunc hands one Command to the transmit engine; cb fires once
// the command settles. Kept as a narrow function type (mirroring
// binding.EnqueueFunc) so this package has no dependency on the
// engine's internals.
type EnqueueFunc func(cmd command.Command, cb func(message.Message, error))

// awaitReply enqueues cmd and blocks for its settlement, bounded by
// timeout (spec §4.8 "any missing chunk within timeout*3 aborts with
// ExpiredCallbackError").
func awaitReply(ctx context.Context, cmd command.Command, enqueue EnqueueFunc, timeout time.Duration, op string) (message.Message, error) {
	replyCh := make(chan message.Message, 1)
	errCh := make(chan error, 1)

	enqueue(cmd, func(msg message.Message, err error) {
		if err != nil {
			errCh <- err
			return
		}
		replyCh <- msg
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return message.Message{}, ctx.Err()
	case err := <-errCh:
		return message.Message{}, err
	case msg := <-replyCh:
		return msg, nil
	case <-timer.C:
		return message.Message{}, errs.New(errs.ExpiredCallback, op, "no reply within the fetch window")
	}
}
