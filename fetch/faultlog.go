package fetch

import (
	"context"

	"github.com/JorritSalverda/ramses-gateway/address"
	"github.com/JorritSalverda/ramses-gateway/command"
	"github.com/JorritSalverda/ramses-gateway/errs"
	"github.com/JorritSalverda/ramses-gateway/message"
)

// maxFaultLogEntries bounds the index walk (spec §4.8 "Fault-log
// fetch... at most 64 entries").
const maxFaultLogEntries = 64

// FaultLogFetcher walks a controller's 0418 fault log by index,
// starting at 0, until the controller wraps back to entry 0 with an
// empty (zero) severity or the cap is reached.
type FaultLogFetcher struct{}

// NewFaultLogFetcher builds a FaultLogFetcher.
func NewFaultLogFetcher() *FaultLogFetcher {
	return &FaultLogFetcher{}
}

// Fetch returns the fault log in index order.
func (f *FaultLogFetcher) Fetch(ctx context.Context, ctl address.Address, enqueue EnqueueFunc) ([]message.FaultLogEntry, error) {
	var entries []message.FaultLogEntry

	for idx := byte(0); idx < maxFaultLogEntries; idx++ {
		entry, err := f.fetchEntry(ctx, ctl, idx, enqueue)
		if err != nil {
			return entries, err
		}
		if idx > 0 && entry.LogIdx == 0 && entry.Severity == 0 {
			break
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (f *FaultLogFetcher) fetchEntry(ctx context.Context, ctl address.Address, idx byte, enqueue EnqueueFunc) (message.FaultLogEntry, error) {
	cmd := command.GetFaultLogEntry(ctl, idx)
	msg, err := awaitReply(ctx, cmd, enqueue, cmd.Timeout*3, "fetch.FaultLogFetcher.Fetch")
	if err != nil {
		return message.FaultLogEntry{}, err
	}
	entry, ok := msg.Scalar.(message.FaultLogEntry)
	if !ok {
		return message.FaultLogEntry{}, errs.New(errs.InvalidPacket, "fetch.FaultLogFetcher.Fetch", "reply was not a fault-log entry")
	}
	return entry, nil
}
