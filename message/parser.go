package message

import (
	"github.com/rs/zerolog"

	"github.com/JorritSalverda/ramses-gateway/packet"
)

// Parse turns an already-decoded Packet into a Message by dispatching
// its payload through the opcode table (spec §4.3). The packet
// grammar itself (verb/address/length validity) is enforced earlier,
// by packet.Decode; Parse only ever rejects a payload by marking it
// Unparsed, never by returning an error, because a malformed payload
// for a known opcode is still a well-formed packet that must be kept
// (spec §7).
func Parse(p packet.Packet, log zerolog.Logger) Message {
	msg := decode(Code(p.Code), p.Payload, log)
	msg.Packet = p
	return msg
}
