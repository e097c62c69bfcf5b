package rpc

import (
	"encoding/binary"
	"io"

	"github.com/rs/zerolog/log"
)

// Packet header: u32 big-endian payload length + 1 code byte. The
// length excludes the code byte even though the code travels inside
// the same write.
const headerSize = 5

// minPayload is the smallest payload any real message encodes to.
const minPayload = 4

// maxPayload is the accepted payload ceiling for a message code.
// Static policy: bulk metadata requests get room, everything else is
// small control traffic.
func maxPayload(code byte) int {
	switch code {
	case codePullMetadata:
		return 50 * 1024 * 1024
	case codePushMetadata:
		return 200 * 1024 * 1024
	}
	return 50 * 1024
}

// ReadPacket reads one packet from r and returns a buffer with the
// code byte re-admitted at index 0 followed by the payload, so Decode
// can dispatch on buf[0] uniformly. The ceiling check runs before the
// payload allocation; a peer declaring a huge length costs us five
// header bytes, not a buffer.
func ReadPacket(r io.Reader) ([]byte, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, ioErr(err)
	}
	length := int(binary.BigEndian.Uint32(head[:4]))
	code := head[4]

	if length < minPayload {
		return nil, invalidf("payload size is too small: %d", length)
	}
	if limit := maxPayload(code); length > limit {
		log.Warn().
			Uint8("code", code).
			Int("limit", limit).
			Int("requested", length).
			Msg("maximum packet size exceeded")
		return nil, invalidf("request length %d exceeded maximum limit %d", length, limit)
	}

	buf := make([]byte, length+1)
	buf[0] = code
	if _, err := io.ReadFull(r, buf[1:]); err != nil {
		return nil, ioErr(err)
	}
	return buf, nil
}

// WritePacket frames buf (code byte at index 0 followed by payload)
// onto w: u32 big-endian payload length, then buf verbatim.
func WritePacket(w io.Writer, buf []byte) error {
	if len(buf) < 1 {
		return invalidf("empty packet buffer")
	}
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(buf)-1))
	if _, err := w.Write(head[:]); err != nil {
		return ioErr(err)
	}
	if _, err := w.Write(buf); err != nil {
		return ioErr(err)
	}
	return nil
}
