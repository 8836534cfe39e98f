// Package artnet speaks the Art-Net wire format: ArtDmx and ArtSync packets
// over UDP. Decode covers the receive path of the display; Encode and
// Controller cover the sending side used by test pattern generators and
// replay.
package artnet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// DefaultPort is the registered Art-Net UDP port.
	DefaultPort = 6454

	// HeaderSize is the byte offset of the DMX payload in an ArtDmx packet.
	HeaderSize = 18

	protocolVersion = 14
)

var signature = []byte("Art-Net\x00")

// OpCode identifies an Art-Net packet type. On the wire it is little-endian
// at byte offset 8.
type OpCode uint16

const (
	OpDmx  OpCode = 0x5000
	OpSync OpCode = 0x5200
)

func (o OpCode) String() string {
	switch o {
	case OpDmx:
		return "ArtDmx"
	case OpSync:
		return "ArtSync"
	default:
		return fmt.Sprintf("op 0x%04x", uint16(o))
	}
}

var (
	ErrTooShort     = errors.New("artnet: packet shorter than header")
	ErrBadSignature = errors.New("artnet: missing Art-Net signature")
)

// Packet is one decoded datagram. Universe and Data are meaningful for
// OpDmx only; Data aliases the receive buffer and holds at most one
// universe's channels, clipped to what the datagram actually carried.
type Packet struct {
	Op       OpCode
	Universe uint16
	Data     []byte
}

// Decode validates the header and decodes one datagram. Packets shorter
// than the header or without the signature are rejected; opcodes other than
// ArtDmx and ArtSync decode with their opcode only, for the caller to count
// or ignore.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, ErrTooShort
	}
	for i, b := range signature {
		if buf[i] != b {
			return Packet{}, ErrBadSignature
		}
	}

	p := Packet{Op: OpCode(binary.LittleEndian.Uint16(buf[8:10]))}
	if p.Op != OpDmx {
		return p, nil
	}

	p.Universe = binary.LittleEndian.Uint16(buf[14:16])
	length := int(binary.BigEndian.Uint16(buf[16:18]))
	if length > 512 {
		length = 512
	}
	// A truncated datagram never yields channels past its own end.
	if avail := len(buf) - HeaderSize; length > avail {
		length = avail
	}
	p.Data = buf[HeaderSize : HeaderSize+length]
	return p, nil
}

// EncodeDmx builds an ArtDmx packet for one universe. data is raw channel
// bytes, at most 512.
func EncodeDmx(universe uint16, data []byte) []byte {
	if len(data) > 512 {
		data = data[:512]
	}
	buf := make([]byte, HeaderSize+len(data))
	copy(buf, signature)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(OpDmx))
	binary.BigEndian.PutUint16(buf[10:12], protocolVersion)
	// buf[12] sequence (0 = disabled), buf[13] physical port (ignored)
	binary.LittleEndian.PutUint16(buf[14:16], universe)
	binary.BigEndian.PutUint16(buf[16:18], uint16(len(data)))
	copy(buf[HeaderSize:], data)
	return buf
}

// EncodeSync builds an ArtSync packet.
func EncodeSync() []byte {
	buf := make([]byte, 14)
	copy(buf, signature)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(OpSync))
	binary.BigEndian.PutUint16(buf[10:12], protocolVersion)
	return buf
}
