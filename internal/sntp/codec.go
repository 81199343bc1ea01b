package sntp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Fields in wire order. binary.Size(packetEncoded{}) == PacketLength.
type packetEncoded struct {
	Flags          byte      /* leap | version | mode */
	Stratum        byte      /* stratum */
	Poll           int8      /* poll interval */
	Precision      int8      /* precision */
	RootDelay      int32     /* root delay, 16.16 */
	RootDispersion int32     /* root dispersion, 16.16 */
	ReferenceID    [4]byte   /* reference ID */
	Reference      Timestamp /* reference time */
	Originate      Timestamp /* origin timestamp */
	Receive        Timestamp /* receive timestamp */
	Transmit       Timestamp /* transmit timestamp */
}

// Encode serializes the message header into PacketLength bytes.
func Encode(message *Message) []byte {
	firstByte := byte(message.Leap&0b11)<<6 | (message.Version&0b111)<<3 | byte(message.Mode&0b111)

	encoded := packetEncoded{
		Flags:          firstByte,
		Stratum:        message.Stratum,
		Poll:           message.Poll,
		Precision:      message.Precision,
		RootDelay:      encodeShort(message.RootDelay),
		RootDispersion: encodeShort(message.RootDispersion),
		ReferenceID:    message.ReferenceID,
		Reference:      message.Reference,
		Originate:      message.Originate,
		Receive:        message.Receive,
		Transmit:       message.Transmit,
	}

	buffer := bytes.NewBuffer(make([]byte, 0, PacketLength))
	binary.Write(buffer, binary.BigEndian, &encoded)
	return buffer.Bytes()
}

// Decode parses the first PacketLength bytes of b. Anything after the header
// (an authenticator, for instance) is ignored.
func Decode(b []byte) (*Message, error) {
	if len(b) < PacketLength {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedPacket, len(b), PacketLength)
	}

	encoded := packetEncoded{}
	if err := binary.Read(bytes.NewReader(b[:PacketLength]), binary.BigEndian, &encoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	return &Message{
		Leap:           Leap(encoded.Flags >> 6),
		Version:        (encoded.Flags >> 3) & 0b111,
		Mode:           Mode(encoded.Flags & 0b111),
		Stratum:        encoded.Stratum,
		Poll:           encoded.Poll,
		Precision:      encoded.Precision,
		RootDelay:      decodeShort(encoded.RootDelay),
		RootDispersion: decodeShort(encoded.RootDispersion),
		ReferenceID:    encoded.ReferenceID,
		Reference:      encoded.Reference,
		Originate:      encoded.Originate,
		Receive:        encoded.Receive,
		Transmit:       encoded.Transmit,
	}, nil
}

func encodeShort(seconds float64) int32 {
	scaled := seconds * ShortLength
	switch {
	case math.IsNaN(scaled):
		return 0
	case scaled >= math.MaxInt32:
		return math.MaxInt32
	case scaled <= math.MinInt32:
		return math.MinInt32
	}
	return int32(scaled)
}

func decodeShort(encoded int32) float64 {
	return float64(encoded) / ShortLength
}
