package sntp

import "net"

type Mode byte

const (
	RESERVED Mode = iota
	SYMMETRIC_ACTIVE
	SYMMETRIC_PASSIVE
	CLIENT
	SERVER
	BROADCAST
	CONTROL
	RESERVED_PRIVATE_USE
)

type Leap byte

const (
	NO_WARNING Leap = iota
	LAST_MINUTE_61
	LAST_MINUTE_59
	ALARM // clock not synchronized
)

const (
	VERSION_1 byte = iota + 1
	VERSION_2
	VERSION_3
	VERSION_4
)

const (
	STRATUM_UNSPECIFIED byte = 0
	STRATUM_PRIMARY     byte = 1
)

const (
	DefaultPort     = 123 // SNTP port number
	PacketLength    = 48  // header only, no authenticator
	MaxPacketLength = 384 // largest datagram the listener reads
)

var defaultReferenceID = [4]byte{'L', 'O', 'C', 'L'}

// Message holds the fields of one SNTP packet. RootDelay and RootDispersion
// are in seconds; on the wire they are signed 16.16 fixed-point values.
type Message struct {
	Leap           Leap
	Version        byte
	Mode           Mode
	Stratum        byte
	Poll           int8 /* log2 seconds */
	Precision      int8 /* log2 seconds */
	RootDelay      float64
	RootDispersion float64
	ReferenceID    [4]byte
	Reference      Timestamp
	Originate      Timestamp
	Receive        Timestamp
	Transmit       Timestamp
}

// NewMessage returns a client request. Transmit is left zero for the caller
// to set right before sending.
func NewMessage() *Message {
	return &Message{
		Leap:        NO_WARNING,
		Version:     VERSION_4,
		Mode:        CLIENT,
		Stratum:     STRATUM_UNSPECIFIED,
		ReferenceID: defaultReferenceID,
	}
}

// SetReferenceID copies at most four bytes of id, zero padding the rest.
func (m *Message) SetReferenceID(id string) {
	m.ReferenceID = [4]byte{}
	copy(m.ReferenceID[:], id)
}

// ReferenceIDString renders the identifier as ASCII for primary servers and as
// a dotted IPv4 address otherwise.
func (m *Message) ReferenceIDString() string {
	if m.Stratum <= STRATUM_PRIMARY {
		end := len(m.ReferenceID)
		for end > 0 && m.ReferenceID[end-1] == 0 {
			end--
		}
		return string(m.ReferenceID[:end])
	}
	return net.IP(m.ReferenceID[:]).String()
}
