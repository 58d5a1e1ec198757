package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Volcengine speech endpoints exchange binary frames: a 4-byte header, optional
// sequence and event metadata, a big-endian payload size and the payload.

const protocolVersion = 0b0001

type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	AudioOnlyRequest        MessageType = 0b0010
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

type Flags uint8

const (
	NoSequence       Flags = 0b0000
	PositiveSequence Flags = 0b0001
	LastNoSequence   Flags = 0b0010
	NegativeSequence Flags = 0b0011
	WithEvent        Flags = 0b0100

	sequenceMask Flags = 0b0011
)

type Serialization uint8

const (
	RawSerialization  Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

type Event int32

const (
	EventNone               Event = 0
	EventStartConnection    Event = 1
	EventFinishConnection   Event = 2
	EventConnectionStarted  Event = 50
	EventConnectionFailed   Event = 51
	EventConnectionFinished Event = 52
	EventSessionStarted     Event = 150
	EventSessionFinished    Event = 152
	EventSessionFailed      Event = 153
)

var ErrFrame = errors.New("malformed speech frame")

// Frame is one decoded protocol message.
type Frame struct {
	Type          MessageType
	Flags         Flags
	Serialization Serialization
	Compression   Compression

	Sequence  int32
	Event     Event
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

// Last reports whether the frame closes its stream.
func (f *Frame) Last() bool {
	seq := f.Flags & sequenceMask
	return seq == LastNoSequence || seq == NegativeSequence
}

func (f *Frame) hasSequence() bool {
	seq := f.Flags & sequenceMask
	return seq == PositiveSequence || seq == NegativeSequence
}

func (f *Frame) hasEvent() bool {
	return f.Flags&WithEvent != 0
}

// Encode serialises the frame.
func (f *Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(protocolVersion<<4 | 0b0001)
	buf.WriteByte(byte(f.Type)<<4 | byte(f.Flags))
	buf.WriteByte(byte(f.Serialization)<<4 | byte(f.Compression))
	buf.WriteByte(0)

	if f.hasSequence() {
		writeUint32(&buf, uint32(f.Sequence))
	}
	if f.hasEvent() {
		writeUint32(&buf, uint32(f.Event))
		if !f.Event.connectionScoped() {
			writeString(&buf, f.SessionID)
		}
		if f.Event.carriesConnectID() {
			writeString(&buf, f.ConnectID)
		}
	}
	if f.Type == ErrorMessage {
		writeUint32(&buf, f.ErrorCode)
	}
	writeUint32(&buf, uint32(len(f.Payload)))
	buf.Write(f.Payload)
	return buf.Bytes()
}

// DecodeFrame parses one frame from data.
func DecodeFrame(data []byte) (*Frame, error) {
	r := bytes.NewReader(data)

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFrame, err)
	}
	if v := head[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("%w: unsupported protocol version %d", ErrFrame, v)
	}

	f := &Frame{
		Type:          MessageType(head[1] >> 4),
		Flags:         Flags(head[1] & 0x0f),
		Serialization: Serialization(head[2] >> 4),
		Compression:   Compression(head[2] & 0x0f),
	}

	if extra := int(head[0]&0x0f)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("%w: extended header: %v", ErrFrame, err)
		}
	}

	if f.hasSequence() {
		seq, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: sequence: %v", ErrFrame, err)
		}
		f.Sequence = int32(seq)
	}

	if f.hasEvent() {
		ev, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: event: %v", ErrFrame, err)
		}
		f.Event = Event(int32(ev))
		if !f.Event.connectionScoped() {
			if f.SessionID, err = readString(r); err != nil {
				return nil, fmt.Errorf("%w: session id: %v", ErrFrame, err)
			}
		}
		if f.Event.carriesConnectID() {
			if f.ConnectID, err = readString(r); err != nil {
				return nil, fmt.Errorf("%w: connect id: %v", ErrFrame, err)
			}
		}
	}

	if f.Type == ErrorMessage {
		code, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: error code: %v", ErrFrame, err)
		}
		f.ErrorCode = code
	}

	size, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: payload size: %v", ErrFrame, err)
	}
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("%w: payload of %d bytes: %v", ErrFrame, size, err)
		}
	}
	return f, nil
}

// NewFullClientRequest wraps a JSON request payload.
func NewFullClientRequest(payload []byte, compression Compression) *Frame {
	return &Frame{
		Type:          FullClientRequest,
		Flags:         NoSequence,
		Serialization: JSONSerialization,
		Compression:   compression,
		Payload:       payload,
	}
}

// NewAudioRequest wraps one audio chunk. The last chunk carries a negated sequence.
func NewAudioRequest(chunk []byte, sequence int32, last bool, compression Compression) *Frame {
	f := &Frame{
		Type:          AudioOnlyRequest,
		Serialization: RawSerialization,
		Compression:   compression,
		Sequence:      sequence,
		Payload:       chunk,
	}
	switch {
	case last && sequence != 0:
		f.Flags = NegativeSequence
		f.Sequence = -sequence
	case last:
		f.Flags = LastNoSequence
	case sequence > 0:
		f.Flags = PositiveSequence
	default:
		f.Flags = NoSequence
	}
	return f
}

func (e Event) connectionScoped() bool {
	switch e {
	case EventStartConnection, EventFinishConnection,
		EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

func (e Event) carriesConnectID() bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if int64(n) > int64(r.Len()) {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
