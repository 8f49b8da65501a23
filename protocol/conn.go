package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"
	"github.com/oxtoacart/bpool"
)

// Framing is the packet framing used on a connection.
type Framing int

const (
	// FramingLength prefixes every packet with its decimal length and a
	// colon: 13:{"name":"x"}.
	FramingLength Framing = iota
	// FramingNewline terminates every packet with a newline.
	FramingNewline
)

// DefaultMaxFrameSize is the default upper bound on an incoming packet.
const DefaultMaxFrameSize = 64 << 20

// ParseFraming parses a framing name.
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "", "length":
		return FramingLength, nil
	case "newline":
		return FramingNewline, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFraming, s)
}

func (f Framing) String() string {
	if f == FramingNewline {
		return "newline"
	}
	return "length"
}

//nolint:gochecknoglobals
var bufPool = bpool.NewBufferPool(32)

// Conn reads command packets from and writes reply packets to a stream.
type Conn struct {
	rwc     io.ReadWriteCloser
	r       *bufio.Reader
	framing Framing
	maxSize int

	wmu sync.Mutex
}

// NewConn wraps rwc.
func NewConn(rwc io.ReadWriteCloser, framing Framing) *Conn {
	return &Conn{
		rwc:     rwc,
		r:       bufio.NewReader(rwc),
		framing: framing,
		maxSize: DefaultMaxFrameSize,
	}
}

// SetMaxFrameSize sets the upper bound on incoming packets.
func (c *Conn) SetMaxFrameSize(n int) {
	c.maxSize = n
}

// ReadFrame reads the next raw packet.
func (c *Conn) ReadFrame() ([]byte, error) {
	if c.framing == FramingNewline {
		return c.readLine()
	}
	return c.readLengthPrefixed()
}

func (c *Conn) readLine() ([]byte, error) {
	for {
		line, err := c.r.ReadBytes('\n')
		if err != nil && (len(line) == 0 || err != io.EOF) {
			return nil, err
		}
		if len(line) > c.maxSize {
			return nil, ErrFrameTooLarge
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *Conn) readLengthPrefixed() ([]byte, error) {
	var n int
	digits := 0
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			if err == io.EOF && digits > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if b == ':' {
			break
		}
		if digits == 0 && (b == '\n' || b == '\r' || b == ' ') {
			continue
		}
		if b < '0' || b > '9' || digits >= 10 {
			return nil, ErrMalformedFrame
		}
		n = n*10 + int(b-'0')
		digits++
	}
	if digits == 0 {
		return nil, ErrMalformedFrame
	}
	if n > c.maxSize {
		return nil, ErrFrameTooLarge
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return nil, fmt.Errorf("reading %d byte frame: %w", n, err)
	}
	return data, nil
}

// ReadCommand reads and decodes the next command packet. Packets that do
// not decode fail with ErrMalformedPacket.
func (c *Conn) ReadCommand() (*Command, error) {
	data, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	var cmd Command
	if err := easyjson.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	return &cmd, nil
}

// Write encodes and writes a packet. It is safe for concurrent use.
func (c *Conn) Write(v easyjson.Marshaler) error {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	if w.Error != nil {
		return fmt.Errorf("encoding packet: %w", w.Error)
	}

	buf := bufPool.Get()
	defer bufPool.Put(buf)

	if c.framing == FramingLength {
		buf.WriteString(strconv.Itoa(w.Size()))
		buf.WriteByte(':')
	}
	if _, err := w.DumpTo(buf); err != nil {
		return fmt.Errorf("encoding packet: %w", err)
	}
	if c.framing == FramingNewline {
		buf.WriteByte('\n')
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.rwc.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.rwc.Close()
}
