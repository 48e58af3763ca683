// Package bootproto implements the UART wire protocol: framing, resync,
// command dispatch, and ACK/NACK responses. It knows nothing about SPI; all
// device access goes through the FlashDevice interface.
package bootproto

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/w25boot/uartflash/flash"
)

// Serial is the transport the Protocol Engine reads commands from and
// writes responses to. Recv blocks until exactly len(buf) bytes have been
// read or timeout elapses; timeout == 0 blocks indefinitely and is used
// only while waiting for the two start-marker bytes.
type Serial interface {
	Recv(buf []byte, timeout time.Duration) error
	Send(buf []byte) error
}

// FlashDevice is the subset of *flash.Device the Protocol Engine needs.
// Defined as an interface here (rather than depending on *flash.Device
// directly) so tests can exercise the command loop against a fake without
// any SPI machinery at all.
type FlashDevice interface {
	Read(address uint32, dst []byte) error
	Write(address uint32, data []byte) error
	EraseSector(address uint32) error
	EraseChip() error
	ReadID() (manufacturer, device byte, err error)
	ReadJEDECID() ([3]byte, error)
	Variant() flash.VariantInfo
}

// ErrClosed is returned by Run when the underlying Serial reports the
// connection is gone rather than merely timing out.
var ErrClosed = errors.New("bootproto: serial connection closed")

// Session holds the bootloader's per-connection state: the serial
// transport, the flash device it front-ends, the shared scratch buffer
// commands read into, and the two cumulative byte counters from spec.md's
// data model. A Session is built for exactly one command-processing
// goroutine; it does not synchronize access to its own fields.
type Session struct {
	serial Serial
	dev    FlashDevice

	// payload is shared by every command handler; its contents are valid
	// only until the next command begins.
	payload [MaxPayload]byte

	TotalBytesWritten uint64
	TotalBytesRead    uint64
}

// NewSession builds a Session over serial and dev.
func NewSession(serial Serial, dev FlashDevice) *Session {
	return &Session{serial: serial, dev: dev}
}

// Run executes the command loop until ctx-independent I/O reports the
// connection is closed. It never returns on a single bad command — a
// framing mismatch, a NACKed command, or a receive timeout mid-command all
// just fall back to waiting for the next start marker.
func (s *Session) Run() error {
	for {
		if err := s.awaitFrame(); err != nil {
			return err
		}
	}
}

// awaitFrame waits for a synchronized start marker, reads one command
// byte, and dispatches it. A mismatched marker byte is silently discarded
// with no NACK, per the deliberate framing-resync design: unlike every
// other parse failure, an unsynchronized byte stream gives the engine no
// way to know whether a reply would even reach a listening host.
func (s *Session) awaitFrame() error {
	var b [1]byte

	if err := s.serial.Recv(b[:], 0); err != nil {
		return ErrClosed
	}
	if b[0] != startMarker1 {
		return nil
	}
	if err := s.serial.Recv(b[:], 0); err != nil {
		return ErrClosed
	}
	if b[0] != startMarker2 {
		return nil
	}

	var cmd [1]byte
	if err := s.serial.Recv(cmd[:], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return nil
	}

	s.dispatch(cmd[0])
	return nil
}

func (s *Session) dispatch(cmd byte) {
	switch cmd {
	case CmdWrite:
		s.handleWrite()
	case CmdRead:
		s.handleRead()
	case CmdEraseSector:
		s.handleEraseSector()
	case CmdEraseChip:
		s.handleEraseChip()
	case CmdGetInfo:
		s.handleGetInfo()
	case CmdVerify:
		s.handleVerify()
	default:
		glog.V(2).Infof("bootproto: unknown command 0x%02X", cmd)
		s.nack(reasonArgument)
	}
}

func (s *Session) ack() {
	if err := s.serial.Send([]byte{ack}); err != nil {
		glog.V(2).Infof("bootproto: failed to send ACK: %v", err)
	}
}

func (s *Session) nack(reason nackReason) {
	glog.V(1).Infof("bootproto: NACK (%s)", reason)
	if err := s.serial.Send([]byte{nack}); err != nil {
		glog.V(2).Infof("bootproto: failed to send NACK: %v", err)
	}
}

func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

func putLE32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putLE16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

// recvChunked drains dst from the serial line chunkSize bytes at a time,
// matching the reference firmware's fixed-size intermediate buffer instead
// of assuming the transport can hand back an arbitrarily large read in one
// call.
func (s *Session) recvChunked(dst []byte) error {
	for off := 0; off < len(dst); {
		n := chunkSize
		if remaining := len(dst) - off; n > remaining {
			n = remaining
		}
		if err := s.serial.Recv(dst[off:off+n], CmdTimeout); err != nil {
			return err
		}
		off += n
	}
	return nil
}
