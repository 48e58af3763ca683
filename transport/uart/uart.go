// Package uart backs bootproto.Serial with a real host serial port via
// go.bug.st/serial, the same library the reference host tooling this
// firmware core pairs with uses to talk to STM32-style USART bootloaders.
package uart

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port implements bootproto.Serial over a go.bug.st/serial connection.
type Port struct {
	port serial.Port
}

// Config describes how to open the serial line. Defaults match the
// bootloader's expected line settings: 8 data bits, no parity, one stop
// bit, no flow control.
type Config struct {
	Name     string
	BaudRate int
}

// DefaultBaudRate is used when Config.BaudRate is left at zero.
const DefaultBaudRate = 115200

// Open opens the named serial port with the given configuration.
func Open(cfg Config) (*Port, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("uart: open %s: %w", cfg.Name, err)
	}
	return &Port{port: p}, nil
}

// Close releases the underlying serial port.
func (p *Port) Close() error {
	return p.port.Close()
}

// Recv blocks until exactly len(buf) bytes have been read or timeout
// elapses. timeout == 0 disables the read deadline entirely, matching
// bootproto.Serial's contract for the initial start-marker wait.
func (p *Port) Recv(buf []byte, timeout time.Duration) error {
	if timeout == 0 {
		if err := p.port.SetReadTimeout(serial.NoTimeout); err != nil {
			return fmt.Errorf("uart: set read timeout: %w", err)
		}
	} else {
		if err := p.port.SetReadTimeout(timeout); err != nil {
			return fmt.Errorf("uart: set read timeout: %w", err)
		}
	}

	total := 0
	deadline := time.Now().Add(timeout)
	for total < len(buf) {
		n, err := p.port.Read(buf[total:])
		if err != nil {
			return fmt.Errorf("uart: read: %w", err)
		}
		if n == 0 {
			if timeout != 0 && time.Now().After(deadline) {
				return fmt.Errorf("uart: read timed out after %s", timeout)
			}
			if timeout != 0 {
				continue
			}
			return fmt.Errorf("uart: port closed")
		}
		total += n
	}
	return nil
}

// Send blocks until all of buf has been transmitted.
func (p *Port) Send(buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := p.port.Write(buf[total:])
		if err != nil {
			return fmt.Errorf("uart: write: %w", err)
		}
		total += n
	}
	return nil
}
