//go:build !tinygo

package spibus

import (
	"fmt"

	"gobot.io/x/gobot/v2/drivers/spi"
)

// Bus adapts a Gobot SPI connection to flash.SPIBus. Grounded on the same
// ReadCommandData/WriteBytes split used by the pack's Gobot SPI EEPROM
// driver: a transfer with no expected response is a plain write, one that
// expects a response splits into a command header and a data phase.
type Bus struct {
	driver *spi.Driver
}

// NewBus builds a Bus over an already-configured Gobot SPI driver. Callers
// are expected to have called driver.Start() (or otherwise established the
// connection) before using the returned Bus.
func NewBus(driver *spi.Driver) *Bus {
	return &Bus{driver: driver}
}

type spiOps interface {
	ReadCommandData(command []byte, data []byte) error
	WriteBytes(data []byte) error
}

// Transfer implements flash.SPIBus. Linux spidev asserts chip-select for
// the duration of exactly one ioctl transfer, which lines up one-for-one
// with flash.Device's Assert-Transfer-Release scoping — see ChipSelect
// below.
func (b *Bus) Transfer(tx, rx []byte) error {
	conn := b.driver.Connection()
	ops, ok := conn.(spiOps)
	if !ok {
		return fmt.Errorf("spibus: connection does not support required SPI operations")
	}

	if len(rx) == 0 {
		if len(tx) == 0 {
			return nil
		}
		return ops.WriteBytes(tx)
	}

	if len(rx) == len(tx) {
		data := make([]byte, len(rx))
		if err := ops.ReadCommandData(tx, data); err != nil {
			return err
		}
		copy(rx, data)
		return nil
	}

	headerLen := len(tx) - len(rx)
	if err := ops.WriteBytes(tx[:headerLen]); err != nil {
		return err
	}
	data := make([]byte, len(rx))
	if err := ops.ReadCommandData(tx[headerLen:], data); err != nil {
		return err
	}
	copy(rx, data)
	return nil
}

// ChipSelect is a no-op on Linux: spidev's own ioctl transfer already
// brackets chip-select assertion around the single Transfer call it backs,
// so there is nothing left for software to do here. It exists only so
// Bus's caller can satisfy flash.ChipSelect uniformly across backings.
type ChipSelect struct{}

func (ChipSelect) Assert()  {}
func (ChipSelect) Release() {}
