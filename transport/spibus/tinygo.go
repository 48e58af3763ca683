//go:build tinygo

package spibus

import "machine"

// MCUBus adapts a bare-metal TinyGo machine.SPI to flash.SPIBus.
type MCUBus struct {
	bus machine.SPI
}

// NewMCUBus builds an MCUBus over an already-configured machine.SPI. The
// caller is responsible for calling bus.Configure before use.
func NewMCUBus(bus machine.SPI) *MCUBus {
	return &MCUBus{bus: bus}
}

// Transfer implements flash.SPIBus over machine.SPI.Tx.
func (m *MCUBus) Transfer(tx, rx []byte) error {
	if len(rx) == 0 {
		return m.bus.Tx(tx, nil)
	}
	if len(rx) == len(tx) {
		return m.bus.Tx(tx, rx)
	}
	// rx shorter than tx: clock the header out with no capture, then
	// exchange the trailing data phase, matching flash.Device's contract
	// that only the trailing len(rx) bytes of the exchange are captured.
	headerLen := len(tx) - len(rx)
	if err := m.bus.Tx(tx[:headerLen], nil); err != nil {
		return err
	}
	return m.bus.Tx(tx[headerLen:], rx)
}

// MCUChipSelect drives a GPIO pin as the flash device's chip-select line,
// active low per the W25Q datasheet.
type MCUChipSelect struct {
	Pin machine.Pin
}

func (c MCUChipSelect) Assert()  { c.Pin.Low() }
func (c MCUChipSelect) Release() { c.Pin.High() }
