package flash

import "fmt"

// transaction records one SPIBus.Transfer call bracketed by chip-select
// assert/release, letting tests assert invariants over the recorded trace
// rather than poking at internal state.
type transaction struct {
	tx []byte
}

type fakeCS struct {
	asserted bool
	trace    *[]string
}

func (c *fakeCS) Assert() {
	c.asserted = true
	*c.trace = append(*c.trace, "assert")
}

func (c *fakeCS) Release() {
	c.asserted = false
	*c.trace = append(*c.trace, "release")
}

// fakeBus is an in-memory SPI flash model good enough to exercise Device's
// page-chunking, write-enable pairing, and busy-poll logic without any
// hardware. It tracks WEL and BUSY exactly like a real W25Q part: WEL must
// be set immediately before a program/erase opcode, and is auto-cleared
// when that opcode's effect "completes" (immediately, in this fake — no
// artificial busy delay unless pendingBusyPolls says otherwise).
type fakeBus struct {
	mem          [16 * 1024 * 1024]byte
	wel          bool
	busyCountdown int
	transactions []transaction
	failAfter    int // if > 0, Transfer fails on the Nth call (1-indexed)
	calls        int

	// pendingBusyPolls makes BUSY report true for this many ReadStatus
	// calls after a program/erase opcode before clearing, letting tests
	// exercise waitForWriteEnd actually looping.
	pendingBusyPolls int
}

func (b *fakeBus) Transfer(tx, rx []byte) error {
	b.calls++
	b.transactions = append(b.transactions, transaction{tx: append([]byte(nil), tx...)})
	if b.failAfter > 0 && b.calls == b.failAfter {
		return fmt.Errorf("injected failure")
	}
	if len(tx) == 0 {
		return nil
	}
	switch tx[0] {
	case opWriteEnable:
		b.wel = true
	case opWriteDisable:
		b.wel = false
	case opReadStatusReg1:
		status := byte(0)
		if b.wel {
			status |= statusWEL
		}
		if b.pendingBusyPolls > 0 {
			status |= statusBUSY
			b.pendingBusyPolls--
		}
		if len(rx) >= 2 {
			rx[1] = status
		}
	case opPageProgram:
		if !b.wel {
			return fmt.Errorf("page program issued without WriteEnable")
		}
		addr := uint32(tx[1])<<16 | uint32(tx[2])<<8 | uint32(tx[3])
		data := tx[4:]
		if addr%PageSize+uint32(len(data)) > PageSize {
			return fmt.Errorf("page program crosses page boundary")
		}
		copy(b.mem[addr:], data)
		b.wel = false
	case opSectorErase, opBlockErase32K, opBlockErase64K, opChipErase:
		if !b.wel {
			return fmt.Errorf("erase issued without WriteEnable")
		}
		b.wel = false
	case opRead:
		addr := uint32(tx[1])<<16 | uint32(tx[2])<<8 | uint32(tx[3])
		copy(rx[4:], b.mem[addr:addr+uint32(len(rx)-4)])
	case opReadID:
		if len(rx) >= 6 {
			rx[4], rx[5] = W25Q128.ManufacturerID, W25Q128.DeviceID
		}
	case opReadJEDECID:
		if len(rx) >= 4 {
			rx[1], rx[2], rx[3] = W25Q128.JEDECID[0], W25Q128.JEDECID[1], W25Q128.JEDECID[2]
		}
	}
	return nil
}

func newFakeDevice() (*Device, *fakeBus, *[]string) {
	trace := &[]string{}
	bus := &fakeBus{}
	cs := &fakeCS{trace: trace}
	return New(bus, cs, W25Q128), bus, trace
}
