// Package flash drives a Winbond W25Q-series SPI NOR flash device. It knows
// nothing about the UART wire protocol that sits above it; callers hand it
// addresses and byte slices and get back bytes or errors.
package flash

import (
	"time"

	"github.com/golang/glog"
)

// Device geometry constants, fixed across the supported W25Q64/W25Q128
// variants.
const (
	PageSize   = 256
	SectorSize = 4096
	BlockSize  = 65536

	// CmdTimeout is the nominal time budget for a single SPI command/response
	// exchange that does not itself involve a busy-poll (e.g. ReadStatus,
	// ReadID). Device does not apply it: its SPIBus.Transfer calls carry no
	// deadline of their own.
	CmdTimeout = 1 * time.Second
	// BusyTimeout bounds waitForWriteEnd after a page program, sector erase,
	// or 32K/64K block erase.
	BusyTimeout = 5 * time.Second
	// ChipEraseTimeout is the busy-poll deadline used only by EraseChip.
	// Datasheet: full-chip erase can take on the order of minutes on a
	// W25Q128, far past the 5s deadline that suffices for smaller erases.
	ChipEraseTimeout = 200 * time.Second
)

// Opcodes, per the W25Q128/W25Q64 datasheet and confirmed against the
// reference firmware's w25q128.h/w25q64.h headers.
const (
	opReadID            = 0x90
	opReadJEDECID       = 0x9F
	opReadStatusReg1    = 0x05
	opReadStatusReg2    = 0x35
	opWriteStatusReg    = 0x01
	opWriteEnable       = 0x06
	opWriteDisable      = 0x04
	opRead              = 0x03
	opFastRead          = 0x0B
	opPageProgram       = 0x02
	opQuadPageProgram   = 0x32
	opSectorErase       = 0x20
	opBlockErase32K     = 0x52
	opBlockErase64K     = 0xD8
	opChipErase         = 0xC7
	opEraseSuspend      = 0x75
	opEraseResume       = 0x7A
	opReadUniqueID      = 0x4B
	opPowerDown         = 0xB9
	opReleasePowerDown  = 0xAB
)

const (
	statusBUSY = 0x01
	statusWEL  = 0x02
)

// SPIBus performs a single full-duplex SPI exchange while chip-select is
// asserted. tx is clocked out; the trailing len(rx) bytes clocked in are
// written to rx (rx may be nil or shorter than tx when the caller only
// cares about what it sends).
type SPIBus interface {
	Transfer(tx, rx []byte) error
}

// ChipSelect asserts and releases the flash device's chip-select line.
type ChipSelect interface {
	Assert()
	Release()
}

// Device is a SPI NOR flash device driven over a SPIBus/ChipSelect pair.
// A Device is not safe for concurrent use; the bootloader core only ever
// calls it from its single command-processing goroutine.
type Device struct {
	bus     SPIBus
	cs      ChipSelect
	variant VariantInfo
}

// New builds a Device for the given variant, driven over bus with chip
// select cs.
func New(bus SPIBus, cs ChipSelect, variant VariantInfo) *Device {
	return &Device{bus: bus, cs: cs, variant: variant}
}

// Variant reports the geometry/identity this Device was configured for.
func (d *Device) Variant() VariantInfo { return d.variant }

// csGuard is the scoped chip-select acquisition returned by selectChip. Its
// release is run via defer at the call site (WakeUp instead calls it
// explicitly on each of its two return paths, before its settle delay), so
// every SPI transaction has exactly one assert and exactly one release
// regardless of how it returns.
type csGuard struct {
	cs ChipSelect
}

func (g csGuard) release() { g.cs.Release() }

func (d *Device) selectChip() csGuard {
	d.cs.Assert()
	return csGuard{cs: d.cs}
}

// Init brings the device out of any prior power-down state. Mirrors the
// reference firmware's boot sequence: assert CS high (idle), wait for the
// device to settle, then explicitly wake it.
func (d *Device) Init() error {
	d.cs.Release()
	time.Sleep(100 * time.Millisecond)
	return d.WakeUp()
}

// ReadID reads the legacy manufacturer/device ID pair via opcode 0x90.
func (d *Device) ReadID() (manufacturer, device byte, err error) {
	g := d.selectChip()
	defer g.release()

	tx := []byte{opReadID, 0x00, 0x00, 0x00, 0x00, 0x00}
	rx := make([]byte, len(tx))
	if err := d.bus.Transfer(tx, rx); err != nil {
		return 0, 0, &TransportError{Op: "ReadID", Err: err}
	}
	return rx[4], rx[5], nil
}

// ReadJEDECID reads the 3-byte JEDEC ID via opcode 0x9F.
func (d *Device) ReadJEDECID() ([3]byte, error) {
	g := d.selectChip()
	defer g.release()

	tx := []byte{opReadJEDECID, 0, 0, 0}
	rx := make([]byte, len(tx))
	if err := d.bus.Transfer(tx, rx); err != nil {
		return [3]byte{}, &TransportError{Op: "ReadJEDECID", Err: err}
	}
	return [3]byte{rx[1], rx[2], rx[3]}, nil
}

// ReadUniqueID reads the factory-programmed 64-bit unique ID via opcode
// 0x4B. Present in the reference firmware's header but unused by the
// distilled wire protocol; kept for parity with the original driver.
func (d *Device) ReadUniqueID() ([8]byte, error) {
	g := d.selectChip()
	defer g.release()

	tx := make([]byte, 13)
	tx[0] = opReadUniqueID
	rx := make([]byte, len(tx))
	if err := d.bus.Transfer(tx, rx); err != nil {
		return [8]byte{}, &TransportError{Op: "ReadUniqueID", Err: err}
	}
	var id [8]byte
	copy(id[:], rx[5:13])
	return id, nil
}

// ReadStatus reads status register 1 via opcode 0x05.
func (d *Device) ReadStatus() (byte, error) {
	g := d.selectChip()
	defer g.release()

	tx := []byte{opReadStatusReg1, 0x00}
	rx := make([]byte, len(tx))
	if err := d.bus.Transfer(tx, rx); err != nil {
		return 0, &TransportError{Op: "ReadStatus", Err: err}
	}
	return rx[1], nil
}

// ReadStatus2 reads status register 2 via opcode 0x35.
func (d *Device) ReadStatus2() (byte, error) {
	g := d.selectChip()
	defer g.release()

	tx := []byte{opReadStatusReg2, 0x00}
	rx := make([]byte, len(tx))
	if err := d.bus.Transfer(tx, rx); err != nil {
		return 0, &TransportError{Op: "ReadStatus2", Err: err}
	}
	return rx[1], nil
}

// WriteEnable sets the device's write-enable latch (opcode 0x06). Every
// program/erase operation must call this immediately before issuing its
// command, and the latch is auto-cleared by the device once that command
// completes.
func (d *Device) WriteEnable() error {
	g := d.selectChip()
	defer g.release()

	if err := d.bus.Transfer([]byte{opWriteEnable}, nil); err != nil {
		return &TransportError{Op: "WriteEnable", Err: err}
	}
	return nil
}

// WriteDisable clears the write-enable latch (opcode 0x04).
func (d *Device) WriteDisable() error {
	g := d.selectChip()
	defer g.release()

	if err := d.bus.Transfer([]byte{opWriteDisable}, nil); err != nil {
		return &TransportError{Op: "WriteDisable", Err: err}
	}
	return nil
}

func addr24(address uint32) [3]byte {
	return [3]byte{byte(address >> 16), byte(address >> 8), byte(address)}
}

// Read reads len(dst) bytes starting at address via opcode 0x03. Read spans
// page and sector boundaries freely; the device auto-increments its
// internal address counter.
func (d *Device) Read(address uint32, dst []byte) error {
	g := d.selectChip()
	defer g.release()

	a := addr24(address)
	tx := make([]byte, 4+len(dst))
	tx[0] = opRead
	tx[1], tx[2], tx[3] = a[0], a[1], a[2]
	rx := make([]byte, len(tx))
	if err := d.bus.Transfer(tx, rx); err != nil {
		return &TransportError{Op: "Read", Err: err}
	}
	copy(dst, rx[4:])
	return nil
}

// ProgramPage writes up to PageSize bytes within a single page. It is an
// error for the write to cross a page boundary; callers that need to write
// more than one page use Write, which chunks correctly.
func (d *Device) ProgramPage(address uint32, data []byte) error {
	if len(data) == 0 || len(data) > PageSize {
		return &ArgumentError{Op: "ProgramPage", Msg: "data length must be 1..PageSize"}
	}
	if pageOffset := address % PageSize; pageOffset+uint32(len(data)) > PageSize {
		return &ArgumentError{Op: "ProgramPage", Msg: "write crosses a page boundary"}
	}

	if err := d.WriteEnable(); err != nil {
		return err
	}

	if err := func() error {
		g := d.selectChip()
		defer g.release()

		a := addr24(address)
		tx := make([]byte, 0, 4+len(data))
		tx = append(tx, opPageProgram, a[0], a[1], a[2])
		tx = append(tx, data...)
		if err := d.bus.Transfer(tx, nil); err != nil {
			return &TransportError{Op: "ProgramPage", Err: err}
		}
		return nil
	}(); err != nil {
		return err
	}

	return d.waitForWriteEnd("ProgramPage", BusyTimeout)
}

// Write programs an arbitrary-length buffer, chunking it into page-aligned
// ProgramPage calls exactly as the reference firmware's W25Q128_Write does:
// each chunk is clipped to the remaining space in the current page before
// falling back to whatever of the buffer remains.
func (d *Device) Write(address uint32, data []byte) error {
	remaining := data
	current := address
	for len(remaining) > 0 {
		pageOffset := current % PageSize
		writeLen := uint32(PageSize) - pageOffset
		if writeLen > uint32(len(remaining)) {
			writeLen = uint32(len(remaining))
		}
		if err := d.ProgramPage(current, remaining[:writeLen]); err != nil {
			return err
		}
		remaining = remaining[writeLen:]
		current += writeLen
	}
	return nil
}

func (d *Device) eraseCommand(op string, opcode byte, address uint32, timeout time.Duration) error {
	if err := d.WriteEnable(); err != nil {
		return err
	}

	if err := func() error {
		g := d.selectChip()
		defer g.release()

		a := addr24(address)
		if err := d.bus.Transfer([]byte{opcode, a[0], a[1], a[2]}, nil); err != nil {
			return &TransportError{Op: op, Err: err}
		}
		return nil
	}(); err != nil {
		return err
	}

	return d.waitForWriteEnd(op, timeout)
}

// EraseSector erases the 4 KiB sector containing address (opcode 0x20).
func (d *Device) EraseSector(address uint32) error {
	return d.eraseCommand("EraseSector", opSectorErase, address, BusyTimeout)
}

// EraseBlock32K erases the 32 KiB block containing address (opcode 0x52).
func (d *Device) EraseBlock32K(address uint32) error {
	return d.eraseCommand("EraseBlock32K", opBlockErase32K, address, BusyTimeout)
}

// EraseBlock64K erases the 64 KiB block containing address (opcode 0xD8).
func (d *Device) EraseBlock64K(address uint32) error {
	return d.eraseCommand("EraseBlock64K", opBlockErase64K, address, BusyTimeout)
}

// EraseChip erases the entire device (opcode 0xC7). Uses ChipEraseTimeout
// rather than BusyTimeout since a full-chip erase vastly outlasts any
// sector/block erase.
func (d *Device) EraseChip() error {
	if err := d.WriteEnable(); err != nil {
		return err
	}

	if err := func() error {
		g := d.selectChip()
		defer g.release()

		if err := d.bus.Transfer([]byte{opChipErase}, nil); err != nil {
			return &TransportError{Op: "EraseChip", Err: err}
		}
		return nil
	}(); err != nil {
		return err
	}

	return d.waitForWriteEnd("EraseChip", ChipEraseTimeout)
}

// EraseSuspend pauses an in-progress erase (opcode 0x75). Exposed for
// completeness with the reference driver; the bootloader wire protocol
// never issues it, since it never runs an erase concurrently with anything
// else that would need to interrupt it.
func (d *Device) EraseSuspend() error {
	g := d.selectChip()
	defer g.release()
	if err := d.bus.Transfer([]byte{opEraseSuspend}, nil); err != nil {
		return &TransportError{Op: "EraseSuspend", Err: err}
	}
	return nil
}

// EraseResume resumes a suspended erase (opcode 0x7A).
func (d *Device) EraseResume() error {
	g := d.selectChip()
	defer g.release()
	if err := d.bus.Transfer([]byte{opEraseResume}, nil); err != nil {
		return &TransportError{Op: "EraseResume", Err: err}
	}
	return nil
}

// PowerDown puts the device into its low-power state (opcode 0xB9).
func (d *Device) PowerDown() error {
	g := d.selectChip()
	defer g.release()
	if err := d.bus.Transfer([]byte{opPowerDown}, nil); err != nil {
		return &TransportError{Op: "PowerDown", Err: err}
	}
	return nil
}

// WakeUp releases the device from power-down (opcode 0xAB) and gives it a
// brief settle time before the next command, mirroring the reference
// firmware's WakeUp routine.
func (d *Device) WakeUp() error {
	g := d.selectChip()
	if err := d.bus.Transfer([]byte{opReleasePowerDown, 0, 0, 0}, nil); err != nil {
		g.release()
		return &TransportError{Op: "WakeUp", Err: err}
	}
	g.release()
	time.Sleep(1 * time.Millisecond)
	return nil
}

// waitForWriteEnd polls the status register until BUSY clears or timeout
// elapses. The status register is always read at least once before the
// deadline is checked, so a caller with an already-cleared BUSY bit never
// pays a full polling-interval penalty.
func (d *Device) waitForWriteEnd(op string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, err := d.ReadStatus()
		if err != nil {
			return err
		}
		if status&statusBUSY == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			glog.V(1).Infof("flash: %s timed out waiting for BUSY to clear", op)
			return &TimeoutError{Op: op, Elapsed: timeout.String()}
		}
		time.Sleep(time.Millisecond)
	}
}
