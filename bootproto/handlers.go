package bootproto

import "github.com/w25boot/uartflash/crc16"

// handleWrite implements the WRITE command. The length field is validated
// before the address bytes are ever read off the wire: an oversize or zero
// length NACKs immediately rather than consuming (and discarding) the
// address that follows it, so a host that sends a bad length can resync
// with a single 3-byte marker/command re-send instead of guessing how much
// of its own frame the target already swallowed.
func (s *Session) handleWrite() {
	var lenBuf [4]byte
	if err := s.serial.Recv(lenBuf[:], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return
	}
	length := le32(lenBuf[:])
	if length == 0 || length > MaxPayload {
		s.nack(reasonArgument)
		return
	}

	var addrBuf [4]byte
	if err := s.serial.Recv(addrBuf[:], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return
	}
	address := le32(addrBuf[:])

	if err := s.recvChunked(s.payload[:length]); err != nil {
		s.nack(reasonTimeout)
		return
	}

	var crcBuf [2]byte
	if err := s.serial.Recv(crcBuf[:], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return
	}
	wantCRC := le16(crcBuf[:])
	gotCRC := crc16.Sum(s.payload[:length])
	if gotCRC != wantCRC {
		s.nack(reasonCRC)
		return
	}

	if err := s.dev.Write(address, s.payload[:length]); err != nil {
		s.nack(reasonFlash)
		return
	}

	s.TotalBytesWritten += uint64(length)
	s.ack()
}

// handleRead implements the READ command: ACK, then the data, then a
// CRC-16 computed over the data just sent, so the host can detect wire
// corruption on the response the same way the target detects it on WRITE.
func (s *Session) handleRead() {
	var lenBuf, addrBuf [4]byte
	if err := s.serial.Recv(lenBuf[:], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return
	}
	length := le32(lenBuf[:])
	if length == 0 || length > MaxPayload {
		s.nack(reasonArgument)
		return
	}
	if err := s.serial.Recv(addrBuf[:], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return
	}
	address := le32(addrBuf[:])

	if err := s.dev.Read(address, s.payload[:length]); err != nil {
		s.nack(reasonFlash)
		return
	}

	s.ack()
	if err := s.serial.Send(s.payload[:length]); err != nil {
		return
	}
	crc := crc16.Sum(s.payload[:length])
	var crcBuf [2]byte
	putLE16(crcBuf[:], crc)
	_ = s.serial.Send(crcBuf[:])

	s.TotalBytesRead += uint64(length)
}

// handleVerify implements VERIFY: the host supplies a length, address, and
// the CRC-16 it expects that range of flash to contain, and the target
// reads the range itself and reports match/mismatch without ever putting
// the data back on the wire.
func (s *Session) handleVerify() {
	var lenBuf, addrBuf, crcBuf [4]byte
	if err := s.serial.Recv(lenBuf[:], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return
	}
	length := le32(lenBuf[:])
	if length == 0 || length > MaxPayload {
		s.nack(reasonArgument)
		return
	}
	if err := s.serial.Recv(addrBuf[:], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return
	}
	address := le32(addrBuf[:])

	if err := s.serial.Recv(crcBuf[:2], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return
	}
	wantCRC := le16(crcBuf[:2])

	if err := s.dev.Read(address, s.payload[:length]); err != nil {
		s.nack(reasonFlash)
		return
	}

	gotCRC := crc16.Sum(s.payload[:length])
	if gotCRC != wantCRC {
		s.nack(reasonCRC)
		return
	}
	s.ack()
}

// handleEraseSector implements ERASE_SECTOR: a single 4-byte address
// identifying any byte within the target sector.
func (s *Session) handleEraseSector() {
	var addrBuf [4]byte
	if err := s.serial.Recv(addrBuf[:], CmdTimeout); err != nil {
		s.nack(reasonTimeout)
		return
	}
	address := le32(addrBuf[:])

	if err := s.dev.EraseSector(address); err != nil {
		s.nack(reasonFlash)
		return
	}
	s.ack()
}

// handleEraseChip implements ERASE_CHIP. No arguments; the flash layer
// applies its own extended timeout for a full-chip erase.
func (s *Session) handleEraseChip() {
	if err := s.dev.EraseChip(); err != nil {
		s.nack(reasonFlash)
		return
	}
	s.ack()
}

// handleGetInfo implements GET_INFO: query the live chip for its
// manufacturer/device ID and JEDEC ID, NACK on any SPI failure, then ACK
// followed by a fixed 13-byte record combining those live-read identity
// bytes with the configured variant's geometry.
func (s *Session) handleGetInfo() {
	manufacturer, device, err := s.dev.ReadID()
	if err != nil {
		s.nack(reasonFlash)
		return
	}
	jedec, err := s.dev.ReadJEDECID()
	if err != nil {
		s.nack(reasonFlash)
		return
	}

	v := s.dev.Variant()

	var info [infoRecordSize]byte
	info[0] = manufacturer
	info[1] = device
	info[2], info[3], info[4] = jedec[0], jedec[1], jedec[2]
	putLE32(info[5:9], v.TotalSize)
	putLE16(info[9:11], v.PageSize)
	putLE16(info[11:13], v.SectorSize)

	s.ack()
	_ = s.serial.Send(info[:])
}
