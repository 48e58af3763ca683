package bootproto

import "time"

// Wire framing constants, unchanged from the reference firmware.
const (
	startMarker1 = 0xAA
	startMarker2 = 0x55

	ack  = 0x79
	nack = 0x1F
)

// Command opcodes.
const (
	CmdWrite        = 0x01
	CmdRead         = 0x02
	CmdEraseSector  = 0x03
	CmdEraseChip    = 0x04
	CmdGetInfo      = 0x05
	CmdVerify       = 0x06
)

// MaxPayload is the largest WRITE/READ/VERIFY data length accepted in a
// single command, matching the reference firmware's BOOT_MAX_DATA_SIZE.
const MaxPayload = 4096

// chunkSize is how many bytes the engine reads at a time while draining a
// WRITE payload into the shared buffer, matching BOOT_BUFFER_SIZE.
const chunkSize = 256

// CmdTimeout bounds every framed receive after the initial start marker.
const CmdTimeout = 5 * time.Second

// infoRecordSize is the length of the GET_INFO response payload: 1 + 1 + 3
// + 4 + 2 + 2 bytes.
const infoRecordSize = 13
