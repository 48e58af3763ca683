package flash

// VariantInfo describes the fixed geometry and identity of a supported
// Winbond NOR flash part. GET_INFO serializes its TotalSize, PageSize and
// SectorSize onto the wire; the identity bytes in that response come from
// live ReadID/ReadJEDECID queries, not from this descriptor.
type VariantInfo struct {
	Name           string
	ManufacturerID byte
	DeviceID       byte
	JEDECID        [3]byte
	TotalSize      uint32
	PageSize       uint16
	SectorSize     uint16
	BlockSize      uint32
}

// W25Q64 describes the Winbond W25Q64 8 MiB part.
var W25Q64 = VariantInfo{
	Name:           "W25Q64",
	ManufacturerID: 0xEF,
	DeviceID:       0x16,
	JEDECID:        [3]byte{0xEF, 0x40, 0x17},
	TotalSize:      8 * 1024 * 1024,
	PageSize:       PageSize,
	SectorSize:     SectorSize,
	BlockSize:      BlockSize,
}

// W25Q128 describes the Winbond W25Q128 16 MiB part.
var W25Q128 = VariantInfo{
	Name:           "W25Q128",
	ManufacturerID: 0xEF,
	DeviceID:       0x17,
	JEDECID:        [3]byte{0xEF, 0x40, 0x18},
	TotalSize:      16 * 1024 * 1024,
	PageSize:       PageSize,
	SectorSize:     SectorSize,
	BlockSize:      BlockSize,
}
