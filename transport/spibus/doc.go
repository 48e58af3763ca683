// Package spibus provides concrete flash.SPIBus/flash.ChipSelect backings.
// Two implementations exist behind build tags, following the same split
// the rest of the pack uses to keep one source tree buildable both for a
// bare-metal MCU target and for host/bench testing on Linux:
//
//   - linux.go (!tinygo): a Linux sysfs SPI backing via
//     gobot.io/x/gobot/v2/drivers/spi, for running this core on an
//     SPI-capable single-board Linux host talking to a real W25Q part.
//   - tinygo.go (tinygo): a bare-metal backing over the TinyGo toolchain's
//     machine package, for flashing the firmware core itself onto an MCU.
package spibus
