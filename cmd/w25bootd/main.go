// Command w25bootd runs the UART bootloader core against a real serial
// port and SPI-attached W25Q flash device.
package main

import (
	"os"

	"github.com/golang/glog"
)

func main() {
	defer glog.Flush()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
