package main

import (
	"flag"
	"fmt"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/adaptors"
	"gobot.io/x/gobot/v2/system"

	"github.com/w25boot/uartflash/bootproto"
	"github.com/w25boot/uartflash/flash"
	"github.com/w25boot/uartflash/transport/spibus"
	"github.com/w25boot/uartflash/transport/uart"
)

const (
	defaultSpiBusNumber  = 0
	defaultSpiChipNumber = 0
	defaultSpiMode       = 0
	defaultSpiBitsNumber = 8
	defaultSpiMaxSpeed   = 500000
)

func validateSpiBusNumber(busNumber int) error {
	if busNumber < 0 {
		return fmt.Errorf("w25bootd: invalid SPI bus number %d", busNumber)
	}
	return nil
}

var opts struct {
	port     string
	baud     int
	spiBus   string
	spiCS    int
	variant  string
}

var rootCmd = &cobra.Command{
	Use:   "w25bootd",
	Short: "UART-driven bootloader core for Winbond W25Q NOR flash",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.port, "port", "/dev/ttyUSB0", "serial port device")
	rootCmd.PersistentFlags().IntVar(&opts.baud, "baud", uart.DefaultBaudRate, "serial baud rate")
	rootCmd.PersistentFlags().StringVar(&opts.spiBus, "spi-bus", "0", "SPI bus identifier")
	rootCmd.PersistentFlags().IntVar(&opts.spiCS, "spi-cs", 0, "SPI chip-select line")
	rootCmd.PersistentFlags().StringVar(&opts.variant, "variant", "w25q128", "flash variant: w25q64 or w25q128")

	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func runServe(cmd *cobra.Command, args []string) error {
	variant, err := lookupVariant(opts.variant)
	if err != nil {
		color.Red("w25bootd: %v", err)
		return err
	}

	port, err := uart.Open(uart.Config{Name: opts.port, BaudRate: opts.baud})
	if err != nil {
		color.Red("w25bootd: %v", err)
		return err
	}
	defer port.Close()

	sys := system.NewAccesser()
	adaptor := adaptors.NewSpiBusAdaptor(sys, validateSpiBusNumber, defaultSpiBusNumber, defaultSpiChipNumber,
		defaultSpiMode, defaultSpiBitsNumber, defaultSpiMaxSpeed)
	driver := spi.NewDriver(adaptor, opts.spiBus)
	if err := driver.Start(); err != nil {
		color.Red("w25bootd: spi start: %v", err)
		return err
	}
	defer driver.Halt()

	bus := spibus.NewBus(driver)
	dev := flash.New(bus, spibus.ChipSelect{}, variant)
	if err := dev.Init(); err != nil {
		color.Red("w25bootd: flash init: %v", err)
		return err
	}

	color.Green("w25bootd: ready on %s @ %d baud, variant %s", opts.port, opts.baud, variant.Name)
	glog.Infof("w25bootd: serving %s over %s", variant.Name, opts.port)

	session := bootproto.NewSession(port, dev)
	if err := session.Run(); err != nil {
		glog.Warningf("w25bootd: session ended: %v", err)
		return err
	}
	return nil
}

func lookupVariant(name string) (flash.VariantInfo, error) {
	switch name {
	case "w25q64":
		return flash.W25Q64, nil
	case "w25q128":
		return flash.W25Q128, nil
	default:
		return flash.VariantInfo{}, fmt.Errorf("unknown flash variant %q", name)
	}
}
