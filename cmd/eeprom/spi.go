package main

import (
	"encoding/hex"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	spimem "github.com/mklimuk/eeprom/memory/25aa1024"
)

var spiCmd = cli.Command{
	Name:  "spi",
	Usage: "25AA1024 SPI EEPROM access",
	Subcommands: cli.Commands{
		&spiReadCmd,
		&spiWriteCmd,
	},
}

var spiReadCmd = cli.Command{
	Name:  "read",
	Usage: "read bytes from the SPI EEPROM",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "address", Aliases: []string{"a"}, Usage: "memory address to read", Required: true},
		&cli.IntFlag{Name: "length", Aliases: []string{"l"}, Usage: "number of bytes to read", Value: 16},
	},
	Action: func(c *cli.Context) error {
		addr := c.Int("address")
		length := c.Int("length")
		if addr < 0 || addr+length > spimem.Capacity {
			return console.Exit(1, "read of %d bytes at %#05x out of range", length, addr)
		}
		dev := spimem.New(nanopi.NewNeoAdaptor(), "spi")
		err := dev.Start()
		if err != nil {
			return console.Exit(1, "SPI device start error: %s", console.Red(err))
		}
		defer func() { _ = dev.Halt() }()
		data, err := dev.Read(uint32(addr), length)
		if err != nil {
			return console.Exit(1, "read error: %s", console.Red(err))
		}
		console.Printf("%s", hex.Dump(data))
		return nil
	},
}

var spiWriteCmd = cli.Command{
	Name:  "write",
	Usage: "write bytes to the SPI EEPROM",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "address", Aliases: []string{"a"}, Usage: "memory address to write", Required: true},
		&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "hex bytes to write (e.g. '01FF23')", Required: true},
	},
	Action: func(c *cli.Context) error {
		addr := c.Int("address")
		data, err := hex.DecodeString(c.String("data"))
		if err != nil {
			return console.Exit(1, "could not decode data: %v", err)
		}
		if addr < 0 || addr+len(data) > spimem.Capacity {
			return console.Exit(1, "write of %d bytes at %#05x out of range", len(data), addr)
		}
		dev := spimem.New(nanopi.NewNeoAdaptor(), "spi")
		err = dev.Start()
		if err != nil {
			return console.Exit(1, "SPI device start error: %s", console.Red(err))
		}
		defer func() { _ = dev.Halt() }()
		err = dev.Write(uint32(addr), data)
		if err != nil {
			return console.Exit(1, "write error: %s", console.Red(err))
		}
		console.PInfof(console.PictoChip, "wrote %d bytes at %#05x", len(data), addr)
		return nil
	},
}
