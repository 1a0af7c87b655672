package main

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/mem"
)

var readCmd = cli.Command{
	Name:  "read",
	Usage: "read bytes from the EEPROM",
	Flags: append([]cli.Flag{
		&cli.IntFlag{Name: "address", Aliases: []string{"a"}, Usage: "memory address to read", Required: true},
		&cli.IntFlag{Name: "length", Aliases: []string{"l"}, Usage: "number of bytes to read", Value: 16},
		&cli.BoolFlag{Name: "string", Aliases: []string{"s"}, Usage: "print the result as text instead of a hex dump"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		addr := c.Int("address")
		length := c.Int("length")
		if addr < 0 || addr >= mem.Capacity {
			return console.Exit(1, "address out of range: %d (0-%d)", addr, mem.Capacity-1)
		}
		if length <= 0 || addr+length > mem.Capacity {
			return console.Exit(1, "length out of range: %d", length)
		}
		bus, err := openBus(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		ctx, cancel := context.WithTimeout(console.SetVerbose(context.Background(), c.Bool("verbose")), 30*time.Second)
		defer cancel()
		dev := mem.NewMCP24LC32(bus)
		buf := make([]byte, length)
		err = dev.ReadBytes(ctx, uint16(addr), buf)
		if err != nil {
			return console.Exit(1, "read error: %s", console.Red(err))
		}
		if c.Bool("string") {
			console.Print(string(buf))
			return nil
		}
		console.Printf("%s", hex.Dump(buf))
		return nil
	},
}
