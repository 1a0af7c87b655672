package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/mem"
)

var writeCmd = cli.Command{
	Name:  "write",
	Usage: "write bytes to the EEPROM",
	Flags: append([]cli.Flag{
		&cli.IntFlag{Name: "address", Aliases: []string{"a"}, Usage: "memory address to write", Required: true},
		&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "hex bytes to write (e.g. '01FF23')"},
		&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "text to write (exclusive with --data)"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the confirmation prompt"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		addr := c.Int("address")
		if addr < 0 || addr >= mem.Capacity {
			return console.Exit(1, "address out of range: %d (0-%d)", addr, mem.Capacity-1)
		}
		var data []byte
		switch {
		case c.IsSet("data") && c.IsSet("text"):
			return console.Exit(1, "--data and --text are exclusive")
		case c.IsSet("data"):
			var err error
			data, err = hex.DecodeString(c.String("data"))
			if err != nil {
				return console.Exit(1, "could not decode data: %v", err)
			}
		case c.IsSet("text"):
			data = []byte(c.String("text"))
		default:
			return console.Exit(1, "either --data or --text is required")
		}
		if len(data) == 0 || addr+len(data) > mem.Capacity {
			return console.Exit(1, "data does not fit at %#04x: %d bytes", addr, len(data))
		}
		if !c.Bool("yes") {
			answer, err := console.YesOrNo(console.Bold("write ") + console.White(len(data)) + console.Bold(" bytes at ") + console.White(addr) + console.Bold("?"))
			if err != nil {
				return console.Exit(1, "prompt error: %v", err)
			}
			if answer != console.Yes {
				console.Info("aborted")
				return nil
			}
		}
		bus, err := openBus(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		ctx, cancel := context.WithTimeout(console.SetVerbose(context.Background(), c.Bool("verbose")), 30*time.Second)
		defer cancel()
		dev := mem.NewMCP24LC32(bus)
		err = dev.WriteBytes(ctx, uint16(addr), data)
		if err != nil {
			return console.Exit(1, "write error: %s", console.Red(err))
		}
		readback := make([]byte, len(data))
		err = dev.ReadBytes(ctx, uint16(addr), readback)
		if err != nil {
			return console.Exit(1, "verification read error: %s", console.Red(err))
		}
		if !bytes.Equal(data, readback) {
			return console.Exit(1, "verification failed: read back %s", console.Red(hex.EncodeToString(readback)))
		}
		console.PInfof(console.PictoChip, "wrote and verified %d bytes at %#04x", len(data), addr)
		return nil
	},
}
