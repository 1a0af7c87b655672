package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/mem"
)

// Record is a single roster entry stored at a fixed memory offset.
type Record struct {
	Name   string `yaml:"name"`
	Offset uint16 `yaml:"offset"`
	Text   string `yaml:"text"`
}

var defaultRoster = []Record{
	{
		Name:   "banner",
		Offset: 250,
		Text: "Please press SW2 to get student info\n" +
			"~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~\n",
	},
	{Name: "member1", Offset: 330, Text: "Student 1: Kevin Wilson\n"},
	{Name: "member2", Offset: 410, Text: "Student 2: Haosong Ma\n"},
	{Name: "team", Offset: 490, Text: "Team number: 13\n"},
}

var rosterCmd = cli.Command{
	Name:  "roster",
	Usage: "store and print the team roster records",
	Subcommands: cli.Commands{
		&rosterWriteCmd,
		&rosterReadCmd,
	},
}

var rosterWriteCmd = cli.Command{
	Name:  "write",
	Usage: "write roster records and read each one back",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "YAML roster file (uses built-in records when absent)"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		records, err := loadRoster(c.String("file"))
		if err != nil {
			return console.Exit(1, "roster error: %s", console.Red(err))
		}
		bus, err := openBus(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		ctx, cancel := context.WithTimeout(console.SetVerbose(context.Background(), c.Bool("verbose")), 2*time.Minute)
		defer cancel()
		dev := mem.NewMCP24LC32(bus)
		for _, rec := range records {
			err = dev.WriteBytes(ctx, rec.Offset, []byte(rec.Text))
			if err != nil {
				return console.Exit(1, "could not write record %s: %s", rec.Name, console.Red(err))
			}
			buf := make([]byte, len(rec.Text))
			err = dev.ReadBytes(ctx, rec.Offset, buf)
			if err != nil {
				return console.Exit(1, "could not read record %s back: %s", rec.Name, console.Red(err))
			}
			console.Printf("%s", string(buf))
		}
		console.PInfof(console.PictoFinish, "%d records stored", len(records))
		return nil
	},
}

var rosterReadCmd = cli.Command{
	Name:  "read",
	Usage: "print the roster records stored in memory",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "YAML roster file (uses built-in offsets when absent)"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		records, err := loadRoster(c.String("file"))
		if err != nil {
			return console.Exit(1, "roster error: %s", console.Red(err))
		}
		bus, err := openBus(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		ctx, cancel := context.WithTimeout(console.SetVerbose(context.Background(), c.Bool("verbose")), 2*time.Minute)
		defer cancel()
		dev := mem.NewMCP24LC32(bus)
		for _, rec := range records {
			buf := make([]byte, len(rec.Text))
			err = dev.ReadBytes(ctx, rec.Offset, buf)
			if err != nil {
				return console.Exit(1, "could not read record %s: %s", rec.Name, console.Red(err))
			}
			console.Printf("%s", string(buf))
		}
		return nil
	},
}

func loadRoster(path string) ([]Record, error) {
	if path == "" {
		return defaultRoster, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read roster file: %w", err)
	}
	var records []Record
	err = yaml.Unmarshal(raw, &records)
	if err != nil {
		return nil, fmt.Errorf("could not parse roster file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("roster file has no records")
	}
	for _, rec := range records {
		if int(rec.Offset)+len(rec.Text) > mem.Capacity {
			return nil, fmt.Errorf("record %s does not fit at offset %d", rec.Name, rec.Offset)
		}
	}
	return records, nil
}
