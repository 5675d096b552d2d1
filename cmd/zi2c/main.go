// Copyright (c) 2020 omSquare s.r.o.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command zi2c drives an I2C bus as a software master via stdin/stdout.
// Without pin flags it runs against a built-in simulated memory slave;
// with --sda and --scl it bit-bangs real GPIO pins.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/omSquare/zen-i2c/pkg/zi2c"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const exitIOErr = 74

func main() {
	app := cli.NewApp()
	app.Name = "zi2c"
	app.Usage = "software I2C bus master"
	app.Version = zi2c.Version

	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "freq, f", Value: 400000, Usage: "bus frequency in `HZ`"},
		cli.IntFlag{Name: "retries, r", Value: zi2c.DefaultRetries, Usage: "NACK retries per transaction"},
		cli.BoolFlag{Name: "silent", Usage: "legacy mode: report NACK exhaustion only in the log"},
		cli.StringFlag{Name: "sda", Usage: "SDA GPIO pin `NAME` (hardware mode)"},
		cli.StringFlag{Name: "scl", Usage: "SCL GPIO pin `NAME` (hardware mode)"},
		cli.IntFlag{Name: "slave", Value: 0x50, Usage: "simulated slave `ADDR`"},
		cli.IntFlag{Name: "mem", Value: 256, Usage: "simulated slave memory `SIZE`"},
		cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitIOErr)
	}
}

func run(c *cli.Context) error {
	log.SetFormatter(&log.TextFormatter{DisableColors: true})
	log.SetOutput(os.Stderr)
	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	zi2c.SetLogger(log.StandardLogger())

	cfg, err := setup(c)
	if err != nil {
		return err
	}

	m, err := zi2c.New(cfg)
	if err != nil {
		return err
	}

	proto := NewProtocol(os.Stdin, os.Stdout)
	proto.WriteVersion(zi2c.Version)

	ctx := context.Background()

	for {
		cmd, err := proto.Read()
		if err == io.EOF {
			return m.Stop(ctx)
		}
		if err != nil {
			return err
		}

		if err := process(ctx, m, proto, cmd); err != nil {
			return err
		}
	}
}

// setup builds the master configuration for either mode.
func setup(c *cli.Context) (zi2c.Config, error) {
	freq := physic.Frequency(c.Int("freq")) * physic.Hertz

	sda, scl := c.String("sda"), c.String("scl")
	if sda != "" || scl != "" {
		return hardware(c, sda, scl, freq)
	}

	// simulation mode with a built-in memory slave
	sim := zi2c.NewSim()
	sdaWire, sclWire := sim.Wire("SDA"), sim.Wire("SCL")

	slave := zi2c.NewSlave(sim, sdaWire, sclWire, uint8(c.Int("slave")))
	slave.Mem = make([]byte, c.Int("mem"))

	return zi2c.Config{
		SDA:     sdaWire.Pin(),
		SCL:     sclWire.Pin(),
		Freq:    freq,
		Retries: c.Int("retries"),
		Silent:  c.Bool("silent"),
		Clock:   sim,
	}, nil
}

func hardware(c *cli.Context, sda, scl string, freq physic.Frequency) (zi2c.Config, error) {
	if sda == "" || scl == "" {
		return zi2c.Config{}, errors.New("hardware mode needs both --sda and --scl")
	}

	if _, err := host.Init(); err != nil {
		return zi2c.Config{}, errors.Wrap(err, "initializing periph host")
	}

	sdaPin := gpioreg.ByName(sda)
	if sdaPin == nil {
		return zi2c.Config{}, errors.Errorf("no such GPIO pin %q", sda)
	}

	sclPin := gpioreg.ByName(scl)
	if sclPin == nil {
		return zi2c.Config{}, errors.Errorf("no such GPIO pin %q", scl)
	}

	return zi2c.Config{
		SDA:     zi2c.PinLine(sdaPin),
		SCL:     zi2c.PinLine(sclPin),
		Freq:    freq,
		Retries: c.Int("retries"),
		Silent:  c.Bool("silent"),
	}, nil
}

func process(ctx context.Context, m *zi2c.Master, proto *Protocol, cmd Command) error {
	switch cmd.Type {
	case CmdReset:
		if err := m.Stop(ctx); err != nil {
			return err
		}
		proto.WriteOK()

	case CmdWrite:
		err := m.Write(ctx, cmd.Addr, cmd.Data)
		if stopErr := m.Stop(ctx); err == nil {
			err = stopErr
		}
		return report(proto, err, func() { proto.WriteOK() })

	case CmdRead:
		data, err := m.Read(ctx, cmd.Addr, cmd.Count)
		if stopErr := m.Stop(ctx); err == nil {
			err = stopErr
		}
		return report(proto, err, func() { proto.WriteData(data) })
	}

	return nil
}

// report answers NAK for exhausted transactions and propagates real
// failures; ok runs on success.
func report(proto *Protocol, err error, ok func()) error {
	var ex *zi2c.ExhaustedError
	switch {
	case err == nil:
		ok()
	case errors.As(err, &ex):
		proto.WriteNak()
	default:
		return err
	}
	return nil
}
