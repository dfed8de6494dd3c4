// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// th02 reads the temperature and relative humidity off a HopeRF TH02 sensor
// and prints them, one shot or continuously, optionally as an ANSI color
// gauge redrawn in place.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"
	"time"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/hoperf-sensors/th02"
)

// Display range of the temperature bar.
const (
	gaugeTempMin = -10.0
	gaugeTempMax = 50.0
)

// gauge renders a reading as two bars of ANSI color blocks on a single line,
// redrawn in place.
type gauge struct {
	w       io.Writer
	palette ansi256.Palette
	width   int

	buf bytes.Buffer
}

func newGauge() *gauge {
	return &gauge{
		w:       colorable.NewColorableStdout(),
		palette: *ansi256.Default,
		width:   30,
	}
}

func (g *gauge) render(env physic.Env) {
	t := float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Kelvin)
	h := float64(env.Humidity) / float64(physic.PercentRH)

	g.buf.Reset()
	_, _ = g.buf.WriteString("\r\033[0m")
	frac := (t - gaugeTempMin) / (gaugeTempMax - gaugeTempMin)
	g.bar(frac, tempColor(frac))
	fmt.Fprintf(&g.buf, "\033[0m %6.1f°C  ", t)
	g.bar(h/100, color.NRGBA{R: 0x30, G: 0x8c, B: 0xd7, A: 255})
	fmt.Fprintf(&g.buf, "\033[0m %5.1f%%RH ", h)
	_, _ = g.buf.WriteTo(g.w)
}

// bar draws a bar filled up to frac of its width.
func (g *gauge) bar(frac float64, c color.NRGBA) {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	fill := int(frac*float64(g.width) + 0.5)
	off := color.NRGBA{R: 0x28, G: 0x28, B: 0x28, A: 255}
	for i := 0; i < g.width; i++ {
		b := c
		if i >= fill {
			b = off
		}
		_, _ = io.WriteString(&g.buf, g.palette.Block(b))
	}
}

// done resets the terminal colors and moves off the gauge line.
func (g *gauge) done() {
	_, _ = g.w.Write([]byte("\n\033[0m"))
}

// tempColor fades from blue to red across the gauge range.
func tempColor(frac float64) color.NRGBA {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return color.NRGBA{R: uint8(40 + 215*frac), G: 0x20, B: uint8(255 - 215*frac), A: 255}
}

func mainImpl() error {
	busName := flag.String("bus", "", "I²C bus to use, the first available one by default")
	addr := flag.Uint("addr", uint(th02.DefaultAddress), "I²C address of the sensor")
	fast := flag.Bool("fast", false, "use the reduced accuracy fast conversion mode")
	heater := flag.Bool("heater", false, "keep the on-die heater enabled")
	watch := flag.Bool("watch", false, "read continuously instead of once")
	useGauge := flag.Bool("gauge", false, "render continuous readings as a color gauge")
	interval := flag.Duration("interval", 2*time.Second, "delay between continuous readings")
	n := flag.Int("n", 0, "number of continuous readings to take, 0 for no limit")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(*busName)
	if err != nil {
		return err
	}
	defer bus.Close()

	dev, err := th02.NewI2C(bus, uint16(*addr), &th02.Opts{Fast: *fast, Heater: *heater})
	if err != nil {
		return err
	}

	if !*watch && !*useGauge {
		env := physic.Env{}
		if err := dev.Sense(&env); err != nil {
			return err
		}
		fmt.Printf("%8s %9s\n", env.Temperature, env.Humidity)
		return nil
	}

	ch, err := dev.SenseContinuous(*interval)
	if err != nil {
		return err
	}
	var g *gauge
	if *useGauge {
		g = newGauge()
		defer g.done()
	}
	read := 0
	for env := range ch {
		if g != nil {
			g.render(env)
		} else {
			fmt.Printf("%s: %8s %9s\n", time.Now().Format("15:04:05"), env.Temperature, env.Humidity)
		}
		read++
		if *n > 0 && read == *n {
			if err := dev.Halt(); err != nil {
				return err
			}
		}
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "th02: %s.\n", err)
		os.Exit(1)
	}
}
