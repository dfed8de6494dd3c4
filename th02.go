// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package th02

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the I²C address of the TH02. It is fixed, the part has no
// address pins.
const DefaultAddress uint16 = 0x40

// UndefinedValue is returned by ReadConversionResult and CompensatedHumidity
// when no value could be produced. It is outside the range either measurement
// can reach.
const UndefinedValue int16 = 12345

// Values reported by LastRawTemperature and LastRawHumidity before the first
// successful conversion of their kind. Neither is reachable by a decoded
// reading.
const (
	UninitializedTemperature int32 = 55555
	UninitializedHumidity    int32 = 1111
)

// ConversionTimeout is the number of millisecond status polls
// WaitForConversion performs before giving up. A returned tick count at or
// above it means the sensor never reported ready.
const ConversionTimeout = 50

// ErrNoHumidity is returned by CompensatedHumidity when no humidity
// conversion has completed since the device was opened.
var ErrNoHumidity = errors.New("th02: no humidity conversion has completed")

// ErrTimeout is returned by Sense when a conversion does not finish within
// the polling window.
var ErrTimeout = errors.New("th02: conversion timed out")

// Humidity linearity and temperature compensation coefficients from the
// datasheet, section 5.1.
const (
	coefA0 = -4.7844
	coefA1 = 0.4008
	coefA2 = -0.00393
	coefQ0 = 0.1973
	coefQ1 = 0.00237
)

// Opts holds the conversion options used by Sense and SenseContinuous.
type Opts struct {
	// Fast selects the reduced accuracy fast conversion mode.
	Fast bool
	// Heater enables the on-die heater during conversions. The bit is
	// sticky: once set it stays on until a conversion is started with
	// Heater false.
	Heater bool
}

// DefaultOpts is normal accuracy with the heater off.
var DefaultOpts = Opts{}

// Dev is a handle to a TH02 sensor.
//
// The sensor accepts one conversion at a time. Starting a conversion while
// another is in flight is undefined by the sensor firmware; the driver does
// not police it.
type Dev struct {
	d    *i2c.Dev
	opts Opts

	mu       sync.Mutex
	lastTemp int32 // centi-°C, UninitializedTemperature until first decode
	lastRH   int32 // centi-%RH, UninitializedHumidity until first decode
	shutdown chan struct{}
}

// NewI2C returns a handle to a TH02 on the given bus. Pass nil opts for
// DefaultOpts. The ID register is read back and the handle is refused if the
// part is not a TH02.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		d:        &i2c.Dev{Bus: b, Addr: addr},
		opts:     *opts,
		lastTemp: UninitializedTemperature,
		lastRH:   UninitializedHumidity,
	}
	id, err := d.readRegister(regID)
	if err != nil {
		return nil, err
	}
	if id>>4 != familyTH02 {
		return nil, fmt.Errorf("th02: unexpected device ID 0x%02x", id)
	}
	return d, nil
}

// StartTemperatureConversion requests a temperature measurement. The result
// is collected with WaitForConversion followed by ReadConversionResult.
func (d *Dev) StartTemperatureConversion(fast, heater bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startConversion(true, fast, heater)
}

// StartHumidityConversion requests a relative humidity measurement.
func (d *Dev) StartHumidityConversion(fast, heater bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startConversion(false, fast, heater)
}

// WaitForConversion polls the status register once per millisecond until the
// busy bit clears or ConversionTimeout ticks elapsed. It returns the number
// of ticks waited; a count at or above ConversionTimeout means the
// conversion never finished and the data registers hold nothing useful.
//
// The wait blocks the calling goroutine. A caller needing cancellation
// should poll Converting on its own schedule instead.
func (d *Dev) WaitForConversion() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waitForConversion()
}

// ReadConversionResult collects the measurement started by one of the Start
// calls and returns it in deci-units: tenths of a °C or tenths of a %RH. The
// configuration register, not the caller, decides which of the two the data
// registers hold.
//
// On a failed register read it returns UndefinedValue and the bus error, and
// the value retained for the raw accessors is not touched.
func (d *Dev) ReadConversionResult() (int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readConversion()
}

// CompensatedHumidity returns the last humidity reading with the datasheet
// linearity and temperature corrections applied. With round, the value is in
// deci-%RH rounded half away from zero; without, in centi-%RH. It performs
// no bus traffic.
//
// The temperature correction uses the last temperature reading and is
// skipped when none was taken.
func (d *Dev) CompensatedHumidity(round bool) (int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.compensatedHumidity(round)
}

// LastRawTemperature returns the last decoded temperature in centi-°C, or
// UninitializedTemperature. It performs no bus traffic.
func (d *Dev) LastRawTemperature() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTemp
}

// LastRawHumidity returns the last decoded relative humidity in centi-%RH,
// or UninitializedHumidity. It performs no bus traffic.
func (d *Dev) LastRawHumidity() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRH
}

// DeviceID returns the ID register. The high nibble is the part family, 0x5
// for the TH02.
func (d *Dev) DeviceID() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRegister(regID)
}

// Status returns the status register.
func (d *Dev) Status() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRegister(regStatus)
}

// Converting reports whether a conversion is still running. A failed status
// read reports busy, the same fail-safe WaitForConversion applies.
func (d *Dev) Converting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.converting()
}

// Heater reports whether the on-die heater is enabled. The bit survives
// conversions, so reading it back is the only way to know.
func (d *Dev) Heater() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, err := d.readRegister(regConfig)
	if err != nil {
		return false, err
	}
	return cfg&configHeat != 0, nil
}

// Sense runs a temperature conversion followed by a humidity conversion,
// using the Opts the handle was opened with, and reports the compensated
// values. It blocks for the duration of both conversions, typically under
// 100ms.
func (d *Dev) Sense(env *physic.Env) error {
	env.Temperature = 0
	env.Pressure = 0
	env.Humidity = 0

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.measure(true); err != nil {
		return err
	}
	if err := d.measure(false); err != nil {
		return err
	}
	rh, err := d.compensatedHumidity(false)
	if err != nil {
		return err
	}
	env.Temperature = physic.ZeroCelsius + physic.Temperature(d.lastTemp)*10*physic.MilliKelvin
	env.Humidity = physic.RelativeHumidity(rh) * 100 * physic.MicroRH
	return nil
}

// SenseContinuous returns a channel that delivers a reading every interval.
// The minimum interval is 250ms, twice the worst case of a full conversion
// pair. Call Halt to stop it.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < 250*time.Millisecond {
		return nil, errors.New("th02: invalid interval. minimum 250ms")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		return nil, errors.New("th02: sense continuous already running")
	}

	shutdown := make(chan struct{})
	d.shutdown = shutdown
	ch := make(chan physic.Env, 16)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-shutdown:
				close(ch)
				return
			case <-ticker.C:
				e := physic.Env{}
				if err := d.Sense(&e); err == nil {
					ch <- e
				}
			}
		}
	}()
	return ch, nil
}

// Precision returns the step size of the two measured quantities.
func (d *Dev) Precision(env *physic.Env) {
	env.Temperature = 31250 * physic.MicroKelvin
	env.Pressure = 0
	env.Humidity = 625 * physic.MicroRH
}

// Halt interrupts a running SenseContinuous.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		close(d.shutdown)
		d.shutdown = nil
	}
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("th02: %s", d.d)
}

// measure runs one full conversion cycle and updates the retained value.
func (d *Dev) measure(temp bool) error {
	if err := d.startConversion(temp, d.opts.Fast, d.opts.Heater); err != nil {
		return err
	}
	if d.waitForConversion() >= ConversionTimeout {
		return ErrTimeout
	}
	_, err := d.readConversion()
	return err
}

// startConversion composes the configuration byte and writes it. On a failed
// write no conversion is running.
func (d *Dev) startConversion(temp, fast, heater bool) error {
	cfg := configStart
	if temp {
		cfg |= configTemp
	}
	if fast {
		cfg |= configFast
	}
	if heater {
		cfg |= configHeat
	}
	return d.writeRegister(regConfig, cfg)
}

// converting reports the status busy bit. A failed status read counts as
// busy.
func (d *Dev) converting() bool {
	status, err := d.readRegister(regStatus)
	if err != nil {
		return true
	}
	return status&statusBusy != 0
}

func (d *Dev) waitForConversion() int {
	elapsed := 0
	for d.converting() && elapsed <= ConversionTimeout {
		elapsed++
		time.Sleep(time.Millisecond)
	}
	return elapsed
}

// readConversion reads the data registers, then the configuration register
// to classify what they hold, and updates exactly one retained value. Either
// read failing leaves the retained state alone.
func (d *Dev) readConversion() (int16, error) {
	raw, err := d.readData()
	if err != nil {
		return UndefinedValue, err
	}
	cfg, err := d.readRegister(regConfig)
	if err != nil {
		return UndefinedValue, err
	}
	var value int32
	if cfg&configTemp != 0 {
		value = countToTemperature(raw)
		d.lastTemp = value
	} else {
		value = countToHumidity(raw)
		d.lastRH = value
	}
	return roundNearest(float64(value) / 10.0), nil
}

func (d *Dev) compensatedHumidity(round bool) (int16, error) {
	if d.lastRH == UninitializedHumidity {
		return UndefinedValue, ErrNoHumidity
	}
	h := float64(d.lastRH) / 100.0
	linear := h - (coefA2*h*h + coefA1*h + coefA0)
	corrected := linear
	if d.lastTemp != UninitializedTemperature {
		corrected = linear + (float64(d.lastTemp)/100.0-30.0)*(coefQ1*linear+coefQ0)
	}
	result := corrected * 100
	if round {
		return roundNearest(result / 10.0), nil
	}
	// int16 truncation, not rounding: the centi path is kept bit compatible
	// with the vendor library, which only rounds the deci path.
	return int16(result), nil
}

// countToTemperature converts a raw temperature word to centi-°C. The result
// is 14 bits left justified, the 2 low bits are padding.
func countToTemperature(raw uint16) int32 {
	value := int32(raw)
	value >>= 2
	value = value * 100 / 32
	// Readings mapping below the 5000 offset fold positive instead of
	// extending below zero; the vendor curve is discontinuous there.
	if value >= 5000 {
		value -= 5000
	} else {
		value = -(value - 5000)
	}
	return value
}

// countToHumidity converts a raw humidity word to centi-%RH. The result is
// 12 bits left justified, the 4 low bits are padding.
func countToHumidity(raw uint16) int32 {
	value := int32(raw)
	value >>= 4
	value = value*100/16 - 2400
	return value
}

// roundNearest rounds half away from zero.
func roundNearest(v float64) int16 {
	if v >= 0 {
		return int16(math.Floor(v + 0.5))
	}
	return int16(math.Ceil(v - 0.5))
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
