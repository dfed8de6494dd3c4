// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package th02

import "fmt"

// Register map of the TH02.
const (
	regStatus byte = 0x00
	regDataH  byte = 0x01
	regDataL  byte = 0x02
	regConfig byte = 0x03
	regID     byte = 0x11
)

// Configuration register bits.
const (
	configStart byte = 0x01 // begin a conversion
	configHeat  byte = 0x02 // on-die heater, stays set until written back off
	configTemp  byte = 0x10 // 1 = temperature, 0 = relative humidity
	configFast  byte = 0x20 // reduced accuracy fast mode
)

// Status register bits.
const statusBusy byte = 0x01

// The high nibble of the ID register identifies the part family.
const familyTH02 byte = 0x05

// readRegister returns the content of a single register. The register address
// is written and the value read back in one bus transaction, with no retry.
func (d *Dev) readRegister(reg byte) (byte, error) {
	var buf [1]byte
	if err := d.d.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("th02: reading register 0x%02x: %w", reg, err)
	}
	return buf[0], nil
}

// writeRegister writes a register in a single address+value transaction.
func (d *Dev) writeRegister(reg, value byte) error {
	if err := d.d.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("th02: writing register 0x%02x: %w", reg, err)
	}
	return nil
}

// readData returns both conversion data registers combined big-endian.
func (d *Dev) readData() (uint16, error) {
	var buf [2]byte
	if err := d.d.Tx([]byte{regDataH}, buf[:]); err != nil {
		return 0, fmt.Errorf("th02: reading conversion data: %w", err)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}
