// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package th02 controls a HopeRF TH02 temperature and relative humidity
// sensor over I²C.
//
// The TH02 is the sensor on the Seeed Grove Temperature&Humidity sensor
// (high-accuracy & mini) and is register compatible with the Si7005.
//
// Readings are taken one conversion at a time: the driver writes the
// configuration register to start a measurement, polls the status register
// until ready, then decodes the data registers. Sense wraps a full
// temperature plus humidity cycle; the Start/Wait/Read calls expose the
// individual steps. Humidity is corrected with the datasheet linearity and
// temperature compensation formulas.
//
// # Datasheet
//
// http://www.hoperf.com/upload/sensor/TH02_V1.1.pdf
package th02
