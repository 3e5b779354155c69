// Package sht reads Sensirion SHT2x, SHT3x, SHT4x and SHTC1 humidity sensors.
//
// The bus is the tinygo.org/x/drivers I2C interface: machine.I2C satisfies it
// under TinyGo and periph.io i2c.Bus satisfies it on Linux hosts.
package sht

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/agmon/pkg/clock"
	"github.com/pkg/errors"
	"github.com/sigurn/crc8"
	"tinygo.org/x/drivers"
)

// Bus performs a combined write/read I2C transaction.
type Bus = drivers.I2C

// DetectDelay is the pause before each AutoDetect probe.
const DetectDelay = 40 * time.Millisecond

var (
	ErrCRC         = errors.New("sht: crc mismatch")
	ErrStatus      = errors.New("sht: unexpected status bits")
	ErrNotFound    = errors.New("sht: no sensor detected")
	ErrUnsupported = errors.New("sht: accuracy not supported by model")
	ErrNotInit     = errors.New("sht: sensor not initialized")
)

var (
	crcTable   = crc8.MakeTable(crc8.Params{Poly: 0x31, Init: 0xFF, Check: 0xF7, Name: "CRC-8/NRSC-5"})
	crcTable00 = crc8.MakeTable(crc8.Params{Poly: 0x31, Init: 0x00, Check: 0xA2, Name: "CRC-8/SHT2X"})
)

// CRC computes the Sensirion CRC8 (poly 0x31) of data starting at init.
func CRC(data []byte, init byte) byte {
	if init == 0 {
		return crc8.Checksum(data, crcTable00)
	}
	return crc8.Checksum(data, crcTable)
}

// Sample is one temperature (°C) and relative humidity (%) reading.
type Sample struct {
	Temperature float32
	Humidity    float32
}

// Invalid returns a sample with both values NaN.
func Invalid() Sample {
	return Sample{Temperature: math32.NaN(), Humidity: math32.NaN()}
}

// Valid reports whether both values are numbers.
func (s Sample) Valid() bool {
	return !math32.IsNaN(s.Temperature) && !math32.IsNaN(s.Humidity)
}

// Sensor is one SHT device on a bus.
type Sensor struct {
	bus      Bus
	clock    clock.Clock
	model    Model
	p        params
	accuracy Accuracy
	last     Sample
	buf      [6]byte
}

// New creates a sensor. Auto resolves the model during Init. A nil clock
// selects the system clock.
func New(bus Bus, model Model, c clock.Clock) *Sensor {
	s := &Sensor{
		bus:   bus,
		clock: clock.Or(c),
		last:  Invalid(),
	}
	s.setModel(model)
	return s
}

func (s *Sensor) setModel(m Model) {
	s.model = m
	s.p, _ = paramsFor(m)
}

// Model returns the configured or detected model.
func (s *Sensor) Model() Model {
	return s.model
}

// Accuracy returns the current accuracy setting.
func (s *Sensor) Accuracy() Accuracy {
	return s.accuracy
}

// Last returns the most recent sample, invalid if the last read failed.
func (s *Sensor) Last() Sample {
	return s.last
}

// Init detects the model if needed and confirms the sensor answers.
func (s *Sensor) Init(ctx context.Context) error {
	if s.model == Auto {
		m, err := AutoDetect(ctx, s.bus, s.clock)
		if err != nil {
			return err
		}
		s.setModel(m)
		return nil
	}
	_, err := s.ReadSample(ctx)
	return err
}

// SetAccuracy selects the measurement command. Models without accuracy
// settings return ErrUnsupported for anything but High.
func (s *Sensor) SetAccuracy(a Accuracy) error {
	if a < High || a > Low {
		return errors.Wrapf(ErrUnsupported, "accuracy %v", a)
	}
	if !s.p.accuracy && a != High {
		return errors.Wrapf(ErrUnsupported, "%v accuracy on %v", a, s.model)
	}
	s.accuracy = a
	return nil
}

// ReadSample triggers one measurement and returns the converted values. On
// failure the returned sample and Last are invalid.
func (s *Sensor) ReadSample(ctx context.Context) (Sample, error) {
	s.last = Invalid()
	if s.model == Auto {
		return s.last, ErrNotInit
	}

	var err error
	if s.model == SHT2X {
		err = s.readSHT2x(ctx)
	} else {
		err = s.readCombined(ctx)
	}
	if err != nil {
		return s.last, errors.Wrap(err, s.model.String())
	}

	s.last = Sample{
		Temperature: convert(s.p.t, binary.BigEndian.Uint16(s.buf[0:])),
		Humidity:    convert(s.p.h, binary.BigEndian.Uint16(s.buf[3:])),
	}
	return s.last, nil
}

func convert(k [3]float32, raw uint16) float32 {
	return k[0] + k[1]*(float32(raw)/k[2])
}

func (s *Sensor) command(cmd uint16) []byte {
	if s.p.cmdSize == 1 {
		return []byte{byte(cmd >> 8)}
	}
	return []byte{byte(cmd >> 8), byte(cmd)}
}

func (s *Sensor) transfer(ctx context.Context, cmd []byte, r []byte) error {
	if err := s.bus.Tx(s.p.addr, cmd, nil); err != nil {
		return errors.Wrap(err, "command")
	}
	if err := s.clock.Sleep(ctx, s.p.settle[s.accuracy]); err != nil {
		return err
	}
	if err := s.bus.Tx(s.p.addr, nil, r); err != nil {
		return errors.Wrap(err, "read")
	}
	return nil
}

func (s *Sensor) checkCRC(field []byte) error {
	if got, want := field[2], CRC(field[:2], s.p.crcInit); got != want {
		return errors.Wrapf(ErrCRC, "field % X crc %02X want %02X", field[:2], got, want)
	}
	return nil
}

// readCombined runs one command returning T and RH as two CRC-protected
// fields.
func (s *Sensor) readCombined(ctx context.Context) error {
	if err := s.transfer(ctx, s.command(s.p.commands[s.accuracy]), s.buf[:]); err != nil {
		return err
	}
	if err := s.checkCRC(s.buf[0:3]); err != nil {
		return err
	}
	return s.checkCRC(s.buf[3:6])
}

// readSHT2x needs one round trip per quantity. Bit 1 of the LSB tells the
// measurement type and the two low bits are cleared before conversion.
func (s *Sensor) readSHT2x(ctx context.Context) error {
	cmd := s.p.commands[s.accuracy]
	if err := s.transfer(ctx, []byte{byte(cmd >> 8)}, s.buf[0:3]); err != nil {
		return err
	}
	if err := s.transfer(ctx, []byte{byte(cmd)}, s.buf[3:6]); err != nil {
		return err
	}
	if err := s.checkCRC(s.buf[0:3]); err != nil {
		return err
	}
	if err := s.checkCRC(s.buf[3:6]); err != nil {
		return err
	}
	if s.buf[1]&0x02 != 0 || s.buf[4]&0x02 == 0 {
		return errors.Wrapf(ErrStatus, "status %02X %02X", s.buf[1]&0x03, s.buf[4]&0x03)
	}
	s.buf[1] &^= 0x03
	s.buf[4] &^= 0x03
	return nil
}

// AutoDetect probes DetectOrder and returns the first model that answers with
// a valid sample.
func AutoDetect(ctx context.Context, bus Bus, c clock.Clock) (Model, error) {
	c = clock.Or(c)
	for _, m := range DetectOrder {
		if err := c.Sleep(ctx, DetectDelay); err != nil {
			return Auto, err
		}
		s := New(bus, m, c)
		if _, err := s.ReadSample(ctx); err == nil {
			return m, nil
		}
		if err := ctx.Err(); err != nil {
			return Auto, err
		}
	}
	return Auto, ErrNotFound
}
