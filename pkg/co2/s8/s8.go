// Package s8 reads SenseAir S8 CO2 sensors over Modbus RTU.
package s8

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/co2"
	"github.com/pkg/errors"
)

// Input registers.
const (
	IRMeterStatus  uint16 = 0x0000
	IRAlarmStatus  uint16 = 0x0001
	IROutputStatus uint16 = 0x0002
	IRSpaceCO2     uint16 = 0x0003
	IRPWMOutput    uint16 = 0x0015
	IRSensorTypeHi uint16 = 0x0019
	IRSensorTypeLo uint16 = 0x001A
	IRMemoryMap    uint16 = 0x001B
	IRFirmware     uint16 = 0x001C
	IRSensorIDHi   uint16 = 0x001D
	IRSensorIDLo   uint16 = 0x001E
)

// Holding registers.
const (
	HRAcknowledgement uint16 = 0x0000
	HRSpecialCommand  uint16 = 0x0001
	HRABCPeriod       uint16 = 0x001F
)

// Special commands written to HRSpecialCommand.
const (
	CommandBackgroundCalibration uint16 = 0x7C06
	CommandZeroCalibration       uint16 = 0x7C07
)

// Acknowledgement register bits.
const (
	AckBackgroundCalibration uint16 = 0x0020
	AckNitrogenCalibration   uint16 = 0x0040
)

const (
	// DefaultTimeout bounds one Modbus transaction.
	DefaultTimeout = 5000 * time.Millisecond
	// MaxABCPeriod is the largest ABC period in hours.
	MaxABCPeriod = 4800

	pollInterval = 10 * time.Millisecond
)

var (
	ErrNotFound      = errors.New("s8: sensor not found")
	ErrInvalidPeriod = errors.New("s8: ABC period out of range")
)

// Config tunes the sensor. Zero values select defaults.
type Config struct {
	Timeout time.Duration
}

// Sensor talks to one S8 on a byte stream.
type Sensor struct {
	stream  io.ReadWriter
	clock   clock.Clock
	timeout time.Duration
}

var _ co2.Reader = (*Sensor)(nil)

// New creates a Sensor. A nil clock selects the system clock.
func New(stream io.ReadWriter, c clock.Clock, cfg Config) *Sensor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Sensor{
		stream:  stream,
		clock:   clock.Or(c),
		timeout: cfg.Timeout,
	}
}

// Init probes the sensor by reading its firmware version.
func (s *Sensor) Init(ctx context.Context) (string, error) {
	version, err := s.FirmwareVersion(ctx)
	if err != nil {
		return "", errors.Wrapf(ErrNotFound, "firmware version: %v", err)
	}
	if version == "" {
		return "", ErrNotFound
	}
	return version, nil
}

func (s *Sensor) transact(ctx context.Context, request []byte, want int) ([]byte, error) {
	co2.Drain(s.stream)

	if _, err := s.stream.Write(request); err != nil {
		return nil, errors.Wrap(err, "s8 write")
	}

	start := s.clock.Now()
	msg := make([]byte, 0, want)
	buf := make([]byte, want)
	for len(msg) < want {
		n, err := s.stream.Read(buf[:want-len(msg)])
		if err != nil {
			return nil, errors.Wrap(err, "s8 read")
		}
		msg = append(msg, buf[:n]...)
		if len(msg) >= 5 && msg[1]&exceptionFlag != 0 {
			msg = msg[:5]
			break
		}
		if n > 0 {
			continue
		}
		if s.clock.Now().Sub(start) >= s.timeout {
			break
		}
		if err := s.clock.Sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
	if len(msg) == 0 {
		return nil, co2.ErrNoResponse
	}
	return msg, nil
}

func (s *Sensor) read(ctx context.Context, fn byte, reg uint16, count int) ([]uint16, error) {
	msg, err := s.transact(ctx, Request(fn, reg, uint16(count)), ReadResponseLen(count))
	if err != nil {
		return nil, errors.Wrapf(err, "register %#04x", reg)
	}
	values, err := ParseReadResponse(fn, msg, count)
	if err != nil {
		return nil, errors.Wrapf(err, "register %#04x", reg)
	}
	return values, nil
}

// ReadInput reads one input register.
func (s *Sensor) ReadInput(ctx context.Context, reg uint16) (uint16, error) {
	v, err := s.read(ctx, FuncReadInput, reg, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// ReadHolding reads one holding register.
func (s *Sensor) ReadHolding(ctx context.Context, reg uint16) (uint16, error) {
	v, err := s.read(ctx, FuncReadHolding, reg, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// WriteHolding writes one holding register and checks the echo.
func (s *Sensor) WriteHolding(ctx context.Context, reg, value uint16) error {
	req := Request(FuncWriteSingle, reg, value)
	msg, err := s.transact(ctx, req, requestLen)
	if err != nil {
		return errors.Wrapf(err, "write register %#04x", reg)
	}
	if err := ParseWriteResponse(req, msg); err != nil {
		return errors.Wrapf(err, "write register %#04x", reg)
	}
	return nil
}

// CO2 reads the space CO2 concentration in ppm.
func (s *Sensor) CO2(ctx context.Context) (int, error) {
	v, err := s.ReadInput(ctx, IRSpaceCO2)
	if err != nil {
		return 0, err
	}
	return int(int16(v)), nil
}

// ReadCO2 implements co2.Reader.
func (s *Sensor) ReadCO2(ctx context.Context) (int, error) {
	return s.CO2(ctx)
}

// MeterStatus reads the error flags register.
func (s *Sensor) MeterStatus(ctx context.Context) (Status, error) {
	v, err := s.ReadInput(ctx, IRMeterStatus)
	return Status(v), err
}

// AlarmStatus reads the alarm register.
func (s *Sensor) AlarmStatus(ctx context.Context) (uint16, error) {
	return s.ReadInput(ctx, IRAlarmStatus)
}

// OutputStatus reads the output status register.
func (s *Sensor) OutputStatus(ctx context.Context) (uint16, error) {
	return s.ReadInput(ctx, IROutputStatus)
}

// PWMOutput reads the raw PWM output register.
func (s *Sensor) PWMOutput(ctx context.Context) (uint16, error) {
	return s.ReadInput(ctx, IRPWMOutput)
}

// PWMToPPM converts a raw PWM output value to ppm for the 0-2000 ppm range.
func PWMToPPM(pwm uint16) float32 {
	return float32(pwm) / 16383 * 2000
}

// SensorTypeID reads the 24-bit sensor type.
func (s *Sensor) SensorTypeID(ctx context.Context) (uint32, error) {
	hi, err := s.ReadInput(ctx, IRSensorTypeHi)
	if err != nil {
		return 0, err
	}
	lo, err := s.ReadInput(ctx, IRSensorTypeLo)
	if err != nil {
		return 0, err
	}
	return uint32(hi&0x00FF)<<16 | uint32(lo), nil
}

// SensorID reads the 32-bit serial number.
func (s *Sensor) SensorID(ctx context.Context) (uint32, error) {
	hi, err := s.ReadInput(ctx, IRSensorIDHi)
	if err != nil {
		return 0, err
	}
	lo, err := s.ReadInput(ctx, IRSensorIDLo)
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

// MemoryMapVersion reads the register map version.
func (s *Sensor) MemoryMapVersion(ctx context.Context) (uint16, error) {
	return s.ReadInput(ctx, IRMemoryMap)
}

// FirmwareVersion reads the firmware as "major.minor".
func (s *Sensor) FirmwareVersion(ctx context.Context) (string, error) {
	v, err := s.ReadInput(ctx, IRFirmware)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d", v>>8, v&0xFF), nil
}

// ABCPeriod reads the automatic baseline correction period in hours.
func (s *Sensor) ABCPeriod(ctx context.Context) (int, error) {
	v, err := s.ReadHolding(ctx, HRABCPeriod)
	return int(v), err
}

// SetABCPeriod sets the ABC period in hours, 0 disables it. The write is
// skipped when the sensor already holds the value.
func (s *Sensor) SetABCPeriod(ctx context.Context, hours int) error {
	if hours < 0 || hours > MaxABCPeriod {
		return errors.Wrapf(ErrInvalidPeriod, "%d hours", hours)
	}
	current, err := s.ABCPeriod(ctx)
	if err == nil && current == hours {
		return nil
	}
	return s.WriteHolding(ctx, HRABCPeriod, uint16(hours))
}

// Acknowledgement reads the acknowledgement flags.
func (s *Sensor) Acknowledgement(ctx context.Context) (uint16, error) {
	return s.ReadHolding(ctx, HRAcknowledgement)
}

// ClearAcknowledgement resets the acknowledgement flags.
func (s *Sensor) ClearAcknowledgement(ctx context.Context) error {
	return s.WriteHolding(ctx, HRAcknowledgement, 0)
}

// SendSpecialCommand clears the acknowledgement flags and issues cmd.
func (s *Sensor) SendSpecialCommand(ctx context.Context, cmd uint16) error {
	if err := s.ClearAcknowledgement(ctx); err != nil {
		return err
	}
	return s.WriteHolding(ctx, HRSpecialCommand, cmd)
}

// ManualCalibration starts a background calibration against fresh air.
func (s *Sensor) ManualCalibration(ctx context.Context) error {
	return s.SendSpecialCommand(ctx, CommandBackgroundCalibration)
}

// ZeroCalibration starts a calibration against nitrogen.
func (s *Sensor) ZeroCalibration(ctx context.Context) error {
	return s.SendSpecialCommand(ctx, CommandZeroCalibration)
}

// IsBaselineCalibrationDone reports whether a background calibration finished.
func (s *Sensor) IsBaselineCalibrationDone(ctx context.Context) (bool, error) {
	ack, err := s.Acknowledgement(ctx)
	if err != nil {
		return false, err
	}
	return ack&AckBackgroundCalibration != 0, nil
}
