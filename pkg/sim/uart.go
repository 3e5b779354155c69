package sim

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/agmon/pkg/co2/mhz19"
	"github.com/itohio/agmon/pkg/co2/s8"
	"github.com/itohio/agmon/pkg/pms"
	"github.com/itohio/agmon/pkg/uart"
)

// FramePeriod is how often a simulated PMS streams a frame.
const FramePeriod = time.Second

// PMS simulates a Plantower sensor in active mode.
type PMS struct {
	env   *Environment
	model pms.Model
	port  *uart.Mock

	mu     sync.Mutex
	asleep bool
	last   time.Time
}

// NewPMS creates a PMS simulator for model.
func NewPMS(env *Environment, model pms.Model) *PMS {
	p := &PMS{env: env, model: model}
	p.port = uart.NewMock().Respond(p.command).Generate(p.frame)
	return p
}

// Port returns the stream the driver talks to.
func (p *PMS) Port() *uart.Mock {
	return p.port
}

// Asleep reports whether the last command put the sensor to sleep.
func (p *PMS) Asleep() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asleep
}

func (p *PMS) command(req []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case bytes.Equal(req, pms.CommandSleep[:]):
		p.asleep = true
	case bytes.Equal(req, pms.CommandWake[:]):
		p.asleep = false
		p.last = time.Time{}
	}
	return nil
}

func (p *PMS) frame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.env.clock.Now()
	if p.asleep || (!p.last.IsZero() && now.Sub(p.last) < FramePeriod) {
		return nil
	}
	p.last = now
	return pms.EncodeReading(p.reading(), p.model)
}

func (p *PMS) reading() pms.Reading {
	pm25 := p.env.PM25()
	word := func(v float32) uint16 { return uint16(math32.Round(v)) }

	r := pms.Reading{
		PM1SP:    word(pm25 * 0.7),
		PM25SP:   word(pm25),
		PM10SP:   word(pm25 * 1.2),
		PM1AE:    word(pm25 * 0.7),
		PM25AE:   word(pm25),
		PM10AE:   word(pm25 * 1.2),
		Count03:  word(pm25 * 150),
		Count05:  word(pm25 * 45),
		Count10:  word(pm25 * 8),
		Count25:  word(pm25),
		Count50:  word(pm25 * 0.2),
		Count100: word(pm25 * 0.05),
	}
	if p.model == pms.ModelPMS5003T {
		r.Temperature = p.env.Temperature()
		r.Humidity = p.env.Humidity()
		r.HasTempHum = true
	}
	return r
}

// S8 simulates a SenseAir S8 Modbus slave.
type S8 struct {
	env  *Environment
	port *uart.Mock

	mu        sync.Mutex
	abcPeriod uint16
	ack       uint16
}

// S8 identity registers.
const (
	S8Firmware   uint16 = 0x0201
	S8TypeID     uint32 = 0x010104
	S8SensorID   uint32 = 0x0A1B2C3D
	S8MemoryMap  uint16 = 0x0006
	s8IllegalReg byte   = 0x02
)

// NewS8 creates an S8 simulator with ABC set to 180 hours.
func NewS8(env *Environment) *S8 {
	s := &S8{env: env, abcPeriod: 180}
	s.port = uart.NewMock().Respond(s.respond)
	return s
}

// Port returns the stream the driver talks to.
func (s *S8) Port() *uart.Mock {
	return s.port
}

// ABCPeriod returns the configured ABC period in hours.
func (s *S8) ABCPeriod() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abcPeriod
}

func (s *S8) respond(req []byte) []byte {
	if len(req) != 8 || req[0] != s8.AnyAddress {
		return nil
	}
	if binary.LittleEndian.Uint16(req[6:]) != s8.CRC(req[:6]) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fn := req[1]
	reg := binary.BigEndian.Uint16(req[2:])
	value := binary.BigEndian.Uint16(req[4:])

	switch fn {
	case s8.FuncReadInput:
		v, ok := s.input(reg)
		if !ok {
			return s8.ExceptionResponse(fn, s8IllegalReg)
		}
		return s8.ReadResponse(fn, v)
	case s8.FuncReadHolding:
		switch reg {
		case s8.HRAcknowledgement:
			return s8.ReadResponse(fn, s.ack)
		case s8.HRABCPeriod:
			return s8.ReadResponse(fn, s.abcPeriod)
		}
	case s8.FuncWriteSingle:
		switch reg {
		case s8.HRAcknowledgement:
			s.ack = value
		case s8.HRABCPeriod:
			s.abcPeriod = value
		case s8.HRSpecialCommand:
			switch value {
			case s8.CommandBackgroundCalibration:
				s.ack |= s8.AckBackgroundCalibration
			case s8.CommandZeroCalibration:
				s.ack |= s8.AckNitrogenCalibration
			}
		default:
			return s8.ExceptionResponse(fn, s8IllegalReg)
		}
		return append([]byte(nil), req...)
	}
	return s8.ExceptionResponse(fn, s8IllegalReg)
}

func (s *S8) input(reg uint16) (uint16, bool) {
	switch reg {
	case s8.IRMeterStatus, s8.IRAlarmStatus, s8.IROutputStatus:
		return 0, true
	case s8.IRSpaceCO2:
		return uint16(s.env.CO2()), true
	case s8.IRPWMOutput:
		return uint16(float32(s.env.CO2()) / 2000 * 16383), true
	case s8.IRSensorTypeHi:
		return uint16(S8TypeID >> 16), true
	case s8.IRSensorTypeLo:
		return uint16(S8TypeID & 0xFFFF), true
	case s8.IRMemoryMap:
		return S8MemoryMap, true
	case s8.IRFirmware:
		return S8Firmware, true
	case s8.IRSensorIDHi:
		return uint16(S8SensorID >> 16), true
	case s8.IRSensorIDLo:
		return uint16(S8SensorID & 0xFFFF), true
	}
	return 0, false
}

// MHZ19 simulates a Winsen MH-Z19.
type MHZ19 struct {
	env  *Environment
	port *uart.Mock

	mu  sync.Mutex
	abc bool
}

const (
	mhz19Read = 0x86
	mhz19ABC  = 0x79
)

// NewMHZ19 creates an MH-Z19 simulator with ABC enabled.
func NewMHZ19(env *Environment) *MHZ19 {
	m := &MHZ19{env: env, abc: true}
	m.port = uart.NewMock().Respond(m.respond)
	return m
}

// Port returns the stream the driver talks to.
func (m *MHZ19) Port() *uart.Mock {
	return m.port
}

// ABC reports whether automatic baseline correction is enabled.
func (m *MHZ19) ABC() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abc
}

func (m *MHZ19) respond(req []byte) []byte {
	if len(req) != mhz19.FrameLen || req[0] != 0xFF || mhz19.Checksum(req) != req[8] {
		return nil
	}

	switch req[2] {
	case mhz19Read:
		ppm := m.env.CO2()
		temp := int(math32.Round(m.env.Temperature()))
		f := []byte{0xFF, mhz19Read, byte(ppm >> 8), byte(ppm), byte(temp + 44), 0, 0, 0, 0}
		f[8] = mhz19.Checksum(f)
		return f
	case mhz19ABC:
		m.mu.Lock()
		m.abc = req[3] != 0
		m.mu.Unlock()
	}
	return nil
}
