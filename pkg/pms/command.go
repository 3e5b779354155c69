package pms

import (
	"encoding/binary"

	"github.com/chewxy/math32"
)

// Command bytes of the Plantower protocol.
const (
	cmdRead   = 0xE2
	cmdMode   = 0xE1
	cmdSleep  = 0xE4
	modeOff   = 0x00
	modeOn    = 0x01
	cmdLength = 7
)

// Command is a 7-byte host-to-sensor frame.
type Command [cmdLength]byte

var (
	CommandSleep       = newCommand(cmdSleep, modeOff)
	CommandWake        = newCommand(cmdSleep, modeOn)
	CommandActiveMode  = newCommand(cmdMode, modeOn)
	CommandPassiveMode = newCommand(cmdMode, modeOff)
	CommandRequestRead = newCommand(cmdRead, modeOff)
)

func newCommand(cmd, data byte) Command {
	c := Command{syncByte1, syncByte2, cmd, 0x00, data}
	var sum uint16
	for _, b := range c[:5] {
		sum += uint16(b)
	}
	binary.BigEndian.PutUint16(c[5:], sum)
	return c
}

// EncodeFrame builds a sensor-to-host frame around payload, which must be
// FrameLenShort-2 or FrameLenLong-2 bytes long. It is used by simulators and
// tests.
func EncodeFrame(payload []byte) []byte {
	length := len(payload) + 2
	frame := make([]byte, 0, headerLen+length)
	frame = append(frame, syncByte1, syncByte2, byte(length>>8), byte(length))
	frame = append(frame, payload...)

	var sum uint16
	for _, b := range frame {
		sum += uint16(b)
	}
	return binary.BigEndian.AppendUint16(frame, sum)
}

// EncodeReading builds a long frame carrying r for the given model.
func EncodeReading(r Reading, model Model) []byte {
	words := []uint16{
		r.PM1SP, r.PM25SP, r.PM10SP,
		r.PM1AE, r.PM25AE, r.PM10AE,
		r.Count03, r.Count05, r.Count10, r.Count25,
		r.Count50, r.Count100,
		uint16(math32.Round(r.HCHO * 1000)),
	}
	if model == ModelPMS5003T {
		words[10] = uint16(int16(math32.Round(r.Temperature * 10)))
		words[11] = uint16(math32.Round(r.Humidity * 10))
	}

	payload := make([]byte, 0, FrameLenLong-2)
	for _, w := range words {
		payload = binary.BigEndian.AppendUint16(payload, w)
	}
	return EncodeFrame(payload)
}
