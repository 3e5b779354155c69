package s8

import (
	"encoding/binary"
	"fmt"

	"github.com/itohio/agmon/pkg/co2"
	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
)

// Modbus framing constants.
const (
	AnyAddress = 0xFE

	FuncReadHolding = 0x03
	FuncReadInput   = 0x04
	FuncWriteSingle = 0x06

	exceptionFlag = 0x80
	requestLen    = 8
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC computes the Modbus CRC16 of data.
func CRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Request builds an 8-byte Modbus RTU request. For read functions value is
// the register count.
func Request(fn byte, reg, value uint16) []byte {
	msg := make([]byte, 0, requestLen)
	msg = append(msg, AnyAddress, fn)
	msg = binary.BigEndian.AppendUint16(msg, reg)
	msg = binary.BigEndian.AppendUint16(msg, value)
	return binary.LittleEndian.AppendUint16(msg, CRC(msg))
}

// ReadResponse builds the sensor answer to a read of len(values) registers.
// It is used by simulators and tests.
func ReadResponse(fn byte, values ...uint16) []byte {
	msg := make([]byte, 0, 5+2*len(values))
	msg = append(msg, AnyAddress, fn, byte(2*len(values)))
	for _, v := range values {
		msg = binary.BigEndian.AppendUint16(msg, v)
	}
	return binary.LittleEndian.AppendUint16(msg, CRC(msg))
}

// ExceptionResponse builds a Modbus exception answer.
func ExceptionResponse(fn, code byte) []byte {
	msg := []byte{AnyAddress, fn | exceptionFlag, code}
	return binary.LittleEndian.AppendUint16(msg, CRC(msg))
}

// ReadResponseLen is the length of a read answer carrying count registers.
func ReadResponseLen(count int) int {
	return 5 + 2*count
}

// ExceptionError is a Modbus exception reported by the sensor.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("s8: modbus exception %#02x for function %#02x", e.Code, e.Function)
}

func checkCRC(msg []byte) error {
	n := len(msg)
	want := CRC(msg[:n-2])
	got := binary.LittleEndian.Uint16(msg[n-2:])
	if got != want {
		return errors.Wrapf(co2.ErrChecksum, "crc %04X want %04X", got, want)
	}
	return nil
}

// ParseReadResponse validates a read answer and returns its registers.
func ParseReadResponse(fn byte, msg []byte, count int) ([]uint16, error) {
	if len(msg) == 5 && msg[1] == fn|exceptionFlag {
		if err := checkCRC(msg); err != nil {
			return nil, err
		}
		return nil, &ExceptionError{Function: fn, Code: msg[2]}
	}

	want := ReadResponseLen(count)
	if len(msg) < want {
		return nil, errors.Wrapf(co2.ErrIncomplete, "%d of %d bytes", len(msg), want)
	}
	if len(msg) > want {
		return nil, errors.Wrapf(co2.ErrFraming, "%d bytes, want %d", len(msg), want)
	}
	if err := checkCRC(msg); err != nil {
		return nil, err
	}
	if msg[0] != AnyAddress || msg[1] != fn || int(msg[2]) != len(msg)-5 {
		return nil, errors.Wrapf(co2.ErrFraming, "header % X", msg[:3])
	}

	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(msg[3+2*i:])
	}
	return values, nil
}

// ParseWriteResponse validates the echo of a single-register write.
func ParseWriteResponse(request, msg []byte) error {
	if len(msg) == 5 && len(request) > 1 && msg[1] == request[1]|exceptionFlag {
		if err := checkCRC(msg); err != nil {
			return err
		}
		return &ExceptionError{Function: request[1], Code: msg[2]}
	}
	if len(msg) < requestLen {
		return errors.Wrapf(co2.ErrIncomplete, "%d of %d bytes", len(msg), requestLen)
	}
	if err := checkCRC(msg); err != nil {
		return err
	}
	for i := range request {
		if msg[i] != request[i] {
			return errors.Wrapf(co2.ErrFraming, "echo % X differs from request % X", msg, request)
		}
	}
	return nil
}
