package sim

import (
	"encoding/binary"
	"sync"

	"github.com/chewxy/math32"
	"github.com/itohio/agmon/pkg/sgp41"
	"github.com/itohio/agmon/pkg/sht"
	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
)

// ErrNoDevice is returned for transactions to an address nobody answers.
var ErrNoDevice = errors.New("sim: no device at address")

const (
	sht4xAddress = 0x44

	sgp41SelfTest     = 0x280E
	sgp41Conditioning = 0x2612
	sgp41MeasureRaw   = 0x2619
	sgp41Serial       = 0x3682
	sgp41SelfTestPass = 0xD400
)

// Bus simulates an I2C bus carrying an SHT4x and optionally an SGP41.
type Bus struct {
	env   *Environment
	sgp41 bool

	mu      sync.Mutex
	pending map[uint16][]uint16
	txs     int
}

var _ drivers.I2C = (*Bus)(nil)

// NewBus creates a bus. withSGP41 adds the gas sensor.
func NewBus(env *Environment, withSGP41 bool) *Bus {
	return &Bus{env: env, sgp41: withSGP41, pending: make(map[uint16][]uint16)}
}

// Transactions returns the number of Tx calls served.
func (b *Bus) Transactions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txs
}

// Tx implements drivers.I2C. A write latches the answer of the addressed
// device, a read returns it as CRC protected words.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if addr != sht4xAddress && (addr != sgp41.Address || !b.sgp41) {
		return errors.Wrapf(ErrNoDevice, "%#02x", addr)
	}
	b.txs++

	if len(w) > 0 {
		b.pending[addr] = b.answer(addr, w)
	}
	if len(r) > 0 {
		words := b.pending[addr]
		delete(b.pending, addr)
		if len(r) > 3*len(words) {
			return errors.Wrapf(ErrNoDevice, "%#02x: nothing to read", addr)
		}
		for i := 0; i < len(r)/3; i++ {
			binary.BigEndian.PutUint16(r[3*i:], words[i])
			r[3*i+2] = sht.CRC(r[3*i:3*i+2], 0xFF)
		}
	}
	return nil
}

func (b *Bus) answer(addr uint16, w []byte) []uint16 {
	if addr == sht4xAddress {
		t := (b.env.Temperature() + 45) * 65535 / 175
		h := (b.env.Humidity() + 6) * 65535 / 125
		return []uint16{uint16(math32.Round(t)), uint16(math32.Round(h))}
	}

	if len(w) < 2 {
		return nil
	}
	switch binary.BigEndian.Uint16(w) {
	case sgp41SelfTest:
		return []uint16{sgp41SelfTestPass}
	case sgp41Conditioning:
		return []uint16{b.env.VOCTicks()}
	case sgp41MeasureRaw:
		return []uint16{b.env.VOCTicks(), b.env.NOxTicks()}
	case sgp41Serial:
		return []uint16{0x0001, 0x0203, 0x0405}
	}
	return nil
}
