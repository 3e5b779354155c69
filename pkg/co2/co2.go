// Package co2 holds what the MH-Z19 and SenseAir S8 drivers share: the error
// taxonomy, its sentinel codes and the two-read stability check.
package co2

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Sentinel codes reported in place of a concentration.
const (
	CodeNoResponse int16 = -1
	CodeChecksum   int16 = -2
	CodeIncomplete int16 = -3
	CodeFraming    int16 = -4
)

// Tolerance is the largest accepted difference in ppm between the two
// readings taken by ReadStable.
const Tolerance = 50

var (
	ErrNoResponse = errors.New("co2: no response")
	ErrChecksum   = errors.New("co2: checksum mismatch")
	ErrIncomplete = errors.New("co2: incomplete frame")
	ErrFraming    = errors.New("co2: unexpected frame")
	ErrUnstable   = errors.New("co2: consecutive readings diverge")
)

// Code maps a read error to its sentinel value. A nil error maps to 0.
// Unstable readings are reported like a missing sensor.
func Code(err error) int16 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrChecksum):
		return CodeChecksum
	case errors.Is(err, ErrIncomplete):
		return CodeIncomplete
	case errors.Is(err, ErrFraming):
		return CodeFraming
	default:
		return CodeNoResponse
	}
}

// Reader is implemented by CO2 sensor drivers.
type Reader interface {
	ReadCO2(ctx context.Context) (int, error)
}

// ReadStable takes two consecutive readings and returns the second one when
// they differ by at most tolerance ppm. A floating RX line produces plausible
// noise that rarely repeats, so a diverging pair is treated as no sensor.
func ReadStable(ctx context.Context, r Reader, tolerance int) (int, error) {
	first, err := r.ReadCO2(ctx)
	if err != nil {
		return 0, err
	}
	second, err := r.ReadCO2(ctx)
	if err != nil {
		return 0, err
	}

	diff := first - second
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return 0, errors.Wrapf(ErrUnstable, "%d vs %d ppm", first, second)
	}
	return second, nil
}

// Drain discards bytes already buffered on the line before a new request.
func Drain(rw io.Reader) {
	var buf [32]byte
	for i := 0; i < 16; i++ {
		n, err := rw.Read(buf[:])
		if n == 0 || err != nil {
			return
		}
	}
}
