package co2

import (
	"context"
	"testing"

	"github.com/itohio/agmon/pkg/uart"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	values []int
	errs   []error
	calls  int
}

func (s *scripted) ReadCO2(context.Context) (int, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return 0, err
	}
	return s.values[i], nil
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int16
	}{
		{name: "ok", err: nil, want: 0},
		{name: "no response", err: ErrNoResponse, want: CodeNoResponse},
		{name: "wrapped checksum", err: errors.Wrap(ErrChecksum, "mhz19"), want: CodeChecksum},
		{name: "incomplete", err: ErrIncomplete, want: CodeIncomplete},
		{name: "framing", err: ErrFraming, want: CodeFraming},
		{name: "unstable", err: ErrUnstable, want: CodeNoResponse},
		{name: "transport", err: errors.New("broken pipe"), want: CodeNoResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestReadStable(t *testing.T) {
	tests := []struct {
		name    string
		values  []int
		errs    []error
		want    int
		wantErr error
	}{
		{name: "identical", values: []int{415, 415}, want: 415},
		{name: "within tolerance", values: []int{400, 450}, want: 450},
		{name: "within tolerance downwards", values: []int{450, 400}, want: 400},
		{name: "diverging", values: []int{400, 451}, wantErr: ErrUnstable},
		{name: "first fails", values: []int{0, 0}, errs: []error{ErrNoResponse}, wantErr: ErrNoResponse},
		{name: "second fails", values: []int{400, 0}, errs: []error{nil, ErrChecksum}, wantErr: ErrChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &scripted{values: tt.values, errs: tt.errs}
			got, err := ReadStable(context.Background(), r, Tolerance)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 2, r.calls)
		})
	}
}

func TestDrain(t *testing.T) {
	m := uart.NewMock().Feed(1, 2, 3, 4)
	Drain(m)
	assert.Equal(t, 0, m.Pending())
}
