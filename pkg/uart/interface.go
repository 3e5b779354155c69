package uart

import "io"

// Stream is a duplex byte stream to a sensor. Read returns (0, nil) when no
// byte arrived within the stream's read timeout, matching both go.bug.st/serial
// ports and TinyGo machine.UART.
type Stream interface {
	io.Reader
	io.Writer
}

// Ensure Serial implements Stream.
var _ Stream = (*Serial)(nil)

// Ensure Mock implements Stream.
var _ Stream = (*Mock)(nil)

// Drain discards every byte currently buffered in s. It returns the number of
// discarded bytes.
func Drain(s Stream) int {
	var buf [64]byte
	total := 0
	for {
		n, err := s.Read(buf[:])
		total += n
		if n == 0 || err != nil {
			return total
		}
	}
}
