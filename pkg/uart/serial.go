package uart

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaudRate is the baud rate of PMS, S8 and MH-Z19 sensors.
	DefaultBaudRate = 9600
	// DefaultReadTimeout bounds a single Read call.
	DefaultReadTimeout = 50 * time.Millisecond
)

var (
	ErrNotConnected     = errors.New("uart: not connected")
	ErrAlreadyConnected = errors.New("uart: already connected")
)

// Port describes a serial port available on the host.
type Port struct {
	Name        string
	Description string
	IsUSB       bool
}

// Serial is a sensor connection over a host serial port, 8N1.
type Serial struct {
	port        string
	baudRate    int
	readTimeout time.Duration

	conn      serial.Port
	mu        sync.RWMutex
	connected bool
}

// New creates a Serial for the named port. Zero values select defaults.
func New(port string, baudRate int, readTimeout time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	return &Serial{
		port:        port,
		baudRate:    baudRate,
		readTimeout: readTimeout,
	}
}

// Ports returns the serial ports present on the host.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		result := make([]Port, 0, len(details))
		for _, d := range details {
			desc := d.Name
			if d.IsUSB {
				desc = d.Product
				if desc == "" {
					desc = d.VID + ":" + d.PID
				}
			}
			result = append(result, Port{Name: d.Name, Description: desc, IsUSB: d.IsUSB})
		}
		return result, nil
	}

	// Detailed enumeration is not implemented everywhere.
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}
	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the port.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return ErrAlreadyConnected
	}

	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(s.port, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", s.port)
	}
	if err := port.SetReadTimeout(s.readTimeout); err != nil {
		port.Close()
		return errors.Wrapf(err, "failed to set read timeout on %s", s.port)
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.WithField("port", s.port).Warnf("Failed to reset input buffer: %v", err)
	}

	s.conn = port
	s.connected = true
	return nil
}

// Close closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			log.WithField("port", s.port).Errorf("Error closing serial port: %v", err)
		}
		s.conn = nil
	}
	s.connected = false
	return nil
}

// Read reads available bytes. It returns (0, nil) on read timeout.
func (s *Serial) Read(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return 0, ErrNotConnected
	}
	n, err := s.conn.Read(p)
	if err != nil {
		return n, errors.Wrapf(err, "read %s", s.port)
	}
	return n, nil
}

// Write writes p to the port.
func (s *Serial) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return 0, ErrNotConnected
	}
	n, err := s.conn.Write(p)
	if err != nil {
		return n, errors.Wrapf(err, "write %s", s.port)
	}
	return n, nil
}

// IsConnected returns whether the port is open.
func (s *Serial) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Name returns the port name.
func (s *Serial) Name() string {
	return s.port
}
