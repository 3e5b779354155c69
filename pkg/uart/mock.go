package uart

import (
	"bytes"
	"sync"
)

// Responder produces the bytes a simulated device answers to a request. It
// returns nil to stay silent.
type Responder func(request []byte) []byte

// Mock is an in-memory Stream. Bytes queued with Feed or produced by a
// Responder are returned by Read; every Write is recorded.
type Mock struct {
	mu        sync.Mutex
	rx        []byte
	written   [][]byte
	expect    []exchange
	responder Responder
	generator func() []byte
	closed    bool
}

type exchange struct {
	request  []byte
	response []byte
}

// NewMock creates an empty mock stream.
func NewMock() *Mock {
	return &Mock{}
}

// Feed queues bytes for Read.
func (m *Mock) Feed(b ...byte) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, b...)
	return m
}

// Expect scripts a reply: when the next write equals request, response is
// queued for Read. A nil request matches any write. Expectations are consumed
// in order.
func (m *Mock) Expect(request, response []byte) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expect = append(m.expect, exchange{request: request, response: response})
	return m
}

// Respond installs a Responder used once scripted expectations are exhausted.
func (m *Mock) Respond(r Responder) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = r
	return m
}

// Generate installs a source polled by Read whenever the receive buffer is
// empty. It simulates a sensor streaming frames on its own.
func (m *Mock) Generate(g func() []byte) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generator = g
	return m
}

func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrNotConnected
	}
	if len(m.rx) == 0 && m.generator != nil {
		m.rx = append(m.rx, m.generator()...)
	}
	n := copy(p, m.rx)
	m.rx = m.rx[n:]
	return n, nil
}

func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrNotConnected
	}
	req := append([]byte(nil), p...)
	m.written = append(m.written, req)

	if len(m.expect) > 0 {
		next := m.expect[0]
		if next.request == nil || bytes.Equal(next.request, req) {
			m.expect = m.expect[1:]
			m.rx = append(m.rx, next.response...)
			return len(p), nil
		}
	}
	if m.responder != nil {
		m.rx = append(m.rx, m.responder(req)...)
	}
	return len(p), nil
}

// Close marks the mock closed; further reads and writes fail.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Written returns a copy of every write in order.
func (m *Mock) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// Pending returns the number of bytes waiting to be read.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

// Unmet returns the number of scripted exchanges not yet triggered.
func (m *Mock) Unmet() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expect)
}
