package s8

import "strings"

// Status is the meter status register.
type Status uint16

const (
	StatusFatalError       Status = 0x01
	StatusOffsetRegulation Status = 0x02
	StatusAlgorithmError   Status = 0x04
	StatusOutputError      Status = 0x08
	StatusSelfDiagnostics  Status = 0x10
	StatusOutOfRange       Status = 0x20
	StatusMemoryError      Status = 0x40

	StatusAnyError Status = 0x7F
)

var statusNames = []struct {
	flag Status
	name string
}{
	{StatusFatalError, "fatal"},
	{StatusOffsetRegulation, "offset regulation"},
	{StatusAlgorithmError, "algorithm"},
	{StatusOutputError, "output"},
	{StatusSelfDiagnostics, "self diagnostics"},
	{StatusOutOfRange, "out of range"},
	{StatusMemoryError, "memory"},
}

// OK reports whether no error flag is set.
func (s Status) OK() bool {
	return s&StatusAnyError == 0
}

func (s Status) String() string {
	if s.OK() {
		return "ok"
	}
	var parts []string
	for _, n := range statusNames {
		if s&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ", ")
}
