package control

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// IIOSource reads a raw ADC channel from the Linux industrial I/O sysfs
// tree. Each Read re-opens the attribute file; the kernel performs the
// conversion on demand, so values are never stale.
type IIOSource struct {
	path string
}

// NewIIOSource creates a source for in_voltage<channel>_raw on the given
// IIO device index. It fails fast if the attribute cannot be read.
func NewIIOSource(device, channel int) (*IIOSource, error) {
	path := fmt.Sprintf("/sys/bus/iio/devices/iio:device%d/in_voltage%d_raw", device, channel)
	s := &IIOSource{path: path}
	if _, err := s.Read(); err != nil {
		return nil, fmt.Errorf("probe adc channel: %w", err)
	}
	return s, nil
}

// Read returns the current raw ADC reading.
func (s *IIOSource) Read() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return v, nil
}

// Close is a no-op; the attribute file is not held open.
func (s *IIOSource) Close() error {
	return nil
}
