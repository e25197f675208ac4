package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"
)

// SamsungVendorID is the USB vendor ID used by Samsung phones in download mode.
const SamsungVendorID gousb.ID = 0x04e8

// USBProbe detects devices by enumerating the USB bus through libusb.
// Matching devices are never opened, so no udev permissions are needed.
type USBProbe struct {
	vendor  gousb.ID
	product gousb.ID // 0 matches any product

	mu  sync.Mutex
	usb *gousb.Context
}

// NewUSBProbe creates a libusb context for probing.
// A zero product ID matches every product of the vendor.
func NewUSBProbe(vendor, product gousb.ID) (probe *USBProbe, err error) {
	// gousb panics when libusb cannot be initialised.
	defer func() {
		if r := recover(); r != nil {
			probe = nil
			err = fmt.Errorf("%w: libusb init: %v", ErrProbeFailed, r)
		}
	}()

	return &USBProbe{
		vendor:  vendor,
		product: product,
		usb:     gousb.NewContext(),
	}, nil
}

// Probe reports whether a matching device is on the bus.
func (p *USBProbe) Probe(ctx context.Context) error {
	type result struct {
		found int
		err   error
	}
	done := make(chan result, 1)

	go func() {
		found, err := p.count()
		done <- result{found: found, err: err}
	}()

	select {
	case <-ctx.Done():
		return ErrProbeTimeout
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("%w: %w", ErrProbeFailed, r.err)
		}
		if r.found == 0 {
			return ErrNoDevice
		}
		return nil
	}
}

func (p *USBProbe) count() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.usb == nil {
		return 0, fmt.Errorf("usb context closed")
	}

	found := 0
	// The opener always declines, so OpenDevices only walks descriptors.
	_, err := p.usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if p.matches(desc) {
			found++
		}
		return false
	})
	return found, err
}

func (p *USBProbe) matches(desc *gousb.DeviceDesc) bool {
	if desc.Vendor != p.vendor {
		return false
	}
	return p.product == 0 || desc.Product == p.product
}

// Close releases the libusb context.
func (p *USBProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.usb == nil {
		return nil
	}
	err := p.usb.Close()
	p.usb = nil
	return err
}

// ParseUSBID parses a hexadecimal USB vendor or product ID such as "04e8"
// or "0x685d". An empty string yields 0.
func ParseUSBID(s string) (gousb.ID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUSBID, s)
	}
	return gousb.ID(v), nil
}
