// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hid

import (
	"fmt"
	"time"

	"github.com/google/gousb"
)

// RawDevice is the minimal endpoint-pair abstraction C1 frames packets
// over. Splitting it out of *gousb.Device keeps transport.go and
// manager.go testable against an in-memory fake without real hardware.
type RawDevice interface {
	// Write sends one wire-encoded packet (already report-ID-free; see
	// wire.go) to the device's raw-HID OUT endpoint.
	Write(buf []byte) (int, error)
	// ReadTimeout reads one wire-encoded packet from the IN endpoint,
	// blocking no longer than timeout. A timeout with no data returns
	// n == 0 and the implementation's timeout error (the gousb
	// implementation passes through the error of its read context).
	ReadTimeout(buf []byte, timeout time.Duration) (int, error)
	// Close releases the interface claim and closes the USB device handle.
	Close() error
}

// Identity names the VID/PID/usage the firmware enumerates under.
type Identity struct {
	VendorID  gousb.ID
	ProductID gousb.ID
	// Interface/Alternate/endpoint addresses for the vendor-defined
	// raw-HID interface, distinct from the composite device's standard
	// keyboard interface (see §4.2's "must not seize sibling interfaces"
	// capability requirement).
	Interface  int
	Alternate  int
	EndpointIn  int
	EndpointOut int
}

// DefaultIdentity matches the firmware's default enumeration (confirmed
// against the original source's HidConfig::default()).
var DefaultIdentity = Identity{
	VendorID:    0xFEED,
	ProductID:   0x0803,
	Interface:   1,
	Alternate:   0,
	EndpointIn:  0x81,
	EndpointOut: 0x01,
}

// usbContext is the process-wide gousb context, created lazily.
var usbContext *gousb.Context

func ensureContext() *gousb.Context {
	if usbContext == nil {
		usbContext = gousb.NewContext()
	}
	return usbContext
}

// gousbRawDevice is the production RawDevice, backed by a claimed
// interrupt IN/OUT endpoint pair on the vendor raw-HID interface.
//
// Grounded on _examples/guiperry-HASHER/internal/driver/device/usb_device.go
// for the open/claim-interface/endpoint-read-write shape — the only real
// USB-library usage in the reference pack.
type gousbRawDevice struct {
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
	in    *gousb.InEndpoint
	out   *gousb.OutEndpoint
}

// OpenUSB finds and claims the device matching identity, without
// touching any other interface of the composite device (so the standard
// keyboard interface stays owned by the OS).
func OpenUSB(identity Identity) (RawDevice, error) {
	ctx := ensureContext()

	dev, err := ctx.OpenDeviceWithVIDPID(identity.VendorID, identity.ProductID)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	if dev == nil {
		return nil, ErrNotConnected
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("set auto detach: %w", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("get config: %w", err)
	}

	iface, err := cfg.Interface(identity.Interface, identity.Alternate)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("claim raw-HID interface: %w", err)
	}

	in, err := iface.InEndpoint(identity.EndpointIn)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("open IN endpoint: %w", err)
	}
	out, err := iface.OutEndpoint(identity.EndpointOut)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("open OUT endpoint: %w", err)
	}

	return &gousbRawDevice{dev: dev, cfg: cfg, iface: iface, in: in, out: out}, nil
}

func (d *gousbRawDevice) Write(buf []byte) (int, error) {
	return d.out.Write(buf)
}

func (d *gousbRawDevice) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	n, err := d.in.ReadContext(timeoutContext(timeout), buf)
	return n, err
}

func (d *gousbRawDevice) Close() error {
	d.iface.Close()
	d.cfg.Close()
	return d.dev.Close()
}

// EnumeratePresent reports whether a device matching identity is
// currently enumerated, without opening it. Used by the polling presence
// source.
func EnumeratePresent(identity Identity) bool {
	ctx := ensureContext()
	found := false
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == identity.VendorID && desc.Product == identity.ProductID {
			found = true
		}
		return false // never actually open here, just probing descriptors
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return found
	}
	return found
}
