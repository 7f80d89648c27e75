// Package transport talks to an FTDI FT232R-based USB-to-RS485 adapter
// using raw vendor-specific control requests, the same ones the FTDI D2XX
// and libftdi drivers issue, reimplemented directly over gousb so the rest
// of the module never depends on a system-installed FTDI library.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/gousb"
)

// VendorID and ProductID identify the adapter on the USB bus.
const (
	VendorID  gousb.ID = 0x0403
	ProductID gousb.ID = 0x6001

	baudBase   = 3000000
	baudRate   = 250000
	breakAssertDuration = 92 * time.Microsecond

	ioTimeout = 50 * time.Millisecond

	// FTDI vendor-specific request codes (bRequest), as issued by libftdi.
	sioResetRequest       = 0
	sioSetBaudrateRequest = 3
	sioSetDataRequest     = 4
	sioSetFlowCtrlRequest = 2
	sioSetLatencyTimerReq = 9

	sioResetPurgeRX = 1
	sioResetPurgeTX = 2

	sioSetDataBreakBit = 1 << 14

	requestTypeOut = 0x40 // host-to-device, vendor, device recipient
)

// Error kinds surfaced to callers so they can decide whether a failing
// transaction should be retried.
type ErrorKind int

const (
	KindOK ErrorKind = iota
	KindFailedToSend
	KindTimeout
)

// TransportError wraps an I/O failure with the libusb-style condition that
// caused it, distinguishing conditions serious enough to warrant a device
// reopen from an ordinary short read/write timeout.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// libusb error codes that this adapter has historically surfaced when a
// bulk transfer fails because the device dropped off the bus.
const (
	libusbErrIO        = -110
	libusbErrNoDevice  = -666
)

// Transport owns one FTDI adapter: open/close, break generation, purge and
// timed reads/writes. It does not know about DMX or RDM framing.
type Transport struct {
	descriptor string

	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
}

// Open finds and configures the adapter matching descriptor (a USB bus
// path or serial number used only for logging; VID/PID selects the
// device). Open always leaves the adapter purged, break-off, and running
// at 250,000 baud / 8N2 with flow control disabled.
func Open(descriptor string) (*Transport, error) {
	ctx := gousb.NewContext()

	device, err := ctx.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("transport: open device: %w", err)
	}
	if device == nil {
		ctx.Close()
		return nil, fmt.Errorf("transport: no adapter found (VID:%s PID:%s)", VendorID, ProductID)
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: set config: %w", err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: claim interface: %w", err)
	}

	epOut, err := intf.OutEndpoint(2)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: open OUT endpoint: %w", err)
	}
	epIn, err := intf.InEndpoint(1)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("transport: open IN endpoint: %w", err)
	}

	t := &Transport{
		descriptor: descriptor,
		ctx:        ctx,
		device:     device,
		config:     config,
		intf:       intf,
		epOut:      epOut,
		epIn:       epIn,
	}

	if err := t.reset(); err != nil {
		t.Close()
		return nil, err
	}

	log.Printf("transport: opened %s", descriptor)
	return t, nil
}

func (t *Transport) control(request uint8, value, index uint16) error {
	_, err := t.device.Control(requestTypeOut, request, value, index, nil)
	return err
}

// reset reinitialises the adapter's line settings, matching
// resetUsbAndInitOpenRDM: USB reset, 250000 baud, 8 data bits / 2 stop
// bits / no parity, flow control disabled, both FIFOs purged.
func (t *Transport) reset() error {
	if err := t.control(sioResetRequest, 0, 1); err != nil {
		return fmt.Errorf("transport: usb reset: %w", err)
	}

	divisor := baudBase / baudRate
	if err := t.control(sioSetBaudrateRequest, uint16(divisor), 0); err != nil {
		return fmt.Errorf("transport: set baudrate: %w", err)
	}

	// 8 data bits, 2 stop bits, no parity: see FTDI AN232B-05 bit layout.
	const lineProps = 8 | (2 << 11)
	if err := t.control(sioSetDataRequest, lineProps, 0); err != nil {
		return fmt.Errorf("transport: set line properties: %w", err)
	}

	if err := t.control(sioSetFlowCtrlRequest, 0, 0); err != nil {
		return fmt.Errorf("transport: disable flow control: %w", err)
	}

	if err := t.control(sioSetLatencyTimerReq, 2, 0); err != nil {
		return fmt.Errorf("transport: set latency timer: %w", err)
	}

	return t.Purge()
}

// Purge clears both the device's RX and TX FIFOs.
func (t *Transport) Purge() error {
	if err := t.control(sioResetRequest, sioResetPurgeRX, 0); err != nil {
		return fmt.Errorf("transport: purge rx: %w", err)
	}
	if err := t.control(sioResetRequest, sioResetPurgeTX, 0); err != nil {
		return fmt.Errorf("transport: purge tx: %w", err)
	}
	return nil
}

// breakOn asserts a line break by switching the data bits field to 8N2
// with the break bit set.
func (t *Transport) breakOn() error {
	const lineProps = 8 | (2 << 11) | sioSetDataBreakBit
	return t.control(sioSetDataRequest, lineProps, 0)
}

func (t *Transport) breakOff() error {
	const lineProps = 8 | (2 << 11)
	return t.control(sioSetDataRequest, lineProps, 0)
}

// sendBreak purges both FIFOs, asserts break for 92us, then releases it.
// Every DMX and RDM frame on this bus opens with this sequence.
func (t *Transport) sendBreak() error {
	if err := t.Purge(); err != nil {
		return err
	}
	if err := t.breakOn(); err != nil {
		return fmt.Errorf("transport: assert break: %w", err)
	}
	time.Sleep(breakAssertDuration)
	if err := t.breakOff(); err != nil {
		return fmt.Errorf("transport: release break: %w", err)
	}
	return nil
}

// Write sends a break followed by frame (frame must already begin with its
// start code byte). A write failure that looks like the device dropping
// off the bus (-110 or -666) triggers an automatic reopen.
func (t *Transport) Write(frame []byte) error {
	if err := t.sendBreak(); err != nil {
		return &TransportError{Kind: KindFailedToSend, Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	if _, err := t.epOut.WriteContext(ctx, frame); err != nil {
		if isFatalUSBError(err) {
			if rerr := t.reopen(); rerr != nil {
				log.Printf("transport: reopen after write error failed: %v", rerr)
			}
		}
		return &TransportError{Kind: KindFailedToSend, Err: fmt.Errorf("usb write: %w", err)}
	}
	return nil
}

// Read reads up to len(buf) bytes within the 50ms adapter read timeout.
// A zero-length, non-error read is not itself a timeout; the caller
// distinguishes "nothing arrived" from "something arrived, possibly
// truncated" by inspecting the returned count.
func (t *Transport) Read(buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return n, &TransportError{Kind: KindTimeout, Err: err}
		}
		if isFatalUSBError(err) {
			if rerr := t.reopen(); rerr != nil {
				log.Printf("transport: reopen after read error failed: %v", rerr)
			}
		}
		return n, &TransportError{Kind: KindFailedToSend, Err: fmt.Errorf("usb read: %w", err)}
	}
	return n, nil
}

// DiscardByte reads and discards a single byte, used to drop the break
// marker byte RDM responders prepend ahead of a non-discovery response.
func (t *Transport) DiscardByte() {
	var b [1]byte
	_, _ = t.Read(b[:])
}

func isFatalUSBError(err error) bool {
	// gousb reports libusb failures as plain errors; without a typed
	// libusb error here we fall back to matching the driver's own
	// vocabulary for "the device is gone", same as the C layer checking
	// ret == -110 || ret == -666.
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "no device", "device not found", "i/o error", "disconnected")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// reopen closes and reacquires the USB handle, mirroring reinitOpenRDM: a
// bulk transfer error severe enough to mean "the device vanished" is
// recovered by a full close/reopen rather than a retried transfer. reopen
// itself waits 1s after reacquiring the handle before reinitialising the
// line settings.
func (t *Transport) reopen() error {
	t.closeHandles()

	device, err := t.ctx.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil || device == nil {
		return fmt.Errorf("transport: reopen: device not found: %w", err)
	}
	config, err := device.Config(1)
	if err != nil {
		device.Close()
		return fmt.Errorf("transport: reopen: set config: %w", err)
	}
	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		return fmt.Errorf("transport: reopen: claim interface: %w", err)
	}
	epOut, err := intf.OutEndpoint(2)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		return fmt.Errorf("transport: reopen: OUT endpoint: %w", err)
	}
	epIn, err := intf.InEndpoint(1)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		return fmt.Errorf("transport: reopen: IN endpoint: %w", err)
	}

	t.device, t.config, t.intf, t.epOut, t.epIn = device, config, intf, epOut, epIn

	time.Sleep(1 * time.Second)
	return t.reset()
}

func (t *Transport) closeHandles() {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.config != nil {
		t.config.Close()
		t.config = nil
	}
	if t.device != nil {
		t.device.Close()
		t.device = nil
	}
}

// Close releases the USB interface, config, device handle and context.
func (t *Transport) Close() error {
	t.closeHandles()
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

// Descriptor returns the string this Transport was opened with, used to
// derive a stable controller UID for the widget that owns it.
func (t *Transport) Descriptor() string { return t.descriptor }
