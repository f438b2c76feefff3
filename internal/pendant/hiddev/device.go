// Package hiddev is the go-hid transport of the XHC-HB04 pendant.
package hiddev

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPendantBridge/internal/pendant"
	"github.com/sstallion/go-hid"
	"go.uber.org/zap"
)

const readBufferSize = 64

// Device is an opened pendant. Input and output may share one HID handle.
type Device struct {
	in          *hid.Device
	out         *hid.Device
	readTimeout time.Duration
	logger      *zap.Logger

	mu        sync.Mutex
	connected bool
}

// Open enumerates HID devices with the given VID/PID and opens the pendant.
func Open(vendorID, productID uint16, readTimeout time.Duration, logger *zap.Logger) (*Device, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("hid init failed: %w", err)
	}

	var paths []string
	err := hid.Enumerate(vendorID, productID, func(info *hid.DeviceInfo) error {
		paths = append(paths, info.Path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hid enumerate failed: %w", err)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no HID device with VID=0x%04X PID=0x%04X", vendorID, productID)
	}

	inPath, outPath := pendant.SelectCollections(paths)
	if inPath == "" {
		return nil, fmt.Errorf("pendant input collection not found")
	}
	if outPath == "" {
		return nil, fmt.Errorf("pendant output collection not found")
	}

	in, err := hid.OpenPath(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", inPath, err)
	}

	out := in
	if outPath != inPath {
		out, err = hid.OpenPath(outPath)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("failed to open %s: %w", outPath, err)
		}
	}

	logger.Info("Pendant opened",
		zap.String("input", inPath),
		zap.String("output", outPath))

	return &Device{
		in:          in,
		out:         out,
		readTimeout: readTimeout,
		logger:      logger,
		connected:   true,
	}, nil
}

// SendFeatureReport writes one display packet.
func (d *Device) SendFeatureReport(packet []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return 0, fmt.Errorf("pendant not connected")
	}

	n, err := d.out.SendFeatureReport(packet)
	if err != nil {
		return n, fmt.Errorf("send feature report failed: %w", err)
	}
	return n, nil
}

// ReadLoop delivers every input report to handle until ctx is done or a read fails.
// A read failure means the pendant is gone; it is returned to the caller.
func (d *Device) ReadLoop(ctx context.Context, handle func([]byte)) error {
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := d.in.ReadWithTimeout(buf, d.readTimeout)
		if errors.Is(err, hid.ErrTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("pendant read failed: %w", err)
		}
		if n == 0 {
			continue
		}

		report := make([]byte, n)
		copy(report, buf[:n])
		handle(report)
	}
}

// Close releases the HID handles.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	d.connected = false

	var err error
	if d.out != d.in {
		err = d.out.Close()
	}
	if cerr := d.in.Close(); cerr != nil && err == nil {
		err = cerr
	}

	if xerr := hid.Exit(); xerr != nil {
		d.logger.Warn("hid exit failed", zap.Error(xerr))
	}

	return err
}
