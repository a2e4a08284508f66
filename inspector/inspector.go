// Package inspector enumerates attached storage devices, keeps the USB ones and resolves their
// vendor and product ids.
package inspector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/usbinspector/logging"
	"go.viam.com/usbinspector/usb"
	"go.viam.com/usbinspector/utils"
)

// DefaultMaxParallel bounds how many devices are parsed at once.
const DefaultMaxParallel = 4

// An Enumerator lists the storage devices currently attached.
type Enumerator interface {
	Devices(ctx context.Context) ([]*usb.Device, error)
}

// An Option configures an Inspector.
type Option func(*Inspector)

// WithLookupTimeout bounds each device's parent lookup.
func WithLookupTimeout(timeout time.Duration) Option {
	return func(in *Inspector) {
		if timeout > 0 {
			in.lookupTimeout = timeout
		}
	}
}

// WithMaxParallel bounds how many devices are parsed concurrently.
func WithMaxParallel(n int) Option {
	return func(in *Inspector) {
		if n > 0 {
			in.maxParallel = n
		}
	}
}

// WithClock sets the time source for refresh timestamps and lookup deadlines.
func WithClock(clk clock.Clock) Option {
	return func(in *Inspector) {
		in.clock = clk
	}
}

// WithUpdateHandler registers a function called after each device parse. It may be called
// concurrently from several goroutines.
func WithUpdateHandler(onUpdate func(*usb.Device)) Option {
	return func(in *Inspector) {
		in.onUpdate = onUpdate
	}
}

// An Inspector runs enumerations. Enumerate and Reparse calls are serialized so a device record
// is never parsed by two of them at once.
type Inspector struct {
	enumerator    Enumerator
	parser        *usb.Parser
	logger        logging.Logger
	clock         clock.Clock
	lookupTimeout time.Duration
	maxParallel   int
	onUpdate      func(*usb.Device)

	parseMu sync.Mutex

	mu   sync.Mutex
	last *Result
}

// New returns an Inspector reading devices from enumerator and resolving portable devices
// through lookup.
func New(enumerator Enumerator, lookup usb.ParentLookup, logger logging.Logger, opts ...Option) *Inspector {
	in := &Inspector{
		enumerator:  enumerator,
		logger:      logger,
		clock:       clock.New(),
		maxParallel: DefaultMaxParallel,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.lookupTimeout == 0 {
		in.lookupTimeout = utils.GetLookupTimeout(logger)
	}
	in.parser = usb.NewParser(lookup, logger.Sublogger("parser"))
	return in
}

// A Result is the outcome of one enumeration.
type Result struct {
	ID       uuid.UUID
	Started  time.Time
	Finished time.Time

	// Total counts every enumerated record, Excluded those that are not USB storage.
	Total    int
	Excluded int

	Devices         []*usb.Device
	ExcludedDevices []*usb.Device
}

// Valid returns the devices whose identifiers were resolved.
func (r *Result) Valid() []*usb.Device {
	valid := make([]*usb.Device, 0, len(r.Devices))
	for _, dev := range r.Devices {
		if dev.IsValid() {
			valid = append(valid, dev)
		}
	}
	return valid
}

// DeviceCountText describes how many USB devices were found.
func (r *Result) DeviceCountText() string {
	return fmt.Sprintf("%d USB device(s) found", len(r.Devices))
}

// Enumerate lists devices, keeps USB storage devices and parses each of them. A device that
// fails to parse is reported as invalid and never fails the enumeration.
func (in *Inspector) Enumerate(ctx context.Context) (*Result, error) {
	in.parseMu.Lock()
	defer in.parseMu.Unlock()

	res := &Result{ID: uuid.New(), Started: in.clock.Now()}
	all, err := in.enumerator.Devices(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot enumerate devices")
	}

	res.Devices = usb.FilterUSBStorageDevices(all)
	kept := make(map[*usb.Device]struct{}, len(res.Devices))
	for _, dev := range res.Devices {
		kept[dev] = struct{}{}
	}
	for _, dev := range all {
		if dev == nil {
			continue
		}
		res.Total++
		if _, ok := kept[dev]; !ok {
			res.ExcludedDevices = append(res.ExcludedDevices, dev)
		}
	}
	res.Excluded = len(res.ExcludedDevices)

	var group errgroup.Group
	group.SetLimit(in.maxParallel)
	seen := make(map[*usb.Device]struct{}, len(kept))
	for _, dev := range res.Devices {
		// the same record may be listed twice; parse it once
		if _, ok := seen[dev]; ok {
			continue
		}
		seen[dev] = struct{}{}
		dev := dev
		group.Go(func() error {
			in.parse(ctx, dev)
			return nil
		})
	}
	//nolint:errcheck
	group.Wait()

	res.Finished = in.clock.Now()
	in.mu.Lock()
	in.last = res
	in.mu.Unlock()

	in.logger.CDebugw(ctx, "enumeration done", "id", res.ID, "total", res.Total,
		"excluded", res.Excluded, "valid", len(res.Valid()), "took", res.Finished.Sub(res.Started))
	return res, nil
}

// Refresh is Enumerate with a summary logged at info level.
func (in *Inspector) Refresh(ctx context.Context) (*Result, error) {
	res, err := in.Enumerate(ctx)
	if err != nil {
		in.logger.Warnw("device refresh failed", "error", err)
		return nil, err
	}
	in.logger.Infow(res.DeviceCountText(), "valid", len(res.Valid()), "excluded", res.Excluded)
	return res, nil
}

// LastRefreshTime returns when the last successful enumeration finished.
func (in *Inspector) LastRefreshTime() (time.Time, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.last == nil {
		return time.Time{}, false
	}
	return in.last.Finished, true
}

// Devices returns the USB devices of the last successful enumeration.
func (in *Inspector) Devices() []*usb.Device {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.last == nil {
		return []*usb.Device{}
	}
	return append([]*usb.Device{}, in.last.Devices...)
}

// Reparse parses dev again, e.g. after a manual retry request, and reports whether it is valid.
func (in *Inspector) Reparse(ctx context.Context, dev *usb.Device) bool {
	if dev == nil {
		return false
	}
	in.parseMu.Lock()
	defer in.parseMu.Unlock()
	return in.parse(ctx, dev)
}

func (in *Inspector) parse(ctx context.Context, dev *usb.Device) bool {
	lookupCtx, cancel := in.clock.WithTimeout(ctx, in.lookupTimeout)
	defer cancel()

	ok := in.parser.ParseDevicePropertiesContext(lookupCtx, dev)
	if in.onUpdate != nil {
		in.onUpdate(dev)
	}
	return ok
}
