package inspector

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	clk "github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/usbinspector/logging"
	"go.viam.com/usbinspector/usb"
)

const (
	usbDisk   = `USB\VID_0781&PID_5581\4C530001231120115142`
	nvmeDisk  = `SCSI\Disk&Ven_NVMe&Prod_Samsung\4&2B3C&0&000000`
	sdCard    = `SD\VID_03&OID_5344&PID_SL32G\5&1A2B&0&0`
	wpdFlash  = `SWD\WPDBUSENUM\_??_USBSTOR#Disk&Ven_Generic#512067C4&0#{53f56307}`
	flashID   = `USBSTOR\Disk&Ven_Generic\512067C4&0`
	wpdHang   = `SWD\WPDBUSENUM\_??_USBSTOR#Disk&Ven_Hang#1#{53f56307}`
	flashPath = `USB\VID_058F&PID_6387\512067C4`
)

type fakeEnumerator struct {
	devices []*usb.Device
	err     error
}

func (e *fakeEnumerator) Devices(ctx context.Context) ([]*usb.Device, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.devices, nil
}

func parents(m map[string]string) usb.ParentLookup {
	return usb.ParentLookupFunc(func(ctx context.Context, deviceID string) (string, error) {
		parent, ok := m[deviceID]
		if !ok {
			return "", usb.NewDeviceNotFoundError(deviceID)
		}
		return parent, nil
	})
}

func TestEnumerate(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mockClock := clk.NewMock()
	start := mockClock.Now()

	internal := &usb.Device{ID: "nvme", InstancePath: nvmeDisk}
	disk := &usb.Device{ID: "disk", InstancePath: usbDisk}
	card := &usb.Device{ID: "card", InstancePath: sdCard}
	flash := &usb.Device{ID: "flash", InstancePath: wpdFlash}
	orphan := &usb.Device{ID: "orphan", InstancePath: `SWD\WPDBUSENUM\_??_USBSTOR#Disk&Ven_X#001#{g}`}

	var updates sync.Map
	in := New(
		&fakeEnumerator{devices: []*usb.Device{internal, disk, nil, card, flash, orphan}},
		parents(map[string]string{flashID: flashPath}),
		logger,
		WithClock(mockClock),
		WithLookupTimeout(time.Second),
		WithUpdateHandler(func(dev *usb.Device) { updates.Store(dev.ID, dev.State) }),
	)

	_, ok := in.LastRefreshTime()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, in.Devices(), test.ShouldBeEmpty)

	res, err := in.Enumerate(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.ID.String(), test.ShouldNotBeEmpty)
	test.That(t, res.Total, test.ShouldEqual, 5)
	test.That(t, res.Excluded, test.ShouldEqual, 2)
	test.That(t, res.ExcludedDevices, test.ShouldResemble, []*usb.Device{internal, card})
	test.That(t, res.Devices, test.ShouldResemble, []*usb.Device{disk, flash, orphan})
	test.That(t, res.DeviceCountText(), test.ShouldEqual, "3 USB device(s) found")
	test.That(t, res.Valid(), test.ShouldResemble, []*usb.Device{disk, flash})

	test.That(t, disk.VendorID, test.ShouldEqual, "0781")
	test.That(t, flash.VendorID, test.ShouldEqual, "058F")
	test.That(t, flash.ProductID, test.ShouldEqual, "6387")
	test.That(t, orphan.State, test.ShouldEqual, usb.Invalid)
	test.That(t, internal.State, test.ShouldEqual, usb.Unparsed)
	test.That(t, card.State, test.ShouldEqual, usb.Unparsed)

	for id, state := range map[string]usb.ParseState{"disk": usb.Valid, "flash": usb.Valid, "orphan": usb.Invalid} {
		got, ok := updates.Load(id)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, got, test.ShouldEqual, state)
	}
	_, ok = updates.Load("nvme")
	test.That(t, ok, test.ShouldBeFalse)

	refreshed, ok := in.LastRefreshTime()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, refreshed, test.ShouldEqual, start)
	test.That(t, in.Devices(), test.ShouldResemble, []*usb.Device{disk, flash, orphan})

	mockClock.Add(time.Minute)
	_, err = in.Refresh(context.Background())
	test.That(t, err, test.ShouldBeNil)
	refreshed, ok = in.LastRefreshTime()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, refreshed, test.ShouldEqual, start.Add(time.Minute))
}

func TestEnumerateError(t *testing.T) {
	logger, observed := logging.NewObservedTestLogger(t)
	in := New(&fakeEnumerator{err: errors.New("access denied")}, nil, logger)

	_, err := in.Enumerate(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot enumerate devices")
	test.That(t, err.Error(), test.ShouldContainSubstring, "access denied")

	_, err = in.Refresh(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, observed.FilterMessage("device refresh failed").Len(), test.ShouldEqual, 1)

	_, ok := in.LastRefreshTime()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestEnumerateDuplicateRecord(t *testing.T) {
	var calls atomic.Int32
	disk := &usb.Device{InstancePath: usbDisk}
	in := New(&fakeEnumerator{devices: []*usb.Device{disk, disk}}, nil, logging.NewTestLogger(t),
		WithUpdateHandler(func(*usb.Device) { calls.Add(1) }))

	res, err := in.Enumerate(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Devices, test.ShouldHaveLength, 2)
	test.That(t, calls.Load(), test.ShouldEqual, 1)
}

func TestEnumerateLookupTimeout(t *testing.T) {
	mockClock := clk.NewMock()
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	lookup := usb.ParentLookupFunc(func(ctx context.Context, deviceID string) (string, error) {
		close(started)
		<-release
		return flashPath, nil
	})

	hang := &usb.Device{ID: "hang", InstancePath: wpdHang}
	disk := &usb.Device{ID: "disk", InstancePath: usbDisk}
	in := New(&fakeEnumerator{devices: []*usb.Device{hang, disk}}, lookup, logging.NewTestLogger(t),
		WithClock(mockClock), WithLookupTimeout(5*time.Second))

	type enumerateResult struct {
		res *Result
		err error
	}
	done := make(chan enumerateResult, 1)
	go func() {
		res, err := in.Enumerate(context.Background())
		done <- enumerateResult{res, err}
	}()

	<-started
	mockClock.Add(5 * time.Second)

	out := <-done
	test.That(t, out.err, test.ShouldBeNil)
	test.That(t, hang.State, test.ShouldEqual, usb.Invalid)
	test.That(t, hang.VendorID, test.ShouldBeEmpty)
	test.That(t, hang.ErrorMessage, test.ShouldContainSubstring, "abandoned")
	test.That(t, disk.IsValid(), test.ShouldBeTrue)
	test.That(t, out.res.Valid(), test.ShouldResemble, []*usb.Device{disk})
}

func TestEnumerateMaxParallel(t *testing.T) {
	var inFlight, peak atomic.Int32
	lookup := usb.ParentLookupFunc(func(ctx context.Context, deviceID string) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return flashPath, nil
	})

	var devices []*usb.Device
	for _, tok := range []string{"1", "2", "3", "4", "5", "6"} {
		devices = append(devices, &usb.Device{InstancePath: `SWD\WPDBUSENUM\_??_USBSTOR#Disk#` + tok + `#{g}`})
	}
	in := New(&fakeEnumerator{devices: devices}, lookup, logging.NewTestLogger(t), WithMaxParallel(2))

	res, err := in.Enumerate(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Valid(), test.ShouldHaveLength, 6)
	test.That(t, peak.Load(), test.ShouldBeLessThanOrEqualTo, 2)
	test.That(t, peak.Load(), test.ShouldBeGreaterThanOrEqualTo, 1)
}

func TestReparse(t *testing.T) {
	known := map[string]string{}
	var updates atomic.Int32
	in := New(&fakeEnumerator{}, parents(known), logging.NewTestLogger(t),
		WithUpdateHandler(func(*usb.Device) { updates.Add(1) }))

	test.That(t, in.Reparse(context.Background(), nil), test.ShouldBeFalse)

	flash := &usb.Device{InstancePath: wpdFlash}
	test.That(t, in.Reparse(context.Background(), flash), test.ShouldBeFalse)
	test.That(t, flash.State, test.ShouldEqual, usb.Invalid)

	known[flashID] = flashPath
	test.That(t, in.Reparse(context.Background(), flash), test.ShouldBeTrue)
	test.That(t, flash.State, test.ShouldEqual, usb.Valid)
	test.That(t, flash.ErrorMessage, test.ShouldBeEmpty)
	test.That(t, in.Reparse(context.Background(), flash), test.ShouldBeTrue)
	test.That(t, updates.Load(), test.ShouldEqual, 3)
}

func TestReparseWaitsForEnumerate(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var inFlight, peak atomic.Int32
	lookup := usb.ParentLookupFunc(func(ctx context.Context, deviceID string) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		entered <- struct{}{}
		<-release
		return flashPath, nil
	})
	flash := &usb.Device{InstancePath: wpdFlash}
	in := New(&fakeEnumerator{devices: []*usb.Device{flash}}, lookup, logging.NewTestLogger(t))

	enumerated := make(chan error, 1)
	go func() {
		_, err := in.Enumerate(context.Background())
		enumerated <- err
	}()
	<-entered

	reparsed := make(chan bool, 1)
	go func() {
		reparsed <- in.Reparse(context.Background(), flash)
	}()
	select {
	case <-entered:
		t.Fatal("retry parsed the device while the enumeration was still parsing it")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	test.That(t, <-enumerated, test.ShouldBeNil)
	test.That(t, <-reparsed, test.ShouldBeTrue)
	test.That(t, peak.Load(), test.ShouldEqual, 1)
	test.That(t, flash.State, test.ShouldEqual, usb.Valid)
}
