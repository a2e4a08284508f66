package usb

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/usbinspector/logging"
)

const (
	errMsgNoIdentifier = "no VID/PID found in instance path, hardware ids or parent path"
	errMsgNoUSBStor    = "no VID/PID found and no USBSTOR reference to resolve"
	errMsgLookupFailed = "USBSTOR parent lookup failed"
	errMsgParentNoID   = "no VID/PID found in USBSTOR parent path"
)

// ParseDeviceProperties fills in the vendor and product ids of dev from, in order, its instance
// path, each of its hardware ids, and its parent path. The first source carrying both markers
// wins. On failure dev is marked Invalid and its identifiers are left untouched. A nil dev
// returns false without any change.
func ParseDeviceProperties(dev *Device) bool {
	if dev == nil {
		return false
	}

	source, id, ok := findIdentifier(dev)
	if !ok {
		dev.markInvalid(errMsgNoIdentifier)
		return false
	}

	dev.markValid(id, firstSerial(source, dev.InstancePath))
	return true
}

func findIdentifier(dev *Device) (string, Identifier, bool) {
	if id, ok := ExtractVIDPID(dev.InstancePath); ok {
		return dev.InstancePath, id, true
	}
	for _, hardwareID := range dev.HardwareIDs {
		if id, ok := ExtractVIDPID(hardwareID); ok {
			return hardwareID, id, true
		}
	}
	if id, ok := ExtractVIDPID(dev.ParentPath); ok {
		return dev.ParentPath, id, true
	}
	return "", Identifier{}, false
}

func firstSerial(paths ...string) string {
	for _, path := range paths {
		if serial := ExtractSerialNumber(path); serial != "" {
			return serial
		}
	}
	return ""
}

// Parser runs ParseDeviceProperties and, for devices enumerated through the portable device bus,
// falls back to resolving the underlying USB device through a ParentLookup.
type Parser struct {
	lookup ParentLookup
	logger logging.Logger
}

// NewParser returns a Parser using lookup for the USBSTOR fallback. A nil lookup makes every
// fallback attempt fail.
func NewParser(lookup ParentLookup, logger logging.Logger) *Parser {
	return &Parser{lookup: lookup, logger: logger}
}

// ParseDevicePropertiesContext is ParseDeviceProperties with the USBSTOR fallback. When the
// direct sources yield nothing and the instance path embeds `USBSTOR#<a>#<b>`, the parent of
// `USBSTOR\<a>\<b>` is looked up once and its path searched for the identifiers.
//
// The lookup is the only blocking call and is abandoned when ctx is done. Lookup errors are
// logged and reported as false; they never escape. Identifiers are written only on success.
func (p *Parser) ParseDevicePropertiesContext(ctx context.Context, dev *Device) bool {
	if ParseDeviceProperties(dev) {
		return true
	}
	if dev == nil || dev.InstancePath == "" {
		return false
	}

	storID, ok := usbStorDeviceID(dev.InstancePath)
	if !ok {
		p.logger.CDebugw(ctx, "no USBSTOR reference found", "instance_path", dev.InstancePath)
		dev.markInvalid(errMsgNoUSBStor)
		return false
	}
	p.logger.CDebugw(ctx, "found USBSTOR reference", "device_id", storID)

	parent, err := p.lookupParent(ctx, storID)
	if err != nil {
		p.logger.CDebugw(ctx, "failed to query USBSTOR device", "device_id", storID, "error", err)
		dev.markInvalid(fmt.Sprintf("%s: %v", errMsgLookupFailed, err))
		return false
	}

	id, ok := ExtractVIDPID(parent)
	if !ok {
		p.logger.CDebugw(ctx, "USBSTOR parent has no identifier", "device_id", storID, "parent", parent)
		dev.markInvalid(errMsgParentNoID)
		return false
	}

	dev.markValid(id, ExtractSerialNumber(parent))
	p.logger.CDebugw(ctx, "resolved identifier from USBSTOR parent",
		"device_id", storID, "vid", dev.VendorID, "pid", dev.ProductID)
	return true
}

type lookupResult struct {
	parent string
	err    error
}

// lookupParent races the lookup against ctx. A lookup that panics counts as a failed lookup.
func (p *Parser) lookupParent(ctx context.Context, deviceID string) (string, error) {
	if p.lookup == nil {
		return "", errors.New("no parent lookup configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resultCh := make(chan lookupResult, 1)
	go func() {
		var res lookupResult
		defer func() {
			if thePanic := recover(); thePanic != nil {
				res = lookupResult{err: errors.Errorf("panic during parent lookup: %v", thePanic)}
			}
			resultCh <- res
		}()
		res.parent, res.err = p.lookup.LookupDeviceParent(ctx, deviceID)
	}()

	select {
	case <-ctx.Done():
		return "", errors.Wrapf(ctx.Err(), "lookup of %q abandoned", deviceID)
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}
		if res.parent == "" {
			return "", errNoParent
		}
		return res.parent, nil
	}
}
