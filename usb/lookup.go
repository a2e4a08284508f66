package usb

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ParentLookup resolves a device instance id to the instance path of its parent device. It is
// the platform query behind the portable device fallback in ParseDevicePropertiesContext.
type ParentLookup interface {
	LookupDeviceParent(ctx context.Context, deviceID string) (string, error)
}

// ParentLookupFunc adapts a function to ParentLookup.
type ParentLookupFunc func(ctx context.Context, deviceID string) (string, error)

// LookupDeviceParent calls f.
func (f ParentLookupFunc) LookupDeviceParent(ctx context.Context, deviceID string) (string, error) {
	return f(ctx, deviceID)
}

// DeviceNotFoundError is returned by lookups for device ids the platform does not know.
type DeviceNotFoundError struct {
	ID string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("device %s not found", e.ID)
}

// NewDeviceNotFoundError is used when a lookup cannot find the requested device.
func NewDeviceNotFoundError(id string) error {
	return errors.WithStack(&DeviceNotFoundError{ID: id})
}

// IsDeviceNotFoundError returns whether err is, or wraps, a DeviceNotFoundError.
func IsDeviceNotFoundError(err error) bool {
	var target *DeviceNotFoundError
	return errors.As(err, &target)
}

// errNoParent is returned when a lookup succeeds but yields an empty parent path.
var errNoParent = errors.New("device has no parent")
