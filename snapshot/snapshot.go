// Package snapshot reads device enumerations recorded as JSON. A snapshot serves both as the
// device source and as the parent lookup used to resolve portable device entries.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/usbinspector/usb"
)

// Entry is a single device record in a snapshot.
type Entry struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	InstancePath string   `json:"instance_path,omitempty"`
	HardwareIDs  []string `json:"hardware_ids,omitempty"`
	Parent       string   `json:"parent,omitempty"`
}

type document struct {
	Devices []Entry           `json:"devices"`
	Parents map[string]string `json:"parents,omitempty"`
}

// A Snapshot is an immutable, validated device enumeration.
type Snapshot struct {
	entries []Entry
	parents map[string]string
}

// New returns a snapshot of the given entries. Parent keys are device instance ids and are
// matched case-insensitively.
func New(entries []Entry, parents map[string]string) (*Snapshot, error) {
	if err := validate(entries, parents); err != nil {
		return nil, err
	}
	s := &Snapshot{
		entries: append([]Entry(nil), entries...),
		parents: make(map[string]string, len(parents)),
	}
	for id, parent := range parents {
		s.parents[strings.ToUpper(id)] = parent
	}
	return s, nil
}

// Load reads a snapshot from the given file.
func Load(path string) (*Snapshot, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open snapshot %q", path)
	}
	defer func() {
		// read-only handle
		_ = f.Close()
	}()

	s, err := FromReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load snapshot %q", path)
	}
	return s, nil
}

// FromReader decodes and validates a snapshot.
func FromReader(r io.Reader) (*Snapshot, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "cannot decode snapshot")
	}
	return New(doc.Devices, doc.Parents)
}

func validate(entries []Entry, parents map[string]string) error {
	var errs error
	for idx, entry := range entries {
		if entry.ID == "" && entry.InstancePath == "" {
			errs = multierr.Append(errs, errors.Errorf(`devices.%d: "id" or "instance_path" is required`, idx))
		}
	}

	seen := make(map[string]string, len(parents))
	for id := range parents {
		if strings.TrimSpace(id) == "" {
			errs = multierr.Append(errs, errors.New("parents: empty device id"))
			continue
		}
		key := strings.ToUpper(id)
		if other, ok := seen[key]; ok {
			errs = multierr.Append(errs, errors.Errorf("parents: %q and %q name the same device", other, id))
			continue
		}
		seen[key] = id
	}
	return errs
}

// Len returns the number of device records.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Devices returns fresh device records for every entry, in snapshot order.
func (s *Snapshot) Devices(ctx context.Context) ([]*usb.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	devices := make([]*usb.Device, 0, len(s.entries))
	for _, entry := range s.entries {
		devices = append(devices, &usb.Device{
			ID:           entry.ID,
			FriendlyName: entry.Name,
			Manufacturer: entry.Manufacturer,
			InstancePath: entry.InstancePath,
			HardwareIDs:  append([]string(nil), entry.HardwareIDs...),
			ParentPath:   entry.Parent,
		})
	}
	return devices, nil
}

// LookupDeviceParent returns the recorded parent instance path of deviceID.
func (s *Snapshot) LookupDeviceParent(ctx context.Context, deviceID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	parent, ok := s.parents[strings.ToUpper(deviceID)]
	if !ok {
		return "", usb.NewDeviceNotFoundError(deviceID)
	}
	return parent, nil
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("snapshot(%d devices, %d parents)", len(s.entries), len(s.parents))
}
