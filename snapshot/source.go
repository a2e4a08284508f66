package snapshot

import (
	"context"
	"sync"

	"go.viam.com/usbinspector/logging"
	"go.viam.com/usbinspector/usb"
)

// FileSource serves devices and parents from a snapshot file, re-reading the file on every
// enumeration so that edits are picked up without a restart.
type FileSource struct {
	path   string
	logger logging.Logger

	mu      sync.Mutex
	current *Snapshot
}

// NewFileSource returns a source reading path. The file is not read until first use.
func NewFileSource(path string, logger logging.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

// Path returns the snapshot file path.
func (fs *FileSource) Path() string {
	return fs.path
}

func (fs *FileSource) reload() (*Snapshot, error) {
	s, err := Load(fs.path)
	if err != nil {
		return nil, err
	}
	fs.mu.Lock()
	fs.current = s
	fs.mu.Unlock()
	fs.logger.Debugw("loaded snapshot", "path", fs.path, "devices", s.Len())
	return s, nil
}

// Devices reloads the file and returns its devices.
func (fs *FileSource) Devices(ctx context.Context) ([]*usb.Device, error) {
	s, err := fs.reload()
	if err != nil {
		return nil, err
	}
	return s.Devices(ctx)
}

// LookupDeviceParent answers from the most recently loaded snapshot, loading it if needed.
func (fs *FileSource) LookupDeviceParent(ctx context.Context, deviceID string) (string, error) {
	fs.mu.Lock()
	s := fs.current
	fs.mu.Unlock()
	if s == nil {
		var err error
		if s, err = fs.reload(); err != nil {
			return "", err
		}
	}
	return s.LookupDeviceParent(ctx, deviceID)
}
