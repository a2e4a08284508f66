// Package sysfs enumerates block devices from a Linux sysfs tree and describes each one with a
// bus-qualified instance path, so that they can be classified like any other device record.
package sysfs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/usbinspector/logging"
	"go.viam.com/usbinspector/usb"
)

// DefaultRoot is where sysfs is mounted.
const DefaultRoot = "/sys"

var nonWord = regexp.MustCompile(`\W+`)

// Enumerator lists the block devices under Root.
type Enumerator struct {
	Root   string
	logger logging.Logger
}

// NewEnumerator returns an Enumerator over the sysfs tree at root, or DefaultRoot when empty.
func NewEnumerator(root string, logger logging.Logger) *Enumerator {
	if root == "" {
		root = DefaultRoot
	}
	return &Enumerator{Root: root, logger: logger}
}

// usbInfo is what the USB device owning a block device tells about itself.
type usbInfo struct {
	vendorID     int
	productID    int
	revision     string
	serial       string
	manufacturer string
	product      string
}

// Devices returns one record per block device, skipping virtual ones (loop, ram, dm).
func (e *Enumerator) Devices(ctx context.Context) ([]*usb.Device, error) {
	blockDir := filepath.Join(e.Root, "block")
	entries, err := os.ReadDir(blockDir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list %q", blockDir)
	}

	root, err := filepath.EvalSymlinks(e.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve %q", e.Root)
	}

	devices := make([]*usb.Device, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		realPath, err := filepath.EvalSymlinks(filepath.Join(blockDir, name))
		if err != nil {
			e.logger.Debugw("cannot resolve block device", "name", name, "error", err)
			continue
		}
		if strings.Contains(filepath.ToSlash(realPath), "/virtual/") {
			continue
		}
		devices = append(devices, e.describe(root, name, realPath))
	}
	return devices, nil
}

func (e *Enumerator) describe(root, name, realPath string) *usb.Device {
	vendor, model := diskModel(realPath)
	dev := &usb.Device{
		ID:           "/dev/" + name,
		FriendlyName: strings.TrimSpace(strings.Join([]string{vendor, model}, " ")),
		Manufacturer: vendor,
	}

	if usbDir, ok := findUSBDevice(root, realPath); ok {
		info, err := readUSBInfo(usbDir)
		if err == nil {
			instanceID := info.serial
			if instanceID == "" || nonWord.MatchString(instanceID) {
				instanceID = "5&" + filepath.Base(usbDir) + "&0"
			}
			dev.InstancePath = fmt.Sprintf(`USB\VID_%04X&PID_%04X\%s`, info.vendorID, info.productID, instanceID)
			dev.HardwareIDs = []string{
				fmt.Sprintf(`USB\VID_%04X&PID_%04X&REV_%s`, info.vendorID, info.productID, info.revision),
				fmt.Sprintf(`USB\VID_%04X&PID_%04X`, info.vendorID, info.productID),
			}
			if info.manufacturer != "" {
				dev.Manufacturer = info.manufacturer
			}
			if dev.FriendlyName == "" {
				dev.FriendlyName = info.product
			}
			return dev
		}
		e.logger.Debugw("cannot read USB device info", "path", usbDir, "error", err)
	}

	dev.InstancePath = internalInstancePath(name, realPath, vendor, model)
	return dev
}

// findUSBDevice walks up from a block device to the USB device it hangs off, if any.
func findUSBDevice(root, realPath string) (string, bool) {
	for dir := filepath.Dir(realPath); len(dir) > len(root); dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir, true
		}
	}
	return "", false
}

// diskModel reads the vendor and model attributes of the device backing a block device.
func diskModel(realPath string) (string, string) {
	deviceDir := filepath.Join(realPath, "device")
	return readAttr(filepath.Join(deviceDir, "vendor")), readAttr(filepath.Join(deviceDir, "model"))
}

func readUSBInfo(usbDir string) (usbInfo, error) {
	info := usbInfo{
		serial:       readAttr(filepath.Join(usbDir, "serial")),
		manufacturer: readAttr(filepath.Join(usbDir, "manufacturer")),
		product:      readAttr(filepath.Join(usbDir, "product")),
	}
	var err error
	info.vendorID, info.productID, info.revision, err = readProduct(filepath.Join(usbDir, "uevent"))
	return info, err
}

// readProduct parses the PRODUCT=vvvv/pppp/rrrr line of a USB uevent file.
func readProduct(ueventPath string) (int, int, string, error) {
	//nolint:gosec
	ueventFile, err := os.Open(ueventPath)
	if err != nil {
		return 0, 0, "", err
	}
	defer func() {
		_ = ueventFile.Close()
	}()

	const productPrefix = "PRODUCT="
	scanner := bufio.NewScanner(ueventFile)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, productPrefix) {
			continue
		}
		productInfoParts := strings.Split(strings.TrimPrefix(line, productPrefix), "/")
		if len(productInfoParts) < 2 {
			continue
		}
		vendorID, err := strconv.ParseInt(productInfoParts[0], 16, 64)
		if err != nil {
			continue
		}
		productID, err := strconv.ParseInt(productInfoParts[1], 16, 64)
		if err != nil {
			continue
		}
		revision := "0000"
		if len(productInfoParts) > 2 {
			if rev, err := strconv.ParseInt(productInfoParts[2], 16, 64); err == nil {
				revision = fmt.Sprintf("%04X", rev)
			}
		}
		return int(vendorID), int(productID), revision, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, "", err
	}
	return 0, 0, "", errors.Errorf("no PRODUCT line in %q", ueventPath)
}

// internalInstancePath names a non-USB block device after the bus it sits on.
func internalInstancePath(name, realPath, vendor, model string) string {
	slashed := filepath.ToSlash(realPath)
	switch {
	case strings.Contains(slashed, "/nvme/"):
		return fmt.Sprintf(`NVME\Disk&Prod_%s\%s`, attrToken(model), name)
	case strings.Contains(slashed, "/mmc_host/"):
		return fmt.Sprintf(`SD\%s`, name)
	case strings.Contains(slashed, "/ata"):
		return fmt.Sprintf(`SATA\Disk&Ven_%s&Prod_%s\%s`, attrToken(vendor), attrToken(model), name)
	default:
		return fmt.Sprintf(`SCSI\Disk&Ven_%s&Prod_%s\%s`, attrToken(vendor), attrToken(model), name)
	}
}

func attrToken(attr string) string {
	return strings.Trim(nonWord.ReplaceAllString(attr, "_"), "_")
}

func readAttr(path string) string {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
