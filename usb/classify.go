package usb

import "strings"

var (
	internalBusPrefixes = []string{`SCSI\`, `SATA\`, `NVME\`, `PCIE\`, `IDE\`}
	cardReaderPrefixes  = []string{`SD\`, `SDBUS\`, `MMC\`}
)

const (
	usbPrefix         = `USB\`
	portableBusPrefix = `SWD\WPDBUSENUM\`
	usbStorMarker     = "USBSTOR"
)

// Bus is the coarse category of the bus a device instance path was enumerated on.
type Bus int

// The known bus categories.
const (
	BusUnknown Bus = iota
	BusUSB
	BusPortableUSB
	BusCardReader
	BusInternal
)

func (b Bus) String() string {
	switch b {
	case BusUSB:
		return "usb"
	case BusPortableUSB:
		return "usb-wpd"
	case BusCardReader:
		return "sd-card-reader"
	case BusInternal:
		return "internal"
	}
	return "unknown"
}

// IsStorage returns whether devices on this bus count as USB storage.
func (b Bus) IsStorage() bool {
	return b == BusUSB || b == BusPortableUSB
}

// hasPrefixFold is strings.HasPrefix with ASCII case folding.
func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasAnyPrefixFold(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPrefixFold(s, prefix) {
			return true
		}
	}
	return false
}

func isInternalBusPath(path string) bool {
	return hasAnyPrefixFold(path, internalBusPrefixes)
}

func isPortableUSBPath(path string) bool {
	return hasPrefixFold(path, portableBusPrefix) &&
		strings.Contains(strings.ToUpper(path), usbStorMarker)
}

// IsUSBStoragePath returns whether the instance path belongs to a USB-attached device. Internal
// bus prefixes are checked first and always win. Besides direct `USB\` paths, storage routed
// through the portable device bus (`SWD\WPDBUSENUM\` with a USBSTOR reference) is accepted.
func IsUSBStoragePath(path string) bool {
	if path == "" || isInternalBusPath(path) {
		return false
	}
	if hasPrefixFold(path, usbPrefix) {
		return true
	}
	return isPortableUSBPath(path)
}

// IsInternalCardReaderPath returns whether the instance path belongs to an internal SD/MMC card
// reader. USB-attached card readers start with `USB\` and never match.
func IsInternalCardReaderPath(path string) bool {
	if path == "" {
		return false
	}
	return hasAnyPrefixFold(path, cardReaderPrefixes)
}

// Classify returns the bus category of an instance path.
func Classify(path string) Bus {
	switch {
	case path == "":
		return BusUnknown
	case isInternalBusPath(path):
		return BusInternal
	case hasPrefixFold(path, usbPrefix):
		return BusUSB
	case isPortableUSBPath(path):
		return BusPortableUSB
	case IsInternalCardReaderPath(path):
		return BusCardReader
	default:
		return BusUnknown
	}
}

// FilterUSBStorageDevices returns the devices whose instance path is USB storage and not an
// internal card reader, in their original order. Nil devices and devices without an instance
// path are dropped. The input is never modified.
func FilterUSBStorageDevices(devices []*Device) []*Device {
	filtered := make([]*Device, 0, len(devices))
	for _, device := range devices {
		if device == nil || device.InstancePath == "" {
			continue
		}
		if IsUSBStoragePath(device.InstancePath) && !IsInternalCardReaderPath(device.InstancePath) {
			filtered = append(filtered, device)
		}
	}
	return filtered
}
