package usb

import "strings"

// ParseState tracks the outcome of the most recent parse attempt on a Device.
type ParseState int

// The parse states. A device starts Unparsed and every parse attempt ends in Valid or Invalid.
const (
	Unparsed ParseState = iota
	Valid
	Invalid
)

func (s ParseState) String() string {
	switch s {
	case Unparsed:
		return "unparsed"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

// Device is a storage device record. The raw fields come from platform enumeration and are
// owned by the caller; the identifier fields are filled in by ParseDeviceProperties.
type Device struct {
	ID           string
	FriendlyName string
	Manufacturer string

	InstancePath string
	HardwareIDs  []string
	ParentPath   string

	VendorID     string
	ProductID    string
	SerialNumber string
	State        ParseState
	ErrorMessage string
}

// IsValid returns whether the last parse attempt produced a full identifier.
func (d *Device) IsValid() bool {
	return d.State == Valid
}

// HasSerialNumber returns whether a non-blank serial number is known.
func (d *Device) HasSerialNumber() bool {
	return strings.TrimSpace(d.SerialNumber) != ""
}

// Identifier returns the parsed identifier, if the device is valid.
func (d *Device) Identifier() (Identifier, bool) {
	if !d.IsValid() {
		return Identifier{}, false
	}
	return Identifier{Vendor: d.VendorID, Product: d.ProductID}, true
}

// markValid replaces all identifiers at once; serial is empty when the winning source has none.
func (d *Device) markValid(id Identifier, serial string) {
	d.VendorID = id.Vendor
	d.ProductID = id.Product
	d.SerialNumber = serial
	d.State = Valid
	d.ErrorMessage = ""
}

func (d *Device) markInvalid(reason string) {
	d.State = Invalid
	d.ErrorMessage = reason
}
