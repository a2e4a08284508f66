// Package usb classifies storage devices by their platform instance paths and extracts the
// USB vendor/product identifiers embedded in those paths.
//
// Instance paths look like `USB\VID_0781&PID_5581\4C530001231120115142`. Devices routed through
// the portable device (WPD) bus carry an indirect reference instead, for example
// `SWD\WPDBUSENUM\_??_USBSTOR#Disk&Ven_Generic&Prod_Flash_Disk&Rev_8.07#512067C4&0#{...}`, which
// is resolved to the underlying USB device through a ParentLookup.
package usb

import "fmt"

// Identifier identifies a specific USB device by the vendor who produced it and the product
// that it is. Both parts are exactly 4 uppercase hexadecimal characters.
type Identifier struct {
	Vendor  string
	Product string
}

func (id Identifier) String() string {
	return fmt.Sprintf("VID_%s&PID_%s", id.Vendor, id.Product)
}
