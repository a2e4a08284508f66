package usb

import (
	"regexp"
	"strings"
)

var (
	vidRegex = regexp.MustCompile(`(?i)VID_([0-9A-F]{4})`)
	pidRegex = regexp.MustCompile(`(?i)PID_([0-9A-F]{4})`)

	// e.g. USB\VID_0781&PID_5581\4C530001231120115142.
	serialRegex = regexp.MustCompile(`(?i)^USB\\VID_[0-9A-F]{4}&PID_[0-9A-F]{4}\\(\w+)$`)

	// e.g. SWD\WPDBUSENUM\_??_USBSTOR#Disk&Ven_Generic&Prod_Flash_Disk&Rev_8.07#512067C4&0#{...}.
	usbStorRegex = regexp.MustCompile(`(?i)USBSTOR#([^#]+)#([^#]+)`)
)

// ExtractVIDPID finds the `VID_xxxx` and `PID_xxxx` markers anywhere in text. The two markers are
// searched independently and both must be present; there is never a partial result. The
// returned identifier is upper-cased.
func ExtractVIDPID(text string) (Identifier, bool) {
	if text == "" {
		return Identifier{}, false
	}
	vid := vidRegex.FindStringSubmatch(text)
	pid := pidRegex.FindStringSubmatch(text)
	if vid == nil || pid == nil {
		return Identifier{}, false
	}
	return Identifier{
		Vendor:  strings.ToUpper(vid[1]),
		Product: strings.ToUpper(pid[1]),
	}, true
}

// ExtractSerialNumber returns the serial segment of a `USB\VID_xxxx&PID_xxxx\<serial>` instance
// path. Windows substitutes a generated `&`-separated segment for devices that report no serial;
// those, and any other shape, yield "".
func ExtractSerialNumber(instancePath string) string {
	match := serialRegex.FindStringSubmatch(instancePath)
	if match == nil {
		return ""
	}
	return match[1]
}

// usbStorDeviceID extracts the indirect `USBSTOR#<a>#<b>` reference from a portable device path
// and rebuilds it as the storage device's own instance id `USBSTOR\<a>\<b>`.
func usbStorDeviceID(instancePath string) (string, bool) {
	match := usbStorRegex.FindStringSubmatch(instancePath)
	if match == nil {
		return "", false
	}
	return `USBSTOR\` + match[1] + `\` + match[2], true
}
