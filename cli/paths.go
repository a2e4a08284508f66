package cli

import (
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/usbinspector/usb"
)

var busColors = map[usb.Bus]*color.Color{
	usb.BusUSB:         color.New(color.FgGreen),
	usb.BusPortableUSB: color.New(color.FgGreen),
	usb.BusCardReader:  color.New(color.FgYellow),
	usb.BusInternal:    color.New(color.FgRed),
	usb.BusUnknown:     color.New(color.Faint),
}

func pathArgs(c *cli.Context) ([]string, error) {
	if c.NArg() == 0 {
		return nil, errors.Errorf("%s requires at least one PATH", c.Command.Name)
	}
	return c.Args().Slice(), nil
}

// ClassifyAction is the corresponding Action for 'classify'.
func ClassifyAction(c *cli.Context) error {
	paths, err := pathArgs(c)
	if err != nil {
		return err
	}

	var storage, cardReaders int
	for _, path := range paths {
		bus := usb.Classify(path)
		label := busColors[bus].Sprintf("%-14s", bus.String())
		printf(c.App.Writer, "%s %s", label, path)

		switch {
		case usb.IsInternalCardReaderPath(path):
			cardReaders++
		case usb.IsUSBStoragePath(path):
			storage++
		}
	}

	printf(c.App.Writer, "")
	printf(c.App.Writer, "total: %d, USB storage: %d, card readers: %d, filtered out: %d",
		len(paths), storage, cardReaders, len(paths)-storage)
	return nil
}

// ParseAction is the corresponding Action for 'parse'.
func ParseAction(c *cli.Context) error {
	paths, err := pathArgs(c)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Path", "VID", "PID", "Serial"})
	var missing int
	for _, path := range paths {
		id, ok := usb.ExtractVIDPID(path)
		if !ok {
			missing++
			t.AppendRow(table.Row{path, "-", "-", "-"})
			continue
		}
		serial := usb.ExtractSerialNumber(path)
		if serial == "" {
			serial = "-"
		}
		t.AppendRow(table.Row{path, id.Vendor, id.Product, serial})
	}
	printf(c.App.Writer, "%s", t.Render())
	if missing > 0 {
		warningf(c.App.ErrWriter, "no VID/PID found in %d of %d path(s)", missing, len(paths))
	}
	return nil
}
