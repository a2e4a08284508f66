package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/usbinspector/config"
	"go.viam.com/usbinspector/inspector"
	"go.viam.com/usbinspector/logging"
	"go.viam.com/usbinspector/snapshot"
	"go.viam.com/usbinspector/sysfs"
	"go.viam.com/usbinspector/usb"
)

type deviceJSON struct {
	Name         string `json:"name"`
	VendorID     string `json:"vid,omitempty"`
	ProductID    string `json:"pid,omitempty"`
	SerialNumber string `json:"serial,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	InstancePath string `json:"instance_path"`
	Bus          string `json:"bus"`
}

type listingJSON struct {
	ID       string       `json:"id"`
	Summary  string       `json:"summary"`
	Devices  []deviceJSON `json:"devices"`
	Excluded []deviceJSON `json:"excluded,omitempty"`
}

func newInspector(enumerator inspector.Enumerator, lookup usb.ParentLookup, conf *config.Config,
	logger logging.Logger,
) *inspector.Inspector {
	return inspector.New(enumerator, lookup, logger.Sublogger("inspector"),
		inspector.WithLookupTimeout(conf.GetLookupTimeout(logger)),
		inspector.WithMaxParallel(conf.MaxParallelLookups),
	)
}

func newSnapshotInspector(path string, conf *config.Config, logger logging.Logger) *inspector.Inspector {
	source := snapshot.NewFileSource(path, logger.Sublogger("snapshot"))
	return newInspector(source, source, conf, logger)
}

// ListAction is the corresponding Action for 'list'.
func ListAction(c *cli.Context) error {
	conf, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(logger.Close)
	var in *inspector.Inspector
	if c.Bool(sysfsFlag) {
		// sysfs only lists devices by their USB path, so no parent lookup is needed
		in = newInspector(sysfs.NewEnumerator(conf.SysfsRoot, logger.Sublogger("sysfs")), nil, conf, logger)
	} else {
		path, err := snapshotPath(c, conf)
		if err != nil {
			return err
		}
		in = newSnapshotInspector(path, conf, logger)
	}

	ctx := c.Context
	if c.Bool(traceFlag) {
		ctx = logging.EnableDebugMode(ctx, "")
	}
	res, err := in.Refresh(ctx)
	if err != nil {
		return err
	}

	showAll := c.Bool(allFlag) || conf.ShowExcluded
	if c.Bool(jsonFlag) {
		return printListingJSON(c, res, showAll)
	}
	printf(c.App.Writer, "%s", renderDevices(res, showAll))
	printf(c.App.Writer, "%s", res.DeviceCountText())
	if invalid := len(res.Devices) - len(res.Valid()); invalid > 0 {
		warningf(c.App.ErrWriter, "%d device(s) without a resolved VID/PID", invalid)
	}
	return nil
}

func deviceName(dev *usb.Device) string {
	if dev.FriendlyName != "" {
		return dev.FriendlyName
	}
	return dev.ID
}

func renderDevices(res *inspector.Result, showAll bool) string {
	t := table.NewWriter()
	header := table.Row{"#", "Name", "VID", "PID", "Serial", "Status", "Instance Path"}
	if showAll {
		header = append(header, "Bus")
	}
	t.AppendHeader(header)

	appendDevice := func(i int, dev *usb.Device, status string) {
		row := table.Row{
			fmt.Sprintf("%d", i+1),
			deviceName(dev),
			dev.VendorID,
			dev.ProductID,
			dev.SerialNumber,
			status,
			dev.InstancePath,
		}
		if showAll {
			row = append(row, usb.Classify(dev.InstancePath).String())
		}
		t.AppendRow(row)
	}
	for i, dev := range res.Devices {
		appendDevice(i, dev, dev.State.String())
	}
	if showAll {
		for i, dev := range res.ExcludedDevices {
			appendDevice(len(res.Devices)+i, dev, "excluded")
		}
	}
	return t.Render()
}

func toDeviceJSON(dev *usb.Device, status string) deviceJSON {
	return deviceJSON{
		Name:         deviceName(dev),
		VendorID:     dev.VendorID,
		ProductID:    dev.ProductID,
		SerialNumber: dev.SerialNumber,
		Status:       status,
		Error:        dev.ErrorMessage,
		InstancePath: dev.InstancePath,
		Bus:          usb.Classify(dev.InstancePath).String(),
	}
}

func printListingJSON(c *cli.Context, res *inspector.Result, showAll bool) error {
	listing := listingJSON{
		ID:      res.ID.String(),
		Summary: res.DeviceCountText(),
		Devices: make([]deviceJSON, 0, len(res.Devices)),
	}
	for _, dev := range res.Devices {
		listing.Devices = append(listing.Devices, toDeviceJSON(dev, dev.State.String()))
	}
	if showAll {
		for _, dev := range res.ExcludedDevices {
			listing.Excluded = append(listing.Excluded, toDeviceJSON(dev, "excluded"))
		}
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(listing)
}

// WatchAction is the corresponding Action for 'watch'.
func WatchAction(c *cli.Context) error {
	conf, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(logger.Close)
	path, err := snapshotPath(c, conf)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	in := newSnapshotInspector(path, conf, logger)
	refresh := func() {
		res, err := in.Refresh(ctx)
		if err != nil {
			// the file may be mid-write; the next change triggers another refresh
			return
		}
		printf(c.App.Writer, "%s", renderDevices(res, conf.ShowExcluded))
		printf(c.App.Writer, "%s", res.DeviceCountText())
	}
	refresh()

	logger.Infow("watching snapshot for changes", "path", path)
	return snapshot.Watch(ctx, path, logger.Sublogger("watch"), refresh)
}
