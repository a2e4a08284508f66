package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/usbinspector/logging"
	"go.viam.com/usbinspector/utils"
)

func TestFromReaderValidate(t *testing.T) {
	logger := logging.NewTestLogger(t)

	_, err := FromReader("somepath", strings.NewReader(""), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath", strings.NewReader(`{"snapshot": 1}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unmarshal")

	_, err = FromReader("somepath", strings.NewReader(`{"snapshots": "x"}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown field")

	conf, err := FromReader("somepath", strings.NewReader(`{}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf, test.ShouldResemble, &Config{
		ConfigFilePath:     "somepath",
		MaxParallelLookups: DefaultMaxParallelLookups,
	})

	_, err = FromReader("somepath", strings.NewReader(`{"lookup_timeout": "later"}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "lookup_timeout")

	_, err = FromReader("somepath", strings.NewReader(`{"lookup_timeout": "-2s"}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "must be positive")

	_, err = FromReader("somepath", strings.NewReader(`{"max_parallel_lookups": -1}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_parallel_lookups")

	conf, err = FromReader("somepath", strings.NewReader(
		`{"snapshot": "devices.json", "lookup_timeout": "2s", "max_parallel_lookups": 2, "show_excluded": true}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Snapshot, test.ShouldEqual, "devices.json")
	test.That(t, conf.MaxParallelLookups, test.ShouldEqual, 2)
	test.That(t, conf.ShowExcluded, test.ShouldBeTrue)
	test.That(t, conf.GetLookupTimeout(logger), test.ShouldEqual, 2*time.Second)
}

func TestGetLookupTimeoutFallback(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv(utils.LookupTimeoutEnvVar, "750ms")

	conf, err := FromReader("somepath", strings.NewReader(`{}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.GetLookupTimeout(logger), test.ShouldEqual, 750*time.Millisecond)
}

func TestReadSubstitutesEnv(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	t.Setenv("TEST_SNAPSHOT_DIR", dir)

	path := filepath.Join(dir, "usbinspector.json")
	err := os.WriteFile(path, []byte(`{"snapshot": "${TEST_SNAPSHOT_DIR}/devices.json", "debug": true}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	conf, err := Read(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, conf.Snapshot, test.ShouldEqual, dir+"/devices.json")
	test.That(t, conf.Debug, test.ShouldBeTrue)

	_, err = Read(filepath.Join(dir, "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read config file")
}
