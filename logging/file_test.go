package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usbinspector.log")
	appender := NewFileAppender(path)

	logger := NewBlankLogger("file")
	logger.AddAppender(appender)
	logger.SetLevel(INFO)
	logger.Sublogger("parser").Infow("resolved", "vid", "0781")
	logger.Debug("filtered")
	test.That(t, logger.Close(), test.ShouldBeNil)

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	test.That(t, lines, test.ShouldHaveLength, 1)

	var entry map[string]interface{}
	test.That(t, json.Unmarshal([]byte(lines[0]), &entry), test.ShouldBeNil)
	test.That(t, entry["msg"], test.ShouldEqual, "resolved")
	test.That(t, entry["logger"], test.ShouldEqual, "file.parser")
	test.That(t, entry["level"], test.ShouldEqual, "INFO")
	test.That(t, entry["vid"], test.ShouldEqual, "0781")
}
