package bridge

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrisonrobin/larkalarm/pkg/surface"
)

//go:embed extension
var extensionFiles embed.FS

// WriteExtension unpacks the companion extension into dir so it can be
// loaded with "Load unpacked". wsURL is the daemon's websocket endpoint.
func WriteExtension(dir, wsURL string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create extension dir: %w", err)
	}

	entries, err := extensionFiles.ReadDir("extension")
	if err != nil {
		return err
	}
	for _, e := range entries {
		b, err := extensionFiles.ReadFile("extension/" + e.Name())
		if err != nil {
			return err
		}
		if err := writeFile(dir, e.Name(), b); err != nil {
			return err
		}
	}

	if err := writeFile(dir, "content.js", surface.ContentScript()); err != nil {
		return err
	}
	endpoint, err := json.Marshal(wsURL)
	if err != nil {
		return err
	}
	return writeFile(dir, "config.js", []byte(fmt.Sprintf("self.LARK_ALARM_WS = %s;\n", endpoint)))
}

func writeFile(dir, name string, b []byte) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
