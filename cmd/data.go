package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// loadData reads view data from path, choosing the decoder by extension.
// "-" reads JSON from stdin.
func loadData(path string, stdin io.Reader) (map[string]any, error) {
	data := make(map[string]any)
	if path == "" {
		return data, nil
	}

	var (
		content []byte
		err     error
	)
	if path == "-" {
		content, err = io.ReadAll(stdin)
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &data)
	case ".toml":
		err = toml.Unmarshal(content, &data)
	case ".json", "":
		err = json.Unmarshal(content, &data)
	default:
		return nil, fmt.Errorf("unsupported data file format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse data file %s: %w", path, err)
	}
	return data, nil
}

// applySets overlays key=value pairs onto data. Dotted keys create nested
// maps.
func applySets(data map[string]any, sets []string) error {
	for _, set := range sets {
		key, value, ok := strings.Cut(set, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --set value %q, expected key=value", set)
		}

		parts := strings.Split(key, ".")
		target := data
		for _, part := range parts[:len(parts)-1] {
			next, ok := target[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				target[part] = next
			}
			target = next
		}
		target[parts[len(parts)-1]] = value
	}
	return nil
}
