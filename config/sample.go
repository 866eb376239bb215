package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SampleYAML renders every default setting as a YAML config file.
func SampleYAML() ([]byte, error) {
	return yaml.Marshal(Defaults())
}

// WriteSample writes SampleYAML to path, creating its directory.
func WriteSample(path string) error {
	data, err := SampleYAML()
	if err != nil {
		return fmt.Errorf("render sample config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
