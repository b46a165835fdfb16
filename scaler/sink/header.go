package sink

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/adascale/scaler"
)

// RunHeader is the YAML metadata written next to a CSV output file.
type RunHeader struct {
	Version   int           `yaml:"version"`
	StartedAt time.Time     `yaml:"started_at"`
	Rank      int           `yaml:"rank"`
	Mutator   string        `yaml:"mutator"`
	Config    scaler.Config `yaml:"config"`
}

// HeaderPath derives the header file name from a CSV path: out_0.csv → out_0.yaml.
func HeaderPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, ".csv") + ".yaml"
}

// WriteHeader writes h as YAML.
func WriteHeader(path string, h RunHeader) error {
	if h.Version == 0 {
		h.Version = 1
	}
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshaling run header: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing run header: %w", err)
	}
	return nil
}

// LoadHeader reads a header written by WriteHeader.
func LoadHeader(path string) (*RunHeader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run header: %w", err)
	}
	var h RunHeader
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing run header: %w", err)
	}
	return &h, nil
}
