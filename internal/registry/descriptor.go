package registry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Descriptor holds the values parsed from the endpoint descriptor file:
// a shared API key and per-service URL keys in `<SERVICE>_URL` form.
type Descriptor struct {
	APIKey string
	URLs   map[string]string
}

// ParseDescriptor reads line-oriented KEY=value pairs. Recognized keys are
// "x-api-key" and anything ending in "_URL"; unknown keys, blank lines,
// and '#' comments are ignored.
func ParseDescriptor(r io.Reader) (*Descriptor, error) {
	d := &Descriptor{URLs: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch {
		case key == "x-api-key":
			d.APIKey = value
		case strings.HasSuffix(key, "_URL"):
			d.URLs[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	return d, nil
}

// LoadDescriptor parses the descriptor file at path.
func LoadDescriptor(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open descriptor %s: %w", path, err)
	}
	defer f.Close()
	return ParseDescriptor(f)
}
