package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sla-monitor/watch-server/internal/config"
)

// catalogEntry is one built-in verification service. The catalog defines
// which `<SERVICE>_URL` variables and descriptor keys are recognized.
type catalogEntry struct {
	ID          string
	Name        string
	Description string
}

var builtinCatalog = []catalogEntry{
	{ID: "id-recognition", Name: "ID Recognition", Description: "National ID document recognition endpoint"},
	{ID: "face-compare", Name: "Face Compare", Description: "Face comparison and matching endpoint"},
	{ID: "ocr-service", Name: "OCR Service", Description: "Document OCR extraction endpoint"},
	{ID: "liveness-check", Name: "Liveness Check", Description: "Facial liveness detection endpoint"},
}

// urlEnvKey maps a service id to its URL variable name, e.g.
// "id-recognition" -> "ID_RECOGNITION_URL". The same key is recognized in
// the endpoint descriptor file.
func urlEnvKey(id string) string {
	return strings.ToUpper(strings.ReplaceAll(id, "-", "_")) + "_URL"
}

// displayNameFromID derives a human name for services that do not carry
// one ("report-export" -> "Report Export").
func displayNameFromID(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' })
	if len(words) == 0 {
		return id
	}
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// serviceFileEntry is one service stanza of the optional SERVICES_CONFIG
// YAML file. Unset fields fall back to environment or default values.
type serviceFileEntry struct {
	ID               string            `yaml:"id"`
	Name             string            `yaml:"name"`
	Description      string            `yaml:"description"`
	URL              string            `yaml:"url"`
	Method           string            `yaml:"method"`
	Timeout          *config.Duration  `yaml:"timeout"`
	Retries          *int              `yaml:"retries"`
	RetryDelay       *config.Duration  `yaml:"retry_delay"`
	ExpectedStatuses []int             `yaml:"expected_statuses"`
	Headers          map[string]string `yaml:"headers"`
	Body             string            `yaml:"body"`
}

type servicesFile struct {
	Services []serviceFileEntry `yaml:"services"`
}

// loadServicesFile reads and parses the SERVICES_CONFIG YAML file.
func loadServicesFile(path string) (*servicesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file %s: %w", path, err)
	}
	var f servicesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse services file %s: %w", path, err)
	}
	return &f, nil
}
