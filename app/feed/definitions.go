package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is a bootstrap feed subscription provisioned from a YAML file
// in the feeds directory. Deployments use these to pre-register feeds; the
// API is the normal way to manage subscriptions afterwards.
type Definition struct {
	Name            string            `yaml:"name"`
	LanguageID      int64             `yaml:"language_id"`
	URL             string            `yaml:"url"`
	ArticleSelector string            `yaml:"article_selector"`
	FilterSelector  string            `yaml:"filter_selector"`
	Options         map[string]string `yaml:"options"`
}

// BuildOptions converts the definition's option map into Options.
func (d Definition) BuildOptions() Options {
	var options Options
	for key, value := range d.Options {
		options.Set(key, value)
	}
	return options
}

// LoadDefinitions reads and validates all *.yml files in dir. A missing
// directory yields no definitions; a malformed file is an error.
func LoadDefinitions(dir string) ([]Definition, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}

	var definitions []Definition
	for _, file := range files {
		definition, err := parseDefinition(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		definitions = append(definitions, *definition)
		slog.Debug("Feed definition loaded", "feed", definition.Name, "url", definition.URL)
	}

	return definitions, nil
}

func parseDefinition(file string) (*Definition, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var definition Definition
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if definition.Name == "" {
		fileName := filepath.Base(file)
		definition.Name = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	if err := validateDefinition(&definition); err != nil {
		return nil, err
	}

	return &definition, nil
}

func validateDefinition(definition *Definition) error {
	if definition.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	if definition.LanguageID <= 0 {
		return fmt.Errorf("language_id is required")
	}

	if spec, ok := definition.Options[OptionAutoUpdate]; ok && spec != "" {
		if _, valid := ParseInterval(spec); !valid {
			return fmt.Errorf("invalid autoupdate interval: %q", spec)
		}
	}

	return nil
}
