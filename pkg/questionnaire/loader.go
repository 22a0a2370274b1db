package questionnaire

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/agro_intake.yaml
var defaultDefinition []byte

// Definition is the static questionnaire configuration: the order-range table
// and the questions it partitions.
type Definition struct {
	Sections  []Section  `yaml:"sections" json:"sections"`
	Questions []Question `yaml:"questions" json:"questions"`
}

// Default returns the embedded agricultural intake questionnaire.
func Default() (*Definition, error) {
	return Parse(defaultDefinition, "defaults/agro_intake.yaml")
}

// LoadFile reads a questionnaire definition from a YAML (or JSON) file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("questionnaire: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes and normalises a definition. source is only used in error messages.
func Parse(data []byte, source string) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("questionnaire: parse %s: %w", source, err)
	}
	if err := def.normalise(source); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) normalise(source string) error {
	if len(d.Sections) == 0 {
		return fmt.Errorf("questionnaire: %s defines no sections", source)
	}

	seenSections := make(map[string]struct{}, len(d.Sections))
	general := 0
	for i := range d.Sections {
		s := &d.Sections[i]
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return fmt.Errorf("questionnaire: %s section #%d has an empty id", source, i)
		}
		if _, dup := seenSections[s.ID]; dup {
			return fmt.Errorf("questionnaire: %s duplicate section %q", source, s.ID)
		}
		seenSections[s.ID] = struct{}{}
		if len(s.Ranges) == 0 {
			return fmt.Errorf("questionnaire: %s section %q has no order ranges", source, s.ID)
		}
		for _, r := range s.Ranges {
			if r.Min > r.Max {
				return fmt.Errorf("questionnaire: %s section %q has inverted range [%v,%v]", source, s.ID, r.Min, r.Max)
			}
		}
		if s.General {
			general++
		}
	}
	if general != 1 {
		return fmt.Errorf("questionnaire: %s must flag exactly one general section, found %d", source, general)
	}

	seenQuestions := make(map[string]struct{}, len(d.Questions))
	for i := range d.Questions {
		q := &d.Questions[i]
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" {
			return fmt.Errorf("questionnaire: %s question #%d has an empty id", source, i)
		}
		if _, dup := seenQuestions[q.ID]; dup {
			return fmt.Errorf("questionnaire: %s duplicate question %q", source, q.ID)
		}
		seenQuestions[q.ID] = struct{}{}
		if q.Type == "" {
			q.Type = TypeText
		}
		if !q.Type.Valid() {
			return fmt.Errorf("questionnaire: %s question %q has unknown type %q", source, q.ID, q.Type)
		}
		if q.Type == TypeSelect && len(q.Options) == 0 {
			return fmt.Errorf("questionnaire: %s select question %q has no options", source, q.ID)
		}
		if q.Type != TypeSelect {
			q.Options = nil
		}
	}

	SortByOrder(d.Questions)
	return nil
}
