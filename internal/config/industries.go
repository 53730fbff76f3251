package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Industry describes one vertical the pipeline can scrape: the search
// queries that surface its ads and the availability keywords whose presence
// marks a 24/7 claim. Keyword matching lives in the normalizer; the sets
// themselves are configuration, not logic.
type Industry struct {
	Name                 string   `yaml:"name"`
	Queries              []string `yaml:"queries"`
	AvailabilityKeywords []string `yaml:"availability_keywords"`
}

// IndustryRegistry maps industry tags (e.g. "hvac") to their configuration.
type IndustryRegistry map[string]Industry

// defaultIndustriesYAML carries the built-in verticals. A config-referenced
// industries file replaces this wholesale.
const defaultIndustriesYAML = `
hvac:
  name: HVAC
  queries:
    - hvac
    - hvac repair
    - air conditioning repair
    - furnace repair
    - heating repair
    - emergency hvac
  availability_keywords:
    - 24/7
    - 24 hour
    - 24-hour
    - around the clock
    - always available
    - emergency
    - after hours
    - nights and weekends
    - open 24
plumber:
  name: Plumber
  queries:
    - plumber
    - plumbing repair
    - emergency plumber
    - drain cleaning
    - water heater repair
  availability_keywords:
    - 24/7
    - 24 hour
    - 24-hour
    - emergency
    - after hours
    - same day
    - nights and weekends
electrician:
  name: Electrician
  queries:
    - electrician
    - electrical repair
    - emergency electrician
    - electrical service
  availability_keywords:
    - 24/7
    - 24 hour
    - 24-hour
    - emergency
    - after hours
    - same day
locksmith:
  name: Locksmith
  queries:
    - locksmith
    - emergency locksmith
    - lockout service
    - lock repair
  availability_keywords:
    - 24/7
    - 24 hour
    - 24-hour
    - emergency
    - lockout
    - immediate
pi:
  name: Private Investigator
  queries:
    - private investigator
    - private detective
    - investigation services
    - surveillance services
  availability_keywords:
    - 24/7
    - 24 hour
    - 24-hour
    - around the clock
    - always available
    - emergency
    - immediate
lawyer:
  name: Lawyer
  queries:
    - personal injury lawyer
    - criminal defense lawyer
    - DUI lawyer
  availability_keywords:
    - 24/7
    - free consultation
    - available now
    - emergency
    - immediate
`

// LoadIndustries returns the industry registry. When path is non-empty the
// YAML file at path replaces the built-in registry.
func LoadIndustries(path string) (IndustryRegistry, error) {
	data := []byte(defaultIndustriesYAML)
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "config: read industries file %s", path)
		}
		data = b
	}

	var reg IndustryRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, eris.Wrap(err, "config: parse industries yaml")
	}
	if len(reg) == 0 {
		return nil, eris.New("config: industries registry is empty")
	}
	return reg, nil
}

// Get returns the configuration for an industry tag.
func (r IndustryRegistry) Get(tag string) (Industry, error) {
	ind, ok := r[tag]
	if !ok {
		return Industry{}, eris.Errorf("config: unknown industry %q", tag)
	}
	return ind, nil
}
