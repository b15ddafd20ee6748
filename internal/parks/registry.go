// Package parks holds the static park registry: which parks exist, their
// local timezone, and which entity-code prefixes belong to them.
package parks

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Park describes one park in the registry file.
type Park struct {
	Code           string   `yaml:"code"`
	Name           string   `yaml:"name"`
	Timezone       string   `yaml:"timezone"`
	EntityPrefixes []string `yaml:"entity_prefixes"`
}

type file struct {
	Parks []Park `yaml:"parks"`
}

// Registry resolves park metadata. It is immutable after construction.
type Registry struct {
	parks    map[string]Park
	locs     map[string]*time.Location
	prefixes []prefix // longest first
}

type prefix struct {
	value string
	park  string
}

// Load reads a YAML registry from path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read park registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse park registry: %w", err)
	}
	return New(f.Parks)
}

// New builds a registry from park definitions. A park without entity prefixes
// claims its own code as prefix.
func New(list []Park) (*Registry, error) {
	if len(list) == 0 {
		return nil, errors.New("park registry is empty")
	}
	r := &Registry{
		parks: make(map[string]Park, len(list)),
		locs:  make(map[string]*time.Location, len(list)),
	}
	for _, p := range list {
		p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
		if p.Code == "" {
			return nil, errors.New("park with empty code")
		}
		if _, dup := r.parks[p.Code]; dup {
			return nil, fmt.Errorf("duplicate park %q", p.Code)
		}
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, fmt.Errorf("park %s timezone %q: %w", p.Code, p.Timezone, err)
		}
		if len(p.EntityPrefixes) == 0 {
			p.EntityPrefixes = []string{p.Code}
		}
		for _, px := range p.EntityPrefixes {
			r.prefixes = append(r.prefixes, prefix{value: strings.ToUpper(px), park: p.Code})
		}
		r.parks[p.Code] = p
		r.locs[p.Code] = loc
	}
	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].value) > len(r.prefixes[j].value)
	})
	return r, nil
}

// Codes returns all park codes in sorted order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.parks))
	for c := range r.parks {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Park returns the definition for a code.
func (r *Registry) Park(code string) (Park, bool) {
	p, ok := r.parks[strings.ToUpper(code)]
	return p, ok
}

// Location returns the park's timezone, or UTC for unknown parks.
func (r *Registry) Location(code string) *time.Location {
	if loc, ok := r.locs[strings.ToUpper(code)]; ok {
		return loc
	}
	return time.UTC
}

// ParkForEntity returns the park owning an entity code by longest matching prefix.
func (r *Registry) ParkForEntity(entityCode string) (string, bool) {
	code := strings.ToUpper(entityCode)
	for _, px := range r.prefixes {
		if strings.HasPrefix(code, px.value) {
			return px.park, true
		}
	}
	return "", false
}
