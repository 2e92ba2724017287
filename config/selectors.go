package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default_selectors.yaml
var defaultSelectorsYAML []byte

// Rule is one lookup step for a field. Exactly one variant is set:
// a CSS rule (optionally reading an attribute instead of the text) or a
// meta rule matching <meta property|name|itemprop="..."> and reading content.
type Rule struct {
	CSS  string `yaml:"css" json:"css,omitempty" validate:"required_without=Meta,excluded_with=Meta"`
	Attr string `yaml:"attr" json:"attr,omitempty" validate:"excluded_with=Meta"`
	Meta string `yaml:"meta" json:"meta,omitempty" validate:"required_without=CSS"`
}

// IsMeta reports whether r is the meta-attribute variant.
func (r Rule) IsMeta() bool { return r.Meta != "" }

func (r Rule) String() string {
	switch {
	case r.Meta != "":
		return "meta:" + r.Meta
	case r.Attr != "":
		return r.CSS + "@" + r.Attr
	default:
		return r.CSS
	}
}

type ruleAlias Rule

// UnmarshalYAML accepts either a mapping or a bare string. A bare string is
// a CSS selector, which keeps the flat legacy selector files loadable.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = Rule{CSS: strings.TrimSpace(node.Value)}
		return nil
	}
	var a ruleAlias
	if err := node.Decode(&a); err != nil {
		return err
	}
	*r = Rule(a)
	return nil
}

// DomainSelectors holds the ordered rules for one domain. Order is priority:
// the first rule yielding an admissible value wins.
type DomainSelectors struct {
	Name       []Rule   `yaml:"name" json:"name,omitempty" validate:"dive"`
	Price      []Rule   `yaml:"price" json:"price,omitempty" validate:"dive"`
	OldPrice   []Rule   `yaml:"old_price" json:"old_price,omitempty" validate:"dive"`
	OutOfStock []string `yaml:"out_of_stock" json:"out_of_stock,omitempty" validate:"dive,required"`
}

// SelectorRegistry maps domain substrings to their selector sets.
type SelectorRegistry struct {
	domains map[string]DomainSelectors
}

var validate = validator.New()

// ParseSelectors decodes a YAML (or JSON) document of the form
// {domain: DomainSelectors} and validates every rule. CSS selectors are
// compiled here so that a bad rule fails at load time, not mid-request.
func ParseSelectors(data []byte) (*SelectorRegistry, error) {
	raw := make(map[string]DomainSelectors)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse selectors: %w", err)
	}

	reg := &SelectorRegistry{domains: make(map[string]DomainSelectors, len(raw))}
	var errs []error
	for domain, ds := range raw {
		key := strings.ToLower(strings.TrimSpace(domain))
		if key == "" {
			errs = append(errs, errors.New("empty domain key"))
			continue
		}
		if err := validateDomain(ds); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", domain, err))
			continue
		}
		reg.domains[key] = ds
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reg, nil
}

func validateDomain(ds DomainSelectors) error {
	if err := validate.Struct(ds); err != nil {
		return err
	}
	for _, rules := range [][]Rule{ds.Name, ds.Price, ds.OldPrice} {
		for _, r := range rules {
			if r.CSS == "" {
				continue
			}
			if _, err := cascadia.Compile(r.CSS); err != nil {
				return fmt.Errorf("selector %q: %w", r.CSS, err)
			}
		}
	}
	return nil
}

// DefaultSelectors returns the built-in selector registry.
func DefaultSelectors() *SelectorRegistry {
	reg, err := ParseSelectors(defaultSelectorsYAML)
	if err != nil {
		panic("config: invalid built-in selectors: " + err.Error())
	}
	return reg
}

// LoadSelectors returns the built-in registry merged with the file at path.
// A missing file is not an error; entries from the file override defaults.
func LoadSelectors(path string) (*SelectorRegistry, error) {
	reg := DefaultSelectors()
	if path == "" {
		return reg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read selectors %s: %w", path, err)
	}
	override, err := ParseSelectors(data)
	if err != nil {
		return nil, err
	}
	reg.Merge(override)
	return reg, nil
}

// Merge copies every domain of other into r, replacing existing keys.
func (r *SelectorRegistry) Merge(other *SelectorRegistry) {
	if other == nil {
		return
	}
	for k, v := range other.domains {
		r.domains[k] = v
	}
}

// Len returns the number of configured domains.
func (r *SelectorRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.domains)
}

// Lookup returns the selectors whose domain key is a substring of rawURL's
// host. When several keys match, the longest one wins.
func (r *SelectorRegistry) Lookup(rawURL string) (*DomainSelectors, bool) {
	if r == nil || len(r.domains) == 0 {
		return nil, false
	}
	host := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}

	best := ""
	for key := range r.domains {
		if strings.Contains(host, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return nil, false
	}
	ds := r.domains[best]
	return &ds, true
}
