/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package tier defines license tiers: static policies that map a tier name
// to the number of requests a client may make per quota window.
package tier

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ErrUnknownTier is returned when a tier name is not defined in a Registry.
var ErrUnknownTier = errors.New("unknown license tier")

// Names of the built-in tiers.
const (
	NameLow    = "low"
	NameMedium = "medium"
	NameHigh   = "high"
)

// MaxWindowSeconds is the longest quota window that fits into time.Duration.
const MaxWindowSeconds = math.MaxInt64 / int64(time.Second)

// Tier is a license tier. It is immutable and may be shared by many clients.
type Tier struct {
	Name           string `mapstructure:"name" yaml:"name"`
	QuotaPerWindow int    `mapstructure:"quotaPerWindow" yaml:"quotaPerWindow"`
	WindowSeconds  int    `mapstructure:"windowSeconds" yaml:"windowSeconds"`
}

// Window returns the length of the quota window.
func (t Tier) Window() time.Duration {
	return time.Duration(t.WindowSeconds) * time.Second
}

// Validate checks that the tier can be used for admission.
func (t Tier) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tier name cannot be empty")
	}
	if t.QuotaPerWindow <= 0 {
		return fmt.Errorf("tier %q: quota per window should be positive, got %d", t.Name, t.QuotaPerWindow)
	}
	if t.WindowSeconds <= 0 {
		return fmt.Errorf("tier %q: window seconds should be positive, got %d", t.Name, t.WindowSeconds)
	}
	if int64(t.WindowSeconds) > MaxWindowSeconds {
		return fmt.Errorf("tier %q: window seconds should be <= %d, got %d", t.Name, MaxWindowSeconds, t.WindowSeconds)
	}
	return nil
}

// String implements fmt.Stringer.
func (t Tier) String() string {
	return fmt.Sprintf("%s(%d/%s)", t.Name, t.QuotaPerWindow, t.Window())
}

// Defaults returns the built-in tiers. For each of them the quota equals the window length in seconds.
func Defaults() []Tier {
	return []Tier{
		{Name: NameLow, QuotaPerWindow: 10, WindowSeconds: 10},
		{Name: NameMedium, QuotaPerWindow: 20, WindowSeconds: 20},
		{Name: NameHigh, QuotaPerWindow: 50, WindowSeconds: 50},
	}
}

// Registry resolves tier names to tiers. It is read-only after construction
// and safe for concurrent use.
type Registry struct {
	tiers map[string]Tier
}

// NewRegistry creates a Registry from the given tiers.
// Names are case-insensitive and must be unique.
func NewRegistry(tiers ...Tier) (*Registry, error) {
	r := &Registry{tiers: make(map[string]Tier, len(tiers))}
	for _, t := range tiers {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		key := normalizeName(t.Name)
		if _, exists := r.tiers[key]; exists {
			return nil, fmt.Errorf("tier %q is defined more than once", t.Name)
		}
		r.tiers[key] = t
	}
	return r, nil
}

// DefaultRegistry returns a Registry with the built-in tiers.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(Defaults()...) // Built-in tiers are always valid.
	return r
}

// Lookup returns the tier with the given name.
// If there is no such tier, the returned error wraps ErrUnknownTier.
func (r *Registry) Lookup(name string) (Tier, error) {
	t, ok := r.tiers[normalizeName(name)]
	if !ok {
		return Tier{}, fmt.Errorf("%w %q, should be one of %v", ErrUnknownTier, name, r.Names())
	}
	return t, nil
}

// Names returns names of all tiers sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tiers))
	for _, t := range r.tiers {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Tiers returns all tiers sorted by name.
func (r *Registry) Tiers() []Tier {
	tiers := make([]Tier, 0, len(r.tiers))
	for _, t := range r.tiers {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Name < tiers[j].Name })
	return tiers
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
