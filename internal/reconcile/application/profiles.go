package application

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// ProfileConfig is the YAML form of one routine's field profile. Omitted
// sections fall back to the built-in defaults, so a file typically only
// adds extra column aliases.
type ProfileConfig struct {
	Aliases   map[string]string `yaml:"aliases"`
	Summable  []string          `yaml:"summable"`
	FirstWins []string          `yaml:"first_wins"`
}

// ProfilesFile is the YAML document shape: per-routine profiles plus
// defaults applied to every routine.
type ProfilesFile struct {
	Defaults ProfileConfig            `yaml:"defaults"`
	Routines map[string]ProfileConfig `yaml:"routines"`
}

// ProfileSet resolves the field profile for a routine.
type ProfileSet struct {
	file ProfilesFile
}

// LoadProfiles reads the profile overlay from the path in FIELD_PROFILES,
// when set. Without the variable (or with an empty file) every routine uses
// the built-in profile.
func LoadProfiles() (*ProfileSet, error) {
	set := &ProfileSet{}
	path := os.Getenv("FIELD_PROFILES")
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &set.file); err != nil {
		return nil, err
	}
	return set, nil
}

// For returns the effective profile for a routine: built-in defaults,
// overlaid with the file's defaults section, overlaid with the routine's
// own section.
func (s *ProfileSet) For(routine string) reconcile.FieldProfile {
	profile := reconcile.DefaultFieldProfile(routine)
	if s == nil {
		return profile
	}
	applyOverlay(&profile, s.file.Defaults)
	if s.file.Routines != nil {
		if cfg, ok := s.file.Routines[routine]; ok {
			applyOverlay(&profile, cfg)
		}
	}
	return profile
}

func applyOverlay(profile *reconcile.FieldProfile, cfg ProfileConfig) {
	for column, field := range cfg.Aliases {
		profile.Aliases[strings.ToUpper(strings.TrimSpace(column))] = field
	}
	if len(cfg.Summable) > 0 {
		profile.Summable = append([]string(nil), cfg.Summable...)
	}
	if len(cfg.FirstWins) > 0 {
		profile.FirstWins = append([]string(nil), cfg.FirstWins...)
	}
}
