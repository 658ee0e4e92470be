package routes

import (
	"fmt"
	"os"
	"regexp"

	"github.com/jrsteele09/go-auth-guard/flags"
	guarderrors "github.com/jrsteele09/go-auth-guard/internal/errors"
	"gopkg.in/yaml.v3"
)

// routeFile is the on-disk shape of a route table:
//
//	defaultAccess: protected
//	rules:
//	  - match: /login
//	    public: true
//	  - regex: ^/docs(/|$)
//	    public: true
//	  - match: /beta*
//	    featureFlag: beta
//	    redirectTo: /upgrade
//	  - match: /admin*
//	    featureFlag: {any: [admin, support]}
type routeFile struct {
	DefaultAccess string      `yaml:"defaultAccess"`
	Rules         []routeRule `yaml:"rules"`
}

type routeRule struct {
	Match       string             `yaml:"match"`
	Regex       string             `yaml:"regex"`
	Public      bool               `yaml:"public"`
	FeatureFlag *flags.Requirement `yaml:"featureFlag"`
	RedirectTo  string             `yaml:"redirectTo"`
}

// LoadFile reads a YAML route table from path.
func LoadFile(path string) (GuardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GuardConfig{}, fmt.Errorf("[routes.LoadFile] read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML route table. Patterns are compiled so that a
// bad file is rejected as a whole.
func Parse(data []byte) (GuardConfig, error) {
	var file routeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return GuardConfig{}, fmt.Errorf("[routes.Parse] decode: %w", err)
	}

	cfg := GuardConfig{
		DefaultAccess: Access(file.DefaultAccess),
		Rules:         make([]Rule, 0, len(file.Rules)),
	}
	if cfg.DefaultAccess == "" {
		cfg.DefaultAccess = AccessProtected
	}

	for i, r := range file.Rules {
		var pattern Pattern
		switch {
		case r.Match != "" && r.Regex != "":
			return GuardConfig{}, fmt.Errorf("[routes.Parse] rule %d sets both match and regex: %w", i, guarderrors.ErrInvalidRoutePattern)
		case r.Regex != "":
			re, err := regexp.Compile(r.Regex)
			if err != nil {
				return GuardConfig{}, fmt.Errorf("[routes.Parse] rule %d regex %q: %w", i, r.Regex, guarderrors.ErrInvalidRoutePattern)
			}
			pattern = Regex(re)
		case r.Match != "":
			pattern = Literal(r.Match)
		default:
			return GuardConfig{}, fmt.Errorf("[routes.Parse] rule %d has no match or regex: %w", i, guarderrors.ErrInvalidRoutePattern)
		}
		cfg.Rules = append(cfg.Rules, Rule{
			Match:       pattern,
			Public:      r.Public,
			FeatureFlag: r.FeatureFlag,
			RedirectTo:  r.RedirectTo,
		})
	}

	if _, err := Compile(cfg); err != nil {
		return GuardConfig{}, fmt.Errorf("[routes.Parse] %w", err)
	}
	return cfg, nil
}
