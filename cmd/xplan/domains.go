package main

import (
	"sort"

	"github.com/ashita-ai/xplan/internal/domain/clinic"
	"github.com/ashita-ai/xplan/internal/domain/dart"
	"github.com/ashita-ai/xplan/internal/domain/mobilerobot"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// domainBuilder builds an XMDP from a YAML parameter document overlaid on
// the domain defaults. Empty data means defaults only.
type domainBuilder func(data []byte) (*xmdp.XMDP, error)

var domains = map[string]domainBuilder{
	"clinic": func(data []byte) (*xmdp.XMDP, error) {
		cfg, err := clinic.LoadConfig(data)
		if err != nil {
			return nil, err
		}
		d, err := clinic.Build(cfg)
		if err != nil {
			return nil, err
		}
		return d.XMDP, nil
	},
	"mobilerobot": func(data []byte) (*xmdp.XMDP, error) {
		cfg, err := mobilerobot.LoadConfig(data)
		if err != nil {
			return nil, err
		}
		d, err := mobilerobot.Build(cfg)
		if err != nil {
			return nil, err
		}
		return d.XMDP, nil
	},
	"dart": func(data []byte) (*xmdp.XMDP, error) {
		cfg, err := dart.LoadConfig(data)
		if err != nil {
			return nil, err
		}
		d, err := dart.Build(cfg)
		if err != nil {
			return nil, err
		}
		return d.XMDP, nil
	},
}

func domainNames() []string {
	names := make([]string, 0, len(domains))
	for n := range domains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
