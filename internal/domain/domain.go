// Package domain holds what the concrete planning domains share: loading
// and validating their YAML parameter files.
package domain

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every parameter-file failure.
var ErrInvalidConfig = errors.New("domain: invalid config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode overlays the YAML document data onto cfg, which should already
// hold the domain defaults, and validates the result.
func Decode(data []byte, cfg any) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return Validate(cfg)
}

// DecodeFile is Decode on the contents of path.
func DecodeFile(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("domain: read %s: %w", path, err)
	}
	return Decode(data, cfg)
}

// Validate checks the validate struct tags of cfg.
func Validate(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Interval returns the ints lo..hi inclusive.
func Interval(lo, hi int) []int {
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}
