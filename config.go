package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kvinwang/sev-mr/internal"
)

// launchConfig is the on-disk form of a launch. Every key mirrors the flag of
// the same name; absent keys leave the flag alone.
type launchConfig struct {
	APIMajor     *string `yaml:"api_major"`
	APIMinor     *string `yaml:"api_minor"`
	BuildID      *string `yaml:"build_id"`
	Policy       *string `yaml:"policy"`
	Nonce        *string `yaml:"nonce"`
	TIK          *string `yaml:"tik"`
	LaunchDigest *string `yaml:"launch_digest"`
	Firmware     *string `yaml:"firmware"`
	Kernel       *string `yaml:"kernel"`
	Initrd       *string `yaml:"initrd"`
	Cmdline      *string `yaml:"cmdline"`
	Outfile      *string `yaml:"outfile"`
}

func loadConfig(path string) (*launchConfig, error) {
	data, err := readFile("config", path)
	if err != nil {
		return nil, err
	}

	var cfg launchConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &internal.InputError{Input: "config", Err: fmt.Errorf("%w: %v", internal.ErrInputValidation, err)}
	}

	// Paths in the config are relative to the config file.
	dir := filepath.Dir(path)
	for _, p := range []*string{cfg.TIK, cfg.Firmware, cfg.Kernel, cfg.Initrd, cfg.Outfile} {
		if p != nil && *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return &cfg, nil
}

// apply sets every flag present in the config that was not given on the
// command line.
func (c *launchConfig) apply(flags *pflag.FlagSet) error {
	values := []struct {
		name  string
		value *string
	}{
		{"api-major", c.APIMajor},
		{"api-minor", c.APIMinor},
		{"build-id", c.BuildID},
		{"policy", c.Policy},
		{"nonce", c.Nonce},
		{"tik", c.TIK},
		{"launch-digest", c.LaunchDigest},
		{"firmware", c.Firmware},
		{"kernel", c.Kernel},
		{"initrd", c.Initrd},
		{"cmdline", c.Cmdline},
		{"outfile", c.Outfile},
	}

	for _, v := range values {
		if v.value == nil || flags.Lookup(v.name) == nil || flags.Changed(v.name) {
			continue
		}
		if err := flags.Set(v.name, *v.value); err != nil {
			return fmt.Errorf("config %s: %w", v.name, err)
		}
	}
	return nil
}

// readFile reads one of the inputs from disk.
func readFile(input, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &internal.InputError{Input: input, Err: fmt.Errorf("%w: %w", internal.ErrIO, err)}
	}
	return data, nil
}

// readOptionalFile reads the file if a path was given.
func readOptionalFile(input, path string) (internal.Optional[[]byte], error) {
	if path == "" {
		return internal.None[[]byte](), nil
	}
	data, err := readFile(input, path)
	if err != nil {
		return internal.None[[]byte](), err
	}
	return internal.Some(data), nil
}
