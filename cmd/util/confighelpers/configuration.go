// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package confighelpers

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
)

var ErrVersion = errors.New("version requested")

// BeginCommonParse loads configuration in increasing priority: flag
// defaults, --conf.file JSON files, --conf.string, environment variables
// under --conf.env-prefix, and finally flags set on the command line.
func BeginCommonParse(f *flag.FlagSet, args []string) (*koanf.Koanf, error) {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return nil, ErrVersion
		}
	}
	if err := f.Parse(args); err != nil {
		return nil, err
	}

	if f.NArg() != 0 {
		// Unexpected number of parameters
		return nil, fmt.Errorf("unexpected parameter: %s", f.Arg(0))
	}

	var k = koanf.New(".")

	// Load defaults
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	for _, configFile := range k.Strings("conf.file") {
		if len(configFile) == 0 {
			continue
		}
		if err := k.Load(file.Provider(configFile), json.Parser()); err != nil {
			return nil, fmt.Errorf("error loading local config file %s: %w", configFile, err)
		}
	}

	if configString := k.String("conf.string"); len(configString) > 0 {
		if err := k.Load(rawbytes.Provider([]byte(configString)), json.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config string: %w", err)
		}
	}

	if err := loadEnvironmentVariables(k); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	// Command line flags override everything else
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error loading flags: %w", err)
	}

	return k, nil
}

// loadEnvironmentVariables maps PREFIX_FEED_INPUT_IDLE__TIMEOUT to
// feed.input.idle-timeout.
func loadEnvironmentVariables(k *koanf.Koanf) error {
	envPrefix := k.String("conf.env-prefix")
	if len(envPrefix) == 0 {
		return nil
	}
	envPrefix = strings.ToUpper(envPrefix) + "_"
	return k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		s = strings.ReplaceAll(s, "__", "-")
		return strings.ReplaceAll(s, "_", ".")
	}), nil)
}

// EndCommonParse decodes k into config. Keys that do not belong to config
// are an error.
func EndCommonParse(k *koanf.Koanf, config interface{}) error {
	decoderConfig := mapstructure.DecoderConfig{
		ErrorUnused: true,

		// Default values
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		Metadata:         nil,
		Result:           config,
		WeaklyTypedInput: true,
	}
	err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{DecoderConfig: &decoderConfig})
	if err != nil {
		return err
	}

	return nil
}

// DumpConfig prints the effective configuration as JSON, without the
// conf.dump switch itself so the output can be fed back as a config file.
func DumpConfig(k *koanf.Koanf) error {
	dump, err := ConfigJSON(k)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(dump))
	return err
}

func ConfigJSON(k *koanf.Koanf) ([]byte, error) {
	copied := k.Copy()
	overrides := map[string]interface{}{
		"conf.dump": false,
	}
	// posflag keeps durations as nanosecond counts, which the parser could not read back
	for key, value := range copied.All() {
		if duration, ok := value.(time.Duration); ok {
			overrides[key] = duration.String()
		}
	}
	err := copied.Load(confmap.Provider(overrides, "."), nil)
	if err != nil {
		return nil, fmt.Errorf("error removing extra parameters before dump: %w", err)
	}

	c, err := copied.Marshal(json.Parser())
	if err != nil {
		return nil, fmt.Errorf("unable to marshal config file to JSON: %w", err)
	}
	return c, nil
}
