package common

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

const (
	configPathEnv = "CONFIG_PATH"
	configJSONEnv = "CONFIG_JSON"
)

//go:embed config.default.yaml
var defaultConfig []byte

// ConfigManager layers configuration sources and decodes them into T.
// Precedence (lowest first): embedded defaults, CONFIG_PATH file, CONFIG_JSON.
type ConfigManager[T any] struct {
	kf *koanf.Koanf
}

func NewConfigManager[T any]() (*ConfigManager[T], error) {
	cm := &ConfigManager[T]{kf: koanf.New(".")}

	if err := cm.kf.Load(rawbytes.Provider(defaultConfig), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cm.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if raw := os.Getenv(configJSONEnv); raw != "" {
		if err := cm.kf.Load(rawbytes.Provider([]byte(raw)), json.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", configJSONEnv, err)
		}
	}

	return cm, nil
}

// LoadFile merges a YAML or JSON file over the current configuration
func (cm *ConfigManager[T]) LoadFile(path string) error {
	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = json.Parser()
	}

	if err := cm.kf.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("loaded config file")
	return nil
}

// Set overrides a single key, e.g. Set("gateway.http.port", 8080)
func (cm *ConfigManager[T]) Set(key string, value any) error {
	return cm.kf.Set(key, value)
}

// GetConfig decodes the merged configuration into T
func (cm *ConfigManager[T]) GetConfig() T {
	var c T

	err := cm.kf.UnmarshalWithConf("", &c, koanf.UnmarshalConf{
		Tag: "key",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &c,
			WeaklyTypedInput: true,
			TagName:          "key",
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to decode config")
	}

	return c
}
