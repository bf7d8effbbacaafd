package configloader

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Validator interface {
	Validate() error
}

// Options tunes where configuration is read from. The zero value reads
// config.yaml and .env from the working directory.
type Options struct {
	// Defaults are applied first and overridden by every other source.
	Defaults map[string]any
	// ConfigFile overrides the YAML file path. The <SERVICE>_CONFIG_FILE
	// environment variable takes precedence over this field.
	ConfigFile string
	// EnvFile overrides the dotenv file path.
	EnvFile string
}

func Load[T Validator](serviceName string) (T, error) {
	return LoadWithOptions[T](serviceName, Options{})
}

// LoadWithOptions layers defaults, the YAML file, the .env file and the process
// environment (highest priority), then unmarshals and validates the result.
func LoadWithOptions[T Validator](serviceName string, opts Options) (T, error) {
	var cfg T
	k := koanf.New(".")

	envPrefix := fmt.Sprintf("%s_", strings.ToUpper(serviceName))
	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = "config.yaml"
	}
	if override := os.Getenv(envPrefix + "CONFIG_FILE"); override != "" {
		configFile = override
	}
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}

	// 0. Defaults, the lowest priority
	if len(opts.Defaults) > 0 {
		if err := k.Load(confmap.Provider(opts.Defaults, "."), nil); err != nil {
			return cfg, fmt.Errorf("error loading default config: %w", err)
		}
	}

	// 1. Load configuration from yaml file
	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("WARN: error loading YAML config file '%s': %v", configFile, err)
		}
	}

	// 2. Load environment variables from .env file
	envTransformer := newEnvTransformer(envPrefix, k.Keys())
	if envFileMap, err := godotenv.Read(envFile); err == nil {
		envMap := make(map[string]any)
		for key, value := range envFileMap {
			envMap[envTransformer(key)] = value
		}
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			log.Printf("WARN: error loading .env config: %v", err)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("WARN: error reading .env file: %v", err)
	}

	// 3. Load environment variables from the system, the highest priority
	if err := k.Load(env.Provider(envPrefix, ".", envTransformer), nil); err != nil {
		log.Printf("WARN: error loading system env vars: %v", err)
	}

	// 4. Unmarshal the configuration into the Config struct
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// 5. Validate the configuration
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// newEnvTransformer maps <SERVICE>_MEDIA_MAXBYTES style names onto config
// keys. Env names carry no case, so a name matching a known key
// case-insensitively takes that key's spelling (media.maxBytes).
func newEnvTransformer(envPrefix string, knownKeys []string) func(string) string {
	canonical := make(map[string]string, len(knownKeys))
	for _, key := range knownKeys {
		canonical[strings.ToLower(key)] = key
	}
	return func(key string) string {
		key = strings.ToLower(key)
		key = strings.TrimPrefix(key, strings.ToLower(envPrefix))
		key = strings.ReplaceAll(key, "_", ".")
		if known, ok := canonical[key]; ok {
			return known
		}
		return key
	}
}
