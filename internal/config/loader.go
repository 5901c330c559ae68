package config

import (
	"encoding"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Load resolves the configuration from defaults, the optional file at path,
// a .env file and the environment, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("config merge: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config .env: %w", err)
	}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), "env"); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration built from struct tag defaults only
func Default() *Config {
	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem(), "default"); err != nil {
		panic(fmt.Sprintf("invalid config default: %v", err))
	}
	return cfg
}

// readFile reads a json5 file and merges <name>.local.<ext> over it.
// It returns fs.ErrNotExist only when neither file exists.
func readFile(name string) (*Config, error) {
	out := &Config{}
	found := false

	data, err := os.ReadFile(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if len(data) > 0 {
		if err := json5.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		found = true
	}

	localName := localPath(name)
	data, err = os.ReadFile(localName)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if len(data) > 0 {
		override := &Config{}
		if err := json5.Unmarshal(data, override); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", localName, err)
		}
		if err := mergo.Merge(out, override, mergo.WithOverride); err != nil {
			return nil, err
		}
		slog.Info("merging config with local overrides", "local", localName)
		found = true
	}

	if !found {
		return nil, fs.ErrNotExist
	}
	return out, nil
}

// localPath turns dir/visawatch.json5 into dir/visawatch.local.json5
func localPath(name string) string {
	dir, base := filepath.Split(name)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".local"+ext)
}

// loadStruct recursively populates fields from the tag source: "default"
// reads the tag value itself, "env" reads the variable the tag names.
func loadStruct(v reflect.Value, source string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, source); err != nil {
				return err
			}
			continue
		}

		var value, name string
		switch source {
		case "default":
			name = field.Name
			value = field.Tag.Get("default")
		case "env":
			name = field.Tag.Get("env")
			if name == "" {
				continue
			}
			value = os.Getenv(name)
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText([]byte(value))
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}
