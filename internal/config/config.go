// Package config loads flat, tagged option structs from a TOML file and the
// environment. Each field names its TOML path with a `toml:"table.key"` tag
// and its environment variable, without EnvPrefix, with an `env` tag.
// Precedence is command line, then environment, then file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/formatsync/internal/logging"
)

// EnvPrefix is prepended to every `env` tag.
const EnvPrefix = "FORMATSYNC_"

// openTables accept keys without a matching field: [logging] names modules
// and [classifier] is decoded with LoadSection.
var openTables = []string{"logging", "classifier"}

var durationType = reflect.TypeOf(time.Duration(0))

type option struct {
	value    reflect.Value
	name     string
	flag     string
	tomlPath string
	env      string
}

func options(opts any) ([]option, error) {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("options must be a pointer to a struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	out := make([]option, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		out = append(out, option{
			value:    v.Field(i),
			name:     f.Name,
			flag:     fieldNameToFlag(f.Name),
			tomlPath: f.Tag.Get("toml"),
			env:      f.Tag.Get("env"),
		})
	}
	return out, nil
}

// LoadConfig fills opts from the file named by its Config field and from the
// environment. Flags changed on cmd keep their command line values. A value
// of the wrong type is an error naming its source.
func LoadConfig(opts any, cmd *cobra.Command) error {
	fields, err := options(opts)
	if err != nil {
		return err
	}

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		})
	}

	var doc map[string]any
	for _, f := range fields {
		if f.name == "Config" && f.value.Kind() == reflect.String {
			if doc, err = readDocument(f.value.String()); err != nil {
				return err
			}
		}
	}

	var errs []error
	known := make(map[string]bool)
	for _, f := range fields {
		if f.tomlPath != "" {
			known[f.tomlPath] = true
		}
		if changed[f.flag] {
			continue
		}
		if f.tomlPath != "" {
			if raw := getNestedValue(doc, f.tomlPath); raw != nil {
				if err := setFieldValue(f.value, raw); err != nil {
					errs = append(errs, fmt.Errorf("config key %s: %w", f.tomlPath, err))
				}
			}
		}
		if f.env != "" {
			if s, ok := os.LookupEnv(EnvPrefix + f.env); ok && s != "" {
				if err := setFieldValueFromString(f.value, s); err != nil {
					errs = append(errs, fmt.Errorf("environment %s%s: %w", EnvPrefix, f.env, err))
				}
			}
		}
	}

	if unknown := unknownKeys(doc, "", known); len(unknown) > 0 {
		logging.GetLogger("config").Warn("Ignoring unknown config keys", "keys", unknown)
	}
	return errors.Join(errs...)
}

func readDocument(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
	}
	return doc, nil
}

// unknownKeys lists, sorted, the leaf keys of doc that no field maps to.
func unknownKeys(doc map[string]any, prefix string, known map[string]bool) []string {
	var out []string
	for k, v := range doc {
		path := prefix + k
		if slices.Contains(openTables, path) {
			continue
		}
		if sub, ok := v.(map[string]any); ok && !known[path] {
			out = append(out, unknownKeys(sub, path+".", known)...)
			continue
		}
		if !known[path] {
			out = append(out, path)
		}
	}
	slices.Sort(out)
	return out
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "Port" -> "port".
func fieldNameToFlag(fieldName string) string {
	var b strings.Builder
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// getNestedValue looks up a dotted path in a decoded TOML document.
func getNestedValue(data map[string]any, path string) any {
	current := data
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

// setFieldValue assigns a decoded TOML value. Durations accept a
// time.ParseDuration string or a whole number of seconds.
func setFieldValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}
	mismatch := func() error {
		return fmt.Errorf("cannot use %T value %v as %s", value, value, field.Type())
	}

	if field.Type() == durationType {
		switch v := value.(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		case int64:
			field.SetInt(v * int64(time.Second))
		default:
			return mismatch()
		}
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return mismatch()
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return mismatch()
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		i, ok := value.(int64)
		if !ok || field.OverflowInt(i) {
			return mismatch()
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		i, ok := value.(int64)
		if !ok || i < 0 || field.OverflowUint(uint64(i)) {
			return mismatch()
		}
		field.SetUint(uint64(i))
	case reflect.Float64:
		switch f := value.(type) {
		case float64:
			field.SetFloat(f)
		case int64:
			field.SetFloat(float64(f))
		default:
			return mismatch()
		}
	case reflect.Slice:
		arr, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return mismatch()
		}
		slice := make([]string, len(arr))
		for i, v := range arr {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("element %d: %w", i, mismatch())
			}
			slice[i] = s
		}
		field.Set(reflect.ValueOf(slice))
	default:
		return mismatch()
	}
	return nil
}

// setFieldValueFromString assigns an environment value. Slices are comma
// separated.
func setFieldValueFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		i, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(i)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported type %s", field.Type())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}

// LoadSection decodes the table named table from the config file into v,
// which must be a pointer to a struct with toml tags. A missing file or
// table leaves v unchanged.
func LoadSection(path, table string, v any) error {
	doc, err := readDocument(path)
	if err != nil {
		return err
	}
	section, ok := doc[table].(map[string]any)
	if !ok {
		return nil
	}
	data, err := toml.Marshal(section)
	if err != nil {
		return fmt.Errorf("re-encode [%s]: %w", table, err)
	}
	if err := toml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("config table [%s]: %w", table, err)
	}
	return nil
}

// LoadLoggingConfig loads logging configuration from a TOML config file.
// Returns default config if file doesn't exist or can't be parsed.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var rawConfig struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &rawConfig); err != nil {
		return cfg
	}

	if rawConfig.Logging == nil {
		return cfg
	}

	// Extract level and format, rest are module-specific levels
	for key, value := range rawConfig.Logging {
		if value == "" {
			continue
		}
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}

	return cfg
}
