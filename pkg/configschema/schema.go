// Package configschema derives a JSON Schema for the bookstore configuration file.
package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/nimburion/bookstore/pkg/config"
)

// BuildSchema returns a JSON Schema for Config, keyed like the config file and carrying
// the defaults of config.DefaultConfig.
func BuildSchema() (*jsonschema.Schema, error) {
	return BuildSchemaWithDefaults(config.DefaultConfig())
}

// BuildSchemaWithDefaults builds the schema and injects the values of defaults.
func BuildSchemaWithDefaults(defaults *config.Config) (*jsonschema.Schema, error) {
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeOf(time.Duration(0)): {Type: "string"},
		},
	}

	cfgType := reflect.TypeOf(config.Config{})
	schema, err := jsonschema.ForType(cfgType, opts)
	if err != nil {
		return nil, fmt.Errorf("build config schema: %w", err)
	}
	applyFieldNames(schema, cfgType)
	applyConstraints(schema)

	if defaults == nil {
		defaults = config.DefaultConfig()
	}
	injectDefaults(schema, reflect.ValueOf(defaults))
	pruneRequiredWithDefaults(schema)

	name := "Service"
	if strings.TrimSpace(defaults.Service.Name) != "" {
		name = defaults.Service.Name
	}
	schema.Title = name + " Configuration"
	schema.Description = "Schema for " + name + " configuration."
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

// Marshal renders the schema as indented JSON.
func Marshal(schema *jsonschema.Schema) ([]byte, error) {
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return append(out, '\n'), nil
}

// Property returns the schema at a dotted config key such as "store.backend".
func Property(schema *jsonschema.Schema, key string) (*jsonschema.Schema, bool) {
	cur := schema
	for _, part := range strings.Split(key, ".") {
		if cur == nil {
			return nil, false
		}
		next, ok := cur.Properties[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// applyConstraints adds the enumerations and bounds Config.Validate enforces.
func applyConstraints(schema *jsonschema.Schema) {
	enums := map[string][]any{
		"store.backend": {config.StoreBackendMemory, config.StoreBackendMongoDB},
		"log.level":     {"debug", "info", "warn", "error"},
		"log.format":    {"text", "json"},
	}
	for key, values := range enums {
		if prop, ok := Property(schema, key); ok {
			prop.Enum = values
		}
	}
	if prop, ok := Property(schema, "tracing.sample_rate"); ok {
		lo, hi := 0.0, 1.0
		prop.Minimum = &lo
		prop.Maximum = &hi
	}
}

func applyFieldNames(schema *jsonschema.Schema, t reflect.Type) {
	if schema == nil || t == nil {
		return
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || len(schema.Properties) == 0 {
		return
	}

	nameMap := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		jsonName, omit := jsonFieldName(field)
		if omit {
			continue
		}
		desired := fieldKeyName(field)
		nameMap[jsonName] = desired
		if prop, ok := schema.Properties[jsonName]; ok {
			delete(schema.Properties, jsonName)
			schema.Properties[desired] = prop
			applyFieldNames(prop, field.Type)
		}
	}
	schema.Required = renamed(schema.Required, nameMap)
	schema.PropertyOrder = renamed(schema.PropertyOrder, nameMap)
}

func renamed(names []string, nameMap map[string]string) []string {
	if len(names) == 0 {
		return names
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if mapped, ok := nameMap[name]; ok {
			name = mapped
		}
		out = append(out, name)
	}
	return out
}

func injectDefaults(schema *jsonschema.Schema, value reflect.Value) {
	if schema == nil || !value.IsValid() {
		return
	}
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}

	if value.Kind() != reflect.Struct {
		if schema.Default == nil {
			if raw, ok := marshalDefault(schema, value); ok {
				schema.Default = raw
			}
		}
		return
	}
	t := value.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if prop, ok := schema.Properties[fieldKeyName(field)]; ok {
			injectDefaults(prop, value.Field(i))
		}
	}
}

func pruneRequiredWithDefaults(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	for _, prop := range schema.Properties {
		pruneRequiredWithDefaults(prop)
	}
	if len(schema.Required) == 0 {
		return
	}
	kept := make([]string, 0, len(schema.Required))
	for _, name := range schema.Required {
		prop := schema.Properties[name]
		if prop == nil || (prop.Default == nil && len(prop.Properties) == 0) {
			kept = append(kept, name)
		}
	}
	schema.Required = kept
}

func marshalDefault(schema *jsonschema.Schema, value reflect.Value) (json.RawMessage, bool) {
	if value.Type() == reflect.TypeOf(time.Duration(0)) && schema.Type == "string" {
		payload, err := json.Marshal(value.Interface().(time.Duration).String())
		return payload, err == nil
	}
	payload, err := json.Marshal(value.Interface())
	if err != nil {
		return nil, false
	}
	return payload, true
}

func fieldKeyName(field reflect.StructField) string {
	if tag, ok := tagName(field.Tag.Get("mapstructure")); ok {
		return tag
	}
	if tag, ok := tagName(field.Tag.Get("yaml")); ok {
		return tag
	}
	return toSnakeCase(field.Name)
}

func tagName(tag string) (string, bool) {
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return "", false
	}
	return name, true
}

func toSnakeCase(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 8)
	for i, r := range value {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(rune(value[i-1])) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func jsonFieldName(field reflect.StructField) (string, bool) {
	if !field.IsExported() {
		return "", true
	}
	name := field.Name
	if tag, ok := field.Tag.Lookup("json"); ok {
		tagName, _, found := strings.Cut(tag, ",")
		if tagName == "-" && !found {
			return "", true
		}
		if tagName != "" {
			name = tagName
		}
	}
	return name, false
}
