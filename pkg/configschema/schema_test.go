package configschema

import (
	"encoding/json"
	"testing"

	"github.com/nimburion/bookstore/pkg/config"
)

func TestBuildSchema_UsesConfigKeys(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	for _, key := range []string{
		"service.name", "store.backend", "store.url", "store.connect_timeout",
		"log.level", "metrics.enabled", "tracing.sample_rate",
	} {
		if _, ok := Property(schema, key); !ok {
			t.Errorf("expected %s in schema", key)
		}
	}
	if _, ok := schema.Properties["Store"]; ok {
		t.Error("did not expect Go field name as root key")
	}
}

func TestBuildSchema_Defaults(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	tests := map[string]string{
		"store.backend":           `"memory"`,
		"store.collection":        `"books"`,
		"store.operation_timeout": `"5s"`,
		"metrics.enabled":         `false`,
		"tracing.sample_rate":     `1`,
	}
	for key, want := range tests {
		prop, ok := Property(schema, key)
		if !ok {
			t.Fatalf("missing %s", key)
		}
		if got := string(prop.Default); got != want {
			t.Errorf("%s default = %s, want %s", key, got, want)
		}
	}
	if len(schema.Required) != 0 {
		t.Errorf("expected no required root keys, got %v", schema.Required)
	}
}

func TestBuildSchema_Constraints(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	backend, _ := Property(schema, "store.backend")
	if len(backend.Enum) != 2 || backend.Enum[0] != config.StoreBackendMemory || backend.Enum[1] != config.StoreBackendMongoDB {
		t.Errorf("unexpected store.backend enum %v", backend.Enum)
	}
	rate, _ := Property(schema, "tracing.sample_rate")
	if rate.Minimum == nil || *rate.Minimum != 0 || rate.Maximum == nil || *rate.Maximum != 1 {
		t.Errorf("unexpected sample_rate bounds %v..%v", rate.Minimum, rate.Maximum)
	}
}

func TestBuildSchemaWithDefaults_Title(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Service.Name = "library"
	cfg.Store.Collection = "novels"

	schema, err := BuildSchemaWithDefaults(cfg)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	if schema.Title != "library Configuration" {
		t.Errorf("title = %q", schema.Title)
	}
	coll, _ := Property(schema, "store.collection")
	if string(coll.Default) != `"novels"` {
		t.Errorf("collection default = %s", coll.Default)
	}
}

func TestMarshal(t *testing.T) {
	schema, err := BuildSchema()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	out, err := Marshal(schema)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("schema is not valid json: %v", err)
	}
	if decoded["$schema"] != "https://json-schema.org/draft/2020-12/schema" {
		t.Errorf("unexpected $schema %v", decoded["$schema"])
	}
	props := decoded["properties"].(map[string]any)
	store := props["store"].(map[string]any)
	if store["type"] != "object" {
		t.Errorf("store type = %v", store["type"])
	}
}
