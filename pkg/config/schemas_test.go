package config

import (
	"context"
	"reflect"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#CustomType: {
	field1: string
	field2: int
}
`

	if err := sr.RegisterSchema("custom", "CustomType", customSchema); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}
	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}

	if err := sr.RegisterSchema("missing", "Missing", customSchema); err == nil {
		t.Error("expected error for an absent definition")
	}
	if err := sr.RegisterSchema("broken", "Broken", "#Broken: {"); err == nil {
		t.Error("expected compile error")
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	if got := sr.ListSchemas(); !reflect.DeepEqual(got, []string{SchemaPlan, SchemaToolConfig}) {
		t.Errorf("expected built-in schemas, got %v", got)
	}
	for _, name := range sr.ListSchemas() {
		schema, _ := sr.GetSchema(name)
		if schema.Err() != nil {
			t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
		}
	}
}

func TestSchemaRegistry_ValidatePlanData(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		data    map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid plan",
			data: map[string]interface{}{
				"resources": []interface{}{
					map[string]interface{}{"name": "Index", "create": "make_index"},
				},
				"ownership": []interface{}{},
			},
		},
		{
			name:    "closed definition",
			data:    map[string]interface{}{"targets": []interface{}{}},
			wantErr: true,
		},
		{
			name: "invalid expose mode",
			data: map[string]interface{}{
				"enums": []interface{}{map[string]interface{}{"name": "E", "exposeAs": "enum"}},
			},
			wantErr: true,
		},
		{
			name: "terminator must be an integer",
			data: map[string]interface{}{
				"resources": []interface{}{map[string]interface{}{
					"name":  "Unit",
					"views": []interface{}{map[string]interface{}{"name": "v", "ptr": "p", "terminator": "zero"}},
				}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, SchemaPlan, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := sr.ValidateAgainstSchema(ctx, "nope", map[string]interface{}{}); err == nil {
		t.Error("expected error for an unknown schema")
	}
}
