package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation. Values from different registries
// cannot be unified with each other.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(SchemaPlan, "Plan", builtinPlanSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaToolConfig, "ToolConfig", builtinToolConfigSchema); err != nil {
		panic(err)
	}

	return sr
}

// Built-in schema names.
const (
	SchemaPlan       = "plan"
	SchemaToolConfig = "toolconfig"
)

// Context returns the CUE context all registered schemas were compiled in.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema compiles schema and registers its #definition under name.
func (sr *SchemaRegistry) RegisterSchema(name, definition, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.MakePath(cue.Def(definition)))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define #%s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies val with a named schema and checks the result is concrete.
func (sr *SchemaRegistry) Unify(name string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", name)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return unified, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	sr.mu.Lock()
	dataVal := sr.ctx.Encode(data)
	sr.mu.Unlock()
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built-in schema definitions

const builtinPlanSchema = `
#Identifier: =~"^[A-Za-z_][A-Za-z0-9_]*$"

// Plan is a strategy plan describing how a native API is presented.
#Plan: {
	// Name identifies the plan in generation history
	name?: string

	// Symbols is the symbol table path, relative to the plan file
	symbols?: string

	// NamingHook is a Starlark script defining derive_name(function, resource, prefix)
	namingHook?: string

	prefix?: string

	resources?: [...#Resource]
	enums?: [...#Enum]
	callbacks?: [...#Callback]
	errors?: [...#ErrorRule]
	ownership?: [...#Ownership]
}

#Resource: {
	name:     #Identifier
	ctype?:   string
	create?:  #Identifier
	destroy?: #Identifier
	prefix?:  string
	methods?: [...#Method]
	views?: [...#View]
}

#Method: {
	c:     #Identifier
	name?: #Identifier
}

#View: {
	name:        #Identifier
	ptr:         #Identifier
	length?:     #Identifier
	terminator?: int
	copy?:       bool
}

#Enum: {
	name:     #Identifier
	exposeAs: "const" | "type"
	ctype?:   #Identifier
}

#Callback: {
	name:  #Identifier
	ctype: string

	// Lifetime is "resource:<Name>" or absent for process lifetime
	lifetime?: string
}

#ErrorRule: {
	function: #Identifier
	rule:     "nonZeroIsError" | "negativeIsError"
	throw?:   bool
}

#Ownership: {
	owner: #Identifier
	child: #Identifier
}
`

const builtinToolConfigSchema = `
#ToolConfig: {
	logging?: {
		level?:  "trace" | "debug" | "info" | "warn" | "error"
		format?: "console" | "json"
		output?: string
	}
	history?: {
		enabled?: bool
		path?:    string
	}
	policy?: {
		enabled?: bool
		paths?: [...string]
		strict?: bool
	}
	generate?: {
		allowWarnings?: bool
		format?:        "json" | "yaml"
		out?:           string
	}
	naming?: {
		timeout?: string
	}
	metrics?: {
		enabled?:      bool
		textfilePath?: string
	}
	tracing?: {
		enabled?:      bool
		exporter?:     "stdout" | "otlp" | "none"
		endpoint?:     string
		samplingRate?: number & >=0 & <=1
	}
}
`
