// Package config loads strategy plans and the bindforge tool configuration.
//
// # Overview
//
// A strategy plan can be written in CUE, YAML, JSON or Starlark. Every format is turned
// into a CUE value and unified with the built-in #Plan schema before it is decoded, so
// all of them get the same structural checks and the same error reporting.
//
// # Components
//
// PlanLoader: Reads a plan file or a directory holding a CUE package and returns a
// ParsedPlan. Schema violations are returned as ValidationError values with file, line
// and CUE path where the source format carries positions.
//
// SchemaRegistry: Holds the compiled #Plan and #ToolConfig definitions. Custom schemas
// can be registered by name.
//
// StarlarkEvaluator: Runs plan scripts with a timeout. A script's global named plan
// becomes the plan.
//
// StarlarkNamer: Implements engine.MethodNamer with a user function
// derive_name(function, resource, prefix). Returning None keeps the derived name.
//
// # Usage Example
//
//	loader := config.NewPlanLoader()
//	pp, err := loader.Load(ctx, "libclang.cue")
//	if err != nil {
//	    return err
//	}
//	if err := pp.Err(); err != nil {
//	    return err
//	}
//	plan := pp.Plan.ToStrategyPlan()
//
// # Plan Structure
//
//	symbols: "libclang.yaml"
//	prefix:  "clang_"
//	resources: [
//	    {name: "Index", create: "clang_createIndex", destroy: "clang_disposeIndex"},
//	    {name: "Unit", create: "clang_parseTranslationUnit", destroy: "clang_disposeTranslationUnit"},
//	]
//	ownership: [{owner: "Index", child: "Unit"}]
//
// # Naming Hooks
//
//	def derive_name(function, resource, prefix):
//	    if function.startswith("clang_CXXMethod_"):
//	        return None
//	    return function[len(prefix):]
//
// # Security
//
// Starlark execution is sandboxed:
//   - No filesystem access
//   - No network access
//   - Timeout enforcement
//   - Print statements suppressed
//
// # Thread Safety
//
// PlanLoader holds a single CUE context and is not safe for concurrent use.
// StarlarkNamer is safe for concurrent use.
package config
