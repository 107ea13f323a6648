// Package engine resolves a declarative strategy plan against a native symbol table into a
// binding model that an emitter renders into target-language source.
//
// # Overview
//
// A generation run is all-or-nothing and proceeds in stages:
//
//  1. Validate - resolve every plan reference and check internal consistency (Validate)
//  2. Graph - build the ownership arena and its disposal order (BuildOwnershipGraph)
//  3. Bind - resources, error rules, views and callback adapters, concurrently
//  4. Lint - optional policy checks over the assembled model (Linter)
//
// Generate runs all stages. Problems in the plan are never reported as a single error: every
// pass runs to completion and the complete list of Diagnostics is returned, wrapped in an
// EngineError of class rejected when any of them is fatal.
//
// # Core Types
//
//   - StrategyPlan: resources, enums, callbacks, error rules and ownership entries
//   - ValidatedPlan: a plan whose references all resolved
//   - OwnershipGraph: arena of resources with owner->child disposal edges
//   - BindingModel: the resolved output (ResourceBinding, MethodBinding, ViewBinding, ...)
//   - Diagnostic: entry, kind, severity and message of one problem
//
// # Ownership
//
// Nodes live in a flat slice and edges refer to them by index. Disposal order lists children
// before owners; ties break by plan order, so the order is deterministic. A resource with no
// create and no destroy is borrowed: it may have at most one owner and cannot own anything
// that needs disposal.
//
// # Error Rules
//
// Classify applies a rule to a native return value:
//
//	engine.Classify(-1, engine.RuleNonZeroIsError)  // Failure(-1)
//	engine.Classify(5, engine.RuleNegativeIsError)  // Success(5)
//
// Each method carries an explicit ErrorPolicy (none, throw or returnTagged).
//
// # Example Usage
//
//	result, err := engine.Generate(ctx, plan, table, engine.Options{Logger: logger})
//	if diags, ok := engine.DiagnosticsOf(err); ok {
//	    for _, d := range diags {
//	        fmt.Println(d)
//	    }
//	}
package engine
