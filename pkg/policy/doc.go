// Package policy lints generated binding models with Open Policy Agent (OPA).
//
// Policies are Rego modules that define a deny set. Each resource and each
// callback adapter of a model is evaluated on its own, so a policy sees one
// binding at a time under input.resource or input.callback, with input.kind
// telling the two apart. input.model summarizes the whole model and
// input.context carries the plan name and strict flag.
//
// # Architecture
//
//  1. Engine - Compiles and evaluates Rego policies, implements engine.Linter
//  2. Loader - Loads policies from .rego files, JSON files and bundles
//  3. Built-in Policies - Checks shipped with bindforge
//
// # Usage
//
//	eng, err := policy.NewEngine(logger, policy.WithStrict(true))
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//
//	result, err := bindengine.Generate(ctx, plan, table, bindengine.Options{Linter: eng})
//
// # Built-in Policies
//
//  1. borrowed-view - Views exposing native memory without a copy (warning)
//  2. undisposed-root - Root resources created but never destroyed (warning)
//  3. method-naming - Method names that are not lower camel case (error)
//  4. process-lifetime-callback - Adapters that live for the whole process (info)
//
// # Custom Policies
//
// A deny entry is either a message string or an object with message, and
// optionally subject, severity and remediation:
//
//	# Resources must not grow past the configured method count.
//	# severity: error
//	package custom.limits
//
//	import rego.v1
//
//	deny contains msg if {
//	    input.kind == "resource"
//	    count(input.resource.methods) > data.params.maxMethods
//	    msg := sprintf("%s has too many methods", [input.resource.name])
//	}
//
// data.params is set with Engine.SetParameters.
//
// # Severity Levels
//
// In strict mode a violation keeps its severity when it becomes a diagnostic.
// Otherwise errors are reported as warnings and warnings as info, so only
// error policies can block generation, and only when warnings are not allowed.
//
// # Hot Reload
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.ReplacePolicies(ctx, policies)
//	})
package policy
