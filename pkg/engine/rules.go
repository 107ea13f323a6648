package engine

import "fmt"

// Outcome is the classification of one native return value.
type Outcome struct {
	// Failed is set for failures; Code then carries the raw native value.
	Failed bool  `json:"failed"`
	Value  int64 `json:"value,omitempty"`
	Code   int64 `json:"code,omitempty"`
}

// Success returns a successful outcome carrying value.
func Success(value int64) Outcome {
	return Outcome{Value: value}
}

// Failure returns a failed outcome carrying the native code.
func Failure(code int64) Outcome {
	return Outcome{Failed: true, Code: code}
}

func (o Outcome) String() string {
	if o.Failed {
		return fmt.Sprintf("Failure(%d)", o.Code)
	}
	return fmt.Sprintf("Success(%d)", o.Value)
}

// Classify applies an error rule to a native return value.
func Classify(value int64, rule RuleKind) Outcome {
	switch rule {
	case RuleNonZeroIsError:
		if value != 0 {
			return Failure(value)
		}
		return Success(value)
	case RuleNegativeIsError:
		if value < 0 {
			return Failure(value)
		}
		return Success(value)
	default:
		return Success(value)
	}
}

// ConsumesReturn reports whether the rule uses up the native return value, leaving nothing
// meaningful for the caller on success.
func (k RuleKind) ConsumesReturn() bool {
	switch k {
	case RuleNonZeroIsError:
		return true
	case RuleNegativeIsError:
		return false
	default:
		return false
	}
}

// ResolveErrorRules returns the single resolved rule per native function in plan order.
func ResolveErrorRules(vp *ValidatedPlan) []ErrorRuleBinding {
	out := make([]ErrorRuleBinding, 0, len(vp.ruleOrder))
	for _, fn := range vp.ruleOrder {
		out = append(out, vp.rules[fn])
	}
	return out
}

// ruleFor resolves the error rule and policy for a native function.
func ruleFor(vp *ValidatedPlan, function string) (*ErrorRuleBinding, ErrorPolicy) {
	rule, ok := vp.Rule(function)
	if !ok {
		return nil, ErrorPolicyNone
	}
	return &rule, rule.Policy
}
