package feedback

import (
	"fmt"
	"math"
)

// validator checks a raw value against one definition type's config.
type validator func(value any, def *Definition) *ValidationError

// validators dispatches validation by definition type. Every entry in
// ValidTypes must have a validator here.
var validators = map[Type]validator{
	TypeNumerical:   validateNumerical,
	TypeCategorical: validateCategorical,
	TypeBoolean:     validateBoolean,
	TypeText:        validateText,
	TypeLikertScale: validateLikert,
}

// ValidateValue checks value against the definition's config and
// validation settings. It returns nil when the value is acceptable and
// a *ValidationError naming the offending field otherwise. Values are
// JSON-shaped: numbers arrive as float64, multi-select values as []any.
func ValidateValue(def *Definition, value any) error {
	if isEmptyValue(value) {
		if def.Validation.Required {
			return &ValidationError{Field: "value", Message: "value is required"}
		}
		return nil
	}

	v, ok := validators[def.Type]
	if !ok {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unsupported feedback type %q", def.Type)}
	}
	if err := v(value, def); err != nil {
		return err
	}
	return nil
}

// isEmptyValue reports whether value counts as missing for the required
// check: nil, empty string, or empty slice.
func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

func validateNumerical(value any, def *Definition) *ValidationError {
	n, ok := asFloat(value)
	if !ok {
		return &ValidationError{Field: "value", Message: "value must be numeric"}
	}

	cfg := def.Config.Numerical
	if cfg == nil {
		return nil
	}
	if cfg.MinValue != nil && n < *cfg.MinValue {
		return &ValidationError{Field: "value", Message: fmt.Sprintf("value %v is below minimum %v", n, *cfg.MinValue)}
	}
	if cfg.MaxValue != nil && n > *cfg.MaxValue {
		return &ValidationError{Field: "value", Message: fmt.Sprintf("value %v is above maximum %v", n, *cfg.MaxValue)}
	}
	if cfg.Precision != nil && !roundTripsAt(n, *cfg.Precision) {
		return &ValidationError{Field: "value", Message: fmt.Sprintf("value %v exceeds precision of %d decimal places", n, *cfg.Precision)}
	}
	return nil
}

// roundTripsAt reports whether v survives rounding at p decimal places.
func roundTripsAt(v float64, p int) bool {
	if p < 0 {
		return true
	}
	scale := math.Pow(10, float64(p))
	rounded := math.Round(v*scale) / scale
	return math.Abs(rounded-v) < 1e-9
}

func validateCategorical(value any, def *Definition) *ValidationError {
	cfg := def.Config.Categorical
	if cfg == nil {
		cfg = &CategoricalConfig{}
	}

	if cfg.MultiSelect {
		elems, ok := asStringSlice(value)
		if !ok {
			return &ValidationError{Field: "value", Message: "value must be a list of option values"}
		}
		for _, e := range elems {
			if err := checkOption(e, cfg); err != nil {
				return err
			}
		}
		return nil
	}

	s, ok := value.(string)
	if !ok {
		return &ValidationError{Field: "value", Message: "value must be a string option"}
	}
	return checkOption(s, cfg)
}

func checkOption(v string, cfg *CategoricalConfig) *ValidationError {
	if cfg.AllowOther {
		return nil
	}
	for _, opt := range cfg.Options {
		if opt.Value == v {
			return nil
		}
	}
	return &ValidationError{Field: "value", Message: fmt.Sprintf("%q is not a configured option", v)}
}

func validateBoolean(value any, _ *Definition) *ValidationError {
	if _, ok := value.(bool); !ok {
		return &ValidationError{Field: "value", Message: "value must be true or false"}
	}
	return nil
}

func validateText(value any, def *Definition) *ValidationError {
	s, ok := value.(string)
	if !ok {
		return &ValidationError{Field: "value", Message: "value must be a string"}
	}

	cfg := def.Config.Text
	if cfg == nil {
		return nil
	}
	if cfg.MinLength != nil && len(s) < *cfg.MinLength {
		return &ValidationError{Field: "value", Message: fmt.Sprintf("text shorter than minimum length %d", *cfg.MinLength)}
	}
	if cfg.MaxLength != nil && len(s) > *cfg.MaxLength {
		return &ValidationError{Field: "value", Message: fmt.Sprintf("text longer than maximum length %d", *cfg.MaxLength)}
	}
	return nil
}

func validateLikert(value any, def *Definition) *ValidationError {
	n, ok := asFloat(value)
	if !ok || n != math.Trunc(n) {
		return &ValidationError{Field: "value", Message: "value must be an integer"}
	}

	lo, hi := def.Config.Likert.Range()
	v := int(n)
	if v < lo || v > hi {
		return &ValidationError{Field: "value", Message: fmt.Sprintf("value %d outside scale range [%d, %d]", v, lo, hi)}
	}
	return nil
}

// asFloat normalizes the numeric representations JSON decoding and Go
// callers may hand us.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// asStringSlice accepts []string directly or a JSON-decoded []any of strings.
func asStringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
