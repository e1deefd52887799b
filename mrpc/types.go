// Package mrpc implements a named-procedure RPC layer on top of mnet:
// typed argument declarations, a handler registry, and three call modes
// differing only in whether (and how long) the caller waits (§4.10).
package mrpc

import "fmt"

// Kind is one entry in the fixed argument/return type vocabulary (§4.10).
type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindTable    Kind = "table"
	KindFunction Kind = "function"
	KindAny      Kind = "any"
	KindNil      Kind = "nil"
)

// Param is one (name, allowed-kinds) entry of an argSpec/returnSpec; a
// comma-delimited type list in the spec's own words, modeled here as a
// slice so validation doesn't need to re-parse a string on every call.
type Param struct {
	Name  string
	Kinds []Kind
}

// accepts reports whether v's runtime type matches one of p's declared
// kinds. KindAny matches everything; KindNil matches only untyped nil.
func (p Param) accepts(v interface{}) bool {
	for _, k := range p.Kinds {
		if k == KindAny {
			return true
		}
		if matchesKind(k, v) {
			return true
		}
	}
	return false
}

func matchesKind(k Kind, v interface{}) bool {
	switch k {
	case KindNil:
		return v == nil
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindNumber:
		switch v.(type) {
		case int, int32, int64, uint, uint32, uint64, float32, float64:
			return true
		}
		return false
	case KindTable:
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return true
		}
		return false
	case KindFunction:
		_, ok := v.(func(...interface{}) (interface{}, error))
		return ok
	default:
		return false
	}
}

// ValidationError reports an argSpec/returnSpec mismatch caught before any
// wire activity (§7 "Validation").
type ValidationError struct {
	Function string
	Param    string
	Value    interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mrpc: %s: argument %q rejects value %v", e.Function, e.Param, e.Value)
}

// Declaration is one declareFunction entry: a name, its argument spec, and
// an optional return spec (nil means the call produces no reply).
type Declaration struct {
	Name       string
	ArgSpec    []Param
	ReturnSpec []Param
}

func (d *Declaration) validateArgs(args []interface{}) error {
	return validateAgainst(d.Name, d.ArgSpec, args)
}

func (d *Declaration) validateReturn(values []interface{}) error {
	return validateAgainst(d.Name, d.ReturnSpec, values)
}

func validateAgainst(fn string, spec []Param, values []interface{}) error {
	if len(values) != len(spec) {
		return &ValidationError{Function: fn, Param: fmt.Sprintf("arity: want %d got %d", len(spec), len(values))}
	}
	for i, p := range spec {
		if !p.accepts(values[i]) {
			return &ValidationError{Function: fn, Param: p.Name, Value: values[i]}
		}
	}
	return nil
}

// Handler is a registered function body: it receives the caller's host and
// the declared, already-validated arguments, and returns the declared
// return values (or none, for a declaration with no ReturnSpec).
type Handler func(receiver interface{}, host string, args []interface{}) ([]interface{}, error)
