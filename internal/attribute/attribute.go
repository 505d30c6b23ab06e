// Package attribute exposes component parameters as named, typed and
// independently lockable get/set entries.
package attribute

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrUnknown   = errors.New("attribute: unknown attribute")
	ErrLocked    = errors.New("attribute: attribute is locked")
	ErrSignature = errors.New("attribute: arguments do not match signature")
	ErrReadOnly  = errors.New("attribute: attribute is read-only")
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	Number Kind = iota + 1
	Text
	Bool
	Nested
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Text:
		return "text"
	case Bool:
		return "bool"
	case Nested:
		return "values"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged variant holding one of the Kind payloads.
type Value struct {
	kind   Kind
	num    float64
	text   string
	flag   bool
	nested Values
}

func Num(f float64) Value { return Value{kind: Number, num: f} }
func Str(s string) Value { return Value{kind: Text, text: s} }
func Flag(b bool) Value { return Value{kind: Bool, flag: b} }
func Nest(vs ...Value) Value { return Value{kind: Nested, nested: vs} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) Float() float64 { return v.num }
func (v Value) Text() string { return v.text }
func (v Value) Bool() bool { return v.flag }
func (v Value) Values() Values { return v.nested }

func (v Value) String() string {
	switch v.kind {
	case Number:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case Text:
		return strconv.Quote(v.text)
	case Bool:
		return strconv.FormatBool(v.flag)
	case Nested:
		return "[" + v.nested.String() + "]"
	}
	return "<nil>"
}

// Values is an argument list.
type Values []Value

// Nums builds a list of numbers.
func Nums(fs ...float64) Values {
	vs := make(Values, len(fs))
	for i, f := range fs {
		vs[i] = Num(f)
	}
	return vs
}

// Floats returns the payload of an all-number list.
func (vs Values) Floats() ([]float64, error) {
	out := make([]float64, len(vs))
	for i, v := range vs {
		if v.kind != Number {
			return nil, fmt.Errorf("%w: argument %d is %s, want number", ErrSignature, i, v.kind)
		}
		out[i] = v.num
	}
	return out, nil
}

func (vs Values) String() string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// Signature lists the kinds a setter accepts.
type Signature []Kind

// Spec describes one attribute. With Variadic, the signature repeats any
// number of times. A nil Set makes the attribute read-only; a nil Get makes
// it an action.
type Spec struct {
	Signature   Signature
	Variadic    bool
	Set         func(Values) error
	Get         func() Values
	Description string
}

func (s Spec) accepts(vs Values) error {
	n := len(s.Signature)
	switch {
	case n == 0 && len(vs) == 0:
		return nil
	case n == 0:
		return fmt.Errorf("%w: want no arguments, got %d", ErrSignature, len(vs))
	case !s.Variadic && len(vs) != n:
		return fmt.Errorf("%w: want %d arguments, got %d", ErrSignature, n, len(vs))
	case s.Variadic && len(vs)%n != 0:
		return fmt.Errorf("%w: want a multiple of %d arguments, got %d", ErrSignature, n, len(vs))
	}
	for i, v := range vs {
		if want := s.Signature[i%n]; v.kind != want {
			return fmt.Errorf("%w: argument %d is %s, want %s", ErrSignature, i, v.kind, want)
		}
	}
	return nil
}

type entry struct {
	spec   Spec
	locked bool
}

// Registry maps names to attribute specs. Callbacks run outside the
// registry lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Add registers or replaces an attribute. Replacing keeps the lock state.
func (r *Registry) Add(name string, spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.spec = spec
		return
	}
	r.entries[name] = &entry{spec: spec}
}

func (r *Registry) lookup(name string) (entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return entry{}, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return *e, nil
}

// Set validates vs against the signature then calls the setter.
func (r *Registry) Set(name string, vs ...Value) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if e.locked {
		return fmt.Errorf("%w: %s", ErrLocked, name)
	}
	if e.spec.Set == nil {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	if err := e.spec.accepts(vs); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return e.spec.Set(vs)
}

// SetNums is Set with number arguments.
func (r *Registry) SetNums(name string, fs ...float64) error {
	return r.Set(name, Nums(fs...)...)
}

// Get returns the current value. Actions return an empty list.
func (r *Registry) Get(name string) (Values, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if e.spec.Get == nil {
		return Values{}, nil
	}
	return e.spec.Get(), nil
}

// Lock freezes or releases an attribute.
func (r *Registry) Lock(name string, locked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	e.locked = locked
	return nil
}

func (r *Registry) IsLocked(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.locked
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the attribute names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line help text with the signature.
func (r *Registry) Describe(name string) (string, error) {
	e, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	kinds := make([]string, len(e.spec.Signature))
	for i, k := range e.spec.Signature {
		kinds[i] = k.String()
	}
	sig := strings.Join(kinds, ", ")
	if e.spec.Variadic {
		sig += ", ..."
	}
	return fmt.Sprintf("%s(%s): %s", name, sig, e.spec.Description), nil
}

// Numbers returns a signature of n numbers.
func Numbers(n int) Signature {
	s := make(Signature, n)
	for i := range s {
		s[i] = Number
	}
	return s
}
