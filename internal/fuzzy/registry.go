package fuzzy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrFunctionExists   = errors.New("membership function already registered")
	ErrFunctionNotFound = errors.New("membership function not found")
)

var functionRegistry = struct {
	mu sync.RWMutex
	m  map[string]MembershipFunction
}{
	m: make(map[string]MembershipFunction),
}

func init() {
	initializeBuiltInFunctions()
}

func initializeBuiltInFunctions() {
	MustRegisterFunction(BellTwo{})
	MustRegisterFunction(BellThree{})
	MustRegisterFunction(PiecewiseLogit{})
}

// RegisterFunction makes fn resolvable by its Name.
func RegisterFunction(fn MembershipFunction) error {
	if fn == nil {
		return errors.New("membership function is required")
	}
	name := fn.Name()
	if name == "" {
		return errors.New("membership function name is required")
	}
	if len(fn.Params()) == 0 {
		return fmt.Errorf("membership function %s declares no parameters", name)
	}

	functionRegistry.mu.Lock()
	defer functionRegistry.mu.Unlock()

	if _, exists := functionRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrFunctionExists, name)
	}
	functionRegistry.m[name] = fn
	return nil
}

func MustRegisterFunction(fn MembershipFunction) {
	if err := RegisterFunction(fn); err != nil {
		panic(err)
	}
}

func GetFunction(name string) (MembershipFunction, error) {
	functionRegistry.mu.RLock()
	fn, ok := functionRegistry.m[name]
	functionRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return fn, nil
}

// GetConsequentFunction resolves name and checks that the family can be
// linearized for the consequent layer.
func GetConsequentFunction(name string) (ConsequentFunction, error) {
	fn, err := GetFunction(name)
	if err != nil {
		return nil, err
	}
	cons, ok := fn.(ConsequentFunction)
	if !ok {
		return nil, fmt.Errorf("membership function %s cannot be used as consequent", name)
	}
	return cons, nil
}

func ListFunctions() []string {
	functionRegistry.mu.RLock()
	defer functionRegistry.mu.RUnlock()

	names := make([]string, 0, len(functionRegistry.m))
	for name := range functionRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetFunctionRegistryForTests() {
	functionRegistry.mu.Lock()
	functionRegistry.m = make(map[string]MembershipFunction)
	functionRegistry.mu.Unlock()
	initializeBuiltInFunctions()
}
