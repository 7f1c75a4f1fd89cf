package fuzzy

import (
	"errors"
	"reflect"
	"testing"
)

type halfFunction struct{ BellTwo }

func (halfFunction) Name() string { return "half" }

func TestBuiltInFunctionsRegistered(t *testing.T) {
	resetFunctionRegistryForTests()
	want := []string{"bell2", "bell3", "plogit"}
	if got := ListFunctions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected functions: %v", got)
	}
	fn, err := GetFunction("bell3")
	if err != nil {
		t.Fatalf("get bell3: %v", err)
	}
	if len(fn.Params()) != 3 {
		t.Fatalf("unexpected params: %v", fn.Params())
	}
}

func TestRegisterFunctionDuplicate(t *testing.T) {
	resetFunctionRegistryForTests()
	t.Cleanup(resetFunctionRegistryForTests)

	if err := RegisterFunction(halfFunction{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterFunction(halfFunction{}); !errors.Is(err, ErrFunctionExists) {
		t.Fatalf("expected duplicate error, got=%v", err)
	}
}

func TestGetFunctionNotFound(t *testing.T) {
	if _, err := GetFunction("trapezoid"); !errors.Is(err, ErrFunctionNotFound) {
		t.Fatalf("expected not found error, got=%v", err)
	}
}

func TestGetConsequentFunction(t *testing.T) {
	if _, err := GetConsequentFunction("plogit"); err != nil {
		t.Fatalf("plogit consequent: %v", err)
	}
	if _, err := GetConsequentFunction("bell2"); err == nil {
		t.Fatal("expected bell2 to be rejected as consequent")
	}
}
