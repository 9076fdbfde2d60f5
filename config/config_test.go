package config

import (
	"sync/atomic"
	"testing"
)

// TestLookup_DefaultAndReuse tests registration semantics
func TestLookup_DefaultAndReuse(t *testing.T) {
	v := Lookup("test.size", 42, "test size")
	if v.Get() != 42 {
		t.Fatalf("default = %d, want 42", v.Get())
	}
	if v.VarName() != "test.size" || v.Description() != "test size" {
		t.Fatalf("metadata = %q / %q", v.VarName(), v.Description())
	}

	again := Lookup("test.size", 7, "ignored on reuse")
	if again != v {
		t.Fatalf("Lookup of an existing name must return the same variable")
	}
	if again.Get() != 42 {
		t.Fatalf("reuse must not overwrite the value, got %d", again.Get())
	}
}

// TestVar_SetFiresListeners tests change notification
func TestVar_SetFiresListeners(t *testing.T) {
	v := Lookup("test.listener", "a", "listener test")

	var fired atomic.Int32
	var gotOld, gotNew string
	key := v.OnChange(func(oldValue, newValue string) {
		fired.Add(1)
		gotOld, gotNew = oldValue, newValue
	})

	v.Set("b")
	if fired.Load() != 1 || gotOld != "a" || gotNew != "b" {
		t.Fatalf("listener saw %q -> %q (fired %d)", gotOld, gotNew, fired.Load())
	}

	v.DelListener(key)
	v.Set("c")
	if fired.Load() != 1 {
		t.Fatalf("removed listener still fired")
	}
}

// TestLoadYAML_FlattensNestedKeys tests the YAML loader
func TestLoadYAML_FlattensNestedKeys(t *testing.T) {
	size := Lookup("yamltest.stack_size", 128*1024, "stack size")
	name := Lookup("yamltest.name", "default", "name")

	doc := []byte("yamltest:\n  stack_size: 262144\n  name: loaded\nunknown:\n  key: 1\n")
	if err := LoadYAML(doc); err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	if size.Get() != 262144 {
		t.Fatalf("stack_size = %d, want 262144", size.Get())
	}
	if name.Get() != "loaded" {
		t.Fatalf("name = %q, want \"loaded\"", name.Get())
	}
}

// TestLoadYAML_TypeMismatch tests that a bad value aborts the load
func TestLoadYAML_TypeMismatch(t *testing.T) {
	Lookup("yamltest.count", 1, "count")
	if err := LoadYAML([]byte("yamltest:\n  count: not-a-number\n")); err == nil {
		t.Fatalf("expected a conversion error")
	}
}

// TestVisit_EnumeratesRegistrations tests the registry walk
func TestVisit_EnumeratesRegistrations(t *testing.T) {
	Lookup("visit.one", 1, "first")
	seen := map[string]bool{}
	Visit(func(name, description, value string) {
		seen[name] = true
	})
	if !seen["visit.one"] {
		t.Fatalf("Visit skipped a registered variable")
	}
}
