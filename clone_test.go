package requist

import (
	"reflect"
	"testing"
)

func TestCloneValueNoneSharesReference(t *testing.T) {
	original := map[string]int{"a": 1}
	cloned := cloneValue(original, CloneNone).(map[string]int)

	cloned["b"] = 2
	if _, ok := original["b"]; !ok {
		t.Error("CloneNone must return the same reference")
	}
}

func TestCloneValueShallow(t *testing.T) {
	inner := []int{1, 2}
	original := map[string]any{"list": inner}

	cloned := cloneValue(original, CloneShallow).(map[string]any)
	cloned["extra"] = true
	if _, ok := original["extra"]; ok {
		t.Error("shallow clone shared the top-level map")
	}

	// Nested values are still shared.
	cloned["list"].([]int)[0] = 99
	if inner[0] != 99 {
		t.Error("shallow clone unexpectedly copied nested values")
	}
}

func TestCloneValueDeep(t *testing.T) {
	original := map[string]any{
		"list":   []int{1, 2, 3},
		"nested": map[string]string{"k": "v"},
	}

	cloned := cloneValue(original, CloneDeep).(map[string]any)
	cloned["list"].([]int)[0] = 99
	cloned["nested"].(map[string]string)["k"] = "changed"

	if original["list"].([]int)[0] != 1 {
		t.Error("deep clone shared a nested slice")
	}
	if original["nested"].(map[string]string)["k"] != "v" {
		t.Error("deep clone shared a nested map")
	}
}

func TestCloneValueDeepCycle(t *testing.T) {
	node := &cyclicNode{Name: "a"}
	node.Next = node

	cloned := cloneValue(node, CloneDeep).(*cyclicNode)
	if cloned == node {
		t.Fatal("deep clone returned the original pointer")
	}
	if cloned.Next != cloned {
		t.Error("deep clone did not preserve the cycle shape")
	}

	cloned.Name = "b"
	if node.Name != "a" {
		t.Error("mutating the clone reached the original")
	}
}

func TestCloneValueDeepStruct(t *testing.T) {
	type payload struct {
		Name string
		Tags []string
	}
	original := payload{Name: "x", Tags: []string{"a"}}

	cloned := cloneValue(original, CloneDeep).(payload)
	cloned.Tags[0] = "mutated"

	if original.Tags[0] != "a" {
		t.Error("deep clone shared a struct field slice")
	}
	if !reflect.DeepEqual(cloned.Name, original.Name) {
		t.Error("deep clone lost scalar fields")
	}
}

func TestCloneValueNil(t *testing.T) {
	if got := cloneValue(nil, CloneDeep); got != nil {
		t.Errorf("cloneValue(nil) = %v, want nil", got)
	}
}

func TestCloneModeSupported(t *testing.T) {
	for _, mode := range []CloneMode{"", CloneNone, CloneShallow, CloneDeep} {
		if !mode.supported() {
			t.Errorf("mode %q should be supported", mode)
		}
	}
	if CloneMode("frozen").supported() {
		t.Error("unknown mode reported as supported")
	}
}
