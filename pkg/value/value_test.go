package value

import (
	"reflect"
	"testing"
)

func TestObjectOrderPreserved(t *testing.T) {
	obj := Object{
		{"zebra", Number(1)},
		{"apple", Str("x")},
		{"mango", Bool(true)},
	}

	data, err := Marshal(obj)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"zebra":1,"apple":"x","mango":true}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}

	decoded, err := FromJSON(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded.(Object)
	if !ok {
		t.Fatalf("expected Object, got %T", decoded)
	}
	if !reflect.DeepEqual(got.Keys(), []string{"zebra", "apple", "mango"}) {
		t.Errorf("key order not preserved: %v", got.Keys())
	}
}

func TestFromJSONKinds(t *testing.T) {
	v, err := FromJSON([]byte(`{"a":null,"b":[1,"two",false],"c":{"d":2.5}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	obj := v.(Object)

	if a, _ := obj.Get("a"); a != (Null{}) {
		t.Errorf("expected Null, got %#v", a)
	}

	b, _ := obj.Get("b")
	arr, ok := b.(Array)
	if !ok || len(arr) != 3 {
		t.Fatalf("expected 3-element array, got %#v", b)
	}
	if arr[0] != Number(1) || arr[1] != Str("two") || arr[2] != Bool(false) {
		t.Errorf("unexpected array contents: %#v", arr)
	}

	c, _ := obj.Get("c")
	inner, ok := c.(Object)
	if !ok {
		t.Fatalf("expected nested Object, got %#v", c)
	}
	if d, _ := inner.Get("d"); d != Number(2.5) {
		t.Errorf("expected 2.5, got %#v", d)
	}
}

func TestFromJSONTrailingData(t *testing.T) {
	if _, err := FromJSON([]byte(`{} {}`)); err == nil {
		t.Error("expected error for trailing data")
	}
}

func TestSetReplacesInPlace(t *testing.T) {
	obj := Object{{"a", Number(1)}, {"b", Number(2)}}
	obj = obj.Set("a", Number(9))
	obj = obj.Set("c", Number(3))

	if !reflect.DeepEqual(obj.Keys(), []string{"a", "b", "c"}) {
		t.Errorf("unexpected keys: %v", obj.Keys())
	}
	if v, _ := obj.Get("a"); v != Number(9) {
		t.Errorf("expected a=9, got %#v", v)
	}
}

func TestFromGo(t *testing.T) {
	type result struct {
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}

	v, err := FromGo(result{Count: 2, Tags: []string{"x", "y"}})
	if err != nil {
		t.Fatalf("FromGo: %v", err)
	}

	obj := v.(Object)
	if c, _ := obj.Get("count"); c != Number(2) {
		t.Errorf("expected count=2, got %#v", c)
	}
	tags, _ := obj.Get("tags")
	strs, ok := Strings(tags.(Array))
	if !ok || !reflect.DeepEqual(strs, []string{"x", "y"}) {
		t.Errorf("unexpected tags: %#v", tags)
	}
}

func TestStringsRejectsMixed(t *testing.T) {
	if _, ok := Strings(Array{Str("a"), Number(1)}); ok {
		t.Error("expected Strings to reject non-string element")
	}
}
