package elastic

import (
	"encoding/json"
	"testing"
)

func TestIndexNaming(t *testing.T) {
	c := &Client{indexBase: "nsrl"}
	exp := []string{"nsrl_mfg", "nsrl_os", "nsrl_prod", "nsrl_file"}
	got := c.indices()
	if len(got) != len(exp) {
		t.Fatalf("expected %v, got %v", exp, got)
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Fatalf("expected %v, got %v", exp, got)
		}
	}
}

func TestWithIndexBase(t *testing.T) {
	c := NewClient(nil, WithIndexBase("testing"))
	if c.index("file") != "testing_file" {
		t.Fatalf("unexpected index name %q", c.index("file"))
	}
	if NewClient(nil).index("mfg") != DefaultIndexBase+"_mfg" {
		t.Fatal("default index base not applied")
	}
}

func TestMappingsAreValidJSON(t *testing.T) {
	for _, kind := range kinds {
		m, ok := mappings[kind]
		if !ok {
			t.Fatalf("no mapping for kind %s", kind)
		}
		if !json.Valid([]byte(m)) {
			t.Errorf("mapping for %s is not valid json", kind)
		}
	}
}
