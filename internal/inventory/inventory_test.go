package inventory

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestEnsureGroupReturnsSameHandle(t *testing.T) {
	inv := New("", nil)

	a := inv.EnsureGroup("rhel")
	a.Hosts = append(a.Hosts, "h1")
	b := inv.EnsureGroup("rhel")

	if a != b {
		t.Fatal("EnsureGroup() returned a different group for the same key")
	}
	if len(b.Hosts) != 1 {
		t.Errorf("hosts = %v, want [h1]", b.Hosts)
	}
}

func TestClassifierSurfacesHostVars(t *testing.T) {
	inv := New("ubuntu", nil)
	c := Classifier{HostVarFields: []string{"ip_address", "location", "missing"}}

	r := Record{
		GroupKey: "RHEL",
		Name:     "db01",
		Attributes: map[string]any{
			"ip_address": "10.0.0.5",
			"location":   map[string]any{"link": "https://x/api/now/table/cmn_location/1", "value": "abc123"},
			"serial":     "ignored",
		},
	}
	if err := c.Classify(inv, r); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	want := map[string]any{"ip_address": "10.0.0.5", "location": "abc123"}
	if got := inv.HostVars("db01"); !reflect.DeepEqual(got, want) {
		t.Errorf("hostvars = %v, want %v", got, want)
	}
	if got := inv.HostVars("unknown"); len(got) != 0 {
		t.Errorf("HostVars(unknown) = %v, want empty", got)
	}
}

func TestClassifierLeavesHostVarsEmptyByDefault(t *testing.T) {
	inv := New("ubuntu", nil)
	if err := (Classifier{}).Classify(inv, rec("rhel", "h")); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(inv.Meta.HostVars) != 0 {
		t.Errorf("hostvars = %v, want empty", inv.Meta.HostVars)
	}
}

func TestRecordAttr(t *testing.T) {
	r := Record{Attributes: map[string]any{
		"str":     "x",
		"num":     float64(42),
		"flag":    true,
		"ref":     map[string]any{"link": "l", "value": "v"},
		"display": map[string]any{"display_value": "Production", "value": "1"},
		"null":    nil,
	}}

	tests := map[string]string{
		"str":     "x",
		"num":     "42",
		"flag":    "true",
		"ref":     "v",
		"display": "Production",
		"null":    "",
		"absent":  "",
	}
	for field, want := range tests {
		if got := r.Attr(field); got != want {
			t.Errorf("Attr(%q) = %q, want %q", field, got, want)
		}
	}
}

// TestMarshalShape checks the flat Ansible layout and stable key order
func TestMarshalShape(t *testing.T) {
	inv, err := Builder{
		DefaultGroup: "ubuntu",
		DefaultVars:  map[string]any{"ansible_shell_type": "csh"},
	}.Build([]Record{rec("rhel", "h2"), rec("Ubuntu", "h1")}, Always)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"_meta":{"hostvars":{}},"rhel":{"hosts":["h2"]},"ubuntu":{"hosts":["h1"],"vars":{"ansible_shell_type":"csh"}}}`
	if string(data) != want {
		t.Errorf("Marshal() =\n%s\nwant\n%s", data, want)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	inv := New("ubuntu", map[string]any{"ansible_shell_type": "csh"})
	c := Classifier{HostVarFields: []string{"ip_address"}}
	for _, r := range []Record{
		{GroupKey: "rhel", Name: "a", Attributes: map[string]any{"ip_address": "10.0.0.1"}},
		{GroupKey: "rhel", Name: "b"},
		{GroupKey: "ubuntu", Name: "c"},
	} {
		if err := c.Classify(inv, r); err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
	}

	data, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got Inventory
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !reflect.DeepEqual(&got, inv) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, *inv)
	}
}

func TestUnmarshalRejectsWrongShape(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		errText string
	}{
		{name: "not an object", input: `[1,2]`, errText: "cannot unmarshal"},
		{name: "null", input: `null`, errText: "inventory is null"},
		{name: "missing meta", input: `{"rhel":{"hosts":["a"]}}`, errText: "missing _meta"},
		{name: "missing hostvars", input: `{"_meta":{}}`, errText: "missing _meta.hostvars"},
		{name: "hosts not a list", input: `{"_meta":{"hostvars":{}},"rhel":{"hosts":"a"}}`, errText: `invalid group "rhel"`},
		{name: "unknown group field", input: `{"_meta":{"hostvars":{}},"rhel":{"members":["a"]}}`, errText: `invalid group "rhel"`},
		{name: "null group", input: `{"_meta":{"hostvars":{}},"rhel":null}`, errText: `invalid group "rhel"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inv Inventory
			err := json.Unmarshal([]byte(tt.input), &inv)
			if err == nil {
				t.Fatal("Unmarshal() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Unmarshal() error = %v, want error containing %q", err, tt.errText)
			}
		})
	}
}

func TestFromFilter(t *testing.T) {
	prod := Record{GroupKey: "RHEL", Name: "a", Attributes: map[string]any{
		"operational_status": "1",
		"install_status":     map[string]any{"value": "1"},
	}}
	dev := Record{GroupKey: "rhel", Name: "b", Attributes: map[string]any{"operational_status": "2"}}
	win := Record{GroupKey: "Windows", Name: "c", Attributes: map[string]any{"operational_status": "1"}}

	tests := []struct {
		name   string
		match  map[string]string
		groups []string
		want   []bool
	}{
		{name: "empty filter accepts all", want: []bool{true, true, true}},
		{name: "attribute match", match: map[string]string{"operational_status": "1"}, want: []bool{true, false, true}},
		{name: "reference attribute", match: map[string]string{"install_status": "1"}, want: []bool{true, false, false}},
		{name: "groups only", groups: []string{"rhel"}, want: []bool{true, true, false}},
		{
			name:   "match and groups",
			match:  map[string]string{"operational_status": "1"},
			groups: []string{"RHEL"},
			want:   []bool{true, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := FromFilter(tt.match, tt.groups)
			for i, r := range []Record{prod, dev, win} {
				if got := pred(r); got != tt.want[i] {
					t.Errorf("pred(%s) = %v, want %v", r.Name, got, tt.want[i])
				}
			}
		})
	}
}
