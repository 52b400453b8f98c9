package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// MetaKey is the reserved top-level key holding per-host variables
const MetaKey = "_meta"

// Record is a single CMDB entry returned by the upstream API
type Record struct {
	GroupKey   string
	Name       string
	Attributes map[string]any
}

// Attr returns the string form of an attribute.
// Reference fields come back from the table API as objects like
// {"link": "...", "value": "..."}; the value (or display_value) is used.
func (r Record) Attr(field string) string {
	v, ok := r.Attributes[field]
	if !ok {
		return ""
	}
	return flatten(v)
}

func flatten(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case map[string]any:
		if dv, ok := t["display_value"]; ok {
			return flatten(dv)
		}
		if val, ok := t["value"]; ok {
			return flatten(val)
		}
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// Group is a named bucket of hosts with its own variable defaults
type Group struct {
	Hosts []string       `json:"hosts,omitempty"`
	Vars  map[string]any `json:"vars,omitempty"`
}

// Meta holds the _meta block of an inventory
type Meta struct {
	HostVars map[string]map[string]any `json:"hostvars"`
}

// Inventory is the grouped-hosts document handed to Ansible
type Inventory struct {
	Meta   Meta
	Groups map[string]*Group
}

// New returns the canonical empty inventory: an empty hostvars map and one
// pre-created default group carrying a copy of defaultVars.
func New(defaultGroup string, defaultVars map[string]any) *Inventory {
	inv := &Inventory{
		Meta:   Meta{HostVars: map[string]map[string]any{}},
		Groups: map[string]*Group{},
	}
	if defaultGroup == "" {
		return inv
	}

	g := inv.EnsureGroup(defaultGroup)
	if len(defaultVars) > 0 {
		g.Vars = make(map[string]any, len(defaultVars))
		for k, v := range defaultVars {
			g.Vars[k] = v
		}
	}
	return inv
}

// EnsureGroup returns the group for key, creating it with no hosts and no
// vars if it does not exist yet.
func (inv *Inventory) EnsureGroup(key string) *Group {
	if g, ok := inv.Groups[key]; ok {
		return g
	}
	g := &Group{}
	inv.Groups[key] = g
	return g
}

// GroupNames returns the group keys in sorted order
func (inv *Inventory) GroupNames() []string {
	names := make([]string, 0, len(inv.Groups))
	for name := range inv.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HostCount counts host entries across all groups, duplicates included
func (inv *Inventory) HostCount() int {
	n := 0
	for _, g := range inv.Groups {
		n += len(g.Hosts)
	}
	return n
}

// HostVars returns the variables for a single host, or an empty map
func (inv *Inventory) HostVars(name string) map[string]any {
	if vars, ok := inv.Meta.HostVars[name]; ok && vars != nil {
		return vars
	}
	return map[string]any{}
}

// MarshalJSON renders the inventory as a flat object: _meta plus one key per group
func (inv *Inventory) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(inv.Groups)+1)
	for name, g := range inv.Groups {
		out[name] = g
	}

	meta := inv.Meta
	if meta.HostVars == nil {
		meta.HostVars = map[string]map[string]any{}
	}
	out[MetaKey] = meta

	return json.Marshal(out)
}

// UnmarshalJSON is strict: a missing _meta.hostvars or a group carrying
// unknown fields is rejected rather than partially decoded.
func (inv *Inventory) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("inventory is null")
	}

	metaRaw, ok := raw[MetaKey]
	if !ok {
		return fmt.Errorf("missing %s block", MetaKey)
	}
	var meta Meta
	if err := strictDecode(metaRaw, &meta); err != nil {
		return fmt.Errorf("invalid %s block: %w", MetaKey, err)
	}
	if meta.HostVars == nil {
		return fmt.Errorf("missing %s.hostvars", MetaKey)
	}

	groups := make(map[string]*Group, len(raw)-1)
	for name, body := range raw {
		if name == MetaKey {
			continue
		}
		g := &Group{}
		if err := strictDecode(body, g); err != nil {
			return fmt.Errorf("invalid group %q: %w", name, err)
		}
		groups[name] = g
	}

	inv.Meta = meta
	inv.Groups = groups
	return nil
}

func strictDecode(data []byte, dst any) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("unexpected null")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
