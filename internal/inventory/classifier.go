package inventory

import (
	"fmt"
	"strings"
)

// MalformedRecordError is returned when a record selected for the inventory
// lacks one of its required fields or maps to a reserved group name.
type MalformedRecordError struct {
	Index  int // position in the upstream result, -1 when unknown
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("malformed record #%d: %s %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed record: %s %s", e.Field, e.Reason)
}

// Classifier places records into their groups
type Classifier struct {
	// HostVarFields lists record attributes copied into _meta.hostvars.
	// Empty means hostvars stay empty.
	HostVarFields []string
}

// Classify appends rec to the group named by its lowercased GroupKey.
// Host names are appended in call order and never deduplicated.
func (c Classifier) Classify(inv *Inventory, rec Record) error {
	if strings.TrimSpace(rec.GroupKey) == "" {
		return &MalformedRecordError{Index: -1, Field: "group key", Reason: "is empty"}
	}
	if strings.TrimSpace(rec.Name) == "" {
		return &MalformedRecordError{Index: -1, Field: "name", Reason: "is empty"}
	}

	key := strings.ToLower(rec.GroupKey)
	if key == MetaKey {
		return &MalformedRecordError{Index: -1, Field: "group key", Reason: fmt.Sprintf("uses reserved name %q", MetaKey)}
	}

	g := inv.EnsureGroup(key)
	g.Hosts = append(g.Hosts, rec.Name)

	if len(c.HostVarFields) > 0 {
		vars, ok := inv.Meta.HostVars[rec.Name]
		if !ok {
			vars = make(map[string]any, len(c.HostVarFields))
			inv.Meta.HostVars[rec.Name] = vars
		}
		for _, field := range c.HostVarFields {
			if _, present := rec.Attributes[field]; present {
				vars[field] = rec.Attr(field)
			}
		}
	}

	return nil
}
