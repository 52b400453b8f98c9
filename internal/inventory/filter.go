package inventory

import (
	"sort"
	"strings"
)

// Predicate decides whether a record belongs in the inventory. It must be
// free of side effects.
type Predicate func(Record) bool

// Always accepts every record
func Always(Record) bool { return true }

// AttributeEquals matches records whose attribute equals value
func AttributeEquals(field, value string) Predicate {
	return func(r Record) bool {
		return r.Attr(field) == value
	}
}

// GroupIn matches records whose lowercased group key is one of keys
func GroupIn(keys ...string) Predicate {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[strings.ToLower(k)] = struct{}{}
	}
	return func(r Record) bool {
		_, ok := allowed[strings.ToLower(r.GroupKey)]
		return ok
	}
}

// All matches records accepted by every predicate
func All(preds ...Predicate) Predicate {
	return func(r Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// FromFilter builds the predicate described by the filter config section.
// Empty match and groups yield Always.
func FromFilter(match map[string]string, groups []string) Predicate {
	var preds []Predicate

	fields := make([]string, 0, len(match))
	for f := range match {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		preds = append(preds, AttributeEquals(f, match[f]))
	}

	if len(groups) > 0 {
		preds = append(preds, GroupIn(groups...))
	}

	if len(preds) == 0 {
		return Always
	}
	return All(preds...)
}
