package inventory

import (
	"errors"
)

// Builder turns a flat record list into an Inventory
type Builder struct {
	DefaultGroup string
	DefaultVars  map[string]any
	Classifier   Classifier
}

// Build starts from the canonical empty inventory and classifies every
// record accepted by pred, in input order. The predicate is evaluated
// exactly once per record. The first malformed accepted record aborts the
// build.
func (b Builder) Build(records []Record, pred Predicate) (*Inventory, error) {
	if pred == nil {
		pred = Always
	}

	inv := New(b.DefaultGroup, b.DefaultVars)
	for i, rec := range records {
		if !pred(rec) {
			continue
		}
		if err := b.Classifier.Classify(inv, rec); err != nil {
			var mre *MalformedRecordError
			if errors.As(err, &mre) {
				mre.Index = i
			}
			return nil, err
		}
	}

	return inv, nil
}
