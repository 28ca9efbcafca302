package vhlo

import (
	"sort"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/pkg/errors"
)

// EntityInterval is the validity interval of one versioned entity. An entity
// is expressible at version v iff Min <= v <= Max. For removed entities Max
// is the last version before the removal and RemovedIn names the release that
// dropped the forward path; such entities remain reachable by downgrading
// only.
type EntityInterval struct {
	Min, Max Version

	// RemovedIn is the zero Version for live entities.
	RemovedIn Version
}

// Removed reports whether the entity was dropped from the vocabulary.
func (ei EntityInterval) Removed() bool { return ei.RemovedIn != Version{} }

// Contains reports whether the entity is expressible at the version.
func (ei EntityInterval) Contains(v Version) bool {
	if ei.Min.Compare(v) > 0 {
		return false
	}
	if ei.Removed() || ei.Max != (Version{}) {
		return ei.Max.Compare(v) >= 0
	}
	return true // Open-ended interval [Min, current].
}

// String renders the interval as "[MIN, MAX]", with the open upper bound
// rendered as "current".
func (ei EntityInterval) String() string {
	upper := CurrentToken
	if ei.Removed() || ei.Max != (Version{}) {
		upper = ei.Max.String()
	}
	return "[" + ei.Min.String() + ", " + upper + "]"
}

// revisionEntry binds one revision of an opcode to its validity interval.
type revisionEntry struct {
	revision int64
	interval EntityInterval
}

// Registry is the read-only version table of the vocabulary: the ordered
// release history plus the validity interval of every revision of every
// opcode. It is passed explicitly to migration and serialization so engine
// instances with different tables can coexist; a Registry must not be
// mutated after construction and is then safe for concurrent readers.
type Registry struct {
	versions  []Version
	revisions map[optypes.OpType][]revisionEntry
}

// NewRegistry returns the version table this engine was built with.
//
// History:
//   - 0.9.0  baseline, every opcode at revision 1
//   - 1.0.0  composite introduced
//   - 1.1.0  unary_einsum removed (downgrade-only afterwards)
//   - 1.2.0  dynamic_broadcast_in_dim revised to v2
//   - 1.3.0  custom_call revised to v2
func NewRegistry() *Registry {
	r := &Registry{
		versions:  []Version{{0, 9, 0}, {1, 0, 0}, {1, 1, 0}, {1, 2, 0}, {1, 3, 0}},
		revisions: make(map[optypes.OpType][]revisionEntry),
	}
	for _, op := range optypes.OpTypeValues() {
		if op == optypes.Invalid {
			continue
		}
		r.revisions[op] = []revisionEntry{{revision: 1, interval: EntityInterval{Min: MinimumSupported}}}
	}
	r.revisions[optypes.Composite] = []revisionEntry{
		{revision: 1, interval: EntityInterval{Min: Version{1, 0, 0}}},
	}
	r.revisions[optypes.UnaryEinsum] = []revisionEntry{
		{revision: 1, interval: EntityInterval{
			Min:       MinimumSupported,
			Max:       Version{1, 0, 0},
			RemovedIn: Version{1, 1, 0},
		}},
	}
	r.revisions[optypes.DynamicBroadcastInDim] = []revisionEntry{
		{revision: 1, interval: EntityInterval{Min: MinimumSupported, Max: Version{1, 1, 0}}},
		{revision: 2, interval: EntityInterval{Min: Version{1, 2, 0}}},
	}
	r.revisions[optypes.CustomCall] = []revisionEntry{
		{revision: 1, interval: EntityInterval{Min: MinimumSupported, Max: Version{1, 2, 0}}},
		{revision: 2, interval: EntityInterval{Min: Version{1, 3, 0}}},
	}
	return r
}

// Versions returns the known release history, oldest first.
func (r *Registry) Versions() []Version {
	return append([]Version(nil), r.versions...)
}

// Supports reports whether v is a release the registry knows about.
func (r *Registry) Supports(v Version) bool {
	i := sort.Search(len(r.versions), func(i int) bool { return r.versions[i].Compare(v) >= 0 })
	return i < len(r.versions) && r.versions[i].Equal(v)
}

// Next returns the release immediately after v.
func (r *Registry) Next(v Version) (Version, bool) {
	i := sort.Search(len(r.versions), func(i int) bool { return r.versions[i].Compare(v) > 0 })
	if i >= len(r.versions) {
		return Version{}, false
	}
	return r.versions[i], true
}

// Prev returns the release immediately before v.
func (r *Registry) Prev(v Version) (Version, bool) {
	i := sort.Search(len(r.versions), func(i int) bool { return r.versions[i].Compare(v) >= 0 })
	if i == 0 {
		return Version{}, false
	}
	return r.versions[i-1], true
}

// RevisionAt returns the revision of the opcode that is legal at the given
// version. Opcodes not expressible at that version return a
// version-incompatibility error naming the entity, its interval and the
// requested version; opcodes removed before it name the removing release.
func (r *Registry) RevisionAt(op optypes.OpType, v Version) (int64, error) {
	entries, ok := r.revisions[op]
	if !ok {
		return 0, errors.Errorf("opcode %s is not part of the versioned vocabulary", op)
	}
	for _, entry := range entries {
		if entry.interval.Contains(v) {
			return entry.revision, nil
		}
	}
	last := entries[len(entries)-1]
	if last.interval.Removed() && last.interval.RemovedIn.Compare(v) <= 0 {
		return 0, errors.Errorf("entity %s_v%d was removed in version %s and cannot be expressed at version %s",
			entityName(op), last.revision, last.interval.RemovedIn, v)
	}
	return 0, errors.Errorf("entity %s (validity %s) is not expressible in target version %s",
		entityName(op), r.intervalUnion(entries), v)
}

// removedInterval returns the validity interval of an opcode dropped from the
// vocabulary, or false for live opcodes.
func (r *Registry) removedInterval(op optypes.OpType) (EntityInterval, bool) {
	entries, ok := r.revisions[op]
	if !ok {
		return EntityInterval{}, false
	}
	last := entries[len(entries)-1].interval
	if !last.Removed() {
		return EntityInterval{}, false
	}
	return last, true
}

// Interval returns the validity interval of one revision of the opcode.
func (r *Registry) Interval(op optypes.OpType, revision int64) (EntityInterval, bool) {
	for _, entry := range r.revisions[op] {
		if entry.revision == revision {
			return entry.interval, true
		}
	}
	return EntityInterval{}, false
}

// MinVersion returns the oldest version able to decode the given revision of
// the opcode, used by the self-describing serialized form.
func (r *Registry) MinVersion(op optypes.OpType, revision int64) (Version, error) {
	interval, ok := r.Interval(op, revision)
	if !ok {
		return Version{}, errors.Errorf("unknown revision %d of opcode %s", revision, op)
	}
	return interval.Min, nil
}

// intervalUnion renders the overall validity span of an opcode across all of
// its revisions, for diagnostics.
func (r *Registry) intervalUnion(entries []revisionEntry) EntityInterval {
	union := entries[0].interval
	for _, entry := range entries[1:] {
		if entry.interval.Min.Less(union.Min) {
			union.Min = entry.interval.Min
		}
		if union.Removed() || union.Max != (Version{}) {
			if !entry.interval.Removed() && entry.interval.Max == (Version{}) {
				union.Max = Version{}
				union.RemovedIn = Version{}
			} else if union.Max.Less(entry.interval.Max) {
				union.Max = entry.interval.Max
				union.RemovedIn = entry.interval.RemovedIn
			}
		}
	}
	return union
}

func entityName(op optypes.OpType) string {
	return "vhlo." + op.HLOName()
}
