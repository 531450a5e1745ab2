// Package roster holds per-crew-member simulation state and its
// load/save mapping onto the config-node save format.
package roster

import (
	"math"
	"strconv"

	"github.com/hmaeda/crewvault/internal/confignode"
)

// Notifier receives a synchronous fire-and-forget callback after every
// record mutation. Records get their notifier from the store they are
// registered with; a detached record simply skips the callback.
type Notifier interface {
	RecordChanged(name string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(name string)

func (f NotifierFunc) RecordChanged(name string) { f(name) }

type keyValue struct {
	key   string
	value string
}

type processCount struct {
	resource string
	count    int64
}

// CrewRecord is the persisted state of one crew member. The name is the
// immutable identity key; everything else is mutated in place by the
// simulation's processors through the methods below.
type CrewRecord struct {
	name        string
	trait       string
	lastUpdated float64
	exempt      bool

	conditions    tokenSet
	disqualifiers tokenSet

	keyValues []keyValue
	successes []processCount
	failures  []processCount

	rosterResources []*RosterResource

	// opaque holds RESOURCE nodes for resources not modeled as
	// RosterResource. They are carried verbatim between load and save,
	// keyed by their name value, and never interpreted beyond the
	// amount/maxAmount convenience accessors.
	opaque []*confignode.Node

	notifier Notifier
}

// NewRecord creates a detached record for a crew member entering the
// simulation. Name must be non-empty; it is the roster lookup key.
func NewRecord(name string) *CrewRecord {
	return &CrewRecord{name: name}
}

func (r *CrewRecord) notify() {
	if r.notifier != nil {
		r.notifier.RecordChanged(r.name)
	}
}

// Name returns the immutable identity key.
func (r *CrewRecord) Name() string { return r.name }

// Trait returns the last known role label.
func (r *CrewRecord) Trait() string { return r.trait }

// SetTrait records the crew member's current role label.
func (r *CrewRecord) SetTrait(trait string) {
	r.trait = trait
	r.notify()
}

// LastUpdated returns the simulation timestamp of the last processor
// pass over this record.
func (r *CrewRecord) LastUpdated() float64 { return r.lastUpdated }

// Touch records the simulation timestamp of a processor pass.
func (r *CrewRecord) Touch(simTime float64) {
	r.lastUpdated = simTime
	r.notify()
}

// Exempt reports whether this record is excluded from outcome
// processing. Processors check this before acting.
func (r *CrewRecord) Exempt() bool { return r.exempt }

// SetExempt marks or unmarks the record as exempt.
func (r *CrewRecord) SetExempt(exempt bool) {
	r.exempt = exempt
	r.notify()
}

// SetCondition adds a condition token. Tokens already present are not
// duplicated.
func (r *CrewRecord) SetCondition(token string) {
	r.conditions.Add(token)
	r.notify()
}

// ClearCondition removes a condition token; absent tokens are a no-op.
func (r *CrewRecord) ClearCondition(token string) {
	r.conditions.Remove(token)
	r.notify()
}

// HasCondition reports whether the condition token is active.
func (r *CrewRecord) HasCondition(token string) bool {
	return r.conditions.Has(token)
}

// ConditionSummary returns the comma-joined display form of the active
// conditions, e.g. "Stressed, Hungry".
func (r *CrewRecord) ConditionSummary() string {
	return r.conditions.String()
}

// Conditions returns the active condition tokens in insertion order.
func (r *CrewRecord) Conditions() []string {
	return r.conditions.Tokens()
}

// SetDisqualifier adds a token that forces precondition checks
// elsewhere to fail unconditionally.
func (r *CrewRecord) SetDisqualifier(token string) {
	r.disqualifiers.Add(token)
	r.notify()
}

// ClearDisqualifier removes a disqualifier token.
func (r *CrewRecord) ClearDisqualifier(token string) {
	r.disqualifiers.Remove(token)
	r.notify()
}

// HasDisqualifier reports whether the disqualifier token is set.
func (r *CrewRecord) HasDisqualifier(token string) bool {
	return r.disqualifiers.Has(token)
}

// DisqualifiedPreconditions returns the comma-joined display form of
// the disqualifier tokens.
func (r *CrewRecord) DisqualifiedPreconditions() string {
	return r.disqualifiers.String()
}

// Disqualifiers returns the disqualifier tokens in insertion order.
func (r *CrewRecord) Disqualifiers() []string {
	return r.disqualifiers.Tokens()
}

// SetKeyValue upserts scratch state under a well-known key for an
// external subsystem, e.g. a recorded EVA-start timestamp.
func (r *CrewRecord) SetKeyValue(key, value string) {
	for i := range r.keyValues {
		if r.keyValues[i].key == key {
			r.keyValues[i].value = value
			r.notify()
			return
		}
	}
	r.keyValues = append(r.keyValues, keyValue{key: key, value: value})
	r.notify()
}

// ValueForKey returns the scratch value for key and whether it exists.
func (r *CrewRecord) ValueForKey(key string) (string, bool) {
	for _, kv := range r.keyValues {
		if kv.key == key {
			return kv.value, true
		}
	}
	return "", false
}

// FloatForKey returns the scratch value parsed as float64, or NaN when
// the key is absent or the value does not parse.
func (r *CrewRecord) FloatForKey(key string) float64 {
	v, ok := r.ValueForKey(key)
	if !ok {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// RemoveKeyValue deletes the scratch entry for key; absent keys are a
// no-op.
func (r *CrewRecord) RemoveKeyValue(key string) {
	for i := range r.keyValues {
		if r.keyValues[i].key == key {
			r.keyValues = append(r.keyValues[:i], r.keyValues[i+1:]...)
			break
		}
	}
	r.notify()
}

// Keys returns the scratch keys in insertion order.
func (r *CrewRecord) Keys() []string {
	out := make([]string, 0, len(r.keyValues))
	for _, kv := range r.keyValues {
		out = append(out, kv.key)
	}
	return out
}

// RecordProcessResult increments the success or failure counter for the
// named resource processor.
func (r *CrewRecord) RecordProcessResult(resource string, success bool) {
	counts := &r.failures
	if success {
		counts = &r.successes
	}
	incrementCount(counts, resource, 1)
	r.notify()
}

func incrementCount(counts *[]processCount, resource string, delta int64) {
	for i := range *counts {
		if (*counts)[i].resource == resource {
			(*counts)[i].count += delta
			return
		}
	}
	*counts = append(*counts, processCount{resource: resource, count: delta})
}

// SuccessCount returns the processed-success counter for the named
// resource processor, zero when untracked.
func (r *CrewRecord) SuccessCount(resource string) int64 {
	return lookupCount(r.successes, resource)
}

// FailureCount returns the processed-failure counter for the named
// resource processor, zero when untracked.
func (r *CrewRecord) FailureCount(resource string) int64 {
	return lookupCount(r.failures, resource)
}

// SuccessCounts returns every processed-success counter keyed by
// resource processor name.
func (r *CrewRecord) SuccessCounts() map[string]int64 {
	return countMap(r.successes)
}

// FailureCounts returns every processed-failure counter keyed by
// resource processor name.
func (r *CrewRecord) FailureCounts() map[string]int64 {
	return countMap(r.failures)
}

func countMap(counts []processCount) map[string]int64 {
	if len(counts) == 0 {
		return nil
	}
	m := make(map[string]int64, len(counts))
	for _, c := range counts {
		m[c.resource] = c.count
	}
	return m
}

func lookupCount(counts []processCount, resource string) int64 {
	for _, c := range counts {
		if c.resource == resource {
			return c.count
		}
	}
	return 0
}

// SetResourceAmounts upserts an opaque resource's amount/maxAmount
// pair. The resource is stored as a RESOURCE node so unknown sibling
// values written by other subsystems survive the update.
func (r *CrewRecord) SetResourceAmounts(name string, amount, maxAmount float64) {
	node := r.opaqueNode(name)
	if node == nil {
		node = confignode.New(resourceNodeTag)
		node.AddValue(fieldName, name)
		r.opaque = append(r.opaque, node)
	}
	node.SetValue(fieldAmount, formatFloat(amount))
	node.SetValue(fieldMaxAmount, formatFloat(maxAmount))
	r.notify()
}

// ResourceAmounts returns the stored amount/maxAmount pair for the
// named resource. found=false leaves both amounts at zero.
func (r *CrewRecord) ResourceAmounts(name string) (amount, maxAmount float64, found bool) {
	node := r.opaqueNode(name)
	if node == nil {
		return 0, 0, false
	}
	amount, _ = strconv.ParseFloat(node.Value(fieldAmount), 64)
	maxAmount, _ = strconv.ParseFloat(node.Value(fieldMaxAmount), 64)
	return amount, maxAmount, true
}

// HasResource reports whether an opaque resource with the given name is
// stored on the record.
func (r *CrewRecord) HasResource(name string) bool {
	return r.opaqueNode(name) != nil
}

// RemoveResource drops the opaque resource with the given name; absent
// names are a no-op.
func (r *CrewRecord) RemoveResource(name string) {
	for i, n := range r.opaque {
		if n.Value(fieldName) == name {
			r.opaque = append(r.opaque[:i], r.opaque[i+1:]...)
			break
		}
	}
	r.notify()
}

func (r *CrewRecord) opaqueNode(name string) *confignode.Node {
	for _, n := range r.opaque {
		if n.Value(fieldName) == name {
			return n
		}
	}
	return nil
}

// RosterResources returns the roster-resource entries in load order.
func (r *CrewRecord) RosterResources() []*RosterResource {
	return r.rosterResources
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
