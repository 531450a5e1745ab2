package roster

import (
	"fmt"
	"log"
	"strconv"

	"github.com/hmaeda/crewvault/internal/confignode"
)

// Save-format tags and field names. These are fixed by existing save
// data and must not change.
const (
	crewNodeTag     = "ASTRONAUT"
	keyValueNodeTag = "KEYVALUE"
	countNodeTag    = "RESOURCE_COUNT"
	resourceNodeTag = "RESOURCE"

	fieldName          = "name"
	fieldTrait         = "experienceTrait"
	fieldLastUpdated   = "lastUpdated"
	fieldExempt        = "isExempt"
	fieldConditions    = "conditionSummary"
	fieldDisqualifiers = "disqualifiedPreconditions"
	fieldKey           = "key"
	fieldValue         = "value"
	fieldResourceName  = "resourceName"
	fieldIsSuccess     = "isSuccess"
	fieldCount         = "count"
	fieldAmount        = "amount"
	fieldMaxAmount     = "maxAmount"
)

// Store owns the crew records of one roster, keyed by crew name.
// Iteration follows insertion order so repeated saves produce stable
// documents. Mutations on registered records funnel back through the
// store, which forwards them to its own notifier when one is attached.
type Store struct {
	records  map[string]*CrewRecord
	order    []string
	notifier Notifier
	logger   *log.Logger
}

// NewStore returns an empty roster store.
func NewStore() *Store {
	return &Store{records: make(map[string]*CrewRecord)}
}

// SetNotifier attaches the downstream persistence hook. Every record
// mutation and store-level change is forwarded to it, fire and forget.
func (s *Store) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetLogger attaches the warning sink for skipped records during load.
// A nil logger keeps the store silent.
func (s *Store) SetLogger(l *log.Logger) {
	s.logger = l
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// RecordChanged implements Notifier. Records registered with the store
// call it after every mutation.
func (s *Store) RecordChanged(name string) {
	if s.notifier != nil {
		s.notifier.RecordChanged(name)
	}
}

// Add registers a record. A record with the same name replaces the
// existing one in place, keeping its position in iteration order.
func (s *Store) Add(r *CrewRecord) {
	if r == nil || r.name == "" {
		return
	}
	r.notifier = s
	if _, exists := s.records[r.name]; !exists {
		s.order = append(s.order, r.name)
	}
	s.records[r.name] = r
	s.RecordChanged(r.name)
}

// Get returns the record for the named crew member.
func (s *Store) Get(name string) (*CrewRecord, bool) {
	r, ok := s.records[name]
	return r, ok
}

// Remove drops the record when the crew member permanently leaves the
// roster.
func (s *Store) Remove(name string) {
	if _, ok := s.records[name]; !ok {
		return
	}
	delete(s.records, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.RecordChanged(name)
}

// Names returns the crew names in iteration order.
func (s *Store) Names() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of registered records.
func (s *Store) Len() int {
	return len(s.records)
}

// LoadNode reads every ASTRONAUT child of the given node into the
// store. A record that fails to parse is skipped with a warning and
// loading continues; a corrupt document can never abort the whole
// roster's load. When two records share a name the later one wins.
func (s *Store) LoadNode(node *confignode.Node) {
	for _, child := range node.Nodes(crewNodeTag) {
		rec, err := recordFromNode(child)
		if err != nil {
			s.logf("skipping crew record: %v", err)
			continue
		}
		s.Add(rec)
	}
}

// SaveNode emits one ASTRONAUT child per record, in iteration order.
// Structural inverse of LoadNode: loading the result reproduces the
// store field for field.
func (s *Store) SaveNode(node *confignode.Node) {
	for _, name := range s.order {
		s.records[name].saveTo(node)
	}
}

func recordFromNode(node *confignode.Node) (*CrewRecord, error) {
	name := node.Value(fieldName)
	if name == "" {
		return nil, fmt.Errorf("%s node missing %s", crewNodeTag, fieldName)
	}

	trait, ok := node.TryValue(fieldTrait)
	if !ok {
		return nil, fmt.Errorf("crew %q missing %s", name, fieldTrait)
	}

	lastUpdated, err := strconv.ParseFloat(node.Value(fieldLastUpdated), 64)
	if err != nil {
		return nil, fmt.Errorf("crew %q: bad %s: %w", name, fieldLastUpdated, err)
	}

	exempt, err := strconv.ParseBool(node.Value(fieldExempt))
	if err != nil {
		return nil, fmt.Errorf("crew %q: bad %s: %w", name, fieldExempt, err)
	}

	rec := NewRecord(name)
	rec.trait = trait
	rec.lastUpdated = lastUpdated
	rec.exempt = exempt
	rec.conditions = parseTokenSet(node.Value(fieldConditions))
	rec.disqualifiers = parseTokenSet(node.Value(fieldDisqualifiers))

	for _, kv := range node.Nodes(keyValueNodeTag) {
		key := kv.Value(fieldKey)
		if key == "" {
			continue
		}
		rec.keyValues = append(rec.keyValues, keyValue{key: key, value: kv.Value(fieldValue)})
	}

	for _, cn := range node.Nodes(countNodeTag) {
		resource := cn.Value(fieldResourceName)
		if resource == "" {
			continue
		}
		// Malformed flags and counts degrade to false/0 instead of
		// failing the record.
		success, _ := strconv.ParseBool(cn.Value(fieldIsSuccess))
		count, _ := strconv.ParseInt(cn.Value(fieldCount), 10, 64)
		if success {
			incrementCount(&rec.successes, resource, count)
		} else {
			incrementCount(&rec.failures, resource, count)
		}
	}

	rec.rosterResources = RosterResourcesFromNode(node)

	for _, rn := range node.Nodes(resourceNodeTag) {
		if rn.Value(fieldName) == "" {
			continue
		}
		rec.opaque = append(rec.opaque, rn.Copy())
	}

	return rec, nil
}

func (r *CrewRecord) saveTo(parent *confignode.Node) {
	node := parent.NewChild(crewNodeTag)
	node.AddValue(fieldName, r.name)
	node.AddValue(fieldTrait, r.trait)
	node.AddValue(fieldLastUpdated, formatFloat(r.lastUpdated))
	node.AddValue(fieldExempt, strconv.FormatBool(r.exempt))
	if r.conditions.Len() > 0 {
		node.AddValue(fieldConditions, r.conditions.String())
	}
	if r.disqualifiers.Len() > 0 {
		node.AddValue(fieldDisqualifiers, r.disqualifiers.String())
	}

	for _, kv := range r.keyValues {
		child := node.NewChild(keyValueNodeTag)
		child.AddValue(fieldKey, kv.key)
		child.AddValue(fieldValue, kv.value)
	}

	saveCounts(node, r.successes, true)
	saveCounts(node, r.failures, false)

	for _, rr := range r.rosterResources {
		rr.SaveTo(node)
	}

	for _, rn := range r.opaque {
		node.AddNode(rn.Copy())
	}
}

func saveCounts(node *confignode.Node, counts []processCount, success bool) {
	for _, c := range counts {
		child := node.NewChild(countNodeTag)
		child.AddValue(fieldResourceName, c.resource)
		child.AddValue(fieldIsSuccess, strconv.FormatBool(success))
		child.AddValue(fieldCount, strconv.FormatInt(c.count, 10))
	}
}
