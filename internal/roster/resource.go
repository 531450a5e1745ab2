package roster

import (
	"strconv"

	"github.com/hmaeda/crewvault/internal/confignode"
)

// RosterResource is a per-crew simulated consumable or characteristic
// owned by an external subsystem. The store only ferries it between the
// save document and memory.
type RosterResource struct {
	Name      string
	Amount    float64
	MaxAmount float64
}

const rosterResourceNodeTag = "ROSTER_RESOURCE"

// RosterResourcesFromNode parses every ROSTER_RESOURCE child of the
// given crew node. Entries without a name are dropped; malformed
// amounts default to zero.
func RosterResourcesFromNode(node *confignode.Node) []*RosterResource {
	var out []*RosterResource
	for _, child := range node.Nodes(rosterResourceNodeTag) {
		name := child.Value(fieldName)
		if name == "" {
			continue
		}
		amount, _ := strconv.ParseFloat(child.Value(fieldAmount), 64)
		maxAmount, _ := strconv.ParseFloat(child.Value(fieldMaxAmount), 64)
		out = append(out, &RosterResource{Name: name, Amount: amount, MaxAmount: maxAmount})
	}
	return out
}

// SaveTo emits the resource as a ROSTER_RESOURCE child of the given
// crew node.
func (rr *RosterResource) SaveTo(node *confignode.Node) {
	child := node.NewChild(rosterResourceNodeTag)
	child.AddValue(fieldName, rr.Name)
	child.AddValue(fieldAmount, formatFloat(rr.Amount))
	child.AddValue(fieldMaxAmount, formatFloat(rr.MaxAmount))
}
