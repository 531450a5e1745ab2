// Package status renders a roster summary for the inspect command.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/hmaeda/crewvault/internal/persist"
	"github.com/hmaeda/crewvault/internal/roster"
	"github.com/hmaeda/crewvault/internal/setup"
)

// CrewStatus is the inspect view of one crew record.
type CrewStatus struct {
	Name          string           `json:"name"`
	Trait         string           `json:"trait"`
	LastUpdated   float64          `json:"last_updated"`
	Exempt        bool             `json:"exempt,omitempty"`
	Conditions    []string         `json:"conditions,omitempty"`
	Disqualifiers []string         `json:"disqualifiers,omitempty"`
	KeyValues     int              `json:"key_values,omitempty"`
	Successes     map[string]int64 `json:"successes,omitempty"`
	Failures      map[string]int64 `json:"failures,omitempty"`
	Resources     []ResourceStatus `json:"resources,omitempty"`
}

// ResourceStatus is the inspect view of one roster resource.
type ResourceStatus struct {
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	MaxAmount float64 `json:"max_amount"`
}

// RosterStatus is the top-level inspect payload.
type RosterStatus struct {
	RosterFile string       `json:"roster_file"`
	Crew       []CrewStatus `json:"crew"`
}

// Run loads the vault's roster and writes a summary to w, as a table or
// as JSON.
func Run(vaultDir string, jsonOutput bool, w io.Writer) error {
	cfg, err := setup.LoadConfig(vaultDir)
	if err != nil {
		return err
	}

	rosterPath := filepath.Join(vaultDir, cfg.Vault.RosterFile)
	store := roster.NewStore()
	if err := persist.LoadRoster(rosterPath, cfg.Limits.MaxRosterBytes, store); err != nil {
		return err
	}

	st := Collect(store)
	st.RosterFile = rosterPath

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(w, st)
	return nil
}

// Collect builds the inspect payload from a loaded store.
func Collect(store *roster.Store) RosterStatus {
	var st RosterStatus
	for _, name := range store.Names() {
		rec, ok := store.Get(name)
		if !ok {
			continue
		}
		cs := CrewStatus{
			Name:          rec.Name(),
			Trait:         rec.Trait(),
			LastUpdated:   rec.LastUpdated(),
			Exempt:        rec.Exempt(),
			Conditions:    rec.Conditions(),
			Disqualifiers: rec.Disqualifiers(),
			KeyValues:     len(rec.Keys()),
			Successes:     rec.SuccessCounts(),
			Failures:      rec.FailureCounts(),
		}
		for _, rr := range rec.RosterResources() {
			cs.Resources = append(cs.Resources, ResourceStatus{
				Name:      rr.Name,
				Amount:    rr.Amount,
				MaxAmount: rr.MaxAmount,
			})
		}
		st.Crew = append(st.Crew, cs)
	}
	return st
}

func printStatus(w io.Writer, st RosterStatus) {
	fmt.Fprintf(w, "Roster: %s (%d crew)\n", st.RosterFile, len(st.Crew))
	for _, c := range st.Crew {
		flags := ""
		if c.Exempt {
			flags = " [exempt]"
		}
		fmt.Fprintf(w, "  %s (%s)%s updated=%g\n", c.Name, c.Trait, flags, c.LastUpdated)
		if len(c.Conditions) > 0 {
			fmt.Fprintf(w, "    conditions: %v\n", c.Conditions)
		}
		if len(c.Disqualifiers) > 0 {
			fmt.Fprintf(w, "    disqualified: %v\n", c.Disqualifiers)
		}
		for _, r := range c.Resources {
			fmt.Fprintf(w, "    resource %s: %g/%g\n", r.Name, r.Amount, r.MaxAmount)
		}
	}
}
