// Package individual wraps one genome together with its identity and builds
// individuals with bounded retries.
package individual

import (
	"fmt"

	"github.com/google/uuid"

	"gramforge/internal/genome"
	"gramforge/internal/grammar"
)

// Individual exclusively owns its genome.
type Individual struct {
	ID       uuid.UUID
	Index    int
	Seed     int64
	Top      grammar.Type
	Genome   *genome.Genome
	Root     genome.NodeID
	Attempts int
}

type Counts struct {
	Nodes      int `json:"nodes"`
	Frames     int `json:"frames"`
	Macros     int `json:"macros"`
	Parameters int `json:"parameters"`
	Links      int `json:"links"`
}

func (ind *Individual) Counts() Counts {
	if ind == nil || ind.Genome == nil {
		return Counts{}
	}
	g := ind.Genome
	return Counts{
		Nodes:      g.Len(),
		Frames:     len(g.Frames(genome.NodeZero)),
		Macros:     len(g.Macros(genome.NodeZero)),
		Parameters: len(g.Parameters(genome.NodeZero)),
		Links:      len(g.Links()),
	}
}

func (ind *Individual) String() string {
	if ind == nil {
		return "individual(nil)"
	}
	c := ind.Counts()
	top := "?"
	if ind.Top != nil {
		top = ind.Top.Name()
	}
	return fmt.Sprintf("individual %s of %s: %d frames, %d macros, %d parameters, %d structural links",
		ind.ID, top, c.Frames, c.Macros, c.Parameters, c.Links)
}

// Clone returns a copy with a fresh id and an independent genome.
func (ind *Individual) Clone() (*Individual, error) {
	g, err := ind.Genome.Clone()
	if err != nil {
		return nil, err
	}
	out := *ind
	out.ID = uuid.New()
	out.Genome = g
	return &out, nil
}
