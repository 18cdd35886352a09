package crdt

import "github.com/synckit/replicate/pkg/types"

// insertProseAtom places atom into the sequence using the classic RGA
// left-to-right rule: find the origin (zero ProseAtomID means "start of
// sequence"), then skip forward over any atoms already inserted at that
// same origin whose id sorts higher than the new atom's, so that
// concurrent inserts at one position converge to the same order on every
// replica regardless of delivery order.
func insertProseAtom(state *types.ProseState, atom types.ProseAtom) {
	zero := types.ProseAtomID{}

	pos := 0
	if atom.OriginID != zero {
		idx := indexOfAtom(state.Atoms, atom.OriginID)
		if idx < 0 {
			// Origin not seen yet: causally impossible for a correctly
			// ordered delta stream, but fall back to append rather than
			// panic so a reordered batch degrades gracefully.
			state.Atoms = append(state.Atoms, atom)
			return
		}
		pos = idx + 1
	}

	for pos < len(state.Atoms) && state.Atoms[pos].OriginID == atom.OriginID && idGreater(state.Atoms[pos].ID, atom.ID) {
		pos++
	}

	state.Atoms = append(state.Atoms, types.ProseAtom{})
	copy(state.Atoms[pos+1:], state.Atoms[pos:])
	state.Atoms[pos] = atom
}

func idGreater(a, b types.ProseAtomID) bool {
	if a.Clock != b.Clock {
		return a.Clock > b.Clock
	}
	return a.Client > b.Client
}

func indexOfAtom(atoms []types.ProseAtom, id types.ProseAtomID) int {
	for i, a := range atoms {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// ProseNode is the ProseMirror-shaped tree produced from a Prose field's
// flattened atom sequence.
type ProseNode struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Text    string         `json:"text,omitempty"`
	Content []*ProseNode   `json:"content,omitempty"`
}

// ToTree serializes a Prose field's live (non-tombstoned) atoms into a
// ProseMirror-style document tree. Block atoms open a new content slot;
// inline/text atoms append to the innermost open block. The mapping is
// lossless for structure and attributes — marks are the per-atom attribute
// bundle carried on text atoms.
func ToTree(state *types.ProseState) *ProseNode {
	root := &ProseNode{Type: "doc"}
	var current *ProseNode

	for _, atom := range state.Atoms {
		if atom.Deleted {
			continue
		}
		switch atom.Kind {
		case "block":
			current = &ProseNode{Type: atom.Value, Attrs: atom.Attrs}
			root.Content = append(root.Content, current)
		default: // "text", "char"
			if current == nil {
				current = &ProseNode{Type: "paragraph"}
				root.Content = append(root.Content, current)
			}
			current.Content = append(current.Content, &ProseNode{
				Type: "text", Text: atom.Value, Attrs: atom.Attrs,
			})
		}
	}
	return root
}

// FromTree flattens a ProseMirror-style tree back into an ordered,
// untombstoned atom sequence, assigning fresh sequential ids under client.
// Re-serializing the result with ToTree yields an identical JSON shape,
// satisfying the prose round-trip law.
func FromTree(tree *ProseNode, client string, startClock uint64) []types.ProseAtom {
	var atoms []types.ProseAtom
	clock := startClock
	origin := types.ProseAtomID{}

	for _, block := range tree.Content {
		clock++
		blockID := types.ProseAtomID{Client: client, Clock: clock}
		atoms = append(atoms, types.ProseAtom{
			ID: blockID, OriginID: origin, Kind: "block", Value: block.Type, Attrs: block.Attrs,
		})
		origin = blockID

		for _, inline := range block.Content {
			clock++
			id := types.ProseAtomID{Client: client, Clock: clock}
			atoms = append(atoms, types.ProseAtom{
				ID: id, OriginID: origin, Kind: "text", Value: inline.Text, Attrs: inline.Attrs,
			})
			origin = id
		}
	}
	return atoms
}
