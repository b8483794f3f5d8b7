package agentsystem

import "github.com/agentmesh/agentmesh/internal/message"

// Table is stable-index storage for a population of agents, indexed
// by AgentId. A spawned agent keeps the same id for its whole
// lifetime; a removed agent's slot is reused by the next spawn, always
// picking the lowest free slot.
type Table[C message.Payload] struct {
	entries []Agent[C]
	free    []message.AgentId // kept sorted ascending; free[0] is the lowest free slot
}

// NewTable returns an empty Table.
func NewTable[C message.Payload]() *Table[C] {
	return &Table[C]{}
}

// Spawn creates one agent via factory, assigns it the lowest free id,
// and inserts it into the table.
func (t *Table[C]) Spawn(factory Factory[C]) message.AgentId {
	var id message.AgentId
	if len(t.free) > 0 {
		id = t.free[0]
		t.free = t.free[1:]
	} else {
		id = message.AgentId(len(t.entries))
		t.entries = append(t.entries, nil)
	}

	agent := factory.Create(id)
	agent.SetID(id)
	t.entries[id] = agent
	return id
}

// Get returns the agent at id, if any slot is occupied there.
func (t *Table[C]) Get(id message.AgentId) (Agent[C], bool) {
	if id >= message.AgentId(len(t.entries)) {
		return nil, false
	}
	a := t.entries[id]
	if a == nil {
		return nil, false
	}
	return a, true
}

// Remove clears the slot at id and returns it to the free list.
func (t *Table[C]) Remove(id message.AgentId) {
	if id >= message.AgentId(len(t.entries)) || t.entries[id] == nil {
		return
	}
	t.entries[id] = nil
	t.insertFree(id)
}

func (t *Table[C]) insertFree(id message.AgentId) {
	i := 0
	for i < len(t.free) && t.free[i] < id {
		i++
	}
	t.free = append(t.free, 0)
	copy(t.free[i+1:], t.free[i:])
	t.free[i] = id
}

// Len returns the number of occupied slots.
func (t *Table[C]) Len() int {
	return len(t.entries) - len(t.free)
}

// Range calls fn for every occupied slot in ascending id order,
// stopping early if fn returns false.
func (t *Table[C]) Range(fn func(Agent[C]) bool) {
	for _, a := range t.entries {
		if a == nil {
			continue
		}
		if !fn(a) {
			return
		}
	}
}

// PruneDead removes every agent whose IsDead reports true and returns
// the ids removed. Pruning happens between ticks (see Config.PruneDead)
// so a dying agent still gets one last Act/HandleMessage pass.
func (t *Table[C]) PruneDead() []message.AgentId {
	var removed []message.AgentId
	for id, a := range t.entries {
		if a == nil || !a.IsDead() {
			continue
		}
		t.entries[id] = nil
		t.insertFree(message.AgentId(id))
		removed = append(removed, message.AgentId(id))
	}
	return removed
}
