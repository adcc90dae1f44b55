package acs

// Collector is anything holding abstract states alive: domains contribute
// their sentinels, the solver contributes the states stored in its CFG
// maps.
type Collector interface {
	// CollectStates calls mark on every state the collector keeps alive.
	CollectStates(mark func(State))
}

// Arena allocates the abstract states of one analysis run and reclaims
// them with a mark-and-sweep pass at cleanup. Freed slots are recycled
// through free lists.
type Arena struct {
	acss   []*ACS
	multis []*MultiACS

	freeACS   []*ACS
	freeMulti []*MultiACS
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// NewACS allocates a state of n ages, each initialized to init.
func (a *Arena) NewACS(n int, init Age) *ACS {
	s := a.rawACS(n)
	s.Fill(init)
	return s
}

// CopyACS allocates a copy of the given state.
func (a *Arena) CopyACS(src *ACS) *ACS {
	s := a.rawACS(len(src.Age))
	copy(s.Age, src.Age)
	return s
}

func (a *Arena) rawACS(n int) *ACS {
	if k := len(a.freeACS); k > 0 {
		s := a.freeACS[k-1]
		a.freeACS = a.freeACS[:k-1]
		if cap(s.Age) < n {
			s.Age = make([]Age, n)
		}
		s.Age = s.Age[:n]
		s.free = false
		return s
	}
	s := &ACS{Age: make([]Age, n)}
	a.acss = append(a.acss, s)
	return s
}

// NewMulti allocates a stack of depth levels, each set to init.
func (a *Arena) NewMulti(depth int, init *ACS) *MultiACS {
	m := a.rawMulti(depth)
	for i := range m.Levels {
		m.Levels[i] = init
	}
	return m
}

// CopyMulti allocates a copy of the stack sharing the level states.
func (a *Arena) CopyMulti(src *MultiACS) *MultiACS {
	m := a.rawMulti(len(src.Levels))
	copy(m.Levels, src.Levels)
	return m
}

// ResizeMulti allocates a copy of the stack with a new depth: the keep
// outermost levels are shared, additional levels are set to init.
func (a *Arena) ResizeMulti(src *MultiACS, keep, depth int, init *ACS) *MultiACS {
	m := a.rawMulti(depth)
	n := keep
	if depth < n {
		n = depth
	}
	copy(m.Levels[:n], src.Levels[:n])
	for i := n; i < depth; i++ {
		m.Levels[i] = init
	}
	return m
}

func (a *Arena) rawMulti(depth int) *MultiACS {
	if k := len(a.freeMulti); k > 0 {
		m := a.freeMulti[k-1]
		a.freeMulti = a.freeMulti[:k-1]
		if cap(m.Levels) < depth {
			m.Levels = make([]*ACS, depth)
		}
		m.Levels = m.Levels[:depth]
		m.free = false
		return m
	}
	m := &MultiACS{Levels: make([]*ACS, depth)}
	a.multis = append(a.multis, m)
	return m
}

func (a *Arena) markACS(s *ACS) {
	s.mark = true
}

func (a *Arena) markMulti(m *MultiACS) {
	m.mark = true
}

// Collect runs a mark-and-sweep pass: every state not reachable from the
// collectors is returned to the free lists.
func (a *Arena) Collect(collectors ...Collector) {
	for _, s := range a.acss {
		s.mark = false
	}
	for _, m := range a.multis {
		m.mark = false
	}

	mark := func(s State) {
		if s != nil {
			s.MarkIn(a)
		}
	}
	for _, c := range collectors {
		c.CollectStates(mark)
	}

	for _, s := range a.acss {
		if !s.mark && !s.free {
			s.free = true
			a.freeACS = append(a.freeACS, s)
		}
	}
	for _, m := range a.multis {
		if !m.mark && !m.free {
			m.free = true
			for i := range m.Levels {
				m.Levels[i] = nil
			}
			a.freeMulti = append(a.freeMulti, m)
		}
	}
}

// Allocated returns the number of states ever allocated, live or free.
func (a *Arena) Allocated() int {
	return len(a.acss) + len(a.multis)
}

// Free returns the number of states currently on the free lists.
func (a *Arena) Free() int {
	return len(a.freeACS) + len(a.freeMulti)
}
