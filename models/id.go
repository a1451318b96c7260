package models

import "sync"

// HandleGenerator hands out leaf handles. Released slots are reused with a
// bumped generation so that a stale handle never matches a live one.
type HandleGenerator struct {
	mutex       sync.Mutex
	generations []uint32
	free        []uint32
}

// New returns a live handle.
func (g *HandleGenerator) New() Handle {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.generations) == 0 {
		// slot 0 backs InvalidHandle:
		g.generations = append(g.generations, 0)
	}

	if n := len(g.free); n != 0 {
		index := g.free[n-1]
		g.free = g.free[:n-1]
		return NewHandle(index, g.generations[index])
	}

	g.generations = append(g.generations, 1)
	index := uint32(len(g.generations) - 1)
	return NewHandle(index, 1)
}

// Release marks the handle slot as reusable. It returns false when the handle
// is not live.
func (g *HandleGenerator) Release(h Handle) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if !g.isLive(h) {
		return false
	}

	index := h.Index()
	g.generations[index]++
	if g.generations[index] == 0 {
		g.generations[index] = 1
	}
	g.free = append(g.free, index)
	return true
}

// IsLive reports whether the handle was returned by New and not released
// since.
func (g *HandleGenerator) IsLive(h Handle) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.isLive(h)
}

func (g *HandleGenerator) isLive(h Handle) bool {
	index := h.Index()
	if index == 0 || int(index) >= len(g.generations) {
		return false
	}
	if g.generations[index] != h.Generation() {
		return false
	}
	for _, f := range g.free {
		if f == index {
			return false
		}
	}
	return true
}
