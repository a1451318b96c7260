package world

import (
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/dyntree/dyntree"
)

const DefaultMapName = "default"

// MapStore holds the running maps by name.
//
// Maps created with GetOrCreate stay in the store until removed. Maps created
// by Join are removed when their last client leaves.
type MapStore struct {
	// The options used to create map trees.
	TreeOptions dyntree.Options

	// The duration between two map frames.
	FrameDuration time.Duration

	initOnce sync.Once
	mutex    sync.RWMutex
	maps     map[string]*storedMap
	wg       sync.WaitGroup
	closed   bool
}

type storedMap struct {
	m       *Map
	clients int
	kept    bool
}

func (s *MapStore) init() {
	s.maps = map[string]*storedMap{}

	if s.FrameDuration <= 0 {
		s.FrameDuration = DefaultFrameDuration
	}
}

// GetOrCreate returns the map with the given name, creating and starting it
// when it does not exist.
func (s *MapStore) GetOrCreate(name string) (*Map, error) {
	s.initOnce.Do(s.init)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	sm, err := s.getOrCreate(name)
	if err != nil {
		return nil, err
	}
	sm.kept = true
	return sm.m, nil
}

// Join returns the map with the given name for a client, creating it when it
// does not exist. Every Join must be followed by a call to Leave.
func (s *MapStore) Join(name string) (*Map, error) {
	s.initOnce.Do(s.init)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	sm, err := s.getOrCreate(name)
	if err != nil {
		return nil, err
	}
	sm.clients++
	return sm.m, nil
}

// Leave releases a map obtained with Join. The map is closed and removed when
// no client is left and it was not created by GetOrCreate.
func (s *MapStore) Leave(m *Map) {
	s.initOnce.Do(s.init)

	s.mutex.Lock()
	sm, ok := s.maps[m.Name]
	if !ok || sm.m != m {
		s.mutex.Unlock()
		return
	}

	if sm.clients > 0 {
		sm.clients--
	}

	remove := sm.clients == 0 && !sm.kept
	if remove {
		delete(s.maps, m.Name)
	}
	s.mutex.Unlock()

	if remove {
		closeMap(m)
	}
}

func (s *MapStore) getOrCreate(name string) (*storedMap, error) {
	if name == "" {
		name = DefaultMapName
	}

	if s.closed {
		return nil, errMapClosed
	}

	if sm, ok := s.maps[name]; ok {
		return sm, nil
	}

	sm := &storedMap{m: NewMap(name, s.TreeOptions, s.FrameDuration)}
	s.maps[name] = sm

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sm.m.Run()
	}()

	instrumentIncreaseMapGauge()
	return sm, nil
}

func (s *MapStore) Get(name string) (*Map, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sm, ok := s.maps[name]
	if !ok {
		return nil, false
	}
	return sm.m, true
}

// Remove closes the map and removes it from the store.
func (s *MapStore) Remove(name string) {
	s.initOnce.Do(s.init)

	s.mutex.Lock()
	sm, ok := s.maps[name]
	delete(s.maps, name)
	s.mutex.Unlock()

	if ok {
		closeMap(sm.m)
	}
}

// Maps returns the running maps ordered by name.
func (s *MapStore) Maps() []*Map {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	maps := make([]*Map, 0, len(s.maps))
	for _, sm := range s.maps {
		maps = append(maps, sm.m)
	}

	sort.Slice(maps, func(i, j int) bool {
		return maps[i].Name < maps[j].Name
	})
	return maps
}

// Close closes every map and waits for them to stop.
func (s *MapStore) Close() {
	s.initOnce.Do(s.init)

	s.mutex.Lock()
	s.closed = true
	maps := s.maps
	s.maps = map[string]*storedMap{}
	s.mutex.Unlock()

	for _, sm := range maps {
		closeMap(sm.m)
	}
	s.wg.Wait()
}

func closeMap(m *Map) {
	m.Close()
	instrumentDecreaseMapGauge()
	instrumentResetObjectGauge(m.Name)
}
