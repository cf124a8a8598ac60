package workbook

import "sync"

// StringTable interns text with reference counting. cells store the ID
// instead of the string, so repeated text and formula bodies are kept once.
// it is safe for concurrent use.
type StringTable struct {
	mu         sync.RWMutex
	strings    map[string]uint32
	reverseMap map[uint32]string
	refCounts  map[uint32]int
	nextID     uint32
}

// NewStringTable creates a new string table
func NewStringTable() *StringTable {
	st := &StringTable{}
	st.Clear()
	return st
}

// Intern adds a reference to s and returns its ID. IDs start at 1; 0
// means no string.
func (st *StringTable) Intern(s string) uint32 {
	st.mu.Lock()
	defer st.mu.Unlock()

	if id, exists := st.strings[s]; exists {
		st.refCounts[id]++
		return id
	}
	id := st.nextID
	st.strings[s] = id
	st.reverseMap[id] = s
	st.refCounts[id] = 1
	st.nextID++
	return id
}

// Lookup returns the string for an ID
func (st *StringTable) Lookup(id uint32) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, exists := st.reverseMap[id]
	return s, exists
}

// Retain adds a reference to an existing ID
func (st *StringTable) Retain(id uint32) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.reverseMap[id]; !exists {
		return false
	}
	st.refCounts[id]++
	return true
}

// Release drops a reference. the string is forgotten with its last
// reference; the result reports whether that happened.
func (st *StringTable) Release(id uint32) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, exists := st.reverseMap[id]
	if !exists {
		return false
	}
	st.refCounts[id]--
	if st.refCounts[id] > 0 {
		return false
	}
	delete(st.strings, s)
	delete(st.reverseMap, id)
	delete(st.refCounts, id)
	return true
}

// References returns the reference count of an ID
func (st *StringTable) References(id uint32) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.refCounts[id]
}

// Count returns the number of distinct strings
func (st *StringTable) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.strings)
}

// Clear removes all strings from the table
func (st *StringTable) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.strings = make(map[string]uint32)
	st.reverseMap = make(map[uint32]string)
	st.refCounts = make(map[uint32]int)
	st.nextID = 1
}
