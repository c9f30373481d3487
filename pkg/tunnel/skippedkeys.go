package tunnel

import "container/list"

// skippedEntry is one (HK, MK, Kn) triple (GLOSSARY: SkippedKey).
type skippedEntry struct {
	HK keyMaterial
	MK keyMaterial
	Kn uint32
	el *list.Element
}

// skippedKeyStore is the bounded, FIFO-ordered SkippedKeyStore (§3,
// I2): at most maxEntries triples, oldest evicted first. Grouped by
// header key because Decrypt's Step C must first find which HK
// authenticates a frame, then look up the specific message number
// under that HK (§4.1).
type skippedKeyStore struct {
	order      *list.List // of *skippedEntry, oldest at Front
	byHK       map[keyMaterial]map[uint32]*skippedEntry
	maxEntries int
}

func newSkippedKeyStore(maxEntries int) *skippedKeyStore {
	return &skippedKeyStore{
		order:      list.New(),
		byHK:       make(map[keyMaterial]map[uint32]*skippedEntry),
		maxEntries: maxEntries,
	}
}

// store inserts (hk, mk, kn), evicting the oldest entry if the store
// would exceed maxEntries (I2).
func (s *skippedKeyStore) store(hk, mk keyMaterial, kn uint32) {
	e := &skippedEntry{HK: hk, MK: mk, Kn: kn}
	e.el = s.order.PushBack(e)
	if s.byHK[hk] == nil {
		s.byHK[hk] = make(map[uint32]*skippedEntry)
	}
	s.byHK[hk][kn] = e

	for s.order.Len() > s.maxEntries {
		s.evictOldest()
	}
}

func (s *skippedKeyStore) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	s.removeElement(front)
}

func (s *skippedKeyStore) removeElement(el *list.Element) {
	e := el.Value.(*skippedEntry)
	delete(s.byHK[e.HK], e.Kn)
	if len(s.byHK[e.HK]) == 0 {
		delete(s.byHK, e.HK)
	}
	s.order.Remove(el)
	e.MK.wipe()
}

// matchingHK returns a header key in the store whose MAC over f's
// ciphertext regions matches, for Step C's first phase.
func (s *skippedKeyStore) matchingHK(f Frame) (keyMaterial, bool) {
	for hk := range s.byHK {
		if macMatches(hk, f) {
			return hk, true
		}
	}
	return keyMaterial{}, false
}

// lookup finds the entry stored under (hk, kn), for Step C's second
// phase once the header has been decrypted under hk.
func (s *skippedKeyStore) lookup(hk keyMaterial, kn uint32) (*skippedEntry, bool) {
	group, ok := s.byHK[hk]
	if !ok {
		return nil, false
	}
	e, ok := group[kn]
	return e, ok
}

// remove deletes an entry after successful decryption.
func (s *skippedKeyStore) remove(e *skippedEntry) {
	if e == nil || e.el == nil {
		return
	}
	s.removeElement(e.el)
}

// len reports the current entry count, for tests exercising P5.
func (s *skippedKeyStore) len() int {
	return s.order.Len()
}

func (s *skippedKeyStore) wipe() {
	for el := s.order.Front(); el != nil; el = el.Next() {
		el.Value.(*skippedEntry).MK.wipe()
	}
	s.order.Init()
	s.byHK = make(map[keyMaterial]map[uint32]*skippedEntry)
}
