package negentropy

import "sort"

// Session holds one side's reconciliation state for one (connId, subId)
// pair. Repeated Reconcile calls walk the bisection tree down to
// individual id-list ranges, accumulating Have/Need as they resolve.
type Session struct {
	items itemList
	have  map[[32]byte]bool
	need  map[[32]byte]bool
	done  bool
}

// NewSession builds a session over the relay's current matching item set
// for one subscription's filter (spec.md §4.7: the set is frozen at
// NEG-OPEN, not live-updated for the life of the session).
func NewSession(items []Item) *Session {
	return &Session{
		items: sortItems(items),
		have:  map[[32]byte]bool{},
		need:  map[[32]byte]bool{},
	}
}

// Initiate returns the opening message the relay sends in reply to
// NEG-OPEN: a single range over the whole set.
func (s *Session) Initiate() []byte {
	return encodeMessage([]entry{s.entryForRange(0, len(s.items), infiniteBound())})
}

// Reconcile processes one incoming message and returns the relay's reply.
// done is true once the reply carries no ranges, meaning every incoming
// range resolved to an exact match or a fully-processed id list.
func (s *Session) Reconcile(incoming []byte) (reply []byte, done bool, err error) {
	entries, err := decodeMessage(incoming)
	if err != nil {
		return nil, false, err
	}

	var replyEntries []entry
	lowerIdx := 0
	for _, e := range entries {
		upperIdx := s.upperIndex(e.upper)
		if upperIdx < lowerIdx {
			upperIdx = lowerIdx
		}
		switch e.mode {
		case modeSkip:
			// Nothing in this range needs reconciling.
		case modeFingerprint:
			mine := fingerprintOf(s.items, lowerIdx, upperIdx)
			if mine != e.fp {
				replyEntries = append(replyEntries, s.splitRange(lowerIdx, upperIdx, e.upper)...)
			}
		case modeIDList:
			s.resolveIDList(lowerIdx, upperIdx, e.ids)
		}
		lowerIdx = upperIdx
	}

	if len(replyEntries) == 0 {
		s.done = true
		return nil, true, nil
	}
	return encodeMessage(replyEntries), false, nil
}

func (s *Session) resolveIDList(lo, hi int, theirIDs [][32]byte) {
	theirs := make(map[[32]byte]bool, len(theirIDs))
	for _, id := range theirIDs {
		theirs[id] = true
	}
	for i := lo; i < hi; i++ {
		if !theirs[s.items[i].ID] {
			s.have[s.items[i].ID] = true
		}
	}
	for id := range theirs {
		if !s.containsID(lo, hi, id) {
			s.need[id] = true
		}
	}
}

func (s *Session) containsID(lo, hi int, id [32]byte) bool {
	for i := lo; i < hi; i++ {
		if s.items[i].ID == id {
			return true
		}
	}
	return false
}

func (s *Session) upperIndex(b bound) int {
	return sort.Search(len(s.items), func(i int) bool { return !itemLE(s.items[i], b) })
}

func (s *Session) entryForRange(lo, hi int, upper bound) entry {
	if hi-lo <= idListThreshold {
		ids := make([][32]byte, hi-lo)
		for i := lo; i < hi; i++ {
			ids[i-lo] = s.items[i].ID
		}
		return entry{upper: upper, mode: modeIDList, ids: ids}
	}
	return entry{upper: upper, mode: modeFingerprint, fp: fingerprintOf(s.items, lo, hi)}
}

// splitRange divides [lo,hi) into up to bucketCount sub-ranges, each
// recursively deciding fingerprint vs id-list, so a mismatch makes
// measurable progress every round instead of looping on the same bound.
func (s *Session) splitRange(lo, hi int, upper bound) []entry {
	n := hi - lo
	if n <= idListThreshold {
		return []entry{s.entryForRange(lo, hi, upper)}
	}
	buckets := bucketCount
	if buckets > n {
		buckets = n
	}
	size := (n + buckets - 1) / buckets

	var out []entry
	start := lo
	for start < hi {
		end := start + size
		if end > hi {
			end = hi
		}
		b := upper
		if end != hi {
			b = boundAt(s.items[end-1])
		}
		out = append(out, s.entryForRange(start, end, b))
		start = end
	}
	return out
}

// Have returns ids the relay holds that the peer's messages so far showed it
// lacks — events the relay should push.
func (s *Session) Have() [][32]byte { return keys(s.have) }

// Need returns ids the peer's messages so far showed it holds that the relay
// lacks — events the relay should request.
func (s *Session) Need() [][32]byte { return keys(s.need) }

// Done reports whether the most recent Reconcile call resolved every
// range, meaning the session can be closed.
func (s *Session) Done() bool { return s.done }

func keys(m map[[32]byte]bool) [][32]byte {
	out := make([][32]byte, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
