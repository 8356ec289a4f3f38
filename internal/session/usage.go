package session

import "sort"

// Tracker exposes per-user message counters. It shares the store's mutex so
// counters and sessions always change together.
type Tracker struct {
	s *Store
}

// RecordMessage bumps userID's lifetime counter, refreshes its activity
// timestamp (and the live session's) and returns the new count.
func (t *Tracker) RecordMessage(userID string) int {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u, ok := s.usage[userID]
	if !ok {
		s.seq++
		u = &usageEntry{firstSeen: s.seq}
		s.usage[userID] = u
	}
	u.count++
	u.lastActiveAt = now
	if e, ok := s.sessions[userID]; ok {
		e.lastActiveAt = now
	}
	return u.count
}

// Count returns userID's lifetime counter.
func (t *Tracker) Count(userID string) int {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if u, ok := t.s.usage[userID]; ok {
		return u.count
	}
	return 0
}

// TopN returns up to n users by count, highest first. Ties keep first-seen
// order.
func (t *Tracker) TopN(n int) []UsageEntry {
	if n <= 0 {
		return []UsageEntry{}
	}

	type ranked struct {
		UsageEntry
		firstSeen uint64
	}

	t.s.mu.RLock()
	all := make([]ranked, 0, len(t.s.usage))
	for id, u := range t.s.usage {
		all = append(all, ranked{UsageEntry: UsageEntry{UserID: id, Count: u.count}, firstSeen: u.firstSeen})
	}
	t.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].firstSeen < all[j].firstSeen
	})

	if len(all) > n {
		all = all[:n]
	}
	out := make([]UsageEntry, len(all))
	for i, r := range all {
		out[i] = r.UsageEntry
	}
	return out
}

// Total returns the sum of all counters.
func (t *Tracker) Total() int {
	return t.Stats().Total
}

// Average returns the floor of the mean counter, or 0 with no users.
func (t *Tracker) Average() int {
	return t.Stats().Average
}

// Stats reads sessions, users, total and average under one lock.
func (t *Tracker) Stats() UsageStats {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	st := UsageStats{Sessions: len(t.s.sessions), Users: len(t.s.usage)}
	for _, u := range t.s.usage {
		st.Total += u.count
	}
	if st.Users > 0 {
		st.Average = st.Total / st.Users
	}
	return st
}
