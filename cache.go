package portal

import "sync"

// ============================================================================
// MessageCache
// ============================================================================

// MessageCache holds the ordered message history of each conversation.
// A missing entry means "never loaded"; an empty one means "known empty".
// Every mutation is applied to the live entry under the lock, so concurrent
// polls and sends never overwrite each other from stale copies.
type MessageCache struct {
	mu        sync.RWMutex
	entries   map[ServerID][]Message
	revisions map[ServerID]uint64
	applied   map[ServerID]uint64
}

// NewMessageCache creates an empty cache.
func NewMessageCache() *MessageCache {
	return &MessageCache{
		entries:   make(map[ServerID][]Message),
		revisions: make(map[ServerID]uint64),
		applied:   make(map[ServerID]uint64),
	}
}

// ── Reads ────────────────────────────────────────────────

// Get returns a copy of the conversation's messages and whether the entry
// has been loaded.
func (c *MessageCache) Get(conversationID ServerID) ([]Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs, ok := c.entries[conversationID]
	if !ok {
		return nil, false
	}
	return append([]Message{}, msgs...), true
}

// Len returns the number of cached messages for a conversation.
func (c *MessageCache) Len(conversationID ServerID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[conversationID])
}

// Revision increases every time a conversation's entry changes.
func (c *MessageCache) Revision(conversationID ServerID) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revisions[conversationID]
}

// ── Mutations ────────────────────────────────────────────

// Update applies fn to the live entry. fn returns the new sequence and
// whether it changed; unchanged results leave the entry and revision alone.
func (c *MessageCache) Update(conversationID ServerID, fn func(msgs []Message, loaded bool) ([]Message, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked(conversationID, fn)
}

func (c *MessageCache) updateLocked(conversationID ServerID, fn func([]Message, bool) ([]Message, bool)) bool {
	current, loaded := c.entries[conversationID]
	next, changed := fn(current, loaded)
	if !changed {
		return false
	}
	if next == nil {
		next = []Message{}
	}
	c.entries[conversationID] = next
	c.revisions[conversationID]++
	return true
}

// Seed marks a conversation as loaded and empty unless it already has an
// entry.
func (c *MessageCache) Seed(conversationID ServerID) {
	c.Update(conversationID, func(_ []Message, loaded bool) ([]Message, bool) {
		return []Message{}, !loaded
	})
}

// Merge installs a fetched history unless it is equivalent to the cached one.
// Equivalent means same length, non-empty and the same last id, compared
// against the confirmed messages only. Messages still under a temporary id
// are kept after the fetched ones.
func (c *MessageCache) Merge(conversationID ServerID, fetched []Message) bool {
	return c.Update(conversationID, func(current []Message, loaded bool) ([]Message, bool) {
		return merge(current, loaded, fetched)
	})
}

// MergeSeq is Merge guarded by a per-conversation fetch sequence: a result
// whose seq is older than the last applied one is dropped.
func (c *MessageCache) MergeSeq(conversationID ServerID, seq uint64, fetched []Message) (replaced, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.applied[conversationID] {
		return false, true
	}
	c.applied[conversationID] = seq
	replaced = c.updateLocked(conversationID, func(current []Message, loaded bool) ([]Message, bool) {
		return merge(current, loaded, fetched)
	})
	return replaced, false
}

// Append adds a message to the end of a conversation.
func (c *MessageCache) Append(conversationID ServerID, msg Message) {
	c.Update(conversationID, func(current []Message, _ bool) ([]Message, bool) {
		next := make([]Message, 0, len(current)+1)
		next = append(next, current...)
		return append(next, msg), true
	})
}

// Remove drops the message with the given id.
func (c *MessageCache) Remove(conversationID ServerID, id MessageID) bool {
	return c.Update(conversationID, func(current []Message, _ bool) ([]Message, bool) {
		idx := indexOf(current, id)
		if idx < 0 {
			return current, false
		}
		next := make([]Message, 0, len(current)-1)
		next = append(next, current[:idx]...)
		return append(next, current[idx+1:]...), true
	})
}

// Delete forgets a conversation entirely.
func (c *MessageCache) Delete(conversationID ServerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, conversationID)
	delete(c.applied, conversationID)
	c.revisions[conversationID]++
}

// ============================================================================
// Helpers
// ============================================================================

func merge(current []Message, loaded bool, fetched []Message) ([]Message, bool) {
	confirmed := make([]Message, 0, len(current))
	var pending []Message
	for _, m := range current {
		if m.ID.IsTemporary() {
			pending = append(pending, m)
		} else {
			confirmed = append(confirmed, m)
		}
	}
	if equivalent(confirmed, fetched) {
		return current, false
	}
	if loaded && len(current) == 0 && len(fetched) == 0 {
		return current, false
	}
	next := make([]Message, 0, len(fetched)+len(pending))
	next = append(next, fetched...)
	return append(next, pending...), true
}

func equivalent(cached, fetched []Message) bool {
	if len(cached) != len(fetched) || len(cached) == 0 {
		return false
	}
	return cached[len(cached)-1].ID.Equal(fetched[len(fetched)-1].ID)
}

func indexOf(msgs []Message, id MessageID) int {
	for i, m := range msgs {
		if m.ID.Equal(id) {
			return i
		}
	}
	return -1
}
