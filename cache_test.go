package portal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func msg(id string) Message {
	return Message{ID: PersistedID(ServerID(id)), Content: "m" + id}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID.String()
	}
	return out
}

func TestMessageCacheSeed(t *testing.T) {
	c := NewMessageCache()
	if _, loaded := c.Get("1"); loaded {
		t.Fatal("expected unloaded entry")
	}

	c.Seed("1")
	msgs, loaded := c.Get("1")
	if !loaded || len(msgs) != 0 {
		t.Fatalf("expected known-empty entry, got %v %v", msgs, loaded)
	}

	c.Append("1", msg("5"))
	c.Seed("1")
	if c.Len("1") != 1 {
		t.Fatal("Seed must not clear a loaded entry")
	}
}

func TestMessageCacheMerge(t *testing.T) {
	t.Run("equivalent fetch is skipped", func(t *testing.T) {
		c := NewMessageCache()
		c.Merge("1", []Message{msg("1"), msg("2")})
		rev := c.Revision("1")

		edited := msg("2")
		edited.Content = "edited"
		if c.Merge("1", []Message{msg("1"), edited}) {
			t.Fatal("expected equivalent fetch to be skipped")
		}
		if c.Revision("1") != rev {
			t.Fatal("revision must not change")
		}
		got, _ := c.Get("1")
		if got[1].Content != "m2" {
			t.Fatalf("expected cached content kept, got %q", got[1].Content)
		}
	})

	t.Run("different last id replaces", func(t *testing.T) {
		c := NewMessageCache()
		c.Merge("1", []Message{msg("1"), msg("2")})
		if !c.Merge("1", []Message{msg("1"), msg("3")}) {
			t.Fatal("expected replacement")
		}
		got, _ := c.Get("1")
		if diff := cmp.Diff([]string{"1", "3"}, ids(got)); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("different length replaces", func(t *testing.T) {
		c := NewMessageCache()
		c.Merge("1", []Message{msg("1"), msg("2")})
		if !c.Merge("1", []Message{msg("2")}) {
			t.Fatal("expected replacement")
		}
	})

	t.Run("empty fetch loads unloaded entry", func(t *testing.T) {
		c := NewMessageCache()
		if !c.Merge("1", nil) {
			t.Fatal("expected first empty fetch to load the entry")
		}
		if _, loaded := c.Get("1"); !loaded {
			t.Fatal("expected loaded entry")
		}
		if c.Merge("1", nil) {
			t.Fatal("expected repeated empty fetch to be skipped")
		}
	})

	t.Run("pending messages survive", func(t *testing.T) {
		c := NewMessageCache()
		c.Merge("1", []Message{msg("1")})
		c.Append("1", Message{ID: TemporaryID(99), Content: "pending"})

		if c.Merge("1", []Message{msg("1")}) {
			t.Fatal("expected confirmed prefix to count as equivalent")
		}
		if !c.Merge("1", []Message{msg("1"), msg("2")}) {
			t.Fatal("expected replacement")
		}
		got, _ := c.Get("1")
		if diff := cmp.Diff([]string{"1", "2", "tmp-99"}, ids(got)); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("entries are isolated", func(t *testing.T) {
		c := NewMessageCache()
		c.Merge("1", []Message{msg("1")})
		c.Merge("2", []Message{msg("9")})
		got, _ := c.Get("1")
		if diff := cmp.Diff([]string{"1"}, ids(got)); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestMessageCacheMergeSeq(t *testing.T) {
	c := NewMessageCache()

	replaced, stale := c.MergeSeq("1", 2, []Message{msg("1"), msg("2")})
	if !replaced || stale {
		t.Fatalf("seq 2: replaced=%v stale=%v", replaced, stale)
	}

	replaced, stale = c.MergeSeq("1", 1, []Message{msg("1")})
	if replaced || !stale {
		t.Fatalf("seq 1: replaced=%v stale=%v", replaced, stale)
	}
	got, _ := c.Get("1")
	if diff := cmp.Diff([]string{"1", "2"}, ids(got)); diff != "" {
		t.Fatalf("stale result applied (-want +got):\n%s", diff)
	}

	if _, stale := c.MergeSeq("1", 3, []Message{msg("1"), msg("2")}); stale {
		t.Fatal("seq 3 must not be stale")
	}

	c.Delete("1")
	if _, stale := c.MergeSeq("1", 1, nil); stale {
		t.Fatal("Delete must reset the applied sequence")
	}
}

func TestMessageCacheAppendRemove(t *testing.T) {
	c := NewMessageCache()
	c.Merge("1", []Message{msg("1")})
	before, _ := c.Get("1")

	tmp := Message{ID: TemporaryID(1), Content: "hi"}
	c.Append("1", tmp)
	if c.Len("1") != 2 {
		t.Fatalf("expected 2 messages, got %d", c.Len("1"))
	}

	if !c.Remove("1", tmp.ID) {
		t.Fatal("expected removal")
	}
	after, _ := c.Get("1")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("cache not restored (-want +got):\n%s", diff)
	}
	if c.Remove("1", tmp.ID) {
		t.Fatal("second removal must be a no-op")
	}
}

func TestMessageCacheDelete(t *testing.T) {
	c := NewMessageCache()
	c.Merge("1", []Message{msg("1")})
	rev := c.Revision("1")

	c.Delete("1")
	if _, loaded := c.Get("1"); loaded {
		t.Fatal("expected entry to be gone")
	}
	if c.Revision("1") <= rev {
		t.Fatal("expected revision bump on delete")
	}
}

func TestMessageCacheGetReturnsCopy(t *testing.T) {
	c := NewMessageCache()
	c.Merge("1", []Message{msg("1")})
	got, _ := c.Get("1")
	got[0].Content = "mutated"

	again, _ := c.Get("1")
	if again[0].Content != "m1" {
		t.Fatal("Get must return a copy")
	}
}
