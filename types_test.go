package portal

import (
	"encoding/json"
	"testing"
)

func TestServerIDJSON(t *testing.T) {
	t.Run("number", func(t *testing.T) {
		var id ServerID
		if err := json.Unmarshal([]byte(`42`), &id); err != nil {
			t.Fatalf("Unmarshal error: %v", err)
		}
		if id != "42" {
			t.Fatalf("expected 42, got %q", id)
		}
		b, _ := json.Marshal(id)
		if string(b) != `42` {
			t.Fatalf("expected numeric output, got %s", b)
		}
	})

	t.Run("string", func(t *testing.T) {
		var id ServerID
		if err := json.Unmarshal([]byte(`"conv-a"`), &id); err != nil {
			t.Fatalf("Unmarshal error: %v", err)
		}
		b, _ := json.Marshal(id)
		if string(b) != `"conv-a"` {
			t.Fatalf("expected string output, got %s", b)
		}
	})

	t.Run("null", func(t *testing.T) {
		id := ServerID("x")
		if err := json.Unmarshal([]byte(`null`), &id); err != nil {
			t.Fatalf("Unmarshal error: %v", err)
		}
		if id != "" {
			t.Fatalf("expected empty id, got %q", id)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		var id ServerID
		if err := json.Unmarshal([]byte(`{}`), &id); err == nil {
			t.Fatal("expected error for object id")
		}
	})
}

func TestMessageID(t *testing.T) {
	tmp := TemporaryID(42)
	persisted := PersistedID("42")

	if !tmp.IsTemporary() || persisted.IsTemporary() {
		t.Fatal("temporary flag mismatch")
	}
	if tmp.Equal(persisted) {
		t.Fatal("temporary 42 must not equal persisted 42")
	}
	if !persisted.Equal(PersistedID("42")) {
		t.Fatal("expected equal persisted ids")
	}
	if n, ok := tmp.Temporary(); !ok || n != 42 {
		t.Fatalf("Temporary() = %d, %v", n, ok)
	}
	if _, ok := tmp.Server(); ok {
		t.Fatal("temporary id has no server id")
	}
	if s, ok := persisted.Server(); !ok || s != "42" {
		t.Fatalf("Server() = %q, %v", s, ok)
	}
	if !(MessageID{}).IsZero() {
		t.Fatal("zero value must be zero")
	}
	if tmp.String() != "tmp-42" {
		t.Fatalf("unexpected String() %q", tmp.String())
	}

	var decoded Message
	if err := json.Unmarshal([]byte(`{"id":7,"authorId":"u1","content":"x","timestamp":"t"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !decoded.ID.Equal(PersistedID("7")) {
		t.Fatalf("expected persisted 7, got %s", decoded.ID)
	}
}

func TestParticipantJSON(t *testing.T) {
	var ps []Participant
	if err := json.Unmarshal([]byte(`[3, "u-4", {"id": 5, "name": "Caio"}]`), &ps); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	want := []Participant{{ID: "3"}, {ID: "u-4"}, {ID: "5", Name: "Caio"}}
	if len(ps) != len(want) {
		t.Fatalf("expected %d participants, got %d", len(want), len(ps))
	}
	for i := range want {
		if ps[i] != want[i] {
			t.Fatalf("participant %d: expected %+v, got %+v", i, want[i], ps[i])
		}
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(" " + string(c) + " ")
		if err != nil || got != c {
			t.Fatalf("ParseCategory(%q) = %q, %v", c, got, err)
		}
	}
	if got, _ := ParseCategory("STAFF"); got != CategoryStaff {
		t.Fatalf("expected case-insensitive match, got %q", got)
	}
	if _, err := ParseCategory("alumni"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}
