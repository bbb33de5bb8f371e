package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestPicker(t *testing.T, api *fakeAPI) (*SyncEngine, *UserPicker) {
	t.Helper()
	api.users = []UserSummary{
		{ID: "1", Name: "Ana"},
		{ID: "2", Name: "Bia"},
		{ID: "3", Name: "Caio"},
	}
	e := newTestEngine(t, api, &SyncOptions{SearchDebounce: 20 * time.Millisecond})
	e.mu.Lock()
	e.user = &User{ID: "1", Name: "Ana"}
	e.mu.Unlock()
	p := e.NewUserPicker()
	t.Cleanup(p.Close)
	return e, p
}

func TestUserPickerOpen(t *testing.T) {
	api := newFakeAPI()
	_, p := newTestPicker(t, api)

	p.Open(context.Background())
	if !p.IsOpen() {
		t.Fatal("expected open picker")
	}
	if api.count("search:") != 1 {
		t.Fatal("expected an immediate search with an empty query")
	}
	want := []UserSummary{{ID: "2", Name: "Bia"}, {ID: "3", Name: "Caio"}}
	if diff := cmp.Diff(want, p.Results()); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if p.Loading() {
		t.Fatal("loading must clear")
	}
}

func TestUserPickerDebounce(t *testing.T) {
	api := newFakeAPI()
	_, p := newTestPicker(t, api)
	p.Open(context.Background())

	p.SetQuery("c")
	p.SetQuery("ca")
	p.SetQuery("cai")
	waitFor(t, "debounced search", func() bool { return api.count("search:cai") == 1 })
	time.Sleep(40 * time.Millisecond)

	if api.count("search:c") != 0 || api.count("search:ca") != 0 {
		t.Fatal("intermediate queries must not be searched")
	}
	if p.Query() != "cai" {
		t.Fatalf("unexpected query %q", p.Query())
	}
}

func TestUserPickerClosedIgnoresQuery(t *testing.T) {
	api := newFakeAPI()
	_, p := newTestPicker(t, api)

	p.SetQuery("bia")
	time.Sleep(40 * time.Millisecond)
	if api.count("search:bia") != 0 {
		t.Fatal("closed picker must not search")
	}

	p.Open(context.Background())
	p.SetQuery("bia")
	p.Close()
	time.Sleep(40 * time.Millisecond)
	if api.count("search:bia") != 0 {
		t.Fatal("close must cancel a pending search")
	}
}

func TestUserPickerSearchFailureKeepsResults(t *testing.T) {
	api := newFakeAPI()
	_, p := newTestPicker(t, api)
	p.Open(context.Background())
	before := p.Results()

	api.onSearch = func(context.Context, string) ([]UserSummary, error) {
		return nil, errors.New("boom")
	}
	p.SetQuery("x")
	waitFor(t, "failed search", func() bool { return api.count("search:x") == 1 && !p.Loading() })

	if diff := cmp.Diff(before, p.Results()); diff != "" {
		t.Fatalf("results changed (-want +got):\n%s", diff)
	}
}

func TestUserPickerToggle(t *testing.T) {
	api := newFakeAPI()
	_, p := newTestPicker(t, api)

	p.Toggle("2")
	p.Toggle("3")
	if !p.IsGroup() {
		t.Fatal("two participants make a group")
	}
	p.Toggle("2")
	if diff := cmp.Diff([]ServerID{"3"}, p.Selected()); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
	if p.IsGroup() {
		t.Fatal("one participant is not a group")
	}
}

func TestUserPickerCreate(t *testing.T) {
	api := newFakeAPI()
	e, p := newTestPicker(t, api)
	p.Open(context.Background())

	p.Toggle("2")
	p.Toggle("3")
	p.SetGroupTitle("Monitoria")
	conv, err := p.Create(context.Background())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if conv.ID != "30" || e.ActiveID() != "30" {
		t.Fatalf("expected new conversation active, got %q / %q", conv.ID, e.ActiveID())
	}
	if p.IsOpen() {
		t.Fatal("picker must close after create")
	}
	want := []CreateConversationOptions{{ParticipantIDs: []ServerID{"2", "3"}, Title: "Monitoria"}}
	if diff := cmp.Diff(want, api.created); diff != "" {
		t.Fatalf("create call mismatch (-want +got):\n%s", diff)
	}

	p.Open(context.Background())
	if len(p.Selected()) != 0 {
		t.Fatal("reopening must reset the selection")
	}
}

func TestUserPickerCreateFailureStaysOpen(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(context.Context, []ServerID, string) (*Conversation, error) {
		return nil, errors.New("boom")
	}
	_, p := newTestPicker(t, api)
	p.Open(context.Background())
	p.Toggle("2")

	if _, err := p.Create(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !p.IsOpen() {
		t.Fatal("picker must stay open on failure")
	}
}
