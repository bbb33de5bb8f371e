package portal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// Participant Picker
// ============================================================================

// UserPicker backs the "new conversation" dialog: a debounced user search
// plus a set of selected participants and an optional group title.
type UserPicker struct {
	engine *SyncEngine

	mu       sync.Mutex
	ctx      context.Context
	open     bool
	query    string
	results  []UserSummary
	loading  bool
	selected []ServerID
	title    string
	timer    *time.Timer
	gen      uint64
}

// NewUserPicker creates a picker that creates conversations through e.
func (e *SyncEngine) NewUserPicker() *UserPicker {
	return &UserPicker{engine: e}
}

// Open resets the dialog and immediately lists users for an empty query.
func (p *UserPicker) Open(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	p.open = true
	p.query = ""
	p.selected = nil
	p.title = ""
	p.stopTimerLocked()
	p.mu.Unlock()

	p.search("")
}

// Close hides the dialog and cancels a pending search.
func (p *UserPicker) Close() {
	p.mu.Lock()
	p.open = false
	p.loading = false
	p.stopTimerLocked()
	p.gen++
	p.mu.Unlock()
}

// IsOpen reports whether the dialog is shown.
func (p *UserPicker) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// SetQuery updates the search text. The search runs once the text has been
// stable for the engine's SearchDebounce.
func (p *UserPicker) SetQuery(q string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query = q
	if !p.open {
		return
	}
	p.stopTimerLocked()
	p.timer = time.AfterFunc(p.engine.opts.SearchDebounce, func() {
		p.search(q)
	})
}

func (p *UserPicker) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// search only applies the result of the most recent query.
func (p *UserPicker) search(q string) {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return
	}
	p.gen++
	gen := p.gen
	ctx := p.ctx
	p.loading = true
	p.mu.Unlock()
	p.engine.emit(EventUsersChanged, nil)

	users, err := p.engine.api.SearchUsers(ctx, q)
	if err != nil {
		p.engine.log.Warn("user search failed", zap.String("query", q), zap.Error(err))
	}

	me := p.engine.User()
	filtered := make([]UserSummary, 0, len(users))
	for _, u := range users {
		if me != nil && u.ID == me.ID {
			continue
		}
		filtered = append(filtered, u)
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.loading = false
	if err == nil {
		p.results = filtered
	}
	p.mu.Unlock()
	p.engine.emit(EventUsersChanged, nil)
}

// Query returns the current search text.
func (p *UserPicker) Query() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Results returns the last search results, without the current user.
func (p *UserPicker) Results() []UserSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]UserSummary{}, p.results...)
}

// Loading reports whether a search is running.
func (p *UserPicker) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Toggle adds id to the selection or removes it.
func (p *UserPicker) Toggle(id ServerID) {
	p.mu.Lock()
	for i, s := range p.selected {
		if s == id {
			p.selected = append(p.selected[:i:i], p.selected[i+1:]...)
			p.mu.Unlock()
			p.engine.emit(EventUsersChanged, nil)
			return
		}
	}
	p.selected = append(p.selected, id)
	p.mu.Unlock()
	p.engine.emit(EventUsersChanged, nil)
}

// Selected returns the chosen participants in selection order.
func (p *UserPicker) Selected() []ServerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ServerID{}, p.selected...)
}

// IsGroup reports whether more than one participant is selected, which is
// when the group title applies.
func (p *UserPicker) IsGroup() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.selected) > 1
}

// SetGroupTitle sets the title used when creating a group.
func (p *UserPicker) SetGroupTitle(title string) {
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
}

// Create creates the conversation from the selection and closes the dialog
// on success.
func (p *UserPicker) Create(ctx context.Context) (*Conversation, error) {
	p.mu.Lock()
	ids := append([]ServerID{}, p.selected...)
	title := p.title
	p.mu.Unlock()

	conv, err := p.engine.CreateConversation(ctx, ids, title)
	if err != nil {
		return nil, err
	}
	p.Close()
	return conv, nil
}
