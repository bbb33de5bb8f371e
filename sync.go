// Package portal: messaging sync core.
//
// SyncEngine owns the conversation list, the per-conversation message cache
// and the composer draft. It keeps them fresh by polling and applies sends
// optimistically, reconciling with the server response or rolling back.
//
// Usage:
//
//	engine := portal.NewSyncEngine(client.Chat(), &portal.SyncOptions{Logger: log})
//	engine.On(portal.EventMessagesChanged, func(ev portal.Event, payload any) { ... })
//	if err := engine.Start(ctx); err != nil { ... }
//	defer engine.Stop()
//
//	engine.Select(id)
//	engine.SendMessage(ctx, "hello")
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

// ============================================================================
// Options
// ============================================================================

const (
	DefaultConversationPollInterval = 5 * time.Second
	DefaultMessagePollInterval      = 3 * time.Second
	DefaultSearchDebounce           = 400 * time.Millisecond
)

var (
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrNoParticipants       = errors.New("at least one participant is required")
	ErrBusy                 = errors.New("operation already in progress")
)

// TokenStore holds the locally stored session token.
type TokenStore interface {
	ClearToken() error
}

// SyncOptions configures the SyncEngine.
type SyncOptions struct {
	ConversationPollInterval time.Duration
	MessagePollInterval      time.Duration
	SearchDebounce           time.Duration

	// DiscardStaleFetches drops a message fetch result when a newer fetch of
	// the same conversation has already been applied. Off by default: the
	// last response to arrive wins.
	DiscardStaleFetches bool

	// Tokens is cleared and OnAuthError called, once, after the first 401.
	Tokens      TokenStore
	OnAuthError func()

	Logger *zap.Logger
	Now    func() time.Time
}

func (o *SyncOptions) defaults() {
	if o.ConversationPollInterval <= 0 {
		o.ConversationPollInterval = DefaultConversationPollInterval
	}
	if o.MessagePollInterval <= 0 {
		o.MessagePollInterval = DefaultMessagePollInterval
	}
	if o.SearchDebounce <= 0 {
		o.SearchDebounce = DefaultSearchDebounce
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// ============================================================================
// Events
// ============================================================================

// Event names a state change a UI should re-render for.
type Event string

const (
	EventConversationsChanged Event = "conversations.changed"
	EventMessagesChanged      Event = "messages.changed"
	EventSelectionChanged     Event = "selection.changed"
	EventLoadingChanged       Event = "loading.changed"
	EventDraftChanged         Event = "draft.changed"
	EventErrorChanged         Event = "error.changed"
	EventSendFailed           Event = "send.failed"
	EventAuthError            Event = "auth.error"
	EventUsersChanged         Event = "users.changed"
)

// SendFailure is the payload of EventSendFailed.
type SendFailure struct {
	ConversationID ServerID
	Text           string
	Err            error
}

// EventHandler receives engine events. The payload is a ServerID for
// message and selection events, a SendFailure for EventSendFailed and nil
// otherwise.
type EventHandler func(event Event, payload any)

type emitter struct {
	mu        sync.RWMutex
	listeners map[Event][]EventHandler
}

// On registers a handler for an event.
func (e *emitter) On(event Event, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *emitter) emit(event Event, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, payload)
		}()
	}
}

func (e *emitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[Event][]EventHandler)
}

// ============================================================================
// SyncEngine
// ============================================================================

// SyncEngine is the messaging sync core. All of its state is mutated only
// through its methods, each applied against the live state under one lock.
type SyncEngine struct {
	emitter
	api   ChatAPI
	cache *MessageCache
	opts  SyncOptions
	log   *zap.Logger

	authFailed atomic.Bool

	mu            sync.Mutex
	user          *User
	conversations []Conversation
	activeID      ServerID
	searchTerm    string
	category      Category
	draft         string
	convLoading   bool
	msgsLoading   bool
	errMsg        string
	creating      bool
	deleting      bool
	lastTemp      uint64
	fetchSeq      map[ServerID]uint64
	deleted       map[ServerID]struct{}

	started    bool
	baseCtx    context.Context
	cancel     context.CancelFunc
	pollCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewSyncEngine creates a sync engine on top of api.
func NewSyncEngine(api ChatAPI, opts *SyncOptions) *SyncEngine {
	var o SyncOptions
	if opts != nil {
		o = *opts
	}
	o.defaults()
	return &SyncEngine{
		emitter:  emitter{listeners: make(map[Event][]EventHandler)},
		api:      api,
		cache:    NewMessageCache(),
		opts:     o,
		log:      o.Logger,
		category: CategoryAll,
		fetchSeq: make(map[ServerID]uint64),
		deleted:  make(map[ServerID]struct{}),
	}
}

// Start loads the current user and conversation list, selects the first
// conversation and starts the background conversation poller.
// The poller keeps running after a non-auth initial failure.
func (e *SyncEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.baseCtx, e.cancel = context.WithCancel(ctx)
	e.convLoading = true
	baseCtx := e.baseCtx
	e.mu.Unlock()
	e.emit(EventLoadingChanged, nil)

	err := e.initialLoad(baseCtx)

	if !e.authFailed.Load() {
		e.wg.Add(1)
		go e.conversationLoop(baseCtx)
	}
	return err
}

// Stop cancels every poller and waits for them and any pending mark-read
// calls to exit.
func (e *SyncEngine) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.pollCancel = nil
	e.mu.Unlock()
	e.wg.Wait()
	e.removeAll()
}

// AuthFailed reports whether the session has been dropped.
func (e *SyncEngine) AuthFailed() bool {
	return e.authFailed.Load()
}

// Cache exposes the message cache for read access.
func (e *SyncEngine) Cache() *MessageCache {
	return e.cache
}

// ── Auth error path ──────────────────────────────────────

func (e *SyncEngine) handleAuthError() {
	if !e.authFailed.CompareAndSwap(false, true) {
		return
	}
	AuthErrorsTotal.Inc()
	e.log.Warn("session rejected by portal, logging out")
	if e.opts.Tokens != nil {
		if err := e.opts.Tokens.ClearToken(); err != nil {
			e.log.Error("failed to clear session token", zap.Error(err))
		}
	}
	e.emit(EventAuthError, nil)
	if e.opts.OnAuthError != nil {
		e.opts.OnAuthError()
	}
}

// ============================================================================
// Conversation List Poller
// ============================================================================

func (e *SyncEngine) initialLoad(ctx context.Context) error {
	var (
		user  *User
		convs []Conversation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := e.api.CurrentUser(gctx)
		if err != nil {
			return fmt.Errorf("current user: %w", err)
		}
		user = u
		return nil
	})
	g.Go(func() error {
		c, err := e.api.ListConversations(gctx)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		convs = c
		return nil
	})
	err := g.Wait()

	e.mu.Lock()
	e.convLoading = false
	if err == nil {
		e.user = user
		e.conversations = convs
	}
	e.mu.Unlock()
	e.emit(EventLoadingChanged, nil)

	if err != nil {
		PollsTotal.WithLabelValues("conversations", Foreground.String(), "error").Inc()
		e.log.Error("initial load failed", zap.Error(err))
		if IsUnauthorized(err) {
			e.handleAuthError()
		}
		return fmt.Errorf("initial load: %w", err)
	}
	PollsTotal.WithLabelValues("conversations", Foreground.String(), "ok").Inc()
	e.emit(EventConversationsChanged, nil)

	if len(convs) > 0 {
		e.Select(convs[0].ID)
	}
	return nil
}

func (e *SyncEngine) conversationLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.ConversationPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.authFailed.Load() {
				return
			}
			e.RefreshConversations(ctx)
		}
	}
}

var conversationsEqual = cmpopts.EquateEmpty()

// RefreshConversations re-fetches the conversation list in the background.
// The stored list is replaced only if its content changed. Errors are
// swallowed.
func (e *SyncEngine) RefreshConversations(ctx context.Context) {
	if e.authFailed.Load() {
		return
	}
	convs, err := e.api.ListConversations(ctx)
	if err != nil {
		PollsTotal.WithLabelValues("conversations", Background.String(), "error").Inc()
		return
	}
	PollsTotal.WithLabelValues("conversations", Background.String(), "ok").Inc()

	e.mu.Lock()
	changed := !cmp.Equal(e.conversations, convs, conversationsEqual)
	if changed {
		e.conversations = convs
	}
	e.mu.Unlock()
	if changed {
		e.emit(EventConversationsChanged, nil)
	}
}

// ============================================================================
// Message Cache & Poller
// ============================================================================

// Select makes id the active conversation, fetches it immediately and polls
// it until another conversation is selected. Selecting the active
// conversation again does nothing. An empty id clears the selection.
func (e *SyncEngine) Select(id ServerID) {
	e.mu.Lock()
	if e.activeID == id {
		e.mu.Unlock()
		return
	}
	e.activeID = id
	e.errMsg = ""
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	var pollCtx context.Context
	if id != "" && e.baseCtx != nil && e.baseCtx.Err() == nil {
		pollCtx, e.pollCancel = context.WithCancel(e.baseCtx)
		e.wg.Add(1)
	}
	baseCtx := e.baseCtx
	e.mu.Unlock()
	e.emit(EventSelectionChanged, id)

	if pollCtx != nil {
		go e.messageLoop(pollCtx, baseCtx, id)
	}
}

// messageLoop runs until pollCtx is cancelled. Fetches use baseCtx so a
// response still in flight after a switch lands in its own conversation's
// entry instead of being cancelled.
func (e *SyncEngine) messageLoop(pollCtx, baseCtx context.Context, id ServerID) {
	defer e.wg.Done()
	e.FetchMessages(baseCtx, id, Foreground)

	ticker := time.NewTicker(e.opts.MessagePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-pollCtx.Done():
			return
		case <-ticker.C:
			e.FetchMessages(baseCtx, id, Background)
		}
	}
}

// FetchMessages loads the history of conversationID into the cache.
//
// Foreground calls on a never-loaded conversation raise MessagesLoading.
// Results equivalent to the cache (same length, same last id) are not
// applied. A successful fetch marks the conversation read, ignoring errors.
// Background errors are silent; foreground errors are logged.
func (e *SyncEngine) FetchMessages(ctx context.Context, conversationID ServerID, mode CallMode) {
	if conversationID == "" || e.authFailed.Load() {
		return
	}

	_, loaded := e.cache.Get(conversationID)
	e.mu.Lock()
	e.fetchSeq[conversationID]++
	seq := e.fetchSeq[conversationID]
	showLoading := mode == Foreground && !loaded && !e.msgsLoading
	if showLoading {
		e.msgsLoading = true
	}
	e.mu.Unlock()
	if showLoading {
		e.emit(EventLoadingChanged, nil)
	}
	if mode == Foreground {
		defer e.clearMessagesLoading()
	}

	msgs, err := e.api.ListMessages(ctx, conversationID)
	if err != nil {
		PollsTotal.WithLabelValues("messages", mode.String(), "error").Inc()
		if IsUnauthorized(err) {
			e.handleAuthError()
			return
		}
		if mode == Foreground {
			e.log.Error("failed to fetch messages",
				zap.String("conversation_id", conversationID.String()),
				zap.Error(err),
			)
		}
		return
	}
	PollsTotal.WithLabelValues("messages", mode.String(), "ok").Inc()

	// A conversation deleted while the fetch was in flight stays deleted.
	e.mu.Lock()
	if _, gone := e.deleted[conversationID]; gone {
		e.mu.Unlock()
		return
	}
	var replaced, stale bool
	if e.opts.DiscardStaleFetches {
		replaced, stale = e.cache.MergeSeq(conversationID, seq, msgs)
	} else {
		replaced = e.cache.Merge(conversationID, msgs)
	}
	e.wg.Add(1)
	e.mu.Unlock()

	switch {
	case stale:
		CacheUpdatesTotal.WithLabelValues("stale").Inc()
	case replaced:
		CacheUpdatesTotal.WithLabelValues("replaced").Inc()
		e.emit(EventMessagesChanged, conversationID)
	default:
		CacheUpdatesTotal.WithLabelValues("skipped").Inc()
	}

	go func() {
		defer e.wg.Done()
		_ = e.api.MarkAllRead(ctx, conversationID)
	}()
}

func (e *SyncEngine) clearMessagesLoading() {
	e.mu.Lock()
	was := e.msgsLoading
	e.msgsLoading = false
	e.mu.Unlock()
	if was {
		e.emit(EventLoadingChanged, nil)
	}
}

// Refresh re-fetches the active conversation in the foreground.
func (e *SyncEngine) Refresh(ctx context.Context) {
	e.FetchMessages(ctx, e.ActiveID(), Foreground)
}

// ============================================================================
// Optimistic Send Pipeline
// ============================================================================

// SendDraft sends the composer text to the active conversation.
func (e *SyncEngine) SendDraft(ctx context.Context) error {
	return e.SendMessage(ctx, e.Draft())
}

// SendMessage appends text to the active conversation immediately under a
// temporary id, then swaps in the server's message once the send succeeds.
// On failure the temporary message is removed, the draft restored and
// EventSendFailed emitted. Blank text or no active conversation is a no-op.
func (e *SyncEngine) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	e.mu.Lock()
	conversationID := e.activeID
	if text == "" || conversationID == "" {
		e.mu.Unlock()
		return nil
	}
	pending := Message{
		ID:         TemporaryID(e.nextTempIDLocked()),
		AuthorName: "Me",
		Content:    text,
		Timestamp:  e.opts.Now().UTC().Format(time.RFC3339Nano),
	}
	if e.user != nil {
		pending.AuthorID = e.user.ID
		if e.user.Name != "" {
			pending.AuthorName = e.user.Name
		}
	}
	e.cache.Append(conversationID, pending)
	e.draft = ""
	previous := e.setLastMessageLocked(conversationID, &pending)
	e.mu.Unlock()

	e.emit(EventMessagesChanged, conversationID)
	e.emit(EventDraftChanged, nil)
	e.emit(EventConversationsChanged, nil)

	saved, err := e.api.SendMessage(ctx, conversationID, text)
	if err == nil && saved == nil {
		err = errors.New("send returned no message")
	}
	if err != nil {
		SendsTotal.WithLabelValues("failed").Inc()
		e.log.Warn("failed to send message",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err),
		)
		e.cache.Remove(conversationID, pending.ID)
		e.mu.Lock()
		e.draft = text
		e.restoreLastMessageLocked(conversationID, pending.ID, previous)
		e.mu.Unlock()

		e.emit(EventMessagesChanged, conversationID)
		e.emit(EventDraftChanged, nil)
		e.emit(EventConversationsChanged, nil)
		e.emit(EventSendFailed, SendFailure{ConversationID: conversationID, Text: text, Err: err})
		return fmt.Errorf("send message: %w", err)
	}

	SendsTotal.WithLabelValues("confirmed").Inc()
	e.confirm(conversationID, pending.ID, *saved)
	e.mu.Lock()
	confirmed := *saved
	e.setLastMessageLocked(conversationID, &confirmed)
	e.mu.Unlock()

	e.emit(EventMessagesChanged, conversationID)
	e.emit(EventConversationsChanged, nil)
	return nil
}

// confirm puts the server message where the temporary one was. If a poll
// already delivered the server message, the temporary one is just dropped.
func (e *SyncEngine) confirm(conversationID ServerID, tempID MessageID, saved Message) {
	e.cache.Update(conversationID, func(current []Message, _ bool) ([]Message, bool) {
		tempIdx := indexOf(current, tempID)
		savedIdx := indexOf(current, saved.ID)
		switch {
		case savedIdx >= 0 && tempIdx >= 0:
			next := make([]Message, 0, len(current)-1)
			next = append(next, current[:tempIdx]...)
			return append(next, current[tempIdx+1:]...), true
		case savedIdx >= 0:
			return current, false
		case tempIdx >= 0:
			next := append([]Message{}, current...)
			next[tempIdx] = saved
			return next, true
		default:
			next := make([]Message, 0, len(current)+1)
			next = append(next, current...)
			return append(next, saved), true
		}
	})
}

// nextTempIDLocked reads the clock in nanoseconds, bumped to stay strictly
// increasing within the engine.
func (e *SyncEngine) nextTempIDLocked() uint64 {
	n := uint64(e.opts.Now().UnixNano())
	if n <= e.lastTemp {
		n = e.lastTemp + 1
	}
	e.lastTemp = n
	return n
}

func (e *SyncEngine) setLastMessageLocked(conversationID ServerID, msg *Message) *Message {
	for i := range e.conversations {
		if e.conversations[i].ID == conversationID {
			previous := e.conversations[i].LastMessage
			e.conversations[i].LastMessage = msg
			return previous
		}
	}
	return nil
}

func (e *SyncEngine) restoreLastMessageLocked(conversationID ServerID, tempID MessageID, previous *Message) {
	for i := range e.conversations {
		c := &e.conversations[i]
		if c.ID == conversationID && c.LastMessage != nil && c.LastMessage.ID.Equal(tempID) {
			c.LastMessage = previous
			return
		}
	}
}

// ── Composer ─────────────────────────────────────────────

// Draft returns the composer text.
func (e *SyncEngine) Draft() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft
}

// SetDraft replaces the composer text.
func (e *SyncEngine) SetDraft(text string) {
	e.mu.Lock()
	e.draft = text
	e.mu.Unlock()
	e.emit(EventDraftChanged, nil)
}

// ============================================================================
// Conversation management
// ============================================================================

// CreateConversation creates a conversation with the given participants,
// deduplicated. The title is sent only for groups. The new conversation is
// prepended, seeded as known-empty and selected. Failures set Err().
func (e *SyncEngine) CreateConversation(ctx context.Context, participantIDs []ServerID, title string) (*Conversation, error) {
	ids := dedupe(participantIDs)
	if len(ids) == 0 {
		return nil, ErrNoParticipants
	}

	e.mu.Lock()
	if e.creating {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.creating = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.creating = false
		e.mu.Unlock()
	}()

	groupTitle := ""
	if len(ids) > 1 {
		groupTitle = strings.TrimSpace(title)
	}

	conv, err := e.api.CreateConversation(ctx, ids, groupTitle)
	if err == nil && conv == nil {
		err = errors.New("create returned no conversation")
	}
	if err != nil {
		e.log.Error("failed to create conversation", zap.Error(err))
		e.setErr("could not create conversation")
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	e.mu.Lock()
	e.conversations = append([]Conversation{*conv}, e.conversations...)
	delete(e.deleted, conv.ID)
	e.mu.Unlock()
	e.cache.Seed(conv.ID)
	e.emit(EventConversationsChanged, nil)

	e.Select(conv.ID)
	created := cloneConversation(*conv)
	return &created, nil
}

// DeleteConversation deletes the active conversation once the server
// confirms. On failure local state is untouched and Err() is set.
func (e *SyncEngine) DeleteConversation(ctx context.Context) error {
	e.mu.Lock()
	id := e.activeID
	if id == "" {
		e.mu.Unlock()
		return ErrNoActiveConversation
	}
	if e.deleting {
		e.mu.Unlock()
		return ErrBusy
	}
	e.deleting = true
	e.mu.Unlock()

	err := e.api.DeleteConversation(ctx, id)

	e.mu.Lock()
	e.deleting = false
	e.mu.Unlock()
	if err != nil {
		e.log.Error("failed to delete conversation",
			zap.String("conversation_id", id.String()),
			zap.Error(err),
		)
		e.setErr("could not delete conversation")
		return fmt.Errorf("delete conversation: %w", err)
	}

	e.mu.Lock()
	kept := e.conversations[:0:0]
	for _, c := range e.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	e.conversations = kept
	e.deleted[id] = struct{}{}
	e.cache.Delete(id)
	stillActive := e.activeID == id
	e.mu.Unlock()
	e.emit(EventConversationsChanged, nil)
	e.emit(EventMessagesChanged, id)

	if stillActive {
		e.Select("")
	}
	return nil
}

func dedupe(ids []ServerID) []ServerID {
	seen := make(map[ServerID]struct{}, len(ids))
	out := make([]ServerID, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ── Error banner ─────────────────────────────────────────

func (e *SyncEngine) setErr(msg string) {
	e.mu.Lock()
	e.errMsg = msg
	e.mu.Unlock()
	e.emit(EventErrorChanged, nil)
}

// Err returns the inline error banner text, if any.
func (e *SyncEngine) Err() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errMsg
}

// ClearErr dismisses the error banner.
func (e *SyncEngine) ClearErr() {
	e.setErr("")
}

// ============================================================================
// Selection & Filtering
// ============================================================================

// ActiveID returns the active conversation id, or "" if none.
func (e *SyncEngine) ActiveID() ServerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeID
}

// ActiveConversation returns a copy of the active conversation.
func (e *SyncEngine) ActiveConversation() (Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.conversations {
		if c.ID == e.activeID {
			return cloneConversation(c), true
		}
	}
	return Conversation{}, false
}

// User returns the current user, nil before the initial load.
func (e *SyncEngine) User() *User {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.user == nil {
		return nil
	}
	u := *e.user
	return &u
}

// Conversations returns a copy of the full conversation list.
func (e *SyncEngine) Conversations() []Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Conversation, len(e.conversations))
	for i, c := range e.conversations {
		out[i] = cloneConversation(c)
	}
	return out
}

// VisibleConversations returns the conversations whose title contains the
// search term, ignoring case. A missing title matches only an empty term.
func (e *SyncEngine) VisibleConversations() []Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return FilterConversations(e.conversations, e.searchTerm)
}

// FilterConversations returns copies of the conversations whose title
// contains term, ignoring case.
func FilterConversations(convs []Conversation, term string) []Conversation {
	fold := cases.Fold()
	term = fold.String(term)
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if strings.Contains(fold.String(c.Title), term) {
			out = append(out, cloneConversation(c))
		}
	}
	return out
}

// SetSearchTerm updates the sidebar search.
func (e *SyncEngine) SetSearchTerm(term string) {
	e.mu.Lock()
	e.searchTerm = term
	e.mu.Unlock()
	e.emit(EventConversationsChanged, nil)
}

// SearchTerm returns the sidebar search.
func (e *SyncEngine) SearchTerm() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searchTerm
}

// SetCategory switches the sidebar filter tab.
func (e *SyncEngine) SetCategory(c Category) {
	e.mu.Lock()
	e.category = c
	e.mu.Unlock()
	e.emit(EventConversationsChanged, nil)
}

// Category returns the active sidebar filter tab.
func (e *SyncEngine) Category() Category {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.category
}

// Messages returns a copy of a conversation's cached messages.
func (e *SyncEngine) Messages(conversationID ServerID) []Message {
	msgs, _ := e.cache.Get(conversationID)
	return msgs
}

// ActiveMessages returns the active conversation's cached messages.
func (e *SyncEngine) ActiveMessages() []Message {
	return e.Messages(e.ActiveID())
}

// ConversationsLoading is true during the initial load only.
func (e *SyncEngine) ConversationsLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.convLoading
}

// MessagesLoading is true while a foreground fetch of a never-loaded
// conversation is running.
func (e *SyncEngine) MessagesLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msgsLoading
}

func cloneConversation(c Conversation) Conversation {
	if c.Participants != nil {
		c.Participants = append([]Participant{}, c.Participants...)
	}
	if c.LastMessage != nil {
		m := *c.LastMessage
		c.LastMessage = &m
	}
	return c
}
