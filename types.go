package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents a non-2xx response from the portal API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ============================================================================
// Identifiers
// ============================================================================

// ServerID is an opaque identifier assigned by the portal API.
// The API mostly uses integers, but string ids are accepted too.
type ServerID string

func (id ServerID) String() string { return string(id) }

func (id ServerID) numeric() bool {
	if id == "" {
		return false
	}
	_, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil
}

// MarshalJSON writes numeric ids as JSON numbers.
func (id ServerID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (id *ServerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ServerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ServerID(n.String())
	return nil
}

// MessageID identifies a message either by a client-generated temporary
// number or by its persisted server id. The two spaces never collide.
type MessageID struct {
	temp   uint64
	server ServerID
}

// TemporaryID returns the id of a message that has not been confirmed yet.
func TemporaryID(n uint64) MessageID { return MessageID{temp: n} }

// PersistedID returns the id of a server-confirmed message.
func PersistedID(id ServerID) MessageID { return MessageID{server: id} }

// IsTemporary reports whether the id was generated locally.
func (id MessageID) IsTemporary() bool { return id.temp != 0 }

// IsZero reports whether the id is unset.
func (id MessageID) IsZero() bool { return id.temp == 0 && id.server == "" }

// Temporary returns the local counter value and whether the id is temporary.
func (id MessageID) Temporary() (uint64, bool) { return id.temp, id.temp != 0 }

// Server returns the server id and whether the id is persisted.
func (id MessageID) Server() (ServerID, bool) {
	return id.server, id.temp == 0 && id.server != ""
}

// Equal reports whether both ids name the same message. go-cmp picks it up.
func (id MessageID) Equal(other MessageID) bool {
	return id.temp == other.temp && id.server == other.server
}

func (id MessageID) String() string {
	if id.IsTemporary() {
		return "tmp-" + strconv.FormatUint(id.temp, 10)
	}
	return string(id.server)
}

func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.IsTemporary() {
		return json.Marshal(id.String())
	}
	return id.server.MarshalJSON()
}

// UnmarshalJSON always yields a persisted id; temporary ids never come
// from the wire.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	var s ServerID
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	*id = PersistedID(s)
	return nil
}

// ============================================================================
// Portal Chat Types
// ============================================================================

// User is the authenticated portal user.
type User struct {
	ID   ServerID `json:"id"`
	Name string   `json:"name"`
	Role string   `json:"role,omitempty"`
}

// UserSummary is a user search result shown in the participant picker.
type UserSummary struct {
	ID    ServerID `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email,omitempty"`
}

// Message is a single chat message.
type Message struct {
	ID         MessageID `json:"id"`
	AuthorID   ServerID  `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	Content    string    `json:"content"`
	Timestamp  string    `json:"timestamp"`
}

// Participant is a conversation member. The API may send either a bare id
// or an object.
type Participant struct {
	ID   ServerID `json:"id"`
	Name string   `json:"name,omitempty"`
}

func (p *Participant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type plain Participant
		var v plain
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*p = Participant(v)
		return nil
	}
	var id ServerID
	if err := id.UnmarshalJSON(data); err != nil {
		return err
	}
	*p = Participant{ID: id}
	return nil
}

// Conversation is a chat thread as listed in the sidebar.
type Conversation struct {
	ID           ServerID      `json:"id"`
	Title        string        `json:"title,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	LastMessage  *Message      `json:"last_message,omitempty"`
}

// CreateConversationOptions is the body of a create-conversation request.
type CreateConversationOptions struct {
	ParticipantIDs []ServerID `json:"participantIds"`
	Title          string     `json:"title,omitempty"`
}

// CallMode distinguishes user-driven fetches from poll-driven ones.
// Background calls never show loading state and never surface errors.
type CallMode int

const (
	Foreground CallMode = iota
	Background
)

func (m CallMode) String() string {
	if m == Background {
		return "background"
	}
	return "foreground"
}

// Category is the sidebar filter tab.
type Category string

const (
	CategoryAll      Category = "all"
	CategorySupport  Category = "support"
	CategoryStaff    Category = "staff"
	CategoryStudents Category = "students"
)

// Categories lists the filter tabs in display order.
var Categories = []Category{CategoryAll, CategorySupport, CategoryStaff, CategoryStudents}

// ParseCategory maps a tab name to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}
