package models

import (
	"encoding/json"
	"strings"
	"time"
)

// InboundEvent is the subset of a Notion webhook payload the digest cares about.
// Every field is optional; see DecodeInboundEvent.
type InboundEvent struct {
	Type      string   `json:"type,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Entity    *Entity  `json:"entity,omitempty"`
	Actor     *Actor   `json:"actor,omitempty"`
	Authors   []Author `json:"authors,omitempty"`

	// VerificationToken is only set on the subscription handshake request.
	VerificationToken string `json:"verification_token,omitempty"`
}

type Entity struct {
	ID string `json:"id"`
}

type Actor struct {
	Name   string  `json:"name,omitempty"`
	Person *Person `json:"person,omitempty"`
}

type Person struct {
	Email string `json:"email,omitempty"`
}

type Author struct {
	ID string `json:"id"`
}

// DecodeInboundEvent never fails. Each field is decoded on its own, so a
// field of the wrong shape is left empty without losing the rest of the
// event. A body that is not a JSON object yields the empty event.
func DecodeInboundEvent(body []byte) InboundEvent {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return InboundEvent{}
	}

	ev := InboundEvent{
		Type:              decodeString(raw["type"]),
		Timestamp:         decodeString(raw["timestamp"]),
		VerificationToken: decodeString(raw["verification_token"]),
	}
	if obj, ok := decodeObject(raw["entity"]); ok {
		ev.Entity = &Entity{ID: decodeString(obj["id"])}
	}
	if obj, ok := decodeObject(raw["actor"]); ok {
		ev.Actor = &Actor{Name: decodeString(obj["name"])}
		if person, ok := decodeObject(obj["person"]); ok {
			ev.Actor.Person = &Person{Email: decodeString(person["email"])}
		}
	}
	var authors []json.RawMessage
	if len(raw["authors"]) > 0 && json.Unmarshal(raw["authors"], &authors) == nil {
		for _, a := range authors {
			if obj, ok := decodeObject(a); ok {
				ev.Authors = append(ev.Authors, Author{ID: decodeString(obj["id"])})
			}
		}
	}
	return ev
}

// decodeString returns the JSON string in b, or "" for any other value.
func decodeString(b json.RawMessage) string {
	var s string
	if len(b) == 0 || json.Unmarshal(b, &s) != nil {
		return ""
	}
	return s
}

func decodeObject(b json.RawMessage) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if len(b) == 0 || json.Unmarshal(b, &obj) != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// EntityID returns the entity id or "" when absent.
func (e InboundEvent) EntityID() string {
	if e.Entity == nil {
		return ""
	}
	return e.Entity.ID
}

// FirstAuthorID returns the id of the first listed author or "".
func (e InboundEvent) FirstAuthorID() string {
	if len(e.Authors) == 0 {
		return ""
	}
	return e.Authors[0].ID
}

// ParsedTimestamp returns the event time, or nil when absent or unparseable.
func (e InboundEvent) ParsedTimestamp() *time.Time {
	ts := strings.TrimSpace(e.Timestamp)
	if ts == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil
	}
	return &t
}

// QueuedItem is an event waiting in the deferred buffer.
type QueuedItem struct {
	Key        string       `json:"key"`
	Payload    InboundEvent `json:"payload"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// EventRecord is one durable row of the Events table.
type EventRecord struct {
	Timestamp   time.Time
	Type        string
	EntityID    string
	UserDisplay string
	URL         string
}

// Fields returns the record as the ordered column values of the Events table.
func (r EventRecord) Fields() []string {
	return []string{
		r.Timestamp.Format(time.DateTime),
		r.Type,
		r.EntityID,
		r.UserDisplay,
		r.URL,
	}
}

// EventColumns is the header of the Events table and of exported artifacts.
var EventColumns = []string{"Timestamp", "Type", "Page/DB ID", "User", "URL"}

// NotionURL builds the public page URL for an entity id ("" when id is empty).
func NotionURL(entityID string) string {
	if entityID == "" {
		return ""
	}
	return "https://www.notion.so/" + strings.ReplaceAll(entityID, "-", "")
}
