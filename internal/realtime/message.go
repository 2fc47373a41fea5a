package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/task"
)

// Inbound message types.
const (
	TypeTaskUpdate  = "task_update"
	TypeChatMessage = "chat_message"
)

// Outbound frame types.
const (
	frameJoinChannel = "join_channel"
	frameSubscribe   = "subscribe"
)

// Envelope is the wire shape of every inbound message.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	Channel   string          `json:"channel,omitempty"`
}

// Frame is an outbound client message.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Message is a decoded, validated inbound message. The concrete type is one
// of *TaskUpdate, *ChatMessage or *Unknown.
type Message interface {
	// Type returns the envelope type tag.
	Type() string

	// Channel returns the channel the message was published on, if any.
	Channel() string

	// Time returns the envelope timestamp, or the zero time if it was empty.
	Time() time.Time
}

type header struct {
	msgType   string
	channel   string
	timestamp time.Time
}

func (h header) Type() string    { return h.msgType }
func (h header) Channel() string { return h.channel }
func (h header) Time() time.Time { return h.timestamp }

// TaskUpdate carries a new version of a task.
type TaskUpdate struct {
	header
	TaskID string
	Task   task.Task
}

// ChatMessage is a message posted to a chat channel.
type ChatMessage struct {
	header
	ChannelID string
	Sender    string
	Content   string
}

// Unknown is a well-formed envelope with a type this package does not model.
// It is delivered only to handlers registered for that type or for all types.
type Unknown struct {
	header
	Data json.RawMessage
}

// Decode parses and validates one inbound message. Any structural problem
// yields a *errors.ValidationError wrapping errors.ErrMalformedPayload; no
// field of a message is trusted before its schema is checked.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformed("", "envelope is not a JSON object", err)
	}
	if env.Type == "" {
		return nil, malformed("type", "message type is required", nil)
	}
	if !isObject(env.Data) {
		return nil, malformed("data", "data must be a JSON object", nil)
	}

	h := header{msgType: env.Type, channel: env.Channel}
	if env.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, env.Timestamp)
		if err != nil {
			return nil, malformed("timestamp", "timestamp must be RFC 3339", err)
		}
		h.timestamp = ts
	}

	switch env.Type {
	case TypeTaskUpdate:
		return decodeTaskUpdate(h, env.Data)
	case TypeChatMessage:
		return decodeChat(h, env.Data)
	default:
		return &Unknown{header: h, Data: env.Data}, nil
	}
}

type taskUpdateData struct {
	TaskID *string          `json:"task_id"`
	Task   *json.RawMessage `json:"task"`
}

func decodeTaskUpdate(h header, data json.RawMessage) (*TaskUpdate, error) {
	var d taskUpdateData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, malformed("data", "task_update data has the wrong shape", err)
	}
	if d.TaskID == nil || *d.TaskID == "" {
		return nil, malformed("data.task_id", "task_id must be a non-empty string", nil)
	}
	if d.Task == nil || !isObject(*d.Task) {
		return nil, malformed("data.task", "task must be a JSON object", nil)
	}

	var t task.Task
	if err := json.Unmarshal(*d.Task, &t); err != nil {
		return nil, malformed("data.task", "task does not match the task shape", err)
	}
	if t.ID == "" {
		t.ID = *d.TaskID
	}
	if t.ID != *d.TaskID {
		return nil, malformed("data.task.id", fmt.Sprintf("task id %q does not match task_id %q", t.ID, *d.TaskID), nil)
	}
	if err := t.Validate(); err != nil {
		return nil, malformed("data.task", "invalid task", err)
	}
	return &TaskUpdate{header: h, TaskID: t.ID, Task: t}, nil
}

type chatData struct {
	ChannelID *string `json:"channel_id"`
	Sender    string  `json:"sender"`
	Content   *string `json:"content"`
}

func decodeChat(h header, data json.RawMessage) (*ChatMessage, error) {
	var d chatData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, malformed("data", "chat_message data has the wrong shape", err)
	}
	if d.ChannelID == nil || *d.ChannelID == "" {
		return nil, malformed("data.channel_id", "channel_id must be a non-empty string", nil)
	}
	if d.Content == nil {
		return nil, malformed("data.content", "content is required", nil)
	}
	if h.channel == "" {
		h.channel = *d.ChannelID
	}
	return &ChatMessage{header: h, ChannelID: *d.ChannelID, Sender: d.Sender, Content: *d.Content}, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func malformed(field, msg string, cause error) *errors.ValidationError {
	err := errors.NewValidationError(msg).WithCause(errors.ErrMalformedPayload)
	if field != "" {
		err = err.WithField(field)
	}
	if cause != nil {
		err = err.WithCause(errors.Join(errors.ErrMalformedPayload, cause))
	}
	return err
}
