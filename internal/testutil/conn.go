package testutil

import (
	"encoding/json"
	"sync"
)

// Conn records every frame it accepts. Setting Reject makes Send refuse frames.
type Conn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	Reject bool
}

func (c *Conn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.Reject {
		return false
	}
	c.frames = append(c.frames, append([]byte(nil), payload...))
	return true
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frame is a decoded outbound event.
type Frame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId"`
	RequestID      string          `json:"requestId"`
	Payload        json.RawMessage `json:"payload"`
}

func (c *Conn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f Frame
		if err := json.Unmarshal(raw, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// OfType returns the frames whose type matches kind.
func (c *Conn) OfType(kind string) []Frame {
	var out []Frame
	for _, f := range c.Frames() {
		if f.Type == kind {
			out = append(out, f)
		}
	}
	return out
}

func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
