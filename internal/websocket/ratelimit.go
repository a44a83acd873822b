package websocket

import (
	"sync"
	"time"
)

// CommandLimits are per-connection budgets per minute.
type CommandLimits struct {
	MaxMessages int
	MaxReceipts int
	MaxTyping   int
	MaxControl  int
}

var DefaultCommandLimits = CommandLimits{
	MaxMessages: 60,
	MaxReceipts: 240,
	MaxTyping:   120,
	MaxControl:  60,
}

// CommandLimiter refills every bucket once a minute.
type CommandLimiter struct {
	limits     CommandLimits
	messages   int
	receipts   int
	typing     int
	control    int
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

func NewCommandLimiter(limits CommandLimits) *CommandLimiter {
	rl := &CommandLimiter{limits: limits, now: time.Now}
	rl.refill(rl.now())
	return rl
}

func (rl *CommandLimiter) Allow(cmdType string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.refill(now)
	}

	var bucket *int
	switch cmdType {
	case CmdSendMessage:
		bucket = &rl.messages
	case CmdMarkRead, CmdMarkDelivered:
		bucket = &rl.receipts
	case CmdTyping:
		bucket = &rl.typing
	default:
		bucket = &rl.control
	}
	if *bucket <= 0 {
		return false
	}
	*bucket--
	return true
}

func (rl *CommandLimiter) refill(now time.Time) {
	rl.messages = rl.limits.MaxMessages
	rl.receipts = rl.limits.MaxReceipts
	rl.typing = rl.limits.MaxTyping
	rl.control = rl.limits.MaxControl
	rl.lastRefill = now
}
