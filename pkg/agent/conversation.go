package agent

import (
	"sync"

	"github.com/lexlapax/llmspell/pkg/core"
)

// defaultMaxConversationLength matches the teacher's
// memory.BufferWindowConfig default window of 20 turns.
const defaultMaxConversationLength = 20

// ConversationBuffer is the bounded, ordered conversation history every
// Agent maintains, per spec.md §3: oldest messages dropped first once
// MaxLength is exceeded. Grounded on the teacher's BufferWindowStrategy
// (pkg/memory/buffer_window.go), which keeps only the last N messages with
// no summarization, generalized here into a small standalone buffer type
// instead of a pluggable multi-strategy memory subsystem (out of scope for
// the core per spec.md §1).
type ConversationBuffer struct {
	mu       sync.Mutex
	messages []core.ConversationMessage
	maxLen   int
}

// NewConversationBuffer builds a buffer bounded to maxLen messages (0 uses
// the default window size of 20).
func NewConversationBuffer(maxLen int) *ConversationBuffer {
	if maxLen <= 0 {
		maxLen = defaultMaxConversationLength
	}
	return &ConversationBuffer{maxLen: maxLen}
}

// Add appends msg, dropping the oldest message first if the buffer is full.
func (b *ConversationBuffer) Add(msg core.ConversationMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	if len(b.messages) > b.maxLen {
		b.messages = b.messages[len(b.messages)-b.maxLen:]
	}
}

// Messages returns a defensive copy of the buffered conversation, oldest
// first.
func (b *ConversationBuffer) Messages() []core.ConversationMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.ConversationMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// Clear empties the buffer.
func (b *ConversationBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

// Len returns the number of buffered messages.
func (b *ConversationBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Load replaces the buffer's contents wholesale (used when restoring from
// PersistentAgentState), trimming to maxLen if the restored history is
// longer.
func (b *ConversationBuffer) Load(messages []core.ConversationMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(messages) > b.maxLen {
		messages = messages[len(messages)-b.maxLen:]
	}
	b.messages = append([]core.ConversationMessage(nil), messages...)
}
