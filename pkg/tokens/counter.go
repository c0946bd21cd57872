// Package tokens provides accurate per-model token counting for the LLM
// agent's estimated-token budget check and token-usage stats (spec.md
// §4.6). Grounded on the teacher's pkg/utils.TokenCounter, carried over
// almost verbatim: same encoding cache, same per-message overhead
// constants from OpenAI's token-counting cookbook, generalized from the
// teacher's bespoke Message{Role,Content} shape to the core's
// core.ConversationMessage.
package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lexlapax/llmspell/pkg/core"
)

// tokensPerMessage is the <|start|>role|message<|end|> framing overhead
// OpenAI's chat format adds per message.
const tokensPerMessage = 3

// replyPriming is the token cost of priming the reply with
// <|start|>assistant<|message|>.
const replyPriming = 3

// fallbackEncoding is used whenever a model has no dedicated tiktoken
// encoding registered.
const fallbackEncoding = "cl100k_base"

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// Counter counts tokens for one model's encoding.
type Counter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// NewCounter builds a Counter for model, falling back to cl100k_base if the
// model has no dedicated tiktoken-go encoding. Encodings are cached
// process-wide since construction parses a vocabulary file.
func NewCounter(model string) (*Counter, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &Counter{encoding: cached, model: model}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("tokens: no encoding available for %q: %w", model, err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = enc
	cacheMu.Unlock()

	return &Counter{encoding: enc, model: model}, nil
}

// Count returns the exact token count of text under this encoding.
func (c *Counter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// CountConversation counts tokens across a conversation, including the
// per-message framing overhead and reply-priming tokens, per OpenAI's
// documented chat token-counting format.
func (c *Counter) CountConversation(messages []core.ConversationMessage) int {
	total := replyPriming
	for _, msg := range messages {
		total += tokensPerMessage
		total += len(c.encoding.Encode(string(msg.Role), nil, nil))
		total += len(c.encoding.Encode(msg.Content, nil, nil))
	}
	return total
}
