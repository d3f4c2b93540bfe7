package agent

import "strings"

// ToolCall is a finalized tool invocation request from the model, in
// chat-completions function-calling shape.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one conversation entry in chat-completions wire shape.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

const DefaultSystemPrompt = `You are llamsh, a helpful AI assistant running inside the user's terminal. You have access to tools that let you interact with the system. Use them when the user asks you to read files, write files, list directories, or run shell commands.

When you need to use a tool, emit a tool call. You can chain multiple tool calls in sequence to accomplish complex tasks. Always explain what you're about to do before calling a tool.

Be concise and direct in your responses.`

// History is the ordered, append-only message list for one conversation.
// The shell-context message is the only entry that gets replaced in place.
type History struct {
	messages     []Message
	shellCtxIdx  int
	systemPrompt string
}

func NewHistory(systemPrompt string) *History {
	prompt := strings.TrimSpace(systemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return &History{
		messages:     []Message{{Role: "system", Content: prompt}},
		shellCtxIdx:  -1,
		systemPrompt: prompt,
	}
}

// NewHistoryFromMessages rebuilds a history from persisted records. The
// stored order is authoritative.
func NewHistoryFromMessages(messages []Message) *History {
	h := &History{shellCtxIdx: -1}
	h.messages = append(h.messages, messages...)
	if len(h.messages) == 0 {
		return NewHistory("")
	}
	return h
}

func (h *History) AddUser(content string)      { h.append(Message{Role: "user", Content: content}) }
func (h *History) AddAssistant(content string) { h.append(Message{Role: "assistant", Content: content}) }

func (h *History) AddAssistantToolCalls(content string, calls []ToolCall) {
	h.append(Message{Role: "assistant", Content: content, ToolCalls: calls})
}

func (h *History) AddToolResult(callID, content string) {
	h.append(Message{Role: "tool", ToolCallID: callID, Content: content})
}

// SetShellContext installs or replaces the scrollback context message. The
// message sits right after the system prompt so later turns keep it fresh
// without growing the history.
func (h *History) SetShellContext(context string) {
	context = strings.TrimSpace(context)
	if context == "" {
		return
	}
	content := "Recent terminal activity (for context):\n\n" + context
	if h.shellCtxIdx >= 0 && h.shellCtxIdx < len(h.messages) {
		h.messages[h.shellCtxIdx].Content = content
		return
	}
	msg := Message{Role: "system", Content: content}
	if len(h.messages) == 0 {
		h.messages = append(h.messages, msg)
		h.shellCtxIdx = 0
		return
	}
	h.messages = append(h.messages[:1], append([]Message{msg}, h.messages[1:]...)...)
	h.shellCtxIdx = 1
}

func (h *History) Messages() []Message { return h.messages }

func (h *History) Len() int { return len(h.messages) }

// Rewind truncates the history back to n messages, used to roll back a
// pending user message after a transport failure.
func (h *History) Rewind(n int) {
	if n < 0 || n > len(h.messages) {
		return
	}
	if h.shellCtxIdx >= n {
		h.shellCtxIdx = -1
	}
	h.messages = h.messages[:n]
}

func (h *History) append(msg Message) {
	h.messages = append(h.messages, msg)
}
