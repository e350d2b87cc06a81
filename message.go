package toolloop

import (
	"encoding/json"
	"strings"
)

// Role is the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the variants of ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockDocument   BlockType = "document"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
)

// SourceType tells how the bytes of an image or document are carried.
type SourceType string

const (
	SourceBase64 SourceType = "base64"
	SourceURL    SourceType = "url"
)

// Source locates the payload of an image or document block.
type Source struct {
	Type      SourceType `json:"type"`
	MediaType string     `json:"media_type,omitempty"`
	Data      string     `json:"data,omitempty"`
	URL       string     `json:"url,omitempty"`
}

// ContentBlock is one piece of message content. Type selects which fields are meaningful:
//
//   - BlockText: Text
//   - BlockImage: Source
//   - BlockDocument: Source, MediaType
//   - BlockToolUse: ID, Name, Arguments
//   - BlockToolResult: ToolUseID, Content, IsError
//   - BlockThinking: Text, Signature
//
// Arguments holds the raw JSON exactly as the model produced it; it is never decoded here.
type ContentBlock struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Source    *Source         `json:"source,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   []ContentBlock  `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ImageBlock returns an image content block.
func ImageBlock(src Source) ContentBlock {
	return ContentBlock{Type: BlockImage, Source: &src}
}

// DocumentBlock returns a document content block.
func DocumentBlock(src Source, mediaType string) ContentBlock {
	return ContentBlock{Type: BlockDocument, Source: &src, MediaType: mediaType}
}

// ToolUseBlock returns a block recording the model's request to call a tool.
func ToolUseBlock(id, name string, arguments json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Arguments: arguments}
}

// ToolResultBlock returns a block answering the tool call with the given id.
func ToolResultBlock(toolUseID string, isError bool, content ...ContentBlock) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// ThinkingBlock returns a reasoning block as emitted by models with extended thinking.
func ThinkingBlock(text, signature string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Text: text, Signature: signature}
}

// CacheControl marks a message as a prompt-cache breakpoint for providers that support it.
type CacheControl struct {
	Type string `json:"type"`
}

// Message is one turn of a conversation. Messages are treated as values: the loop appends new
// ones and never edits those it was given.
type Message struct {
	Role         Role           `json:"role"`
	Content      []ContentBlock `json:"content"`
	CacheControl *CacheControl  `json:"cache_control,omitempty"`
}

// NewMessage builds a message from the given blocks.
func NewMessage(role Role, content ...ContentBlock) Message {
	return Message{Role: role, Content: content}
}

func SystemMessage(text string) Message    { return NewMessage(RoleSystem, TextBlock(text)) }
func UserMessage(text string) Message      { return NewMessage(RoleUser, TextBlock(text)) }
func AssistantMessage(text string) Message { return NewMessage(RoleAssistant, TextBlock(text)) }

// Text concatenates all text blocks of the message, separated by newlines.
func (m Message) Text() string {
	return joinText(m.Content)
}

// ToolCalls extracts the tool-use blocks of the message in order.
func (m Message) ToolCalls() []ToolCall {
	return toolCallsFrom(m.Content)
}

// Usage reports token consumption for one model round-trip.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// CompletionResponse is the canonical result of one model round-trip.
type CompletionResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Text concatenates the text blocks of the response.
func (r *CompletionResponse) Text() string {
	return joinText(r.Content)
}

// ToolCalls extracts the tool-use blocks of the response in the order the model emitted them.
func (r *CompletionResponse) ToolCalls() []ToolCall {
	return toolCallsFrom(r.Content)
}

// HasToolCalls reports whether the response requests at least one tool.
func (r *CompletionResponse) HasToolCalls() bool {
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}

// Message renders the response as an assistant message for the conversation history.
func (r *CompletionResponse) Message() Message {
	return Message{Role: RoleAssistant, Content: append([]ContentBlock(nil), r.Content...)}
}

func joinText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func toolCallsFrom(blocks []ContentBlock) []ToolCall {
	var calls []ToolCall
	for _, b := range blocks {
		if b.Type != BlockToolUse {
			continue
		}
		calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, Arguments: b.Arguments})
	}
	return calls
}
