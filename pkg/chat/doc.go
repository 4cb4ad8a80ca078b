// Package chat implements the streaming tool-calling orchestrator at the
// heart of the parlo voice-assistant backend.
//
// # Core Types
//
// Message is the unit of conversation state: a role (system, user,
// assistant, tool, developer), optional text content, and for assistant
// messages the tool calls the model requested.
//
// The package is organized around three collaborator interfaces:
//
//   - Completer: a chat-completion model returning either one buffered
//     assistant message or a Stream of incremental Chunks.
//   - ToolServer: the external tool-serving component (list + call).
//   - the session store lives in package session; package chat only sees
//     plain message slices.
//
// Loop drives the multi-round exchange between the two until the model
// answers without tool calls or the round cap is reached. Catalog filters
// the tool list offered to the model, ConversationBuilder assembles the
// message sequence for a turn, and Invoker executes a single tool call
// with confirmation gating.
//
// # Streams
//
// Stream and EventStream follow the same contract:
//
//	Next() (*T, error)
//	Close() error
//	CloseWithError(error) error
//
// Next returns a terminal *State error (status done, blocked, truncated,
// or error) when the producer finishes; consumers stop on the first
// non-nil error. Closing a stream cancels the producer goroutine behind
// it.
package chat
