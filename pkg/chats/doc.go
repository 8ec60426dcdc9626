// Package chats provides a provider-agnostic data model for LLM conversations.
//
// It is organized into sub-packages:
//   - [github.com/jplck/mf-samples-with-speckit/pkg/chats/role]: conversation roles (system, user, assistant, tool)
//   - [github.com/jplck/mf-samples-with-speckit/pkg/chats/content]: content parts (text, tool call, tool result)
//   - [github.com/jplck/mf-samples-with-speckit/pkg/chats/message]: messages composed of a role, sender, and content parts
//   - [github.com/jplck/mf-samples-with-speckit/pkg/chats/chat]: append-only transcript container
//
// No provider or API code is included; chats is the foundation layer the
// model adapters and the conversation loop build on.
package chats
