// Package modeladapter defines the model capability a conversation talks to.
//
// It contains:
//   - [Completer] interface and embeddable [ModelAdapter] base struct with HTTP helpers, auth, and custom headers
//   - [Reply], the classified form of a completion: [TextAnswer], [ToolCallsRequested] or [ReplyError]
//   - typed failures ([TransportError], [TimeoutError], [RateLimitError], [MalformedOutputError]) and [IsRetryable]
//   - [RetryCompleter], a bounded retry wrapper with exponential backoff
//   - [github.com/jplck/mf-samples-with-speckit/pkg/modeladapter/usage]: thread-safe token usage tracker
//
// This package contains no provider-specific code. Concrete adapters live in
// separate packages that import modeladapter.
package modeladapter
