package driftline

import "context"

// Backend generates persona text from a structured instruction.
// Built-in: OllamaBackend and GeminiBackend (hosted), AnthropicBackend (remote).
type Backend interface {
	Name() string
	Generate(ctx context.Context, instruction string) (string, error)
}

// StreamingBackend is a Backend that can push partial text as it is produced.
// The returned string is the full assembled text.
type StreamingBackend interface {
	Backend
	GenerateStream(ctx context.Context, instruction string, onToken func(string)) (string, error)
}

// TurnRecorder persists completed turns. Built-in: Store (synchronous), AsyncRecorder.
type TurnRecorder interface {
	RecordTurn(rec TurnRecord) error
}
