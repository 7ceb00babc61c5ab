// Package message defines the wire-adjacent shapes shared by every
// coordinator component: the inbound hypothesis, the finalized sentence,
// and the outbound tagged-union message delivered to the UI transport.
package message

// Hypothesis is one STT emission, interim or final.
type Hypothesis struct {
	Text      string
	IsFinal   bool
	Language  string // optional detected source language; empty if unknown
	ArrivedAt int64  // unix ms, monotonic per session
}

// Sentence is one finalized, immutable utterance awaiting translation.
type Sentence struct {
	Sequence   uint64
	SourceText string
	SourceLang string
	EnqueuedAt int64 // unix ms
}

// Kind distinguishes an interim update from a confirmed final.
type Kind string

const (
	KindInterim Kind = "interim"
	KindFinal   Kind = "final"
)

// TextBlock is one side (original or translation) of an outbound message.
type TextBlock struct {
	FullText string `json:"full_text"`
	Delta    string `json:"delta"`
	Language string `json:"language"`
}

// Outbound is the tagged-union message delivered to the UI transport. The
// sink sends each one as a bare JSON object; no receive_translation RPC
// method envelope wraps it.
type Outbound struct {
	Type        Kind       `json:"type"`
	Original    TextBlock  `json:"original"`
	Translation *TextBlock `json:"translation"`
	Timestamp   int64      `json:"timestamp"`
}
