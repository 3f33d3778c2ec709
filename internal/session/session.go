package session

import (
	"github.com/google/uuid"

	"transcript-parser/internal/domain"
	"transcript-parser/internal/output"
)

const systemPreamble = "You are a helpful assistant analyzing customer support transcripts. Use the provided transcript context to answer questions accurately and concisely."

// Session is the explicit per-user state carried across interactions:
// the current transcript, the chat history and the cached output artifacts.
// A new transcript supersedes the previous session entirely.
type Session struct {
	ID         string
	Transcript domain.Transcript
	History    []domain.Turn
	Record     domain.CaseRecord
	Payload    output.Payload
	JSONPath   string
	PDFPath    string
	Processed  bool
}

// shortID is a compact identifier for transcripts and their chunks.
func shortID() string {
	return uuid.NewString()[:8]
}

func newSession(t domain.Transcript) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Transcript: t,
		History:    []domain.Turn{{Role: domain.RoleSystem, Content: systemPreamble}},
	}
}
