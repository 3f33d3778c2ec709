package domain

import (
	"context"
	"errors"
)

// Sentinel is the fixed placeholder the extractor uses for fields that are
// genuinely absent from the transcript.
const Sentinel = "Not provided in transcript"

// ErrEmptyTranscript reports a blank or whitespace-only transcript.
var ErrEmptyTranscript = errors.New("transcript is empty")

// TranscriptSource identifies how the transcript text entered the system.
type TranscriptSource string

const (
	SourceFile   TranscriptSource = "file"
	SourcePasted TranscriptSource = "pasted"
)

// Transcript is a single customer-support transcript being processed.
// It is ephemeral: Path points at the temporary file written for this run.
type Transcript struct {
	ID     string
	Source TranscriptSource
	Path   string
	Text   string
}

// Chunk is a bounded substring of a transcript, the unit of embedding and retrieval.
type Chunk struct {
	TranscriptID string
	ChunkID      string
	Text         string
	Index        int
	Start        int
}

// SearchResult is a retrieved chunk with its similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// CaseRecord is the structured result of field extraction. All seven fields
// are always populated, with Sentinel standing in for absent values.
type CaseRecord struct {
	CustomerName        string `json:"customer_name"`
	ContactInfo         string `json:"contact_info"`
	OrderNumber         string `json:"order_number"`
	ProductName         string `json:"product_name"`
	DateOfPurchase      string `json:"date_of_purchase"`
	IssueDescription    string `json:"issue_description"`
	PreferredResolution string `json:"preferred_resolution"`
}

// Fields returns the record's fields in their fixed display order.
func (r CaseRecord) Fields() []struct{ Key, Value string } {
	return []struct{ Key, Value string }{
		{"customer_name", r.CustomerName},
		{"contact_info", r.ContactInfo},
		{"order_number", r.OrderNumber},
		{"product_name", r.ProductName},
		{"date_of_purchase", r.DateOfPurchase},
		{"issue_description", r.IssueDescription},
		{"preferred_resolution", r.PreferredResolution},
	}
}

// Role marks who produced a chat turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session's chat history.
type Turn struct {
	Role    Role
	Content string
}

// Chunker splits a transcript into chunks suitable for embedding.
type Chunker interface {
	Chunk(t Transcript) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector using a remote provider.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorStore persists chunk vectors and supports similarity search.
// Replace rebuilds the index wholesale; there is no incremental update.
type VectorStore interface {
	Replace(chunks []Chunk, vectors [][]float64) error
	Search(vector []float64, topK int) ([]SearchResult, error)
}

// ChatModel generates one completion for an ordered list of turns.
type ChatModel interface {
	Generate(ctx context.Context, turns []Turn) (string, error)
}
