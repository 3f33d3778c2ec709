package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"transcript-parser/internal/domain"
	"transcript-parser/internal/output"
)

// FallbackAnswer is returned when retrieval finds nothing relevant,
// short-circuiting the model call.
const FallbackAnswer = "Sorry, I couldn't find anything relevant in the transcript."

const questionTemplate = "Based on the following transcript context, please answer the question:\n\nTranscript Context:\n%s\n\nQuestion: %s"

// ErrNotProcessed reports a question asked before any transcript was processed.
var ErrNotProcessed = errors.New("no transcript has been processed yet")

// FieldExtractor turns a transcript into a structured case record.
type FieldExtractor interface {
	Extract(ctx context.Context, t domain.Transcript) (domain.CaseRecord, error)
}

// ChunkRetriever answers similarity queries against the persisted index.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error)
	Invalidate()
}

// ArtifactWriter renders the case record into the output artifacts.
type ArtifactWriter interface {
	GenerateJSON(record domain.CaseRecord) (output.Payload, error)
	GeneratePDF(record domain.CaseRecord) error
	JSONPath() string
	PDFPath() string
}

// Deps are the collaborators the service orchestrates.
type Deps struct {
	Chunker   domain.Chunker
	Embedder  domain.Embedder
	Store     domain.VectorStore
	Retriever ChunkRetriever
	Extractor FieldExtractor
	Model     domain.ChatModel
	Writer    ArtifactWriter
	// HistoryMaxTurns caps kept question/answer pairs; zero means unbounded.
	HistoryMaxTurns int
}

// Service drives the transcript pipeline and the follow-up chat.
// Pipeline stages run strictly sequentially; a failed stage aborts the run
// and leaves the previous session state untouched.
type Service struct {
	deps Deps

	mu      sync.Mutex
	session *Session
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps}
}

// ProcessTranscript runs the happy path: persist the text to a temporary
// file, chunk it, rebuild the embedding index wholesale, extract the case
// fields and write both output artifacts. Only then is the session replaced
// and chat enabled.
func (s *Service) ProcessTranscript(ctx context.Context, text string, source domain.TranscriptSource) (*Session, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyTranscript
	}

	tmp, err := os.CreateTemp("", "transcript-*.txt")
	if err != nil {
		return nil, fmt.Errorf("persist transcript: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("persist transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("persist transcript: %w", err)
	}

	transcript := domain.Transcript{
		ID:     shortID(),
		Source: source,
		Path:   path,
		Text:   text,
	}

	chunks, err := s.deps.Chunker.Chunk(transcript)
	if err != nil {
		return nil, fmt.Errorf("split transcript: %w", err)
	}
	if len(chunks) == 0 {
		return nil, domain.ErrEmptyTranscript
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if err := s.deps.Store.Replace(chunks, vectors); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	record, err := s.deps.Extractor.Extract(ctx, transcript)
	if err != nil {
		return nil, err
	}

	payload, err := s.deps.Writer.GenerateJSON(record)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Writer.GeneratePDF(record); err != nil {
		return nil, err
	}

	sess := newSession(transcript)
	sess.Record = record
	sess.Payload = payload
	sess.JSONPath = s.deps.Writer.JSONPath()
	sess.PDFPath = s.deps.Writer.PDFPath()
	sess.Processed = true

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	s.deps.Retriever.Invalidate()

	return sess, nil
}

// Ask answers a follow-up question from retrieved context and the running
// chat history. When retrieval finds nothing, the fixed fallback answer is
// returned without a model call and history is left untouched.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil || !sess.Processed {
		return "", ErrNotProcessed
	}

	results, err := s.deps.Retriever.Retrieve(ctx, question)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	if len(results) == 0 {
		return FallbackAnswer, nil
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Text
	}
	contextBlock := strings.TrimSpace(strings.Join(parts, "\n\n"))

	s.mu.Lock()
	turns := make([]domain.Turn, len(sess.History), len(sess.History)+1)
	copy(turns, sess.History)
	s.mu.Unlock()
	turns = append(turns, domain.Turn{
		Role:    domain.RoleUser,
		Content: fmt.Sprintf(questionTemplate, contextBlock, question),
	})

	answer, err := s.deps.Model.Generate(ctx, turns)
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}

	s.mu.Lock()
	sess.History = append(sess.History,
		domain.Turn{Role: domain.RoleUser, Content: question},
		domain.Turn{Role: domain.RoleAssistant, Content: answer},
	)
	s.trimHistoryLocked(sess)
	s.mu.Unlock()

	return answer, nil
}

// Current returns the active session, or nil before the first transcript.
func (s *Service) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// History returns a copy of the active session's chat history.
func (s *Service) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	out := make([]domain.Turn, len(s.session.History))
	copy(out, s.session.History)
	return out
}

// trimHistoryLocked drops the oldest question/answer pairs beyond the
// configured cap, always keeping the system preamble.
func (s *Service) trimHistoryLocked(sess *Session) {
	max := s.deps.HistoryMaxTurns
	if max <= 0 {
		return
	}
	pairs := (len(sess.History) - 1) / 2
	if pairs <= max {
		return
	}
	drop := (pairs - max) * 2
	kept := append([]domain.Turn{sess.History[0]}, sess.History[1+drop:]...)
	sess.History = kept
}
