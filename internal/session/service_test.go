package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-parser/internal/chunker"
	"transcript-parser/internal/domain"
	"transcript-parser/internal/output"
	"transcript-parser/internal/retriever"
	"transcript-parser/internal/vectorstore/disk"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 3 }
func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return []float64{float64(len(text) % 7), float64(len(text) % 5), 1}, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeExtractor struct {
	record domain.CaseRecord
	err    error
}

func (f *fakeExtractor) Extract(context.Context, domain.Transcript) (domain.CaseRecord, error) {
	return f.record, f.err
}

type fakeModel struct {
	answer string
	err    error
	calls  int
	turns  [][]domain.Turn
}

func (f *fakeModel) Generate(_ context.Context, turns []domain.Turn) (string, error) {
	f.calls++
	copied := make([]domain.Turn, len(turns))
	copy(copied, turns)
	f.turns = append(f.turns, copied)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type emptyRetriever struct{ invalidations int }

func (r *emptyRetriever) Retrieve(context.Context, string) ([]domain.SearchResult, error) {
	return nil, nil
}
func (r *emptyRetriever) Invalidate() { r.invalidations++ }

func testRecord() domain.CaseRecord {
	return domain.CaseRecord{
		CustomerName:        "Jane Doe",
		ContactInfo:         "a@b.com",
		OrderNumber:         domain.Sentinel,
		ProductName:         "X200 blender",
		DateOfPurchase:      "March 1",
		IssueDescription:    "Arrived broken",
		PreferredResolution: "refund",
	}
}

type harness struct {
	svc   *Service
	model *fakeModel
	emb   *fakeEmbedder
	store *disk.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	emb := &fakeEmbedder{}
	store := disk.New(filepath.Join(dir, "vectorstore"))
	model := &fakeModel{answer: "The blender arrived broken."}
	writer := output.NewWriter(
		filepath.Join(dir, "outputs", "json_format.json"),
		filepath.Join(dir, "outputs", "pdf_summary.pdf"),
	)
	svc := NewService(Deps{
		Chunker:   chunker.NewCharacterChunker(200, 20),
		Embedder:  emb,
		Store:     store,
		Retriever: retriever.New(emb, store, 3),
		Extractor: &fakeExtractor{record: testRecord()},
		Model:     model,
		Writer:    writer,
	})
	return &harness{svc: svc, model: model, emb: emb, store: store}
}

const sampleTranscript = "Agent: how can I help? Customer: I bought the X200 blender on March 1 and it arrived broken. I would like a refund. You can reach me at a@b.com."

func TestProcessTranscriptHappyPath(t *testing.T) {
	h := newHarness(t)
	sess, err := h.svc.ProcessTranscript(context.Background(), sampleTranscript, domain.SourcePasted)
	require.NoError(t, err)

	assert.True(t, sess.Processed)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "X200 blender", sess.Record.ProductName)
	assert.Equal(t, "Jane Doe", sess.Payload.Customer.Name)
	assert.Len(t, sess.History, 1)
	assert.Equal(t, domain.RoleSystem, sess.History[0].Role)

	for _, p := range []string{sess.JSONPath, sess.PDFPath} {
		_, err := os.Stat(p)
		assert.NoError(t, err, "artifact %s must exist", p)
	}
	assert.Greater(t, h.store.Len(), 0)
}

func TestProcessTranscriptEmptyInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ProcessTranscript(context.Background(), "  \n ", domain.SourcePasted)
	assert.ErrorIs(t, err, domain.ErrEmptyTranscript)
	assert.Nil(t, h.svc.Current())
}

func TestAskBeforeProcessing(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Ask(context.Background(), "what broke?")
	assert.ErrorIs(t, err, ErrNotProcessed)
}

func TestAskGrowsHistoryByTwoPerTurn(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ProcessTranscript(context.Background(), sampleTranscript, domain.SourcePasted)
	require.NoError(t, err)

	for n := 1; n <= 3; n++ {
		_, err := h.svc.Ask(context.Background(), fmt.Sprintf("question %d", n))
		require.NoError(t, err)
		assert.Len(t, h.svc.History(), 1+2*n)
	}

	history := h.svc.History()
	assert.Equal(t, domain.RoleUser, history[1].Role)
	assert.Equal(t, "question 1", history[1].Content)
	assert.Equal(t, domain.RoleAssistant, history[2].Role)
}

func TestAskSendsContextAndHistory(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ProcessTranscript(context.Background(), sampleTranscript, domain.SourcePasted)
	require.NoError(t, err)

	answer, err := h.svc.Ask(context.Background(), "what does the customer want?")
	require.NoError(t, err)
	assert.Equal(t, "The blender arrived broken.", answer)

	require.Equal(t, 1, h.model.calls)
	sent := h.model.turns[0]
	assert.Equal(t, domain.RoleSystem, sent[0].Role)
	last := sent[len(sent)-1]
	assert.Equal(t, domain.RoleUser, last.Role)
	assert.Contains(t, last.Content, "Transcript Context:")
	assert.Contains(t, last.Content, "what does the customer want?")
}

func TestAskFallbackWithoutModelCall(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ProcessTranscript(context.Background(), sampleTranscript, domain.SourcePasted)
	require.NoError(t, err)

	empty := &emptyRetriever{}
	h.svc.deps.Retriever = empty

	answer, err := h.svc.Ask(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer)
	assert.Equal(t, 0, h.model.calls)
	assert.Len(t, h.svc.History(), 1, "fallback must not grow history")
}

func TestNewTranscriptResetsChatState(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ProcessTranscript(context.Background(), sampleTranscript, domain.SourcePasted)
	require.NoError(t, err)
	first := h.svc.Current().ID

	_, err = h.svc.Ask(context.Background(), "a question")
	require.NoError(t, err)
	require.Len(t, h.svc.History(), 3)

	_, err = h.svc.ProcessTranscript(context.Background(), "A different customer lost order 42 for a toaster.", domain.SourceFile)
	require.NoError(t, err)
	assert.NotEqual(t, first, h.svc.Current().ID)
	assert.Len(t, h.svc.History(), 1, "history resets to the preamble")
}

func TestHistoryCapDropsOldestPairs(t *testing.T) {
	h := newHarness(t)
	h.svc.deps.HistoryMaxTurns = 2
	_, err := h.svc.ProcessTranscript(context.Background(), sampleTranscript, domain.SourcePasted)
	require.NoError(t, err)

	for n := 1; n <= 3; n++ {
		_, err := h.svc.Ask(context.Background(), fmt.Sprintf("question %d", n))
		require.NoError(t, err)
	}

	history := h.svc.History()
	require.Len(t, history, 5)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	assert.Equal(t, "question 2", history[1].Content)
	assert.Equal(t, "question 3", history[3].Content)
}

func TestEmbedFailureAbortsRun(t *testing.T) {
	h := newHarness(t)
	h.emb.err = errors.New("embedding provider unreachable")

	_, err := h.svc.ProcessTranscript(context.Background(), sampleTranscript, domain.SourcePasted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed chunks")
	assert.Nil(t, h.svc.Current())
	assert.Equal(t, 0, h.store.Len(), "no index may be built from a failed embed")
}

func TestExtractionFailureKeepsPriorSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ProcessTranscript(context.Background(), sampleTranscript, domain.SourcePasted)
	require.NoError(t, err)
	prior := h.svc.Current().ID

	h.svc.deps.Extractor = &fakeExtractor{err: errors.New("schema mismatch")}
	_, err = h.svc.ProcessTranscript(context.Background(), "another transcript about a toaster", domain.SourcePasted)
	require.Error(t, err)
	assert.Equal(t, prior, h.svc.Current().ID, "failed run must not replace the session")
}

func TestTranscriptTempFileIsCleanedUp(t *testing.T) {
	h := newHarness(t)
	sess, err := h.svc.ProcessTranscript(context.Background(), sampleTranscript, domain.SourcePasted)
	require.NoError(t, err)
	_, statErr := os.Stat(sess.Transcript.Path)
	assert.True(t, os.IsNotExist(statErr), "temp transcript file must be removed after the run")
}
