package main

import (
	"flag"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"transcript-parser/internal/chunker"
	"transcript-parser/internal/config"
	"transcript-parser/internal/domain"
	"transcript-parser/internal/embedding/gemini"
	"transcript-parser/internal/embedding/openai"
	"transcript-parser/internal/extractor"
	"transcript-parser/internal/llm"
	"transcript-parser/internal/output"
	"transcript-parser/internal/retriever"
	"transcript-parser/internal/session"
	"transcript-parser/internal/tui"
	"transcript-parser/internal/vectorstore/disk"
	"transcript-parser/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/transcript-parser/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Assemble components
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "gemini", "":
		client, err := gemini.NewClient(gemini.Config{
			APIKeyEnv: cfg.Embedder.APIKeyEnv,
			Model:     cfg.Embedder.Model,
			Timeout:   time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("gemini embedder init failed: %v", err)
		}
		emb = client
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var store domain.VectorStore
	var index retriever.Index
	switch cfg.VectorStore.Type {
	case "disk", "":
		ds := disk.New(cfg.VectorStore.Path)
		store, index = ds, ds
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			log.Fatalf("qdrant config missing")
		}
		qs := qdrant.New(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
		store, index = qs, qs
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	model, err := llm.NewGeminiClient(llm.Config{
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("gemini chat client init failed: %v", err)
	}

	svc := session.NewService(session.Deps{
		Chunker:         chunker.NewCharacterChunker(cfg.Chunker.Size, cfg.Chunker.Overlap),
		Embedder:        emb,
		Store:           store,
		Retriever:       retriever.New(emb, index, cfg.Retrieval.TopK),
		Extractor:       extractor.New(model, cfg.Extraction.MaxAttempts),
		Model:           model,
		Writer:          output.NewWriter(cfg.Output.JSONPath, cfg.Output.PDFPath),
		HistoryMaxTurns: cfg.Chat.HistoryMaxTurns,
	})

	m := tui.New(svc)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}
