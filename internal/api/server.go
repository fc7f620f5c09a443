package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dataforge-ai/dataforge/internal/dataset"
	"github.com/dataforge-ai/dataforge/internal/events"
	"github.com/dataforge-ai/dataforge/internal/store"
	"github.com/dataforge-ai/dataforge/internal/tokenizer"
)

// Server is the thin HTTP surface over the store and generator: the
// "caller" collaborator that turns the shard stream into files on disk.
type Server struct {
	router    *chi.Mux
	port      int
	store     store.Store
	publisher *events.Publisher
	outputDir string
	logger    *slog.Logger
	jobs      *jobRegistry
}

func NewServer(port int, st store.Store, publisher *events.Publisher, outputDir string, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		store:     st,
		publisher: publisher,
		outputDir: outputDir,
		logger:    logger,
		jobs:      newJobRegistry(),
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/threads", s.listThreads)
	router.Get("/api/v1/identities", s.listIdentities)
	router.Post("/api/v1/dataset/generate", s.startGeneration)
	router.Get("/api/v1/dataset/jobs/{id}", s.getJob)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context(), r.URL.Query().Get("platform"))
	if err != nil {
		s.logger.Error("list threads failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list threads failed"})
		return
	}

	type threadJSON struct {
		ID             string   `json:"id"`
		Platform       string   `json:"platform"`
		Title          string   `json:"title"`
		Participants   []string `json:"participants"`
		IsGroup        bool     `json:"isGroup"`
		LastActivityMs int64    `json:"lastActivityMs"`
		Snippet        string   `json:"snippet"`
	}
	out := make([]threadJSON, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadJSON{
			ID:             t.ID,
			Platform:       t.Platform,
			Title:          t.Title,
			Participants:   t.Participants,
			IsGroup:        t.IsGroup,
			LastActivityMs: t.LastActivityMs,
			Snippet:        t.Snippet,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listIdentities(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.OwnerNames(r.Context())
	if err != nil {
		s.logger.Error("list identities failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list identities failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"names": names})
}

// generateRequest is the POST body for starting a run.
type generateRequest struct {
	ThreadIDs     []string        `json:"threadIds"`
	IdentityNames []string        `json:"identityNames"`
	Options       dataset.Options `json:"options"`
}

func (s *Server) startGeneration(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.ThreadIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "threadIds is required"})
		return
	}

	job := s.jobs.create()
	go s.runGeneration(job.ID, req)

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID.String()})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return
	}
	job, ok := s.jobs.get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// runGeneration executes one job in the background, writing each shard to
// the job's output directory as it is emitted.
func (s *Server) runGeneration(jobID uuid.UUID, req generateRequest) {
	// One tokenizer per run: the encoder is not shared across goroutines.
	counter, err := tokenizer.New()
	if err != nil {
		s.logger.Error("tokenizer init failed", "job_id", jobID, "error", err)
		s.jobs.finish(jobID, fmt.Sprintf("tokenizer init: %v", err))
		return
	}

	dir := filepath.Join(s.outputDir, jobID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error("create output dir failed", "job_id", jobID, "error", err)
		s.jobs.finish(jobID, fmt.Sprintf("create output dir: %v", err))
		return
	}

	gen := dataset.NewGenerator(s.store, dataset.NewBPECounter(counter), s.logger)

	shards := 0
	totalTokens := 0
	genErr := gen.Generate(context.Background(), dataset.Request{
		ThreadIDs:     req.ThreadIDs,
		IdentityNames: req.IdentityNames,
		Options:       req.Options,
	}, func(shard dataset.Shard) error {
		path := filepath.Join(dir, shard.FileName)
		if err := os.WriteFile(path, []byte(shard.Content), 0o644); err != nil {
			return fmt.Errorf("write shard %s: %w", shard.FileName, err)
		}
		shards++
		totalTokens += shard.TokenCount
		s.jobs.addShard(jobID, ShardInfo{FileName: shard.FileName, TokenCount: shard.TokenCount})
		s.publisher.Publish(events.SubjectShard, events.ShardEvent{
			JobID:      jobID.String(),
			FileName:   shard.FileName,
			TokenCount: shard.TokenCount,
		})
		return nil
	}, func(p dataset.Progress) {
		s.jobs.setProgress(jobID, p)
		s.publisher.Publish(events.SubjectProgress, events.ProgressEvent{
			JobID:    jobID.String(),
			Index:    p.Index,
			Total:    p.Total,
			ThreadID: p.ThreadID,
		})
	})

	errMsg := ""
	if genErr != nil {
		errMsg = genErr.Error()
		s.logger.Error("generation failed", "job_id", jobID, "error", genErr)
	} else {
		s.logger.Info("generation completed", "job_id", jobID, "shards", shards, "tokens", totalTokens)
	}
	s.jobs.finish(jobID, errMsg)
	s.publisher.Publish(events.SubjectCompleted, events.CompletedEvent{
		JobID:       jobID.String(),
		Shards:      shards,
		TotalTokens: totalTokens,
		Error:       errMsg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
