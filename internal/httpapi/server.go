package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmserverd/internal/worker"
	"llmserverd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Chat(ctx context.Context, req types.ChatCompletionRequest) (*worker.Stream, error)
	Transcribe(ctx context.Context, model string, audio []byte) (*worker.Stream, error)
	Models() types.ModelList
	Status() types.StatusResponse
	Ready() bool
}

// CORS configuration (opt-in). If no origins are set, no CORS middleware is
// added.
var corsAllowedOrigins []string

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(origins []string) {
	corsAllowedOrigins = append([]string(nil), origins...)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if len(corsAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Head("/health", handleHealth)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(svc.Models()); err != nil {
				writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			}
		})
		r.Post("/chat/completions", handleChatCompletions(svc))
		r.Post("/audio/transcriptions", handleTranscriptions(svc))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// handleHealth is the liveness probe.
//
// @Summary  Liveness probe
// @Success  200 {string} string ""
// @Router   /health [head]
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleChatCompletions streams a chat completion from the routed model.
//
// @Summary  Chat completion
// @Accept   json
// @Produce  json
// @Param    request body types.ChatCompletionRequest true "conversation"
// @Success  200 {object} types.ChatCompletionResponse
// @Failure  404 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Router   /v1/chat/completions [post]
func handleChatCompletions(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Model) == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}
		if len(req.Messages) == 0 {
			writeJSONError(w, http.StatusBadRequest, "messages must not be empty")
			return
		}

		start := time.Now()
		rid := middleware.GetReqID(r.Context())
		zlog.Info().Str("path", r.URL.Path).Str("model", req.Model).Str("request_id", rid).Msg("chat start")

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		st, err := svc.Chat(ctx, req)
		if err != nil {
			status := statusForError(err)
			writeJSONError(w, status, err.Error())
			zlog.Info().Int("status", status).Dur("dur", time.Since(start)).Str("request_id", rid).Err(err).Msg("chat end")
			return
		}
		if req.Stream {
			streamCompletion(ctx, w, req.Model, st)
		} else {
			bufferCompletion(ctx, w, req.Model, st)
		}
		zlog.Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).Str("request_id", rid).Msg("chat end")
	}
}

// streamCompletion relays the live token stream as SSE chunks. A mid-stream
// engine failure is surfaced as a final chunk with finish_reason "error"
// rather than a silent early close. ctx joins the request context, the
// server base context, and the inference deadline; when it fires the stream
// is abandoned the same way.
func streamCompletion(ctx context.Context, w http.ResponseWriter, model string, st *worker.Stream) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	writeChunk := func(delta *types.ChatDelta, finish *string) bool {
		chunk := types.ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []types.ChatChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
		b, err := json.Marshal(chunk)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return false
		}
		if flush != nil {
			flush()
		}
		return true
	}

	if !writeChunk(&types.ChatDelta{Role: "assistant"}, nil) {
		st.Cancel()
		return
	}
	for {
		select {
		case tok, ok := <-st.Tokens():
			if !ok {
				finish := "stop"
				if st.Err() != nil {
					finish = "error"
				}
				writeChunk(&types.ChatDelta{}, &finish)
				fmt.Fprint(w, "data: [DONE]\n\n")
				if flush != nil {
					flush()
				}
				return
			}
			if !writeChunk(&types.ChatDelta{Content: tok}, nil) {
				st.Cancel()
				return
			}
		case <-ctx.Done():
			st.Cancel()
			finish := "error"
			writeChunk(&types.ChatDelta{}, &finish)
			fmt.Fprint(w, "data: [DONE]\n\n")
			if flush != nil {
				flush()
			}
			return
		}
	}
}

// bufferCompletion drains the stream and returns one completion body. A
// fired inference deadline maps to 504; a gone client just abandons the
// stream.
func bufferCompletion(ctx context.Context, w http.ResponseWriter, model string, st *worker.Stream) {
	var b strings.Builder
	for {
		select {
		case tok, ok := <-st.Tokens():
			if !ok {
				if err := st.Err(); err != nil {
					writeJSONError(w, statusForError(err), err.Error())
					return
				}
				finish := "stop"
				resp := types.ChatCompletionResponse{
					ID:      "chatcmpl-" + uuid.NewString(),
					Object:  "chat.completion",
					Created: time.Now().Unix(),
					Model:   model,
					Choices: []types.ChatChoice{{
						Index:        0,
						Message:      &types.ChatDelta{Role: "assistant", Content: b.String()},
						FinishReason: &finish,
					}},
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(resp)
				return
			}
			b.WriteString(tok)
		case <-ctx.Done():
			st.Cancel()
			if err := ctx.Err(); errors.Is(err, context.DeadlineExceeded) {
				writeJSONError(w, statusForError(err), "inference timed out")
			}
			return
		}
	}
}

// handleTranscriptions accepts a multipart audio upload and returns the
// transcribed text once the routed model finishes.
//
// @Summary  Audio transcription
// @Accept   mpfd
// @Produce  json
// @Success  200 {object} types.TranscriptionResponse
// @Failure  404 {object} types.ErrorResponse
// @Router   /v1/audio/transcriptions [post]
func handleTranscriptions(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		model := r.FormValue("model")
		if strings.TrimSpace(model) == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()
		audio, err := io.ReadAll(file)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "failed to read file")
			return
		}

		start := time.Now()
		rid := middleware.GetReqID(r.Context())
		zlog.Info().Str("path", r.URL.Path).Str("model", model).Str("request_id", rid).Msg("transcribe start")

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		st, err := svc.Transcribe(ctx, model, audio)
		if err != nil {
			status := statusForError(err)
			writeJSONError(w, status, err.Error())
			zlog.Info().Int("status", status).Dur("dur", time.Since(start)).Str("request_id", rid).Err(err).Msg("transcribe end")
			return
		}

		var b strings.Builder
	drain:
		for {
			select {
			case seg, ok := <-st.Tokens():
				if !ok {
					break drain
				}
				b.WriteString(seg)
			case <-ctx.Done():
				st.Cancel()
				return
			}
		}
		if err := st.Err(); err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.TranscriptionResponse{Text: b.String()})
		zlog.Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).Str("request_id", rid).Msg("transcribe end")
	}
}
