package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicebot/internal/config"
	"github.com/antoniostano/voicebot/internal/conversation"
	"github.com/antoniostano/voicebot/internal/faults"
	"github.com/antoniostano/voicebot/internal/intent"
	"github.com/antoniostano/voicebot/internal/interactions"
	"github.com/antoniostano/voicebot/internal/lang"
	"github.com/antoniostano/voicebot/internal/memory"
	"github.com/antoniostano/voicebot/internal/observability"
	"github.com/antoniostano/voicebot/internal/protocol"
	"github.com/antoniostano/voicebot/internal/sentiment"
)

const (
	maxJSONBody  = 1 << 20
	maxAudioBody = 16 << 20
)

// Orchestrator is the conversation surface the API exposes.
type Orchestrator interface {
	HandleText(ctx context.Context, in conversation.TextTurn) (conversation.Result, error)
	HandleVoice(ctx context.Context, in conversation.VoiceTurn) (conversation.Result, error)
	Transcribe(ctx context.Context, data []byte, hint, customerID string) (conversation.Transcription, error)
	Speak(ctx context.Context, text, hint, customerID string, preferOnline *bool) (conversation.Speech, error)
	AnalyzeSentiment(ctx context.Context, text, customerID string) (sentiment.Scores, error)
	History(ctx context.Context, customerID string, limit int) []interactions.Record
	Conversation(ctx context.Context, userID string, limit int) (memory.Conversation, bool, error)
	ClearConversation(ctx context.Context, userID string) error
	Stats(ctx context.Context) (memory.Stats, error)
	Languages() []lang.Info
	DefaultLanguage() lang.Tag
	Offers() []intent.Offer
	Vehicles(category, fuel string) []intent.Vehicle
	Providers() (transcribers, synthesizers []string)
	AudioFile(filename string) (string, error)
	Ping(ctx context.Context) error
}

type Server struct {
	cfg     config.Config
	bot     Orchestrator
	metrics *observability.Metrics
}

func New(cfg config.Config, bot Orchestrator, metrics *observability.Metrics) *Server {
	return &Server{cfg: cfg, bot: bot, metrics: metrics}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handlePerfLatencyReset)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/voice", s.handleVoice)
		r.Post("/speech-to-text", s.handleTranscribe)
		r.Post("/text-to-speech", s.handleSpeak)
		r.Post("/sentiment", s.handleSentiment)
		r.Get("/history/{customerID}", s.handleHistory)
		r.Get("/conversations/{userID}", s.handleGetConversation)
		r.Delete("/conversations/{userID}", s.handleClearConversation)
		r.Get("/stats", s.handleStats)
		r.Get("/languages", s.handleLanguages)
		r.Get("/offers", s.handleOffers)
		r.Get("/models", s.handleModels)
		r.Get("/audio/{filename}", s.handleAudioFile)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stt, tts := s.bot.Providers()
	respondJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:       "ok",
		Time:         time.Now().UTC(),
		Store:        s.cfg.InteractionStore,
		Memory:       s.cfg.MemoryBackend,
		Transcribers: stt,
		Synthesizers: tts,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"interaction_store": "ok"}
	if err := s.bot.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		checks["interaction_store"] = err.Error()
	}
	stt, tts := s.bot.Providers()
	if len(stt) == 0 || len(tts) == 0 {
		checks["voice"] = "disabled"
	} else {
		checks["voice"] = "ok"
	}
	respondJSON(w, code, protocol.HealthResponse{
		Status:       status,
		Time:         time.Now().UTC(),
		Store:        s.cfg.InteractionStore,
		Memory:       s.cfg.MemoryBackend,
		Transcribers: stt,
		Synthesizers: tts,
		Checks:       checks,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, maxJSONBody)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req, err := protocol.ParseChatRequest(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.bot.HandleText(r.Context(), conversation.TextTurn{
		UserID:       req.UserID,
		CustomerID:   req.CustomerID,
		Message:      req.Message,
		LanguageHint: req.Language,
	})
	if err != nil {
		respondFault(w, r, err)
		return
	}
	scores := res.Sentiment
	respondJSON(w, http.StatusOK, protocol.ChatResponse{
		Response:    res.Text,
		Language:    res.Language.String(),
		Intent:      res.Intent,
		Confidence:  res.Confidence,
		Suggestions: res.Suggestions,
		Sentiment:   &scores,
		TurnID:      res.TurnID,
	})
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	in, err := readAudio(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.bot.HandleVoice(r.Context(), conversation.VoiceTurn{
		UserID:       in.UserID,
		CustomerID:   in.CustomerID,
		Audio:        in.Audio,
		LanguageHint: in.Language,
		PreferOnline: in.PreferOnline,
	})
	if err != nil {
		respondFault(w, r, err)
		return
	}

	suggestions := res.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	out := protocol.VoiceResponse{
		TurnID: res.TurnID,
		Input: protocol.VoiceInput{
			Text:       res.Transcript,
			Language:   res.TranscriptLanguage.String(),
			Confidence: res.TranscriptConfidence,
			Sentiment:  res.Sentiment,
		},
		Response: protocol.VoiceOutput{
			Text:          res.Text,
			Language:      res.Language.String(),
			Intent:        res.Intent,
			Suggestions:   suggestions,
			AudioFilename: res.AudioFilename,
		},
	}
	if len(res.Audio) > 0 {
		out.Response.AudioBase64 = encodeBase64(res.Audio)
		out.Response.AudioFormat = string(res.AudioFormat)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	in, err := readAudio(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := s.bot.Transcribe(r.Context(), in.Audio, in.Language, in.CustomerID)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.TranscribeResponse{
		Text:       res.Text,
		Language:   res.Language.String(),
		Confidence: res.Confidence,
		Provider:   res.Provider,
		Sentiment:  res.Sentiment,
	})
}

// handleSpeak answers with the audio bytes; metadata travels in headers.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, maxJSONBody)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req, err := protocol.ParseSpeakRequest(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	speech, err := s.bot.Speak(r.Context(), req.Text, req.Language, req.CustomerID, req.PreferOnline)
	if err != nil {
		respondFault(w, r, err)
		return
	}

	filename := speech.Filename
	if filename == "" {
		filename = "speech" + speech.Format.Extension()
	}
	h := w.Header()
	h.Set("Content-Type", speech.Format.ContentType())
	h.Set("Content-Length", strconv.Itoa(len(speech.Audio)))
	h.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	h.Set("X-Audio-Language", speech.Language.String())
	h.Set("X-Audio-Filename", filename)
	h.Set("X-Audio-Provider", speech.Provider)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(speech.Audio)
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, maxJSONBody)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req, err := protocol.ParseSentimentRequest(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	scores, err := s.bot.AnalyzeSentiment(r.Context(), req.Text, req.CustomerID)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.SentimentResponse{Text: req.Text, Sentiment: scores})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	customerID := strings.TrimSpace(chi.URLParam(r, "customerID"))
	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	records := s.bot.History(r.Context(), customerID, limit)
	views := make([]protocol.InteractionView, 0, len(records))
	for _, rec := range records {
		views = append(views, protocol.InteractionView{
			ID:             rec.ID,
			CustomerID:     rec.CustomerID,
			Type:           string(rec.Type),
			Content:        rec.Content,
			Language:       rec.Language,
			SentimentScore: rec.SentimentScore,
			CreatedAt:      rec.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, protocol.HistoryResponse{CustomerID: customerID, Interactions: views})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	conv, ok, err := s.bot.Conversation(r.Context(), userID, limit)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "conversation_not_found", "no conversation for user "+userID)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if err := s.bot.ClearConversation(r.Context(), userID); err != nil {
		respondFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.bot.Stats(r.Context())
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	infos := s.bot.Languages()
	out := protocol.LanguagesResponse{
		Default:   s.bot.DefaultLanguage().String(),
		Languages: make([]protocol.LanguageView, 0, len(infos)),
	}
	for _, info := range infos {
		out.Languages = append(out.Languages, protocol.LanguageView{
			Code:       info.Tag.String(),
			Name:       info.Name,
			NativeName: info.Native,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleOffers(w http.ResponseWriter, _ *http.Request) {
	offers := s.bot.Offers()
	if offers == nil {
		offers = []intent.Offer{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vehicles := s.bot.Vehicles(strings.TrimSpace(q.Get("category")), strings.TrimSpace(q.Get("fuel")))
	respondJSON(w, http.StatusOK, map[string]any{"models": vehicles, "count": len(vehicles)})
}

func (s *Server) handleAudioFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.bot.AudioFile(chi.URLParam(r, "filename"))
	if err != nil {
		respondError(w, http.StatusNotFound, "audio_not_found", "audio file not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.LatencySnapshot())
}

func (s *Server) handlePerfLatencyReset(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetLatency()
	w.WriteHeader(http.StatusNoContent)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("size", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, protocol.ErrEmptyBody
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}
	return raw, nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Errorf("limit must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, protocol.ErrorResponse{Error: message, Code: code})
}

// respondFault maps pipeline errors onto status codes. Internal details of
// unexpected failures stay in the log.
func respondFault(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil && errors.Is(err, r.Context().Err()) {
		// Client went away; nobody is listening for the answer.
		return
	}
	status := faults.HTTPStatus(err)
	code, message := faultCode(err), err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		message = "internal error"
	}
	respondError(w, status, code, message)
}

func faultCode(err error) string {
	switch {
	case faults.IsInputValidation(err):
		return "invalid_request"
	case faults.IsConfiguration(err):
		return "misconfigured"
	case faults.IsSynthesis(err):
		return "synthesis_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	if rec, ok := faults.AsRecognition(err); ok {
		return "recognition_" + string(rec.Kind)
	}
	return "internal_error"
}
