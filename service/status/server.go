package status

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/broker"
	"github.com/khaledhikmat/proctor-go/service/data"
	"github.com/khaledhikmat/proctor-go/service/lgr"
	"github.com/khaledhikmat/proctor-go/service/metrics"
)

const defaultStatusInterval = time.Second

// Config wires a Server to a running session. Broker and Metrics are
// optional.
type Config struct {
	SessionID      string
	Candidate      model.Candidate
	StartedAt      time.Time
	Events         *proctor.EventLog
	Board          *Board
	Data           data.IService
	Broker         broker.IService
	Metrics        *metrics.Metrics
	StatusInterval time.Duration
}

// Server exposes the session to the exam front end: submission, cheating
// polls, live status and the annotated video feed.
type Server struct {
	cfg     Config
	now     func() time.Time
	submits sync.Mutex
	reports atomic.Int64
}

func NewServer(cfg Config) *Server {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.Board == nil {
		cfg.Board = NewBoard()
	}
	return &Server{
		cfg: cfg,
		now: time.Now,
	}
}

// Reports is the number of reports stored so far.
func (s *Server) Reports() int {
	return int(s.reports.Load())
}

// Submit drains the event log into a report and stores it. On a store
// failure the drained events go back into the log so a later submit can
// report them.
func (s *Server) Submit(final bool) (model.Report, error) {
	s.submits.Lock()
	defer s.submits.Unlock()

	events := s.cfg.Events.Drain()
	report := model.NewReport(s.cfg.SessionID, s.cfg.Candidate, s.cfg.StartedAt, s.now(), events)
	report.Final = final

	if err := s.cfg.Data.StoreReport(report); err != nil {
		s.cfg.Events.Append(events...)
		return model.Report{}, xerrors.Errorf("storing report: %w", err)
	}
	s.reports.Add(1)

	lgr.Logger.Info("report stored",
		slog.String("session", s.cfg.SessionID),
		slog.Int("events", len(report.Events)),
		slog.Bool("final", final),
	)
	return report, nil
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/submit", s.handleSubmit)
	mux.HandleFunc("/api/check_cheating", s.handleCheckCheating)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/events/stream", s.handleEventsStream)
	mux.HandleFunc("/video_feed", s.handleVideoFeed)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	return mux
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lgr.Logger.Info("status server listening", slog.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if xerrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return xerrors.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	// Streaming handlers end with their request contexts
	s.cfg.Board.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
	}
	return nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := s.Submit(false)
	if err != nil {
		lgr.Logger.Error("submit failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCheckCheating(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"cheating_detected": s.cfg.Events.HasEvidence(),
	})
}

func (s *Server) statusPayload() map[string]any {
	payload := map[string]any{
		"session":        s.cfg.SessionID,
		"candidate":      s.cfg.Candidate.Name,
		"pending_events": s.cfg.Events.Len(),
		"timestamp":      s.now().Unix(),
	}
	if latest, ok := s.cfg.Board.Latest(); ok {
		payload["latest"] = latest
	}
	return payload
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.statusPayload())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		if err := writeSSE(w, s.statusPayload()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Broker == nil {
		http.Error(w, "no event broker", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	msgs, err := s.cfg.Broker.Subscribe(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for msg := range msgs {
		if msg.SessionID != s.cfg.SessionID {
			continue
		}
		if err := writeSSE(w, msg.Event); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.cfg.Board.Subscribe()
	defer s.cfg.Board.Unsubscribe(id)
	streamMJPEG(w, r, frameCh)
}
