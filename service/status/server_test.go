package status

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/model"
	"github.com/khaledhikmat/proctor-go/proctor"
	"github.com/khaledhikmat/proctor-go/service/broker"
	"github.com/khaledhikmat/proctor-go/service/data"
	"github.com/khaledhikmat/proctor-go/service/metrics"
)

// memDB keeps reports in memory and can be told to fail.
type memDB struct {
	data.IService
	mu      sync.Mutex
	reports []model.Report
	fail    error
}

func (db *memDB) StoreReport(r model.Report) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.fail != nil {
		return db.fail
	}
	db.reports = append(db.reports, r)
	return nil
}

var started = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestServer(db *memDB) (*Server, *proctor.EventLog) {
	events := proctor.NewEventLog()
	s := NewServer(Config{
		SessionID:      "s1",
		Candidate:      model.Candidate{ID: "c1", Name: "Ada"},
		StartedAt:      started,
		Events:         events,
		Data:           db,
		Broker:         broker.NewMemory(),
		Metrics:        metrics.New(),
		StatusInterval: 10 * time.Millisecond,
	})
	s.now = func() time.Time { return started.Add(time.Hour) }
	return s, events
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestCheckCheating(t *testing.T) {
	s, events := newTestServer(&memDB{})

	var body map[string]bool
	rec := serve(s, http.MethodGet, "/api/check_cheating")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body["cheating_detected"])

	events.Append(proctor.CheatingEvent{Timestamp: started, Category: proctor.GazeMovement})

	for i := 0; i < 2; i++ {
		rec = serve(s, http.MethodGet, "/api/check_cheating")
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body["cheating_detected"])
	}
	assert.Equal(t, 1, events.Len())
}

func TestSubmit(t *testing.T) {
	db := &memDB{}
	s, events := newTestServer(db)
	events.Append(
		proctor.CheatingEvent{Timestamp: started.Add(time.Second), Category: proctor.GazeMovement},
		proctor.CheatingEvent{Timestamp: started.Add(2 * time.Second), Category: proctor.LipMovement},
		proctor.CheatingEvent{Timestamp: started.Add(3 * time.Second), Category: proctor.GazeMovement},
	)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodGet, "/api/submit").Code)

	rec := serve(s, http.MethodPost, "/api/submit")
	require.Equal(t, http.StatusOK, rec.Code)

	var report model.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "s1", report.SessionID)
	assert.False(t, report.Final)
	require.Len(t, report.Events, 3)
	assert.Equal(t, model.ReportEvent{Timestamp: "2024-05-01 10:00:01", Type: "Gaze Movement"}, report.Events[0])
	assert.Equal(t, 2, report.Counts["Gaze Movement"])
	assert.Equal(t, 1, report.Counts["Lip Movement"])

	assert.Equal(t, 0, events.Len())
	assert.Len(t, db.reports, 1)
	assert.Equal(t, 1, s.Reports())

	// A second submit reports nothing new
	rec = serve(s, http.MethodPost, "/api/submit")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Empty(t, report.Events)
}

func TestSubmitStoreFailureKeepsEvents(t *testing.T) {
	db := &memDB{fail: xerrors.New("disk full")}
	s, events := newTestServer(db)
	events.Append(proctor.CheatingEvent{Timestamp: started, Category: proctor.MultiplePersons})

	rec := serve(s, http.MethodPost, "/api/submit")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, events.Len())
	assert.Equal(t, 0, s.Reports())

	db.fail = nil
	report, err := s.Submit(true)
	require.NoError(t, err)
	assert.True(t, report.Final)
	assert.Len(t, report.Events, 1)
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(&memDB{})

	var body map[string]any
	require.NoError(t, json.Unmarshal(serve(s, http.MethodGet, "/api/status").Body.Bytes(), &body))
	assert.Equal(t, "s1", body["session"])
	assert.NotContains(t, body, "latest")

	s.cfg.Board.Publish(proctor.CycleResult{PersonCount: 2, LipCheating: true})
	require.NoError(t, json.Unmarshal(serve(s, http.MethodGet, "/api/status").Body.Bytes(), &body))
	latest, ok := body["latest"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), latest["personCount"])
	assert.Equal(t, true, latest["lipCheating"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(&memDB{})
	rec := serve(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "proctor_frames_read_total")
}

func TestStatusStream(t *testing.T) {
	s, _ := newTestServer(&memDB{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/status/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	r := bufio.NewReader(resp.Body)
	for i := 0; i < 2; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(line, "data: "), line)
		_, err = r.ReadString('\n')
		require.NoError(t, err)
	}
}

func TestEventsStream(t *testing.T) {
	s, _ := newTestServer(&memDB{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, s.cfg.Broker.Publish(ctx, "other", proctor.CheatingEvent{Timestamp: started, Category: proctor.LipMovement}))
	require.NoError(t, s.cfg.Broker.Publish(ctx, "s1", proctor.CheatingEvent{Timestamp: started, Category: proctor.GazeMovement}))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"type":"Gaze Movement"`)
}

func TestVideoFeed(t *testing.T) {
	s, _ := newTestServer(&memDB{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/video_feed", nil)
	require.NoError(t, err)

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			close(respCh)
			return
		}
		respCh <- resp
	}()

	require.Eventually(t, func() bool { return s.cfg.Board.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.cfg.Board.PublishFrame([]byte("jpegdata"))

	resp, ok := <-respCh
	require.True(t, ok)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "multipart/x-mixed-replace")

	r := bufio.NewReader(resp.Body)
	var lines []string
	for i := 0; i < 4; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	assert.Equal(t, []string{"--frame", "Content-Type: image/jpeg", "", "jpegdata"}, lines)
}

func TestBoardDropsForSlowClients(t *testing.T) {
	b := NewBoard()
	id, ch := b.Subscribe()
	for i := 0; i < clientFrameBuffer+3; i++ {
		b.PublishFrame([]byte{byte(i)})
	}
	assert.Len(t, ch, clientFrameBuffer)
	assert.Equal(t, uint64(3), b.dropped)

	b.Unsubscribe(id)
	_, open := <-ch
	assert.True(t, open, "buffered frames are still delivered")
	assert.Equal(t, 0, b.Clients())
}
