package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"golang.org/x/xerrors"
)

// ErrRateLimited is returned when a post would exceed the configured rate.
var ErrRateLimited = xerrors.New("webhook rate limit exceeded")

const postTimeout = 5 * time.Second

type httpService struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP posts JSON payloads to url, at most ratePerMinute per minute.
// Posts over the rate are dropped rather than queued so a noisy session
// cannot back up the alerter. A non-positive rate disables the limit.
func NewHTTP(url string, ratePerMinute int) IService {
	limit := rate.Inf
	burst := 1
	if ratePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(ratePerMinute))
		burst = ratePerMinute
	}
	return &httpService{
		url:     url,
		client:  &http.Client{Timeout: postTimeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (svc *httpService) Post(payload map[string]interface{}) error {
	if !svc.limiter.Allow() {
		return ErrRateLimited
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Errorf("marshalling webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.url, bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.client.Do(req)
	if err != nil {
		return xerrors.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return xerrors.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
