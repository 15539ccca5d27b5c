package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"
	"time"

	"cmdai/config"
)

// maxLineSize bounds a single streamed line.
const maxLineSize = 1024 * 1024

// lineDecoder turns one streamed line into a fragment. ok is false for lines
// that carry no text (blank, keep-alive, malformed, end markers).
type lineDecoder func(line string) (fragment string, ok bool)

// streamRequest describes one streaming POST.
type streamRequest struct {
	client  *http.Client
	name    string // display name for errors and logs
	url     string
	headers map[string]string
	body    any
	timeout time.Duration
	decode  lineDecoder
}

// streamLines issues req when iteration starts and yields the decoded
// fragments line by line.
//
// The timeout bounds connection setup and response headers and then acts as
// an idle timeout between lines. Stopping iteration early cancels the request
// and closes the body through the deferred cleanup.
func streamLines(ctx context.Context, req streamRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)

		watchdog := newIdleWatchdog(req.timeout, cancel)
		defer watchdog.stop()

		payload, err := json.Marshal(req.body)
		if err != nil {
			yield("", &Error{Provider: req.name, Kind: FailureTransport, Err: fmt.Errorf("failed to encode request: %w", err)})
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.url, bytes.NewReader(payload))
		if err != nil {
			yield("", &Error{Provider: req.name, Kind: FailureTransport, Err: err})
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range req.headers {
			httpReq.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := req.client.Do(httpReq)
		if err != nil {
			perr := classify(ctx, req.name, err)
			config.DebugLog.Debug().Str("provider", req.name).Err(perr).Msg("stream request failed")
			yield("", perr)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			perr := statusError(req.name, resp.StatusCode, body)
			config.DebugLog.Debug().Str("provider", req.name).Int("status", resp.StatusCode).Msg("stream rejected")
			yield("", perr)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		fragments := 0
		for scanner.Scan() {
			watchdog.touch()
			fragment, ok := req.decode(scanner.Text())
			if !ok {
				continue
			}

			// Time spent in the consumer does not count as idle.
			watchdog.pause()
			fragments++
			if !yield(fragment, nil) {
				return
			}
			watchdog.resume()
		}

		if err := scanner.Err(); err != nil {
			perr := classify(ctx, req.name, err)
			config.DebugLog.Debug().
				Str("provider", req.name).
				Int("fragments", fragments).
				Dur("elapsed", time.Since(start)).
				Err(perr).
				Msg("stream interrupted")
			yield("", perr)
			return
		}

		config.DebugLog.Debug().
			Str("provider", req.name).
			Int("fragments", fragments).
			Dur("elapsed", time.Since(start)).
			Msg("stream complete")
	}
}

// idleWatchdog cancels a stream with errIdleTimeout once no line has arrived
// for timeout. The timer callback checks the last activity under the lock and
// re-arms itself instead of canceling when activity is recent or the stream is
// paused, so a line that races with an expiring timer never loses.
type idleWatchdog struct {
	mu      sync.Mutex
	timer   *time.Timer
	timeout time.Duration
	last    time.Time
	paused  bool
	stopped bool
	cancel  context.CancelCauseFunc
}

// newIdleWatchdog returns nil when timeout is not positive; every method is
// a no-op on a nil watchdog.
func newIdleWatchdog(timeout time.Duration, cancel context.CancelCauseFunc) *idleWatchdog {
	if timeout <= 0 {
		return nil
	}
	w := &idleWatchdog{timeout: timeout, last: time.Now(), cancel: cancel}
	w.timer = time.AfterFunc(timeout, w.fire)
	return w
}

func (w *idleWatchdog) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.paused {
		w.timer.Reset(w.timeout)
		return
	}
	if remaining := w.timeout - time.Since(w.last); remaining > 0 {
		w.timer.Reset(remaining)
		return
	}
	w.stopped = true
	w.cancel(errIdleTimeout)
}

// touch records activity.
func (w *idleWatchdog) touch() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.last = time.Now()
	w.mu.Unlock()
}

// pause suspends the idle clock until resume.
func (w *idleWatchdog) pause() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

func (w *idleWatchdog) resume() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.paused = false
	w.last = time.Now()
	w.mu.Unlock()
}

func (w *idleWatchdog) stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.timer.Stop()
}

// wireMessage is the {role, content} object both chat protocols accept.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatBody is the request body shared by the Ollama and OpenAI protocols.
type chatBody struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}
