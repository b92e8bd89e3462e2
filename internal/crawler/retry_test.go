package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/model"
)

func TestRetryPolicyDelay(t *testing.T) {
	t.Parallel()

	t.Run("exponential doubles and caps", func(t *testing.T) {
		t.Parallel()

		p := RetryPolicy{Backoff: BackoffExponential, Base: 500 * time.Millisecond, Max: 3 * time.Second}
		want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
		for i, w := range want {
			if got := p.Delay(i+1, nil); got != w {
				t.Errorf("retry %d: expected %v, got %v", i+1, w, got)
			}
		}
	})

	t.Run("fixed stays at base", func(t *testing.T) {
		t.Parallel()

		p := RetryPolicy{Backoff: BackoffFixed, Base: 200 * time.Millisecond}
		for n := 1; n <= 4; n++ {
			if got := p.Delay(n, nil); got != 200*time.Millisecond {
				t.Errorf("retry %d: expected 200ms, got %v", n, got)
			}
		}
	})

	t.Run("zero base uses default", func(t *testing.T) {
		t.Parallel()

		if got := (RetryPolicy{}).Delay(1, nil); got != DefaultBackoffBase {
			t.Errorf("expected %v, got %v", DefaultBackoffBase, got)
		}
	})

	t.Run("retry-after extends the delay", func(t *testing.T) {
		t.Parallel()

		res := &model.FetchResult{StatusCode: 503, Headers: http.Header{"Retry-After": {"2"}}}
		p := RetryPolicy{Backoff: BackoffFixed, Base: 100 * time.Millisecond}
		if got := p.Delay(1, res); got != 2*time.Second {
			t.Errorf("expected 2s, got %v", got)
		}
	})
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  *model.FetchResult
		err  error
		want bool
	}{
		{name: "transport error", err: fmt.Errorf("%w: reset", fetcher.ErrTransport), want: true},
		{name: "body too large", err: fetcher.ErrBodyTooLarge, want: false},
		{name: "other error", err: errors.New("boom"), want: false},
		{name: "500", res: &model.FetchResult{StatusCode: 500}, want: true},
		{name: "503", res: &model.FetchResult{StatusCode: 503}, want: true},
		{name: "429", res: &model.FetchResult{StatusCode: 429}, want: true},
		{name: "408", res: &model.FetchResult{StatusCode: 408}, want: true},
		{name: "404", res: &model.FetchResult{StatusCode: 404}, want: false},
		{name: "200", res: &model.FetchResult{StatusCode: 200}, want: false},
		{name: "301", res: &model.FetchResult{StatusCode: 301}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Retryable(tt.res, tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseBackoffPolicy(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]BackoffPolicy{"": BackoffExponential, "exponential": BackoffExponential, "FIXED": BackoffFixed} {
		got, err := ParseBackoffPolicy(name)
		if err != nil || got != want {
			t.Errorf("ParseBackoffPolicy(%q) = (%q, %v), want %q", name, got, err, want)
		}
	}
	if _, err := ParseBackoffPolicy("linear"); !errors.Is(err, ErrUnknownBackoff) {
		t.Errorf("expected ErrUnknownBackoff, got %v", err)
	}
}
