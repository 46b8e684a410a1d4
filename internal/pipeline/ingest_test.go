package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wiki-data-pipeline/internal/model"
)

var fastRetry = model.RetryConfig{
	MaxAttempts:       3,
	InitialDelay:      time.Millisecond,
	MaxDelay:          5 * time.Millisecond,
	BackoffMultiplier: 2,
}

func TestWikipediaSourceFollowsContinuation(t *testing.T) {
	var (
		mu              sync.Mutex
		gotUA, gotLimit string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotUA, gotLimit = r.UserAgent(), r.URL.Query().Get("aplimit")
		mu.Unlock()
		switch r.URL.Query().Get("apcontinue") {
		case "":
			fmt.Fprint(w, `{"continue":{"apcontinue":"B"},"query":{"allpages":[{"pageid":1,"ns":0,"title":"A"}]}}`)
		case "B":
			fmt.Fprint(w, `{"continue":{"apcontinue":"C"},"query":{"allpages":[{"pageid":2,"ns":0,"title":"B"}]}}`)
		default:
			fmt.Fprint(w, `{"query":{"allpages":[{"pageid":3,"ns":0,"title":"C"}]}}`)
		}
	}))
	defer srv.Close()

	tests := []struct {
		maxPages int
		want     int
	}{
		{1, 1},
		{2, 2},
		{0, 3},
	}
	for _, tt := range tests {
		api := model.NewWikipediaAPIConfig(srv.URL, 2)
		api.MaxPages = tt.maxPages
		api.UserAgent = "test-agent"
		src := NewWikipediaSource(api, time.Second, fastRetry, nil)

		records, err := src.Fetch(context.Background())
		if err != nil {
			t.Fatalf("max_pages=%d: %v", tt.maxPages, err)
		}
		if len(records) != tt.want {
			t.Fatalf("max_pages=%d: %d records, want %d", tt.maxPages, len(records), tt.want)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if gotUA != "test-agent" || gotLimit != "2" {
		t.Fatalf("request headers ua=%q aplimit=%q", gotUA, gotLimit)
	}
}

func TestWikipediaSourceRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"query":{"allpages":[{"pageid":1,"title":"A"}]}}`)
	}))
	defer srv.Close()

	src := NewWikipediaSource(model.NewWikipediaAPIConfig(srv.URL, 10), time.Second, fastRetry, nil)
	records, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 || calls.Load() != 3 {
		t.Fatalf("records=%d calls=%d", len(records), calls.Load())
	}
}

func TestWikipediaSourceFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
	}{
		{"missing allpages", http.StatusOK, `{"batchcomplete":""}`, 1},
		{"not found is final", http.StatusNotFound, ``, 1},
		{"server errors exhaust retries", http.StatusBadGateway, ``, 3},
		{"malformed json", http.StatusOK, `{"query":`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			src := NewWikipediaSource(model.NewWikipediaAPIConfig(srv.URL, 10), time.Second, fastRetry, nil)
			_, err := src.Fetch(context.Background())
			if !errors.Is(err, ErrSourceUnavailable) {
				t.Fatalf("error = %v, want ErrSourceUnavailable", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestGenericAPISourceShapes(t *testing.T) {
	bodies := map[string]string{
		"/list":    `[{"pageid":1,"title":"A"},{"pageid":2,"title":"B"}]`,
		"/wrapped": `{"results":[{"pageid":1,"title":"A"},{"pageid":2,"title":"B"}]}`,
		"/single":  `{"pageid":1,"title":"A"}`,
		"/scalar":  `42`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "t" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, bodies[r.URL.Path])
	}))
	defer srv.Close()

	tests := []struct {
		path    string
		want    int
		wantErr bool
	}{
		{"/list", 2, false},
		{"/wrapped", 2, false},
		{"/single", 1, false},
		{"/scalar", 0, true},
	}
	for _, tt := range tests {
		src := &GenericAPISource{
			Source: model.DataSource{Name: "test", URL: srv.URL + tt.path, Parameters: map[string]string{"token": "t"}},
			Retry:  fastRetry,
		}
		records, err := src.Fetch(context.Background())
		if tt.wantErr {
			if !errors.Is(err, ErrSourceUnavailable) {
				t.Errorf("%s: error = %v", tt.path, err)
			}
			continue
		}
		if err != nil || len(records) != tt.want {
			t.Errorf("%s: %d records, err %v", tt.path, len(records), err)
		}
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "pages.csv")
	if err := os.WriteFile(csvPath, []byte("\ufeffpageid,\"title\"\n1,List of rivers\n2,Ocean\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	jsonPath := filepath.Join(dir, "pages.json")
	if err := os.WriteFile(jsonPath, []byte(`{"items":[{"pageid":5,"title":"E"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := (&FileSource{Path: csvPath}).Fetch(context.Background())
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(records) != 2 || records[0]["title"] != "List of rivers" {
		t.Fatalf("csv records %+v", records)
	}
	batch, _, err := PageSchema.Validate(records)
	if err != nil || batch.Records[1].PageID != 2 {
		t.Fatalf("csv records did not validate: %v", err)
	}

	records, err = (&FileSource{Path: jsonPath}).Fetch(context.Background())
	if err != nil || len(records) != 1 {
		t.Fatalf("json: %d records, %v", len(records), err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.json"), filepath.Join(dir, "pages.xml")} {
		if _, err := (&FileSource{Path: path}).Fetch(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
			t.Errorf("%s: error = %v", path, err)
		}
	}
}

func TestRetrierStopsOnPermanentError(t *testing.T) {
	calls := 0
	attempts, err := Retrier{Config: fastRetry}.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	if attempts != 1 || calls != 1 || err == nil || err.Error() != "bad request" {
		t.Fatalf("attempts=%d calls=%d err=%v", attempts, calls, err)
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		t.Fatal("permanent marker leaked to the caller")
	}
}

func TestRetrierHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Retrier{
		Config: model.RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour},
		sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	attempts, err := r.Do(ctx, func(context.Context) error { return errors.New("flaky") })
	if attempts != 1 || !errors.Is(err, context.Canceled) {
		t.Fatalf("attempts=%d err=%v", attempts, err)
	}
}

func TestBackoff(t *testing.T) {
	cfg := model.RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}
	tests := map[int]time.Duration{
		0: 100 * time.Millisecond,
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		5: time.Second,
	}
	for retry, want := range tests {
		if got := Backoff(cfg, retry); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", retry, got, want)
		}
	}
	for i := 0; i < 100; i++ {
		d := withJitter(time.Second)
		if d < 900*time.Millisecond || d > 1100*time.Millisecond {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
}
