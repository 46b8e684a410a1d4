package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"wiki-data-pipeline/internal/logging"
	"wiki-data-pipeline/internal/model"
	"wiki-data-pipeline/pkg/utils"
)

// Numbers stay json.Number so integer ids survive decoding exactly.
var jsonAPI = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// maxBodyBytes bounds a single API response.
const maxBodyBytes = 32 << 20

// Source produces the raw records of one run.
type Source interface {
	Fetch(ctx context.Context) ([]model.GenericRecord, error)
	Describe() string
}

// ------------------- Wikipedia allpages -------------------

// WikipediaSource pages through a MediaWiki list=allpages query.
type WikipediaSource struct {
	API    model.WikipediaAPIConfig
	Client *http.Client
	Retry  model.RetryConfig
	Logger *slog.Logger
}

type allPagesResponse struct {
	Continue *struct {
		APContinue string `json:"apcontinue"`
	} `json:"continue"`
	Query *struct {
		AllPages []model.GenericRecord `json:"allpages"`
	} `json:"query"`
}

// NewWikipediaSource returns a source with an HTTP client bounded by timeout.
func NewWikipediaSource(api model.WikipediaAPIConfig, timeout time.Duration, retry model.RetryConfig, logger *slog.Logger) *WikipediaSource {
	return &WikipediaSource{
		API:    api,
		Client: &http.Client{Timeout: timeout},
		Retry:  retry,
		Logger: logging.NewComponentLogger(logger, "wikipedia"),
	}
}

func (s *WikipediaSource) Describe() string { return s.API.BaseURL }

// Fetch follows apcontinue tokens until the listing is exhausted or
// API.MaxPages pages were read.
func (s *WikipediaSource) Fetch(ctx context.Context) ([]model.GenericRecord, error) {
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	var records []model.GenericRecord
	token := ""
	for page := 1; ; page++ {
		var resp allPagesResponse
		retrier := Retrier{Config: s.Retry, Logger: logger}
		_, err := retrier.Do(ctx, func(ctx context.Context) error {
			resp = allPagesResponse{}
			target := s.API.BaseURL + "?" + s.API.Params(token).Encode()
			return getJSON(ctx, client, target, s.API.UserAgent, &resp)
		})
		if err != nil {
			return nil, Wrap(ErrSourceUnavailable, "", fmt.Sprintf("fetch allpages page %d", page), err)
		}
		if resp.Query == nil || resp.Query.AllPages == nil {
			return nil, Wrap(ErrSourceUnavailable, "", "invalid API response", errors.New("missing query.allpages"))
		}

		records = append(records, resp.Query.AllPages...)
		logger.Debug("fetched allpages page",
			logging.Int("page", page),
			logging.Int(logging.FieldRows, len(resp.Query.AllPages)),
		)

		if resp.Continue == nil || resp.Continue.APContinue == "" {
			break
		}
		if s.API.MaxPages > 0 && page >= s.API.MaxPages {
			break
		}
		token = resp.Continue.APContinue
	}

	if records == nil {
		records = []model.GenericRecord{}
	}
	return records, nil
}

// ------------------- Generic JSON API -------------------

// GenericAPISource reads records from any JSON endpoint.
type GenericAPISource struct {
	Source model.DataSource
	Client *http.Client
	Retry  model.RetryConfig
	Logger *slog.Logger
}

func (s *GenericAPISource) Describe() string { return s.Source.URL }

func (s *GenericAPISource) Fetch(ctx context.Context) ([]model.GenericRecord, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	target := s.Source.URL
	if query := s.Source.Query(); len(query) > 0 {
		parsed, err := url.Parse(target)
		if err != nil {
			return nil, Wrap(ErrSourceUnavailable, "", "parse source url", err)
		}
		merged := parsed.Query()
		for k, v := range query {
			merged[k] = v
		}
		parsed.RawQuery = merged.Encode()
		target = parsed.String()
	}

	var payload interface{}
	retrier := Retrier{Config: s.Retry, Logger: s.Logger}
	_, err := retrier.Do(ctx, func(ctx context.Context) error {
		payload = nil
		return getJSON(ctx, client, target, "", &payload)
	})
	if err != nil {
		return nil, Wrap(ErrSourceUnavailable, "", "fetch "+s.Source.Name, err)
	}

	records, err := extractRecords(payload)
	if err != nil {
		return nil, Wrap(ErrSourceUnavailable, "", "decode "+s.Source.Name, err)
	}
	return records, nil
}

// extractRecords accepts a list of objects, an object wrapping such a list
// under a well-known key, or a single object.
func extractRecords(payload interface{}) ([]model.GenericRecord, error) {
	switch data := payload.(type) {
	case []interface{}:
		records := make([]model.GenericRecord, 0, len(data))
		for i, item := range data {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("item %d is %T, not an object", i, item)
			}
			records = append(records, model.GenericRecord(m))
		}
		return records, nil
	case map[string]interface{}:
		for _, key := range []string{"data", "results", "items", "records"} {
			if list, ok := data[key].([]interface{}); ok {
				return extractRecords(list)
			}
		}
		return []model.GenericRecord{model.GenericRecord(data)}, nil
	default:
		return nil, fmt.Errorf("unexpected JSON structure %T", payload)
	}
}

// ------------------- Local files -------------------

// FileSource reads records from a local .json or .csv file.
type FileSource struct {
	Path string
}

func (s *FileSource) Describe() string { return s.Path }

func (s *FileSource) Fetch(ctx context.Context) ([]model.GenericRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, Wrap(ErrSourceUnavailable, "", "open source file", err)
	}
	defer file.Close()

	var records []model.GenericRecord
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".csv":
		records, err = ingestCSV(ctx, file)
	case ".json":
		var payload interface{}
		if err = jsonAPI.NewDecoder(file).Decode(&payload); err == nil {
			records, err = extractRecords(payload)
		}
	default:
		err = fmt.Errorf("unsupported file type %q", filepath.Ext(s.Path))
	}
	if err != nil {
		return nil, Wrap(ErrSourceUnavailable, "", "read "+s.Path, err)
	}
	return records, nil
}

func ingestCSV(ctx context.Context, r io.Reader) ([]model.GenericRecord, error) {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	headers, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.ReplaceAll(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), `"`, "")
	}

	records := []model.GenericRecord{}
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}

		rec := make(model.GenericRecord, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = utils.ParseValue(row[i])
			}
		}
		records = append(records, rec)
	}
}

// ------------------- HTTP -------------------

// statusError is an unexpected HTTP response.
type statusError struct {
	Code int
	URL  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// transient statuses are retried; everything else is final.
func (e *statusError) transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func getJSON(ctx context.Context, client *http.Client, target, userAgent string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		serr := &statusError{Code: resp.StatusCode, URL: target}
		if serr.transient() {
			return serr
		}
		return Permanent(serr)
	}

	if err := jsonAPI.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		return Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
