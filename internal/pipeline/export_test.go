package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"wiki-data-pipeline/internal/model"
)

func sampleBatch() model.Batch {
	ns := int64(0)
	return model.NewBatch([]model.Record{
		{PageID: 1, Title: "List of rivers", Namespace: &ns},
		{PageID: 2, Title: "Ocean, Atlantic"},
	})
}

func TestFileSinkCSV(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "pages.csv")
	if err := (FileSink{}).Write(context.Background(), sampleBatch(), dest); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	want := "pageid,title,ns\n1,List of rivers,0\n2,\"Ocean, Atlantic\",\n"
	if string(data) != want {
		t.Fatalf("csv =\n%s\nwant\n%s", data, want)
	}

	// A rewrite replaces the file and leaves no temp files behind.
	if err := (FileSink{}).Write(context.Background(), model.NewBatch(nil), dest); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(dest))
	if len(entries) != 1 {
		t.Fatalf("directory holds %d entries, want 1", len(entries))
	}
	data, _ = os.ReadFile(dest)
	if string(data) != "pageid,title\n" {
		t.Fatalf("empty batch csv = %q", data)
	}
}

func TestFileSinkJSON(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "pages.json")
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ctx := WithJob(WithRunID(context.Background(), "run-1"), "wikipedia_etl_job")

	if err := (FileSink{Now: func() time.Time { return at }}).Write(ctx, sampleBatch(), dest); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Info map[string]interface{}   `json:"export_info"`
		Data []map[string]interface{} `json:"data"`
	}
	if err := jsonAPI.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Info["run_id"] != "run-1" || payload.Info["job"] != "wikipedia_etl_job" {
		t.Fatalf("export_info = %v", payload.Info)
	}
	if payload.Info["exported_at"] != "2024-05-01T00:00:00Z" {
		t.Fatalf("exported_at = %v", payload.Info["exported_at"])
	}
	if len(payload.Data) != 2 || payload.Data[1]["title"] != "Ocean, Atlantic" || payload.Data[1]["ns"] != nil {
		t.Fatalf("data = %v", payload.Data)
	}
}

func TestSinksRefuseRawBatches(t *testing.T) {
	raw := model.NewRawBatch([]model.GenericRecord{{"pageid": 1, "title": "a"}})
	sinks := map[string]Sink{
		"file":   FileSink{},
		"sqlite": SQLiteSink{Store: &memoryPages{}},
		"s3":     &S3Sink{Bucket: "b", uploader: &fakeUploader{}},
	}
	dest := filepath.Join(t.TempDir(), "pages.csv")
	for name, sink := range sinks {
		err := sink.Write(context.Background(), raw, dest)
		if !errors.Is(err, ErrSinkWrite) {
			t.Errorf("%s: error = %v, want ErrSinkWrite", name, err)
		}
		if err := sink.Write(context.Background(), sampleBatch(), " "); !errors.Is(err, ErrSinkWrite) {
			t.Errorf("%s: empty destination error = %v", name, err)
		}
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("raw batch was written to disk")
	}
}

type memoryPages struct {
	artifact, runID string
	rows            int
	err             error
}

func (m *memoryPages) ReplacePages(_ context.Context, artifact, runID string, batch model.Batch) error {
	if m.err != nil {
		return m.err
	}
	m.artifact, m.runID, m.rows = artifact, runID, len(batch.Records)
	return nil
}

func TestSQLiteSink(t *testing.T) {
	pages := &memoryPages{}
	ctx := WithRunID(context.Background(), "run-7")
	if err := (SQLiteSink{Store: pages}).Write(ctx, sampleBatch(), "/tmp/out/filtered_pages.csv"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if pages.artifact != "filtered_pages.csv" || pages.runID != "run-7" || pages.rows != 2 {
		t.Fatalf("stored %+v", pages)
	}

	failing := SQLiteSink{Store: &memoryPages{err: errors.New("disk full")}}
	if err := failing.Write(ctx, sampleBatch(), "pages.csv"); !errors.Is(err, ErrSinkWrite) {
		t.Fatalf("error = %v", err)
	}
	if err := (SQLiteSink{}).Write(ctx, sampleBatch(), "pages.csv"); !errors.Is(err, ErrSinkWrite) {
		t.Fatalf("nil store error = %v", err)
	}
}

type fakeUploader struct {
	bucket, key, contentType string
	body                     string
	err                      error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	f.body = string(data)
	return &manager.UploadOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	up := &fakeUploader{}
	sink := &S3Sink{Bucket: "wiki", Prefix: "exports/daily", uploader: up}

	if got := sink.Key("/data/output/pages.json"); got != "exports/daily/pages.csv" {
		t.Fatalf("Key = %q", got)
	}
	if err := sink.Write(context.Background(), sampleBatch(), "/data/output/pages.csv"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if up.bucket != "wiki" || up.key != "exports/daily/pages.csv" || up.contentType != "text/csv" {
		t.Fatalf("upload input %+v", up)
	}
	if !strings.HasPrefix(up.body, "pageid,title,ns\n") {
		t.Fatalf("body = %q", up.body)
	}

	up.err = errors.New("access denied")
	err := sink.Write(context.Background(), sampleBatch(), "pages.csv")
	if !errors.Is(err, ErrSinkWrite) || !strings.Contains(err.Error(), "s3://wiki/exports/daily/pages.csv") {
		t.Fatalf("error = %v", err)
	}

	if got := (&S3Sink{}).Key("pages.csv"); got != "pages.csv" {
		t.Fatalf("Key without prefix = %q", got)
	}
}

func TestFanoutStopsAtFirstFailure(t *testing.T) {
	first := &memoryPages{}
	broken := &memoryPages{err: errors.New("boom")}
	last := &memoryPages{}
	fan := Fanout{SQLiteSink{Store: first}, SQLiteSink{Store: broken}, SQLiteSink{Store: last}}

	if err := fan.Write(context.Background(), sampleBatch(), "pages.csv"); !errors.Is(err, ErrSinkWrite) {
		t.Fatalf("error = %v", err)
	}
	if first.rows != 2 || last.rows != 0 {
		t.Fatalf("first=%d last=%d", first.rows, last.rows)
	}
}
