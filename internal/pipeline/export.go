package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"wiki-data-pipeline/internal/model"
	"wiki-data-pipeline/pkg/utils"
)

// Sink persists a terminal batch to a destination.
type Sink interface {
	Write(ctx context.Context, batch model.Batch, destination string) error
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // csv, json, sqlite, s3
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	ExportedAt  time.Time `json:"exported_at"`
}

func checkExportable(batch model.Batch, destination string) error {
	if batch.IsRaw() {
		return Wrap(ErrSinkWrite, "", destination, errors.New("refusing to persist an unvalidated batch"))
	}
	if strings.TrimSpace(destination) == "" {
		return Wrap(ErrSinkWrite, "", "", errors.New("empty destination"))
	}
	return nil
}

// ------------------- Local files -------------------

// FileSink writes CSV or JSON depending on the destination extension.
// Files are replaced atomically, so readers never see a partial artifact.
type FileSink struct {
	Now func() time.Time
}

func (s FileSink) Write(ctx context.Context, batch model.Batch, destination string) error {
	if err := checkExportable(batch, destination); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return Wrap(ErrSinkWrite, "", destination, err)
	}

	var (
		data []byte
		err  error
	)
	switch fileType(destination) {
	case "json":
		data, err = EncodeJSON(batch, s.exportInfo(ctx, batch))
	default:
		data, err = EncodeCSV(batch)
	}
	if err != nil {
		return Wrap(ErrSinkWrite, "", destination, err)
	}

	if err := writeFileAtomic(destination, data); err != nil {
		return Wrap(ErrSinkWrite, "", destination, err)
	}
	return nil
}

func (s FileSink) exportInfo(ctx context.Context, batch model.Batch) map[string]interface{} {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return map[string]interface{}{
		"run_id":       RunIDFromContext(ctx),
		"job":          JobFromContext(ctx),
		"exported_at":  now().UTC().Format(time.RFC3339),
		"record_count": len(batch.Records),
		"columns":      batch.Columns(),
		"export_type":  "pages",
	}
}

func fileType(destination string) string {
	switch t := utils.NewOutputManager("").GetFileType(destination); t {
	case "json":
		return t
	default:
		return "csv"
	}
}

// EncodeCSV renders the batch with a header row in Columns order.
func EncodeCSV(batch model.Batch) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	columns := batch.Columns()
	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range batch.Records {
		if err := writer.Write(rec.Row(columns)); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJSON renders {"export_info": ..., "data": [...]}.
func EncodeJSON(batch model.Batch, info map[string]interface{}) ([]byte, error) {
	columns := batch.Columns()
	rows := make([]map[string]interface{}, 0, len(batch.Records))
	for _, rec := range batch.Records {
		rows = append(rows, rec.Map(columns))
	}
	payload := map[string]interface{}{
		"export_info": info,
		"data":        rows,
	}
	data, err := jsonAPI.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}

func writeFileAtomic(destination string, data []byte) error {
	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destination)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, destination); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// ------------------- SQLite mirror -------------------

// PageWriter stores a batch under an artifact name. The run store implements it.
type PageWriter interface {
	ReplacePages(ctx context.Context, artifact, runID string, batch model.Batch) error
}

// SQLiteSink mirrors artifacts into the run store's pages table, keyed by
// the destination's file name.
type SQLiteSink struct {
	Store PageWriter
}

func (s SQLiteSink) Write(ctx context.Context, batch model.Batch, destination string) error {
	if err := checkExportable(batch, destination); err != nil {
		return err
	}
	if s.Store == nil {
		return Wrap(ErrSinkWrite, "", destination, errors.New("no store configured"))
	}
	if err := s.Store.ReplacePages(ctx, filepath.Base(destination), RunIDFromContext(ctx), batch); err != nil {
		return Wrap(ErrSinkWrite, "", "sqlite mirror "+destination, err)
	}
	return nil
}

// ------------------- S3 -------------------

// S3Options configures the object storage sink.
type S3Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	Prefix       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// uploader is the part of manager.Uploader the sink needs.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink uploads the CSV rendering of each artifact to a bucket.
type S3Sink struct {
	Bucket   string
	Prefix   string
	uploader uploader
}

// NewS3Sink builds an uploader from static or default credentials.
func NewS3Sink(ctx context.Context, opts S3Options) (*S3Sink, error) {
	loadOpts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Sink{
		Bucket:   opts.Bucket,
		Prefix:   opts.Prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// Key returns the object key for a destination.
func (s *S3Sink) Key(destination string) string {
	name := strings.TrimSuffix(filepath.Base(destination), filepath.Ext(destination)) + ".csv"
	if s.Prefix == "" {
		return name
	}
	return path.Join(s.Prefix, name)
}

func (s *S3Sink) Write(ctx context.Context, batch model.Batch, destination string) error {
	if err := checkExportable(batch, destination); err != nil {
		return err
	}
	data, err := EncodeCSV(batch)
	if err != nil {
		return Wrap(ErrSinkWrite, "", destination, err)
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(s.Key(destination)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return Wrap(ErrSinkWrite, "", "upload s3://"+s.Bucket+"/"+s.Key(destination), err)
	}
	return nil
}

// ------------------- Fan-out -------------------

// Fanout writes to every sink in order and stops at the first failure.
type Fanout []Sink

func (f Fanout) Write(ctx context.Context, batch model.Batch, destination string) error {
	for _, sink := range f {
		if err := sink.Write(ctx, batch, destination); err != nil {
			return err
		}
	}
	return nil
}
