// Package gcsstore reads statement files from and writes normalised files to
// Google Cloud Storage.
package gcsstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-normalizer/internal/csvio"
	"github.com/dvloznov/bank-normalizer/internal/pipeline"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// Bucket is a pipeline Source over objects under Prefix and a pipeline
// Destination writing under OutputPrefix. Names are relative to the prefix.
type Bucket struct {
	client       *storage.Client
	name         string
	prefix       string
	outputPrefix string
}

// NewBucket creates a storage client for bucket. It assumes Application
// Default Credentials are configured.
func NewBucket(ctx context.Context, bucket, prefix, outputPrefix string) (*Bucket, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewBucket: create storage client: %w", err)
	}
	return &Bucket{
		client:       client,
		name:         bucket,
		prefix:       strings.Trim(prefix, "/"),
		outputPrefix: strings.Trim(outputPrefix, "/"),
	}, nil
}

// Close closes the storage client.
func (b *Bucket) Close() error {
	return b.client.Close()
}

// List implements pipeline.Source.
func (b *Bucket) List(ctx context.Context) ([]string, error) {
	q := &storage.Query{}
	if b.prefix != "" {
		q.Prefix = b.prefix + "/"
	}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("Bucket.List: %w", err)
	}

	var names []string
	it := b.client.Bucket(b.name).Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Bucket.List: gs://%s/%s: %w", b.name, b.prefix, err)
		}
		if rel, ok := relativeName(b.prefix, attrs.Name); ok {
			names = append(names, rel)
		}
	}
	sort.Strings(names)
	return names, nil
}

// relativeName strips prefix from an object name and reports whether the
// object is an input file.
func relativeName(prefix, object string) (string, bool) {
	rel := object
	if prefix != "" {
		if !strings.HasPrefix(object, prefix+"/") {
			return "", false
		}
		rel = strings.TrimPrefix(object, prefix+"/")
	}
	if rel == "" || strings.HasSuffix(rel, "/") {
		return "", false
	}
	if !strings.EqualFold(path.Ext(rel), pipeline.InputExtension) {
		return "", false
	}
	return rel, true
}

// Open implements pipeline.Source.
func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	object := joinPrefix(b.prefix, name)
	rc, err := b.client.Bucket(b.name).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Bucket.Open: reading object %s/%s: %w", b.name, object, err)
	}
	return rc, nil
}

// Create implements pipeline.Destination. The object only becomes visible
// when the writer is closed.
func (b *Bucket) Create(ctx context.Context, name string, columns []string) (pipeline.RecordWriter, error) {
	ctx, cancel := context.WithCancel(ctx)

	w := b.client.Bucket(b.name).Object(joinPrefix(b.outputPrefix, name)).NewWriter(ctx)
	w.ContentType = "text/csv"

	cw, err := csvio.NewWriter(w, columns)
	if err != nil {
		cancel()
		return nil, err
	}
	return &objectWriter{w: w, cw: cw, cancel: cancel}, nil
}

type objectWriter struct {
	w      *storage.Writer
	cw     *csvio.Writer
	cancel context.CancelFunc
}

func (o *objectWriter) Write(ctx context.Context, line int, rec schema.CanonicalRecord) error {
	return o.cw.Write(rec)
}

func (o *objectWriter) Close() error {
	defer o.cancel()
	if err := o.cw.Close(); err != nil {
		return err
	}
	if err := o.w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// Abort cancels the upload; nothing is written to the bucket.
func (o *objectWriter) Abort() error {
	o.cancel()
	_ = o.w.Close()
	return nil
}

var (
	_ pipeline.Source      = (*Bucket)(nil)
	_ pipeline.Destination = (*Bucket)(nil)
)
