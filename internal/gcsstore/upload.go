package gcsstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/bank-normalizer/internal/pipeline"
)

// UploadTimeout bounds a single Upload.
const UploadTimeout = 2 * time.Minute

// Upload copies a local statement file into the bucket under the input
// prefix, so a later List sees it as name. Only .csv files are accepted.
func (b *Bucket) Upload(ctx context.Context, localPath, name string) (string, error) {
	if name == "" {
		name = path.Base(strings.ReplaceAll(localPath, `\`, "/"))
	}
	if !strings.EqualFold(path.Ext(name), pipeline.InputExtension) {
		return "", fmt.Errorf("Bucket.Upload: %s is not a %s file", name, pipeline.InputExtension)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("Bucket.Upload: open %q: %w", localPath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, UploadTimeout)
	defer cancel()

	object := joinPrefix(b.prefix, name)
	w := b.client.Bucket(b.name).Object(object).NewWriter(ctx)
	w.ContentType = "text/csv"
	w.Metadata = map[string]string{"source_path": localPath}

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Bucket.Upload: copy to gs://%s/%s: %w", b.name, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Bucket.Upload: finalize gs://%s/%s: %w", b.name, object, err)
	}
	return fmt.Sprintf("gs://%s/%s", b.name, object), nil
}
