// Package gcsfetch moves invoice archives and batch reports between the
// local working directories and Cloud Storage.
package gcsfetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/dmorales/accounting-etl/internal/logger"
)

// DownloadArchives pulls every .zip object under bucket/prefix into destDir
// and returns the local paths written. Objects that are not archives are
// skipped. It assumes Application Default Credentials are configured.
func DownloadArchives(ctx context.Context, bucketName, prefix, destDir string) ([]string, error) {
	log := logger.FromContext(ctx)

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("DownloadArchives: create storage client: %w", err)
	}
	defer client.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("DownloadArchives: create dest dir %q: %w", destDir, err)
	}

	it := client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix})

	var downloaded []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return downloaded, fmt.Errorf("DownloadArchives: listing objects: %w", err)
		}
		if !strings.EqualFold(path.Ext(attrs.Name), ".zip") {
			continue
		}

		dest := filepath.Join(destDir, path.Base(attrs.Name))
		if err := downloadObject(ctx, client, bucketName, attrs.Name, dest); err != nil {
			return downloaded, fmt.Errorf("DownloadArchives: %w", err)
		}
		log.Debug().Str("object", attrs.Name).Str("dest", dest).Msg("downloaded archive")
		downloaded = append(downloaded, dest)
	}

	log.Info().Int("count", len(downloaded)).Str("bucket", bucketName).Str("prefix", prefix).
		Msg("archives downloaded")
	return downloaded, nil
}

func downloadObject(ctx context.Context, client *storage.Client, bucketName, objectName, dest string) error {
	rc, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open object %s/%s: %w", bucketName, objectName, err)
	}
	defer rc.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file %q: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("copy object %s/%s: %w", bucketName, objectName, err)
	}
	return f.Close()
}

// UploadReport pushes a local batch report to the bucket under the given
// object name.
func UploadReport(ctx context.Context, bucketName, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("UploadReport: open file %q: %w", filePath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("UploadReport: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("UploadReport: copy file to writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("UploadReport: finalize upload: %w", err)
	}
	return nil
}
