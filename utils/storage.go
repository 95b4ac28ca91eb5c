package utils

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

func NewGCSClient(ctx context.Context) (*storage.Client, string, error) {
	bucket := os.Getenv("GCS_BUCKET")
	credentialsPath := os.Getenv("CREDENTIALS_FILE_LOCATION")
	if bucket == "" || credentialsPath == "" {
		return nil, "", fmt.Errorf("missing GCS env vars (GCS_BUCKET, CREDENTIALS_FILE_LOCATION)")
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	client, err := storage.NewClient(ctx, option.WithAuthCredentialsFile(option.ServiceAccount, filepath.Join(wd, credentialsPath)))
	if err != nil {
		return nil, "", err
	}
	return client, bucket, nil
}

func UploadProductImagesToGCS(
	ctx context.Context,
	gcs *storage.Client,
	bucketName string,
	productSlug string,
	files []*multipart.FileHeader,
) ([]string, error) {

	if len(files) < 1 || len(files) > MaxProductImages() {
		return nil, fmt.Errorf("images must be 1 to %d", MaxProductImages())
	}

	v := NewImageValidator()
	urls := make([]string, 0, len(files))

	for _, fh := range files {
		ct, err := v.ValidateFile(fh)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}

		ext := strings.ToLower(filepath.Ext(fh.Filename))
		objectName := fmt.Sprintf("products/%s/%d-%s%s", productSlug, time.Now().UTC().Unix(), uuid.New().String(), ext)

		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}

		w := gcs.Bucket(bucketName).Object(objectName).NewWriter(ctx)
		w.ContentType = ct
		w.CacheControl = "no-cache"

		if _, err := io.Copy(w, f); err != nil {
			_ = f.Close()
			_ = w.Close()
			return nil, fmt.Errorf("upload copy: %w", err)
		}
		_ = f.Close()

		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("upload close: %w", err)
		}

		urls = append(urls, fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucketName, objectName))
	}

	return urls, nil
}

func DeleteGCSObjects(ctx context.Context, client *storage.Client, bucket string, objectNames []string) error {
	var firstErr error

	for _, obj := range objectNames {
		if obj == "" {
			continue
		}
		err := client.Bucket(bucket).Object(obj).Delete(ctx)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete %s: %w", obj, err)
		}
	}

	return firstErr
}

func MaxProductImages() int {
	n, err := strconv.Atoi(os.Getenv("MAX_PROD_IMAGES"))
	if err != nil || n < 1 {
		n = 4
	}
	return n
}

type FileValidator struct {
	allowedExt  map[string]bool
	allowedMime map[string]bool
	maxSize     int64
}

func NewImageValidator() *FileValidator {
	allowedExt := map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
	if raw := os.Getenv("ALLOWED_FILE_EXTENSIONS"); raw != "" {
		allowedExt = make(map[string]bool)
		for _, ext := range strings.Split(raw, ",") {
			if ext = strings.TrimSpace(strings.ToLower(ext)); ext != "" {
				allowedExt[ext] = true
			}
		}
	}

	allowedMime := map[string]bool{"image/jpeg": true, "image/png": true, "image/webp": true}
	if raw := os.Getenv("ALLOWED_FILE_MIME_TYPES"); raw != "" {
		allowedMime = make(map[string]bool)
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(strings.ToLower(m)); m != "" {
				allowedMime[m] = true
			}
		}
	}

	sizeMB := 5
	if v := os.Getenv("MAX_UPLOAD_SIZE_MB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			sizeMB = parsed
		}
	}

	return &FileValidator{
		allowedExt:  allowedExt,
		allowedMime: allowedMime,
		maxSize:     int64(sizeMB) << 20,
	}
}

func (v *FileValidator) ValidateFile(fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > v.maxSize {
		return "", fmt.Errorf("file too large (max %d MB)", v.maxSize>>20)
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !v.allowedExt[ext] {
		return "", fmt.Errorf("invalid file extension")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	buffer := make([]byte, 512)
	if _, err = file.Read(buffer); err != nil {
		return "", fmt.Errorf("failed to read file header")
	}
	if _, err = file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("failed to reset file reader")
	}

	detectedMime := strings.ToLower(http.DetectContentType(buffer))
	if !v.allowedMime[detectedMime] {
		if fallback := mime.TypeByExtension(ext); fallback != "" && v.allowedMime[strings.ToLower(fallback)] {
			return fallback, nil
		}
		return "", fmt.Errorf("invalid file type")
	}

	return detectedMime, nil
}
