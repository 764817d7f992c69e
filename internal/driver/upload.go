// Package driver はドライバーのプロフィール、走行記録、ポスター確認と
// 管理者向けの一覧・審査のドメインロジックを提供する。
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/storage"
)

// バケット名
const (
	BucketDriverUploads       = "driver-uploads"
	BucketTripUploads         = "trip-uploads"
	BucketVerificationUploads = "verification-uploads"
)

// Upload はアップロードされた画像ファイル。
type Upload struct {
	Name string
	Body io.Reader
}

// objectPath は保存先のパスを組み立てる。
// 形式: {prefix}/{userID}/{unixMillis}-{slot-}{name}
func objectPath(prefix, userID string, at time.Time, slot, name string) string {
	base := safeFileName(name)
	if slot != "" {
		base = slot + "-" + base
	}
	return fmt.Sprintf("%s/%s/%d-%s", prefix, userID, at.UnixMilli(), base)
}

// safeFileName はファイル名から安全な文字以外を'-'に置き換える。
func safeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		name = ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), ".-")
	if out == "" {
		return "image"
	}
	return out
}

// uploadImage は画像を保存し、bucket/pathのキーを返す。
func uploadImage(ctx context.Context, store storage.Store, bucket, objectPath string, up *Upload) (string, error) {
	key, err := store.Upload(ctx, bucket, objectPath, up.Body, storage.UploadOptions{CacheControl: storage.DefaultCacheControl})
	if err != nil {
		slog.Error("image upload failed",
			slog.String("bucket", bucket),
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		return "", model.NewUploadFailedError()
	}
	return key, nil
}
