// Package storage はアップロード画像を保存するBlobストレージを提供する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultCacheControl はCacheControl未指定時のキャッシュ秒数。
const DefaultCacheControl = "3600"

var (
	// ErrInvalidPath はバケット名またはパスが不正な場合のエラー。
	ErrInvalidPath = errors.New("invalid storage path")
	// ErrAlreadyExists はUpsert=falseで既存のオブジェクトに書き込もうとした場合のエラー。
	ErrAlreadyExists = errors.New("object already exists")
	// ErrNotFound はオブジェクトが存在しない場合のエラー。
	ErrNotFound = errors.New("object not found")
)

// UploadOptions はアップロード時の指定。
type UploadOptions struct {
	CacheControl string // キャッシュ秒数。空の場合はDefaultCacheControl
	Upsert       bool   // trueの場合は既存のオブジェクトを上書きする
}

// Store はBlobストレージのインターフェース。
type Store interface {
	Upload(ctx context.Context, bucket, objectPath string, body io.Reader, opts UploadOptions) (string, error)
	PublicURL(bucket, objectPath string) string
}

// Object は読み出したオブジェクト。呼び出し側でCloseすること。
type Object struct {
	io.ReadSeekCloser
	Name         string
	CacheControl string
}

// LocalStore はローカルファイルシステムに保存するStore。
// オブジェクトはroot/bucket/pathに、キャッシュ指定は隣接する.cache-controlファイルに保存する。
type LocalStore struct {
	root          string
	publicBaseURL string
}

var _ Store = (*LocalStore)(nil)

const cacheControlSuffix = ".cache-control"

// NewLocalStore はLocalStoreを生成する。
// publicBaseURLは公開URLの接頭辞（例: https://example.com/uploads）。
func NewLocalStore(root, publicBaseURL string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{
		root:          root,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Upload はbodyをbucket/objectPathに保存し、保存したキー（bucket/objectPath）を返す。
func (s *LocalStore) Upload(ctx context.Context, bucket, objectPath string, body io.Reader, opts UploadOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(bucket, objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if opts.Upsert {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("failed to open object: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close object: %w", err)
	}

	cacheControl := opts.CacheControl
	if cacheControl == "" {
		cacheControl = DefaultCacheControl
	}
	if err := os.WriteFile(full+cacheControlSuffix, []byte(cacheControl), 0o644); err != nil {
		return "", fmt.Errorf("failed to write cache control: %w", err)
	}

	return bucket + "/" + cleanObjectPath(objectPath), nil
}

// PublicURL はオブジェクトの公開URLを返す。
func (s *LocalStore) PublicURL(bucket, objectPath string) string {
	segments := strings.Split(cleanObjectPath(objectPath), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// Open はオブジェクトを読み出す。
func (s *LocalStore) Open(bucket, objectPath string) (*Object, error) {
	full, err := s.resolve(bucket, objectPath)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(full, cacheControlSuffix) {
		return nil, ErrNotFound
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	cacheControl := DefaultCacheControl
	if b, err := os.ReadFile(full + cacheControlSuffix); err == nil {
		cacheControl = strings.TrimSpace(string(b))
	}

	return &Object{ReadSeekCloser: f, Name: info.Name(), CacheControl: cacheControl}, nil
}

// resolve はバケットとパスを検証し、ファイルシステム上のパスを返す。
func (s *LocalStore) resolve(bucket, objectPath string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\.`) {
		return "", ErrInvalidPath
	}
	if objectPath == "" || strings.Contains(objectPath, `\`) || strings.HasPrefix(objectPath, "/") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(objectPath, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(path.Clean(objectPath))), nil
}

func cleanObjectPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
