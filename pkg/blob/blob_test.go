package blob

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"testing"

	"skiff/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestPutGetRoundTrip(t *testing.T) {
	openTestStore(t)

	data := []byte("hello skiff")
	etag, err := PutObject("acme", "greeting.txt", data, "text/plain")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	sum := md5.Sum(data)
	if etag != hex.EncodeToString(sum[:]) {
		t.Fatalf("etag = %q, want md5 hex of payload", etag)
	}

	got, meta, err := GetObject("acme", "greeting.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("payload mismatch: got %q", got)
	}
	if meta.Size != int64(len(data)) || meta.ContentType != "text/plain" || meta.ETag != etag {
		t.Fatalf("meta mismatch: %+v", meta)
	}
	if meta.LastModified.IsZero() {
		t.Fatalf("last modified not set")
	}
}

func TestEmptyObject(t *testing.T) {
	openTestStore(t)

	if _, err := PutObject("acme", "empty", nil, ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, meta, err := GetObject("acme", "empty")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 || meta.Size != 0 {
		t.Fatalf("expected zero-byte object, got %d bytes", len(got))
	}
}

func TestMultiChunkObject(t *testing.T) {
	openTestStore(t)
	SetChunkSize(1024)
	t.Cleanup(func() { SetChunkSize(DefaultChunkSize) })

	data := payload(3000)
	if _, err := PutObject("acme", "big.bin", data, "application/octet-stream"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, meta, err := GetObject("acme", "big.bin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("multi-chunk payload corrupted")
	}
	if meta.Size != 3000 {
		t.Fatalf("size = %d, want 3000", meta.Size)
	}

	// shrinking an object must drop stale chunk rows
	small := payload(10)
	if _, err := PutObject("acme", "big.bin", small, ""); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, err = GetObject("acme", "big.bin")
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if !bytes.Equal(got, small) {
		t.Fatalf("overwrite left stale chunks: got %d bytes", len(got))
	}
}

func TestTrailingSlashKeysAreDistinct(t *testing.T) {
	openTestStore(t)

	if _, err := PutObject("acme", "foo", []byte("file"), ""); err != nil {
		t.Fatalf("put foo: %v", err)
	}
	if _, err := PutObject("acme", "foo/", nil, ""); err != nil {
		t.Fatalf("put foo/: %v", err)
	}
	got, _, err := GetObject("acme", "foo")
	if err != nil || string(got) != "file" {
		t.Fatalf("foo = %q, %v", got, err)
	}
	got, _, err = GetObject("acme", "foo/")
	if err != nil || len(got) != 0 {
		t.Fatalf("foo/ = %q, %v", got, err)
	}
}

func TestGetMissingKey(t *testing.T) {
	openTestStore(t)

	if _, _, err := GetObject("acme", "nope"); !errors.Is(err, ErrNoSuchKey) {
		t.Fatalf("err = %v, want ErrNoSuchKey", err)
	}
	if _, err := HeadObject("acme", "nope"); !errors.Is(err, ErrNoSuchKey) {
		t.Fatalf("head err = %v, want ErrNoSuchKey", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	openTestStore(t)

	if _, err := PutObject("acme", "gone", []byte("x"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := DeleteObject("acme", "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := GetObject("acme", "gone"); !errors.Is(err, ErrNoSuchKey) {
		t.Fatalf("object survived delete: %v", err)
	}
	if err := DeleteObject("acme", "gone"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestListObjects(t *testing.T) {
	openTestStore(t)

	for _, k := range []string{"foo/a", "foo/b", "bar/c"} {
		if _, err := PutObject("acme", k, []byte(k), ""); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	res, err := ListObjects("acme", "", "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Objects) != 3 || res.IsTruncated {
		t.Fatalf("full listing: %d objects, truncated=%v", len(res.Objects), res.IsTruncated)
	}
	// lexicographic order
	if res.Objects[0].Key != "bar/c" || res.Objects[2].Key != "foo/b" {
		t.Fatalf("order wrong: %v", res.Objects)
	}

	res, err = ListObjects("acme", "foo/", "", 0)
	if err != nil {
		t.Fatalf("list prefix: %v", err)
	}
	if len(res.Objects) != 2 {
		t.Fatalf("prefix filter returned %d objects", len(res.Objects))
	}

	res, err = ListObjects("acme", "", "", 2)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(res.Objects) != 2 || !res.IsTruncated || res.NextContinuationToken == "" {
		t.Fatalf("pagination: objects=%d truncated=%v token=%q", len(res.Objects), res.IsTruncated, res.NextContinuationToken)
	}

	res, err = ListObjects("acme", "", res.NextContinuationToken, 2)
	if err != nil {
		t.Fatalf("list resume: %v", err)
	}
	if len(res.Objects) != 1 || res.IsTruncated {
		t.Fatalf("resume page: objects=%d truncated=%v", len(res.Objects), res.IsTruncated)
	}
	if res.Objects[0].Key != "foo/b" {
		t.Fatalf("resume key = %q", res.Objects[0].Key)
	}
}

func TestBucketsAreIsolated(t *testing.T) {
	openTestStore(t)

	if _, err := PutObject("acme", "shared", []byte("acme"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, _, err := GetObject("globex", "shared"); !errors.Is(err, ErrNoSuchKey) {
		t.Fatalf("cross-bucket read succeeded: %v", err)
	}
	res, err := ListObjects("globex", "", "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Objects) != 0 {
		t.Fatalf("bucket leak: %v", res.Objects)
	}
}

func TestMultipartUpload(t *testing.T) {
	openTestStore(t)
	SetChunkSize(1024)
	t.Cleanup(func() { SetChunkSize(DefaultChunkSize) })

	id, err := CreateMultipartUpload("acme", "multi.bin", "application/octet-stream")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p1 := payload(2500)
	p2 := payload(700)
	if _, err := UploadPart(id, 1, p1); err != nil {
		t.Fatalf("part 1: %v", err)
	}
	if _, err := UploadPart(id, 2, p2); err != nil {
		t.Fatalf("part 2: %v", err)
	}

	etag, err := CompleteMultipartUpload(id)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	want := append(append([]byte(nil), p1...), p2...)
	got, meta, err := GetObject("acme", "multi.bin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("assembled payload mismatch: got %d bytes, want %d", len(got), len(want))
	}
	if meta.ETag != etag || meta.ContentType != "application/octet-stream" {
		t.Fatalf("meta mismatch: %+v", meta)
	}

	// upload state is gone after completion
	if _, err := GetUpload(id); !errors.Is(err, ErrNoSuchUpload) {
		t.Fatalf("upload survived completion: %v", err)
	}
}

func TestMultipartPartReplacement(t *testing.T) {
	openTestStore(t)

	id, err := CreateMultipartUpload("acme", "replace.bin", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := UploadPart(id, 1, []byte("first attempt")); err != nil {
		t.Fatalf("part: %v", err)
	}
	if _, err := UploadPart(id, 1, []byte("final")); err != nil {
		t.Fatalf("re-upload part: %v", err)
	}
	if _, err := CompleteMultipartUpload(id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _, err := GetObject("acme", "replace.bin")
	if err != nil || string(got) != "final" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestMultipartAbort(t *testing.T) {
	openTestStore(t)

	id, err := CreateMultipartUpload("acme", "aborted.bin", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := UploadPart(id, 1, []byte("doomed")); err != nil {
		t.Fatalf("part: %v", err)
	}
	if err := AbortMultipartUpload(id); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if _, err := GetUpload(id); !errors.Is(err, ErrNoSuchUpload) {
		t.Fatalf("upload survived abort: %v", err)
	}
	if _, _, err := GetObject("acme", "aborted.bin"); !errors.Is(err, ErrNoSuchKey) {
		t.Fatalf("aborted upload produced an object: %v", err)
	}
	if _, err := UploadPart(id, 2, []byte("late")); !errors.Is(err, ErrNoSuchUpload) {
		t.Fatalf("part accepted after abort: %v", err)
	}
}

func TestMultipartCompleteWithoutParts(t *testing.T) {
	openTestStore(t)

	id, err := CreateMultipartUpload("acme", "hollow.bin", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CompleteMultipartUpload(id); !errors.Is(err, ErrNoParts) {
		t.Fatalf("err = %v, want ErrNoParts", err)
	}
}

func TestMultipartUnknownUpload(t *testing.T) {
	openTestStore(t)

	if _, err := UploadPart("missing", 1, []byte("x")); !errors.Is(err, ErrNoSuchUpload) {
		t.Fatalf("upload part: %v", err)
	}
	if _, err := CompleteMultipartUpload("missing"); !errors.Is(err, ErrNoSuchUpload) {
		t.Fatalf("complete: %v", err)
	}
}
