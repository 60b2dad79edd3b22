// Package blob implements the chunked object engine behind the S3 surface.
// Objects are decomposed into bounded-size chunk rows so the storage engine
// never sees a value larger than the chunk ceiling; chunk 0 carries the
// object metadata alongside its data slice.
package blob

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"

	"skiff/pkg/logger"
	"skiff/pkg/store"
)

// DefaultChunkSize keeps each row safely under the storage engine's
// practical value ceiling.
const DefaultChunkSize = 1 << 20

var chunkSize = int64(DefaultChunkSize)

// SetChunkSize overrides the chunk ceiling. Zero or negative restores the
// default. Call once at startup before any writes.
func SetChunkSize(n int64) {
	if n <= 0 {
		n = DefaultChunkSize
	}
	chunkSize = n
}

var (
	ErrNoSuchKey    = errors.New("no such key")
	ErrNoSuchUpload = errors.New("no such upload")
	ErrNoParts      = errors.New("upload has no parts")
)

// ObjectMeta is the metadata carried by chunk 0.
type ObjectMeta struct {
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectInfo is one listing entry.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListResult is a bounded page of a bucket listing.
type ListResult struct {
	Objects               []ObjectInfo
	MaxKeys               int
	IsTruncated           bool
	NextContinuationToken string
}

// chunk 0 value framing: 4-byte big-endian meta length, JSON meta, then
// that chunk's data bytes. Chunks >= 1 are raw data.
func encodeChunk0(meta ObjectMeta, data []byte) ([]byte, error) {
	mb, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(mb)+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(mb)))
	copy(out[4:], mb)
	copy(out[4+len(mb):], data)
	return out, nil
}

func decodeChunk0(v []byte) (ObjectMeta, []byte, error) {
	var meta ObjectMeta
	if len(v) < 4 {
		return meta, nil, fmt.Errorf("chunk 0 too short: %d bytes", len(v))
	}
	mlen := binary.BigEndian.Uint32(v)
	if int(4+mlen) > len(v) {
		return meta, nil, fmt.Errorf("chunk 0 meta length %d exceeds row", mlen)
	}
	if err := json.Unmarshal(v[4:4+mlen], &meta); err != nil {
		return meta, nil, fmt.Errorf("chunk 0 meta: %w", err)
	}
	return meta, v[4+mlen:], nil
}

// etagFor is the whole-object content digest used as the ETag.
func etagFor(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// writeChunked splits data into chunk rows under keyFn and stages them on
// the batch. Chunk 0 is always written, even for empty payloads.
func writeChunked(b *pebble.Batch, keyFn func(chunk int) []byte, meta ObjectMeta, data []byte) error {
	first := data
	if int64(len(first)) > chunkSize {
		first = data[:chunkSize]
	}
	c0, err := encodeChunk0(meta, first)
	if err != nil {
		return err
	}
	if err := b.Set(keyFn(0), c0, nil); err != nil {
		return err
	}
	rest := data[len(first):]
	for i := 1; len(rest) > 0; i++ {
		n := chunkSize
		if int64(len(rest)) < n {
			n = int64(len(rest))
		}
		if err := b.Set(keyFn(i), rest[:n], nil); err != nil {
			return err
		}
		rest = rest[n:]
	}
	return nil
}

// deleteChunked stages deletes for every chunk row under prefix.
func deleteChunked(b *pebble.Batch, prefix []byte) error {
	return store.PrefixScan(prefix, func(k, _ []byte) bool {
		_ = b.Delete(append([]byte(nil), k...), nil)
		return true
	})
}

// PutObject stores data under (bucket, key), replacing any prior chunks
// atomically in one batch. Returns the new etag.
func PutObject(bucket, key string, data []byte, contentType string) (string, error) {
	meta := ObjectMeta{
		Size:         int64(len(data)),
		ETag:         etagFor(data),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	}
	b, err := store.Batch()
	if err != nil {
		return "", err
	}
	if err := deleteChunked(b, objPrefix(bucket, key)); err != nil {
		b.Close()
		return "", err
	}
	if err := writeChunked(b, func(c int) []byte { return objChunkKey(bucket, key, c) }, meta, data); err != nil {
		b.Close()
		return "", err
	}
	if err := store.Apply(b); err != nil {
		logger.Error("put_object_failed", "bucket", bucket, "key", key, "error", err)
		return "", err
	}
	logger.Info("object_stored", "bucket", bucket, "key", key, "size", meta.Size, "etag", meta.ETag)
	return meta.ETag, nil
}

// HeadObject returns metadata without touching data chunks.
func HeadObject(bucket, key string) (ObjectMeta, error) {
	v, err := store.Get(objChunkKey(bucket, key, 0))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ObjectMeta{}, ErrNoSuchKey
		}
		return ObjectMeta{}, err
	}
	meta, _, err := decodeChunk0(v)
	return meta, err
}

// GetObject reassembles the full payload by concatenating chunks in
// ascending chunk-index order; the result is exactly meta.Size bytes.
func GetObject(bucket, key string) ([]byte, ObjectMeta, error) {
	v, err := store.Get(objChunkKey(bucket, key, 0))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ObjectMeta{}, ErrNoSuchKey
		}
		return nil, ObjectMeta{}, err
	}
	meta, first, err := decodeChunk0(v)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	buf := make([]byte, 0, meta.Size)
	buf = append(buf, first...)
	if int64(len(buf)) < meta.Size {
		chunk0 := objChunkKey(bucket, key, 0)
		err = store.PrefixScan(objPrefix(bucket, key), func(k, val []byte) bool {
			// chunk 0 already consumed
			if bytes.Equal(k, chunk0) {
				return true
			}
			buf = append(buf, val...)
			return true
		})
		if err != nil {
			return nil, ObjectMeta{}, err
		}
	}
	if int64(len(buf)) != meta.Size {
		return nil, ObjectMeta{}, fmt.Errorf("object %s/%s: reassembled %d bytes, want %d", bucket, key, len(buf), meta.Size)
	}
	return buf, meta, nil
}

// DeleteObject removes all chunk rows. Deleting a nonexistent key succeeds.
func DeleteObject(bucket, key string) error {
	if err := store.DeletePrefix(objPrefix(bucket, key)); err != nil {
		return err
	}
	logger.Info("object_deleted", "bucket", bucket, "key", key)
	return nil
}

// ListObjects returns chunk-0 rows of the bucket filtered by simple string
// prefix, ordered lexicographically by key, resuming after startAfter.
// maxKeys+1 candidates are collected internally to detect truncation.
func ListObjects(bucket, prefix, startAfter string, maxKeys int) (ListResult, error) {
	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}
	var res ListResult
	res.MaxKeys = maxKeys

	lower := bucketPrefix(bucket)
	if startAfter != "" {
		lower = afterObjPrefix(bucket, startAfter)
	}
	iter, err := store.NewIter(&pebble.IterOptions{})
	if err != nil {
		return res, err
	}
	defer iter.Close()

	bp := bucketPrefix(bucket)
	for iter.SeekGE(lower); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, bp) {
			break
		}
		rest := k[len(bp):]
		// rest = <key>\0<%08d chunk>
		i := bytes.LastIndexByte(rest, 0)
		if i < 0 || len(rest)-i-1 != 8 {
			continue
		}
		objKey := string(rest[:i])
		chunk, cerr := strconv.Atoi(string(rest[i+1:]))
		if cerr != nil || chunk != 0 {
			continue
		}
		if prefix != "" && !bytes.HasPrefix(rest[:i], []byte(prefix)) {
			// keys are sorted; once past the prefix range we can stop
			if bytes.Compare(rest[:i], []byte(prefix)) > 0 {
				break
			}
			continue
		}
		meta, _, derr := decodeChunk0(iter.Value())
		if derr != nil {
			return res, derr
		}
		res.Objects = append(res.Objects, ObjectInfo{
			Key:          objKey,
			Size:         meta.Size,
			ETag:         meta.ETag,
			LastModified: meta.LastModified,
		})
		if len(res.Objects) > maxKeys {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return res, err
	}
	if len(res.Objects) > maxKeys {
		res.Objects = res.Objects[:maxKeys]
		res.IsTruncated = true
		res.NextContinuationToken = res.Objects[len(res.Objects)-1].Key
	}
	return res, nil
}
