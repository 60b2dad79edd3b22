package blob

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"skiff/pkg/logger"
	"skiff/pkg/store"
	"skiff/pkg/utils"
)

// UploadMeta is the bookkeeping row for an in-flight multipart upload.
type UploadMeta struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateMultipartUpload mints a fresh opaque upload id and stores the
// upload metadata.
func CreateMultipartUpload(bucket, key, contentType string) (string, error) {
	id := utils.GenUploadID()
	meta := UploadMeta{Bucket: bucket, Key: key, ContentType: contentType, CreatedAt: time.Now().UTC()}
	mb, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	if err := store.Set(uploadKey(id), mb); err != nil {
		return "", err
	}
	logger.Info("multipart_created", "bucket", bucket, "key", key, "upload_id", id)
	return id, nil
}

// GetUpload returns the upload metadata or ErrNoSuchUpload.
func GetUpload(uploadID string) (UploadMeta, error) {
	var meta UploadMeta
	v, err := store.Get(uploadKey(uploadID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return meta, ErrNoSuchUpload
		}
		return meta, err
	}
	if err := json.Unmarshal(v, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// UploadPart stores one part's payload, chunked like an object, replacing
// any prior data for that (uploadID, partNumber). Returns the part etag.
func UploadPart(uploadID string, partNumber int, data []byte) (string, error) {
	if _, err := GetUpload(uploadID); err != nil {
		return "", err
	}
	meta := ObjectMeta{
		Size:         int64(len(data)),
		ETag:         etagFor(data),
		LastModified: time.Now().UTC(),
	}
	b, err := store.Batch()
	if err != nil {
		return "", err
	}
	if err := deleteChunked(b, partPrefix(uploadID, partNumber)); err != nil {
		b.Close()
		return "", err
	}
	if err := writeChunked(b, func(c int) []byte { return partChunkKey(uploadID, partNumber, c) }, meta, data); err != nil {
		b.Close()
		return "", err
	}
	if err := store.Apply(b); err != nil {
		return "", err
	}
	logger.Info("part_stored", "upload_id", uploadID, "part", partNumber, "size", meta.Size)
	return meta.ETag, nil
}

// CompleteMultipartUpload concatenates the parts in ascending part-number
// order into a fresh object under the upload's (bucket, key), then removes
// all upload state. An upload with zero parts cannot be completed.
func CompleteMultipartUpload(uploadID string) (string, error) {
	up, err := GetUpload(uploadID)
	if err != nil {
		return "", err
	}

	// keys embed zero-padded part numbers, so the scan yields parts in order
	var payload []byte
	seen := 0
	err = store.PrefixScan(partsPrefix(uploadID), func(k, v []byte) bool {
		// rest = <part>\0<chunk>
		rest := k[len(partsPrefix(uploadID)):]
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			return true
		}
		chunk, cerr := strconv.Atoi(string(rest[i+1:]))
		if cerr != nil {
			return true
		}
		if chunk == 0 {
			seen++
			_, data, derr := decodeChunk0(v)
			if derr != nil {
				return true
			}
			payload = append(payload, data...)
			return true
		}
		payload = append(payload, v...)
		return true
	})
	if err != nil {
		return "", err
	}
	if seen == 0 {
		return "", ErrNoParts
	}

	etag, err := PutObject(up.Bucket, up.Key, payload, up.ContentType)
	if err != nil {
		return "", err
	}
	if err := cleanupUpload(uploadID); err != nil {
		// object is durable; bookkeeping is best-effort from here
		logger.Warn("multipart_cleanup_failed", "upload_id", uploadID, "error", err)
	}
	logger.Info("multipart_completed", "bucket", up.Bucket, "key", up.Key, "upload_id", uploadID, "parts", seen, "size", len(payload))
	return etag, nil
}

// AbortMultipartUpload deletes all part data and the upload record without
// creating an object. Aborting an unknown upload succeeds.
func AbortMultipartUpload(uploadID string) error {
	if err := cleanupUpload(uploadID); err != nil {
		return err
	}
	logger.Info("multipart_aborted", "upload_id", uploadID)
	return nil
}

func cleanupUpload(uploadID string) error {
	b, err := store.Batch()
	if err != nil {
		return err
	}
	if err := deleteChunked(b, partsPrefix(uploadID)); err != nil {
		b.Close()
		return err
	}
	if err := b.Delete(uploadKey(uploadID), nil); err != nil {
		b.Close()
		return err
	}
	return store.Apply(b)
}
