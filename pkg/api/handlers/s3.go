package handlers

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"skiff/pkg/blob"
	"skiff/pkg/logger"
	"skiff/pkg/tenant"
	"skiff/pkg/utils"
)

// The blob listener speaks the path-style object protocol: bucket-level
// listing plus object get/head/put/delete and the multipart verbs, all
// dispatched on method and query shape.

type s3Error struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestId string   `xml:"RequestId"`
}

type s3Object struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type listBucketResult struct {
	XMLName               xml.Name   `xml:"ListBucketResult"`
	Name                  string     `xml:"Name"`
	Prefix                string     `xml:"Prefix"`
	KeyCount              int        `xml:"KeyCount"`
	MaxKeys               int        `xml:"MaxKeys"`
	IsTruncated           bool       `xml:"IsTruncated"`
	NextContinuationToken string     `xml:"NextContinuationToken,omitempty"`
	Contents              []s3Object `xml:"Contents"`
}

type initiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadId string   `xml:"UploadId"`
}

type completeMultipartUploadResult struct {
	XMLName xml.Name `xml:"CompleteMultipartUploadResult"`
	Bucket  string   `xml:"Bucket"`
	Key     string   `xml:"Key"`
	ETag    string   `xml:"ETag"`
}

type completeMultipartUploadRequest struct {
	XMLName xml.Name `xml:"CompleteMultipartUpload"`
	Parts   []struct {
		PartNumber int    `xml:"PartNumber"`
		ETag       string `xml:"ETag"`
	} `xml:"Part"`
}

// RegisterBlob mounts the object protocol onto the blob listener's router.
func RegisterBlob(r *mux.Router) {
	r.HandleFunc("/{bucket}", bucketHandler)
	r.HandleFunc("/{bucket}/", bucketHandler)
	r.HandleFunc("/{bucket}/{key:.+}", objectHandler)
}

func s3Fail(w http.ResponseWriter, code string) {
	status := http.StatusInternalServerError
	switch code {
	case "NoSuchBucket", "NoSuchKey", "NoSuchUpload":
		status = http.StatusNotFound
	case "InvalidPart":
		status = http.StatusBadRequest
	case "NotImplemented":
		status = http.StatusNotImplemented
	}
	writeXML(w, status, s3Error{
		Code:      code,
		Message:   code,
		RequestId: utils.GenRequestID(),
	})
}

func bucketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s3Fail(w, "NotImplemented")
		return
	}
	bucket := mux.Vars(r)["bucket"]
	q := r.URL.Query()

	maxKeys := 0
	if v := q.Get("max-keys"); v != "" {
		maxKeys, _ = strconv.Atoi(v)
	}
	startAfter := q.Get("start-after")
	if tok := q.Get("continuation-token"); tok != "" {
		startAfter = tok
	}

	res, err := blob.ListObjects(bucket, q.Get("prefix"), startAfter, maxKeys)
	if err != nil {
		logger.Error("blob_list_failed", "bucket", bucket, "error", err)
		s3Fail(w, "InternalError")
		return
	}
	if len(res.Objects) == 0 {
		if _, terr := tenant.Get(bucket); errors.Is(terr, tenant.ErrNotFound) {
			s3Fail(w, "NoSuchBucket")
			return
		}
	}

	out := listBucketResult{
		Name:                  bucket,
		Prefix:                q.Get("prefix"),
		KeyCount:              len(res.Objects),
		MaxKeys:               res.MaxKeys,
		IsTruncated:           res.IsTruncated,
		NextContinuationToken: res.NextContinuationToken,
	}
	for _, o := range res.Objects {
		out.Contents = append(out.Contents, s3Object{
			Key:          o.Key,
			LastModified: o.LastModified.UTC().Format(time.RFC3339),
			ETag:         `"` + o.ETag + `"`,
			Size:         o.Size,
			StorageClass: "STANDARD",
		})
	}
	blobOps.WithLabelValues("list").Inc()
	writeXML(w, http.StatusOK, out)
}

func objectHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, key := vars["bucket"], vars["key"]
	q := r.URL.Query()

	switch {
	case r.Method == http.MethodPost && q.Has("uploads"):
		initiateUpload(w, r, bucket, key)
	case r.Method == http.MethodPost && q.Get("uploadId") != "":
		completeUpload(w, r, q.Get("uploadId"))
	case r.Method == http.MethodPut && q.Get("uploadId") != "":
		uploadPart(w, r, q.Get("uploadId"), q.Get("partNumber"))
	case r.Method == http.MethodPut:
		putObject(w, r, bucket, key)
	case r.Method == http.MethodGet:
		getObject(w, r, bucket, key, false)
	case r.Method == http.MethodHead:
		getObject(w, r, bucket, key, true)
	case r.Method == http.MethodDelete && q.Get("uploadId") != "":
		abortUpload(w, q.Get("uploadId"))
	case r.Method == http.MethodDelete:
		deleteObject(w, bucket, key)
	default:
		s3Fail(w, "NotImplemented")
	}
}

func putObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s3Fail(w, "InternalError")
		return
	}
	etag, err := blob.PutObject(bucket, key, body, r.Header.Get("Content-Type"))
	if err != nil {
		logger.Error("blob_put_failed", "bucket", bucket, "key", key, "error", err)
		s3Fail(w, "InternalError")
		return
	}
	blobOps.WithLabelValues("put").Inc()
	w.Header().Set("ETag", `"`+etag+`"`)
	w.WriteHeader(http.StatusOK)
}

func getObject(w http.ResponseWriter, r *http.Request, bucket, key string, headOnly bool) {
	var (
		meta blob.ObjectMeta
		data []byte
		err  error
	)
	if headOnly {
		meta, err = blob.HeadObject(bucket, key)
	} else {
		data, meta, err = blob.GetObject(bucket, key)
	}
	if err != nil {
		if errors.Is(err, blob.ErrNoSuchKey) {
			if headOnly {
				w.WriteHeader(http.StatusNotFound)
			} else {
				s3Fail(w, "NoSuchKey")
			}
			return
		}
		logger.Error("blob_get_failed", "bucket", bucket, "key", key, "error", err)
		s3Fail(w, "InternalError")
		return
	}
	blobOps.WithLabelValues("get").Inc()
	ct := meta.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("ETag", `"`+meta.ETag+`"`)
	w.Header().Set("Last-Modified", meta.LastModified.UTC().Format(http.TimeFormat))
	if headOnly {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = w.Write(data)
}

func deleteObject(w http.ResponseWriter, bucket, key string) {
	if err := blob.DeleteObject(bucket, key); err != nil {
		logger.Error("blob_delete_failed", "bucket", bucket, "key", key, "error", err)
		s3Fail(w, "InternalError")
		return
	}
	blobOps.WithLabelValues("delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func initiateUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	id, err := blob.CreateMultipartUpload(bucket, key, r.Header.Get("Content-Type"))
	if err != nil {
		logger.Error("multipart_create_failed", "bucket", bucket, "key", key, "error", err)
		s3Fail(w, "InternalError")
		return
	}
	blobOps.WithLabelValues("multipart_create").Inc()
	writeXML(w, http.StatusOK, initiateMultipartUploadResult{Bucket: bucket, Key: key, UploadId: id})
}

func uploadPart(w http.ResponseWriter, r *http.Request, uploadID, partStr string) {
	part, err := strconv.Atoi(partStr)
	if err != nil || part < 1 || part > 10000 {
		s3Fail(w, "InvalidPart")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s3Fail(w, "InternalError")
		return
	}
	etag, err := blob.UploadPart(uploadID, part, body)
	if err != nil {
		if errors.Is(err, blob.ErrNoSuchUpload) {
			s3Fail(w, "NoSuchUpload")
			return
		}
		logger.Error("part_upload_failed", "upload_id", uploadID, "part", part, "error", err)
		s3Fail(w, "InternalError")
		return
	}
	blobOps.WithLabelValues("multipart_part").Inc()
	w.Header().Set("ETag", `"`+etag+`"`)
	w.WriteHeader(http.StatusOK)
}

func completeUpload(w http.ResponseWriter, r *http.Request, uploadID string) {
	// the body lists part numbers and etags; the stored parts are the
	// source of truth for ordering, the body just has to be well formed
	var req completeMultipartUploadRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s3Fail(w, "InternalError")
		return
	}
	if len(body) > 0 {
		if err := xml.Unmarshal(body, &req); err != nil {
			s3Fail(w, "InvalidPart")
			return
		}
	}
	up, err := blob.GetUpload(uploadID)
	if err != nil {
		if errors.Is(err, blob.ErrNoSuchUpload) {
			s3Fail(w, "NoSuchUpload")
			return
		}
		s3Fail(w, "InternalError")
		return
	}
	etag, err := blob.CompleteMultipartUpload(uploadID)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrNoSuchUpload):
			s3Fail(w, "NoSuchUpload")
		case errors.Is(err, blob.ErrNoParts):
			s3Fail(w, "InvalidPart")
		default:
			logger.Error("multipart_complete_failed", "upload_id", uploadID, "error", err)
			s3Fail(w, "InternalError")
		}
		return
	}
	blobOps.WithLabelValues("multipart_complete").Inc()
	writeXML(w, http.StatusOK, completeMultipartUploadResult{Bucket: up.Bucket, Key: up.Key, ETag: `"` + etag + `"`})
}

func abortUpload(w http.ResponseWriter, uploadID string) {
	if err := blob.AbortMultipartUpload(uploadID); err != nil {
		logger.Error("multipart_abort_failed", "upload_id", uploadID, "error", err)
		s3Fail(w, "InternalError")
		return
	}
	blobOps.WithLabelValues("multipart_abort").Inc()
	w.WriteHeader(http.StatusNoContent)
}
