package blob

import "fmt"

// Keyspace layout. Composite keys use \x00 separators so lexicographic
// ordering of composite keys matches ordering of object keys (the
// separator sorts below every byte an object key can contain).
//
//	o\0<bucket>\0<key>\0<%08d chunk>     object chunk rows
//	u\0<uploadID>                        multipart upload metadata
//	p\0<uploadID>\0<%05d part>\0<%08d>   part chunk rows
const sep = "\x00"

func objChunkKey(bucket, key string, chunk int) []byte {
	return []byte("o" + sep + bucket + sep + key + sep + fmt.Sprintf("%08d", chunk))
}

// objPrefix covers every chunk row of one object.
func objPrefix(bucket, key string) []byte {
	return []byte("o" + sep + bucket + sep + key + sep)
}

// bucketPrefix covers every chunk row in a bucket.
func bucketPrefix(bucket string) []byte {
	return []byte("o" + sep + bucket + sep)
}

// afterObjPrefix sorts after every chunk row of the given object key,
// used to resume listings past a continuation token. \x01 works because
// the chunk separator is \x00.
func afterObjPrefix(bucket, key string) []byte {
	return []byte("o" + sep + bucket + sep + key + "\x01")
}

func uploadKey(uploadID string) []byte {
	return []byte("u" + sep + uploadID)
}

func partChunkKey(uploadID string, part, chunk int) []byte {
	return []byte("p" + sep + uploadID + sep + fmt.Sprintf("%05d", part) + sep + fmt.Sprintf("%08d", chunk))
}

// partPrefix covers every chunk row of one part.
func partPrefix(uploadID string, part int) []byte {
	return []byte("p" + sep + uploadID + sep + fmt.Sprintf("%05d", part) + sep)
}

// partsPrefix covers every part chunk row of one upload.
func partsPrefix(uploadID string) []byte {
	return []byte("p" + sep + uploadID + sep)
}
