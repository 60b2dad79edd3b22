package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenRequestID mints an opaque request identifier for error documents and
// telemetry correlation.
func GenRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenUploadID mints an opaque multipart upload token.
func GenUploadID() string {
	return uuid.NewString()
}
