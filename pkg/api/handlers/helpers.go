package handlers

import (
	"encoding/xml"
	"net/http"

	"skiff/pkg/utils"
)

// writeJSON encodes v with the given status. Encoding failures are ignored
// because the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	_ = utils.JSONWrite(w, status, v)
}

// writeXML emits an XML document with the standard header.
func writeXML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	utils.JSONError(w, status, msg)
}
