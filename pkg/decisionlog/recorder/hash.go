package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"mercator-hq/verdict/pkg/table"
)

// RedactedValue replaces redacted request fields.
const RedactedValue = "[REDACTED]"

// HashRequest returns the hex SHA-256 of the request's JSON encoding.
// encoding/json sorts map keys, so equal requests hash equally.
func HashRequest(req table.Request) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Redact returns a copy of req with the named fields replaced by
// RedactedValue. Fields absent from req stay absent.
func Redact(req table.Request, fields []string) table.Request {
	if len(fields) == 0 || len(req) == 0 {
		return req
	}
	out := make(table.Request, len(req))
	for k, v := range req {
		out[k] = v
	}
	for _, f := range fields {
		if _, ok := out[f]; ok {
			out[f] = RedactedValue
		}
	}
	return out
}
