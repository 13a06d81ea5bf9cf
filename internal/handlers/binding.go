package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
)

// maxJSONBody caps request bodies read by BindNestedOrFlat
const maxJSONBody = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// BindNestedOrFlat binds the request body to obj. Clients may wrap the payload
// under key ({"document": {...}}) or send it flat ({...}); both are accepted.
// The body is restored afterwards so later binders can read it again.
func BindNestedOrFlat(c *gin.Context, key string, obj any) error {
	if c.Request.Body == nil {
		return errEmptyBody
	}
	bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxJSONBody))
	if err != nil {
		return err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if len(bytes.TrimSpace(bodyBytes)) == 0 {
		return errEmptyBody
	}

	var nested map[string]json.RawMessage
	if err := json.Unmarshal(bodyBytes, &nested); err == nil {
		if val, ok := nested[key]; ok {
			return json.Unmarshal(val, obj)
		}
	}
	return json.Unmarshal(bodyBytes, obj)
}
