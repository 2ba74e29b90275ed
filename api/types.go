package api

import (
	"github.com/ruteri/storage-router/interfaces"
)

// PresignRequest is the body of POST /api/storage/pools/{pool}/presign.
type PresignRequest struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	// ExpiresIn is a Go duration string such as "15m". Empty means the pool default.
	ExpiresIn string `json:"expiresIn,omitempty"`
}

// URLResponse carries a public or signed object URL.
type URLResponse struct {
	URL    string `json:"url"`
	Signed bool   `json:"signed"`
}

// DeleteResponse reports whether every provider acknowledged a delete.
type DeleteResponse struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

// RegisterPoolsResponse lists the pool names active after a table replacement.
type RegisterPoolsResponse struct {
	Pools []string `json:"pools"`
}

// ErrorResponse is the JSON body of every non-2xx admin API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PoolsResponse is returned by the pool listing and health check endpoints.
type PoolsResponse []interfaces.PoolInfo
