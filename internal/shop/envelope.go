// Package shop is the client for the catalog and order endpoints.
package shop

// envelope is the {success, data, message} shape every shop endpoint answers with.
// A success:false answer never reaches the caller; httpclient turns it into an APIError.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}
