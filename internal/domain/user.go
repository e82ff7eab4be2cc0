package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedUser = errors.New("malformed user payload")

const DefaultRole = "user"

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// NormalizeUser maps a backend user payload into a User.
// The backend is not consistent about field names: ids come as "id" or "_id"
// (string or number) and names as "name" or "fullName".
// A payload without an id or a name is rejected with ErrMalformedUser.
func NormalizeUser(raw []byte) (*User, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUser, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedUser)
	}

	id := firstString(fields, "id", "_id", "userId")
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedUser)
	}
	name := firstString(fields, "name", "fullName", "username")
	if name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrMalformedUser)
	}

	role := firstString(fields, "role")
	if role == "" {
		role = DefaultRole
	}

	return &User{
		ID:    id,
		Name:  name,
		Email: firstString(fields, "email"),
		Role:  role,
	}, nil
}

func firstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
