package service

import "github.com/google/uuid"

// canonicalID returns id in the canonical UUID form Postgres expects. Every
// primary key is a UUID, so anything that does not parse cannot exist.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
