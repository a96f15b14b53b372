package models

import "github.com/google/uuid"

// ensureID fills a zero primary key so rows created on databases without
// gen_random_uuid() (sqlite in tests) still get an identifier.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
