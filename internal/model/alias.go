package model

import (
	"strconv"

	"github.com/google/uuid"
)

const (
	KindLocation   = "location"
	KindDepartment = "department"
	KindStation    = "station"
	KindEmployee   = "employee"
)

var aliasNamespace = uuid.MustParse("6f1c2a4e-5b7d-4e8a-9c3f-1d2e3f4a5b6c")

// PublicID is the stable external alias of an internal database id.
func PublicID(kind string, id int64) uuid.UUID {
	return uuid.NewSHA1(aliasNamespace, []byte(kind+":"+strconv.FormatInt(id, 10)))
}

// PublicIDPtr aliases an optional id.
func PublicIDPtr(kind string, id *int64) *uuid.UUID {
	if id == nil {
		return nil
	}
	alias := PublicID(kind, *id)
	return &alias
}
