package model

import (
	"encoding/json"
	"time"
)

// DatedResponse carries one result per requested date. A single-date
// selection serializes as the bare value, a range as an object keyed by date.
type DatedResponse[T any] struct {
	Single bool
	Dates  []string
	ByDate map[string]T
}

func NewDatedResponse[T any](sel DateSelection) *DatedResponse[T] {
	return &DatedResponse[T]{Single: sel.Single, ByDate: make(map[string]T)}
}

func (r *DatedResponse[T]) Put(date time.Time, value T) {
	key := DateKey(date)
	if _, ok := r.ByDate[key]; !ok {
		r.Dates = append(r.Dates, key)
	}
	r.ByDate[key] = value
}

func (r *DatedResponse[T]) MarshalJSON() ([]byte, error) {
	if r.Single {
		if len(r.Dates) == 0 {
			var zero T
			return json.Marshal(zero)
		}
		return json.Marshal(r.ByDate[r.Dates[0]])
	}
	return json.Marshal(r.ByDate)
}
