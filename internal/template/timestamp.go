package template

import (
	"time"

	strftime "github.com/ncruces/go-strftime"
)

// Timestamp is the value type produced by the date helpers and the batch
// variables. It renders as ISO-8601 and supports the strftime and isoformat
// field calls inside expressions.
type Timestamp struct {
	t time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t}
}

// Time returns the underlying time.
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// ISOFormat renders the timestamp as ISO-8601 with an explicit offset.
func (ts Timestamp) ISOFormat() string {
	return ts.t.Format("2006-01-02T15:04:05-07:00")
}

// Strftime renders the timestamp with C strftime directives.
func (ts Timestamp) Strftime(layout string) string {
	return strftime.Format(layout, ts.t)
}

// Add shifts the timestamp by d.
func (ts Timestamp) Add(d time.Duration) Timestamp {
	return Timestamp{t: ts.t.Add(d)}
}

// String renders ISO-8601; used when a timestamp lands inside a rendered string.
func (ts Timestamp) String() string {
	return ts.ISOFormat()
}
