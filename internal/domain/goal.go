package domain

import "time"

// Field widths of the goal record columns.
const (
	ReferrerLength = 255
	PathLength     = 255
	ExtraLength    = 255
)

// Goal is a named conversion event type, created on first use.
type Goal struct {
	Name      string
	CreatedAt time.Time
}

// RequestInfo is the first-touch context captured with a goal record.
type RequestInfo struct {
	Referrer   string `json:"referrer"`
	RemoteAddr string `json:"remote_addr"`
	Path       string `json:"path"`
}

// GoalRecord is evidence that a subject reached a goal. There is at most one per
// (subject, goal).
type GoalRecord struct {
	ID        string
	SubjectID string
	Goal      string
	RequestInfo
	Extra     *string
	CreatedAt time.Time
}

// HasExtra reports whether the record already carries an extra payload.
func (r *GoalRecord) HasExtra() bool {
	return r.Extra != nil && *r.Extra != ""
}
