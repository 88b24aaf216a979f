package realtime

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
)

// Status is the globally visible availability of a user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	default:
		return false
	}
}

// ParseStatus normalises v and fails with ErrInvalidStatus outside the enumerated set.
func ParseStatus(v string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(v)))
	if !status.Valid() {
		return "", apperrors.ErrInvalidStatus
	}
	return status, nil
}

// Profile is the user snippet shown next to a presence entry.
type Profile struct {
	DisplayName string
	Avatar      string
}

// PresenceRecord is the per-user presence entry visible to every connected client.
type PresenceRecord struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	Avatar       string    `json:"avatar,omitempty"`
	Status       Status    `json:"status"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Actor returns the public summary of the record's user.
func (p PresenceRecord) Actor() Actor {
	return Actor{ID: p.UserID, Name: p.DisplayName, Avatar: p.Avatar}
}

// Directory holds one presence record per user id. Records are keyed strictly by user,
// so activity from several tabs converges on a single entry. Not safe for concurrent use.
type Directory struct {
	records map[string]*PresenceRecord
	now     func() time.Time
}

// NewDirectory constructs an empty directory using now as its clock.
func NewDirectory(now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		records: make(map[string]*PresenceRecord),
		now:     now,
	}
}

// Upsert creates the user's record (status online, connected-at now) or refreshes its
// profile. Last-activity is always refreshed.
func (d *Directory) Upsert(userID string, profile Profile) PresenceRecord {
	now := d.now()

	record, exists := d.records[userID]
	if !exists {
		record = &PresenceRecord{
			UserID:      userID,
			Status:      StatusOnline,
			ConnectedAt: now,
		}
		d.records[userID] = record
	}
	if name := strings.TrimSpace(profile.DisplayName); name != "" || !exists {
		record.DisplayName = name
	}
	if profile.Avatar != "" || !exists {
		record.Avatar = profile.Avatar
	}
	record.LastActivity = now

	return *record
}

// SetStatus updates the user's status and returns the updated snapshot. The boolean is
// false when the user has no record. An invalid status leaves the record untouched.
func (d *Directory) SetStatus(userID string, status Status) (PresenceRecord, bool, error) {
	if !status.Valid() {
		return PresenceRecord{}, false, apperrors.ErrInvalidStatus
	}

	record, exists := d.records[userID]
	if !exists {
		return PresenceRecord{}, false, nil
	}

	record.Status = status
	record.LastActivity = d.now()
	return *record, true, nil
}

// Touch refreshes last-activity without changing status.
func (d *Directory) Touch(userID string) bool {
	record, exists := d.records[userID]
	if !exists {
		return false
	}
	record.LastActivity = d.now()
	return true
}

// Remove deletes the record and reports whether one existed.
func (d *Directory) Remove(userID string) bool {
	if _, exists := d.records[userID]; !exists {
		return false
	}
	delete(d.records, userID)
	return true
}

// Get returns a copy of the user's record.
func (d *Directory) Get(userID string) (PresenceRecord, bool) {
	record, exists := d.records[userID]
	if !exists {
		return PresenceRecord{}, false
	}
	return *record, true
}

// Snapshot returns copies of every record ordered by user id.
func (d *Directory) Snapshot() []PresenceRecord {
	out := make([]PresenceRecord, 0, len(d.records))
	for _, record := range d.records {
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// IdleSince lists users whose last activity is strictly before cutoff.
func (d *Directory) IdleSince(cutoff time.Time) []string {
	var idle []string
	for userID, record := range d.records {
		if record.LastActivity.Before(cutoff) {
			idle = append(idle, userID)
		}
	}
	sort.Strings(idle)
	return idle
}

// Len returns the number of presence records.
func (d *Directory) Len() int {
	return len(d.records)
}
