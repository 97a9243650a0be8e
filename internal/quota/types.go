package quota

import "time"

// Type says whether a quota carries a byte ceiling
type Type string

const (
	TypeLimited   Type = "limited"
	TypeUnlimited Type = "unlimited"
)

// Status is a user's enforcement state. Disabled is a manually-set state
// distinct from the automatic exceeded transition.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusExceeded Status = "exceeded"
)

// AlertLevel classifies usage against the quota ceiling
type AlertLevel string

const (
	AlertNormal   AlertLevel = "normal"
	AlertWarning  AlertLevel = "warning"
	AlertExceeded AlertLevel = "exceeded"
)

// Quota is one user's byte ceiling plus consumption state.
// QuotaBytes of -1 means unlimited. UsedBytes caches the most recent
// accounting read so enforcement can degrade when stats are down.
type Quota struct {
	QuotaBytes int64  `json:"quotaBytes"`
	QuotaType  Type   `json:"quotaType"`
	UsedBytes  int64  `json:"usedBytes"`
	LastReset  string `json:"lastReset"` // ISO-8601
	Status     Status `json:"status"`
}

// Unlimited reports whether this quota is exempt from enforcement
func (q Quota) Unlimited() bool {
	return q.QuotaBytes < 0
}

// Document is the persisted quota configuration, one JSON file
type Document struct {
	Version string           `json:"version"`
	APIPort int              `json:"apiPort"`
	Users   map[string]Quota `json:"users"`
}

const (
	// DefaultVersion is written into fresh documents
	DefaultVersion = "1.0"
	// DefaultAPIPort matches xray's conventional stats API port
	DefaultAPIPort = 10085
)

// nowFunc is swapped out in tests
var nowFunc = time.Now

// DefaultQuota synthesizes an unlimited, active quota for users that
// have never been written to the store.
func DefaultQuota() Quota {
	return Quota{
		QuotaBytes: -1,
		QuotaType:  TypeUnlimited,
		UsedBytes:  0,
		LastReset:  nowFunc().UTC().Format(time.RFC3339),
		Status:     StatusActive,
	}
}

// DefaultDocument is the configuration assumed before the first write
func DefaultDocument() *Document {
	return &Document{
		Version: DefaultVersion,
		APIPort: DefaultAPIPort,
		Users:   make(map[string]Quota),
	}
}
