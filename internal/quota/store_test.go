package quota

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "quota.json"))
}

func writeTestDoc(t *testing.T, s *Store, doc *Document) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), data, 0644))
}

func TestReadConfigDefaults(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.ReadConfig()
	require.NoError(t, err)

	assert.Equal(t, "1.0", doc.Version)
	assert.Equal(t, 10085, doc.APIPort)
	assert.Empty(t, doc.Users)
}

func TestReadConfigExisting(t *testing.T) {
	s := newTestStore(t)
	writeTestDoc(t, s, &Document{
		Version: "1.0",
		APIPort: 10086,
		Users: map[string]Quota{
			"test@example.com": {
				QuotaBytes: 1024,
				QuotaType:  TypeLimited,
				UsedBytes:  100,
				LastReset:  "2026-01-01T00:00:00Z",
				Status:     StatusActive,
			},
		},
	})

	doc, err := s.ReadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10086, doc.APIPort)
	assert.Contains(t, doc.Users, "test@example.com")
}

func TestReadConfigMalformed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0644))

	_, err := s.ReadConfig()
	assert.Error(t, err, "a corrupt document must not be silently replaced")
}

func TestGetQuotaDefaultForUnknownUser(t *testing.T) {
	s := newTestStore(t)

	q, err := s.GetQuota("nonexistent@example.com")
	require.NoError(t, err)

	assert.EqualValues(t, -1, q.QuotaBytes)
	assert.Equal(t, TypeUnlimited, q.QuotaType)
	assert.Equal(t, StatusActive, q.Status)

	// Reading must not materialize an entry
	doc, err := s.ReadConfig()
	require.NoError(t, err)
	assert.NotContains(t, doc.Users, "nonexistent@example.com")
}

func TestSetQuotaRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetQuota(SetQuotaParams{
		Email:      "new@example.com",
		QuotaBytes: 10 * 1 << 30,
		QuotaType:  TypeLimited,
	}))

	q, err := s.GetQuota("new@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 10*1<<30, q.QuotaBytes)
	assert.Equal(t, TypeLimited, q.QuotaType)
	assert.Zero(t, q.UsedBytes)
}

func TestSetQuotaPreservesUsage(t *testing.T) {
	s := newTestStore(t)
	writeTestDoc(t, s, &Document{
		Version: "1.0",
		APIPort: 10085,
		Users: map[string]Quota{
			"test@example.com": {
				QuotaBytes: 5 * 1 << 30,
				QuotaType:  TypeLimited,
				UsedBytes:  2 * 1 << 30,
				LastReset:  "2026-01-01T00:00:00Z",
				Status:     StatusActive,
			},
		},
	})

	require.NoError(t, s.SetQuota(SetQuotaParams{
		Email:      "test@example.com",
		QuotaBytes: 10 * 1 << 30,
		QuotaType:  TypeLimited,
	}))

	q, err := s.GetQuota("test@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 10*1<<30, q.QuotaBytes)
	assert.EqualValues(t, 2*1<<30, q.UsedBytes, "limit change must not reset usage")
	assert.Equal(t, "2026-01-01T00:00:00Z", q.LastReset)
}

func TestSetQuotaInfersType(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetQuota(SetQuotaParams{Email: "a@example.com", QuotaBytes: -1}))
	q, err := s.GetQuota("a@example.com")
	require.NoError(t, err)
	assert.Equal(t, TypeUnlimited, q.QuotaType)

	require.NoError(t, s.SetQuota(SetQuotaParams{Email: "a@example.com", QuotaBytes: 1024}))
	q, err = s.GetQuota("a@example.com")
	require.NoError(t, err)
	assert.Equal(t, TypeLimited, q.QuotaType)
}

func TestSetQuotaValidation(t *testing.T) {
	s := newTestStore(t)

	assert.Error(t, s.SetQuota(SetQuotaParams{Email: "", QuotaBytes: 1024}))
	assert.Error(t, s.SetQuota(SetQuotaParams{Email: "a@example.com", QuotaBytes: -2}))
	assert.Error(t, s.SetQuota(SetQuotaParams{Email: "a@example.com", QuotaBytes: 1024, QuotaType: "bogus"}))
}

func TestResetUsage(t *testing.T) {
	s := newTestStore(t)
	writeTestDoc(t, s, &Document{
		Version: "1.0",
		APIPort: 10085,
		Users: map[string]Quota{
			"test@example.com": {
				QuotaBytes: 1 << 30,
				QuotaType:  TypeLimited,
				UsedBytes:  1 << 29,
				LastReset:  "2026-01-01T00:00:00Z",
				Status:     StatusExceeded,
			},
		},
	})

	before, err := time.Parse(time.RFC3339, "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	require.NoError(t, s.ResetUsage("test@example.com"))

	q, err := s.GetQuota("test@example.com")
	require.NoError(t, err)
	assert.Zero(t, q.UsedBytes)
	assert.EqualValues(t, 1<<30, q.QuotaBytes, "reset must not touch the limit")
	assert.Equal(t, StatusExceeded, q.Status, "reset must not touch the status")

	after, err := time.Parse(time.RFC3339, q.LastReset)
	require.NoError(t, err)
	assert.False(t, after.Before(before), "lastReset must move forward")
}

func TestSetStatus(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetQuota(SetQuotaParams{Email: "u@example.com", QuotaBytes: 1024}))

	require.NoError(t, s.SetStatus("u@example.com", StatusExceeded))

	q, err := s.GetQuota("u@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusExceeded, q.Status)
	assert.EqualValues(t, 1024, q.QuotaBytes)

	// Unknown users get a persisted default entry with the new status
	require.NoError(t, s.SetStatus("ghost@example.com", StatusDisabled))
	doc, err := s.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, doc.Users["ghost@example.com"].Status)
}

func TestRemoveQuota(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetQuota(SetQuotaParams{Email: "u@example.com", QuotaBytes: 1024}))

	require.NoError(t, s.RemoveQuota("u@example.com"))
	doc, err := s.ReadConfig()
	require.NoError(t, err)
	assert.NotContains(t, doc.Users, "u@example.com")

	// Removing an absent user is a no-op
	require.NoError(t, s.RemoveQuota("u@example.com"))
}

func TestSetAPIPort(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetAPIPort(10086))
	doc, err := s.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, 10086, doc.APIPort)

	assert.Error(t, s.SetAPIPort(0))
	assert.Error(t, s.SetAPIPort(70000))
}

func TestWriteCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "nested", "deeper", "quota.json"))

	require.NoError(t, s.SetQuota(SetQuotaParams{Email: "u@example.com", QuotaBytes: 1024}))

	_, err := os.Stat(s.Path())
	assert.NoError(t, err)
}
