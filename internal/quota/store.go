package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// SetQuotaParams carries a quota limit change for one user
type SetQuotaParams struct {
	Email      string `json:"email" validate:"required"`
	QuotaBytes int64  `json:"quotaBytes" validate:"gte=-1"`
	QuotaType  Type   `json:"quotaType" validate:"omitempty,oneof=limited unlimited"`
}

// Store persists the quota document. It is the only durable state in the
// control plane; every mutation is a read-modify-write of the whole
// document with last-writer-wins semantics across processes.
type Store struct {
	path     string
	validate *validator.Validate
}

// NewStore creates a store over the JSON document at path.
// The file does not have to exist yet.
func NewStore(path string) *Store {
	return &Store{
		path:     path,
		validate: validator.New(),
	}
}

// Path returns the document location
func (s *Store) Path() string {
	return s.path
}

// ReadConfig returns the persisted document, or the defaults when no
// document exists yet. A present but malformed document is an error;
// silently resetting it would destroy quota state.
func (s *Store) ReadConfig() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDocument(), nil
		}
		return nil, fmt.Errorf("failed to read quota config: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed quota config %s: %w", s.path, err)
	}

	if doc.Users == nil {
		doc.Users = make(map[string]Quota)
	}
	if doc.Version == "" {
		doc.Version = DefaultVersion
	}
	if doc.APIPort == 0 {
		doc.APIPort = DefaultAPIPort
	}

	return &doc, nil
}

// writeConfig persists the document, creating the parent directory on
// first write. Write failures are loud.
func (s *Store) writeConfig(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create quota config directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode quota config: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write quota config: %w", err)
	}
	return nil
}

// GetQuota returns the user's quota, or a synthesized unlimited default
// for unknown users. Reading never materializes an entry.
func (s *Store) GetQuota(email string) (Quota, error) {
	doc, err := s.ReadConfig()
	if err != nil {
		return Quota{}, err
	}

	if q, ok := doc.Users[email]; ok {
		return q, nil
	}
	return DefaultQuota(), nil
}

// SetQuota creates or updates a user's quota limit. Usage history of a
// pre-existing entry is preserved; changing a limit must not reset what
// the user already consumed.
func (s *Store) SetQuota(params SetQuotaParams) error {
	if err := s.validate.Struct(params); err != nil {
		return fmt.Errorf("invalid quota params: %w", err)
	}

	quotaType := params.QuotaType
	if quotaType == "" {
		if params.QuotaBytes < 0 {
			quotaType = TypeUnlimited
		} else {
			quotaType = TypeLimited
		}
	}

	doc, err := s.ReadConfig()
	if err != nil {
		return err
	}

	entry, exists := doc.Users[params.Email]
	if !exists {
		entry = DefaultQuota()
	}
	entry.QuotaBytes = params.QuotaBytes
	entry.QuotaType = quotaType

	doc.Users[params.Email] = entry
	return s.writeConfig(doc)
}

// ResetUsage zeroes the user's consumed counter and refreshes the reset
// timestamp. Limit and status are left untouched.
func (s *Store) ResetUsage(email string) error {
	doc, err := s.ReadConfig()
	if err != nil {
		return err
	}

	entry, exists := doc.Users[email]
	if !exists {
		entry = DefaultQuota()
	}
	entry.UsedBytes = 0
	entry.LastReset = nowFunc().UTC().Format(time.RFC3339)

	doc.Users[email] = entry
	return s.writeConfig(doc)
}

// SetStatus updates only the status field, synthesizing and persisting a
// default entry for a user not yet in the document.
func (s *Store) SetStatus(email string, status Status) error {
	doc, err := s.ReadConfig()
	if err != nil {
		return err
	}

	entry, exists := doc.Users[email]
	if !exists {
		entry = DefaultQuota()
	}
	entry.Status = status

	doc.Users[email] = entry
	return s.writeConfig(doc)
}

// GetAllQuotas returns the full user map for batch operations
func (s *Store) GetAllQuotas() (map[string]Quota, error) {
	doc, err := s.ReadConfig()
	if err != nil {
		return nil, err
	}
	return doc.Users, nil
}

// RemoveQuota deletes a user's entry. Removing an absent user is a no-op.
func (s *Store) RemoveQuota(email string) error {
	doc, err := s.ReadConfig()
	if err != nil {
		return err
	}

	if _, exists := doc.Users[email]; !exists {
		return nil
	}
	delete(doc.Users, email)
	return s.writeConfig(doc)
}

// SetAPIPort records the stats API port in the document
func (s *Store) SetAPIPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid API port: %d", port)
	}

	doc, err := s.ReadConfig()
	if err != nil {
		return err
	}
	doc.APIPort = port
	return s.writeConfig(doc)
}
