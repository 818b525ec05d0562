// Package storage keeps the bot's durable state on top of the datastore:
// the ban list, runtime feature flags and a short command history per group.
package storage

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/keshon/botcore/datastore"
)

const (
	commandHistoryLimit int = 20

	bansKey     = "bans"
	featuresKey = "features"
	groupPrefix = "group:"
)

type Storage struct {
	ds *datastore.DataStore
	mu sync.Mutex // read-modify-write cycles
}

type CommandHistoryRecord struct {
	GroupID   string    `json:"group_id"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Param     string    `json:"param"`
	Dispatch  string    `json:"dispatch"`
	Datetime  time.Time `json:"datetime"`
}

type Record struct {
	CommandsHistoryList []CommandHistoryRecord `json:"cmd_history"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

// NewWithStore wraps an already opened datastore.
func NewWithStore(ds *datastore.DataStore) *Storage {
	return &Storage{ds: ds}
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// Flush writes pending changes to disk.
func (s *Storage) Flush() error {
	return s.ds.Flush()
}

// groupRecord returns a private copy of the group's record. A group with no
// record yet gets an empty one that is not stored until the caller saves it.
func (s *Storage) groupRecord(groupID string) (*Record, error) {
	record := Record{CommandsHistoryList: []CommandHistoryRecord{}}
	if _, err := s.ds.Get(groupPrefix+groupID, &record); err != nil {
		return nil, err
	}

	if len(record.CommandsHistoryList) > commandHistoryLimit {
		record.CommandsHistoryList = record.CommandsHistoryList[len(record.CommandsHistoryList)-commandHistoryLimit:]
	}

	return &record, nil
}

// AppendCommandToHistory appends a command history record for a group,
// keeping only the most recent entries.
func (s *Storage) AppendCommandToHistory(groupID string, command CommandHistoryRecord) error {
	if groupID == "" {
		return fmt.Errorf("group id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.groupRecord(groupID)
	if err != nil {
		return err
	}

	record.CommandsHistoryList = append(record.CommandsHistoryList, command)
	if len(record.CommandsHistoryList) > commandHistoryLimit {
		record.CommandsHistoryList = record.CommandsHistoryList[len(record.CommandsHistoryList)-commandHistoryLimit:]
	}
	return s.ds.Set(groupPrefix+groupID, record)
}

func (s *Storage) FetchCommandHistory(groupID string) ([]CommandHistoryRecord, error) {
	record, err := s.groupRecord(groupID)
	if err != nil {
		return nil, err
	}

	return record.CommandsHistoryList, nil
}

// Banned returns the banned user ids, sorted.
func (s *Storage) Banned() ([]string, error) {
	var bans []string
	if _, err := s.ds.Get(bansKey, &bans); err != nil {
		return nil, err
	}
	sort.Strings(bans)
	return bans, nil
}

// Ban adds userID to the ban list. It reports false if the user was
// already banned.
func (s *Storage) Ban(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bans, err := s.Banned()
	if err != nil {
		return false, err
	}
	if slices.Contains(bans, userID) {
		return false, nil
	}
	bans = append(bans, userID)
	sort.Strings(bans)
	return true, s.ds.Set(bansKey, bans)
}

// Unban removes userID from the ban list. It reports false if the user
// was not banned.
func (s *Storage) Unban(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bans, err := s.Banned()
	if err != nil {
		return false, err
	}
	idx := slices.Index(bans, userID)
	if idx < 0 {
		return false, nil
	}
	bans = slices.Delete(bans, idx, idx+1)
	return true, s.ds.Set(bansKey, bans)
}

// Features returns the persisted feature overrides.
func (s *Storage) Features() (map[string]bool, error) {
	features := map[string]bool{}
	if _, err := s.ds.Get(featuresKey, &features); err != nil {
		return nil, err
	}
	if features == nil {
		features = map[string]bool{}
	}
	return features, nil
}

func (s *Storage) SetFeature(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	features, err := s.Features()
	if err != nil {
		return err
	}
	features[name] = enabled
	return s.ds.Set(featuresKey, features)
}
