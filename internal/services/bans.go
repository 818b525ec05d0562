package services

import (
	"sync"

	"github.com/charmbracelet/log"
)

type banStore interface {
	Ban(userID string) (bool, error)
	Unban(userID string) (bool, error)
	Banned() ([]string, error)
}

// BanService is the BanList capability. It keeps an in-memory copy of the
// ban list so permission checks never touch storage.
type BanService struct {
	store banStore
	log   *log.Logger

	mu     sync.RWMutex
	banned map[string]struct{}
}

func NewBanService(store banStore, logger *log.Logger) (*BanService, error) {
	ids, err := store.Banned()
	if err != nil {
		return nil, err
	}
	b := &BanService{
		store:  store,
		log:    logger,
		banned: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		b.banned[id] = struct{}{}
	}
	return b, nil
}

func (b *BanService) IsBlocked(userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.banned[userID]
	return ok
}

func (b *BanService) Ban(userID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	added, err := b.store.Ban(userID)
	if err != nil {
		return false, err
	}
	b.banned[userID] = struct{}{}
	if added {
		b.log.Info("user banned", "user", userID)
	}
	return added, nil
}

func (b *BanService) Unban(userID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed, err := b.store.Unban(userID)
	if err != nil {
		return false, err
	}
	delete(b.banned, userID)
	if removed {
		b.log.Info("user unbanned", "user", userID)
	}
	return removed, nil
}

func (b *BanService) Banned() []string {
	ids, err := b.store.Banned()
	if err != nil {
		b.log.Error("failed to read ban list", "err", err)
		return nil
	}
	return ids
}
