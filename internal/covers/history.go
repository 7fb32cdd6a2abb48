package covers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const historyKeyPrefix = "covers:history:"

// maxTxnRetries bounds retries of a read-modify-write that lost a
// conflict against a concurrent writer.
const maxTxnRetries = 3

// History is the per-game document stored under one key.
type History struct {
	GameID    int64     `json:"game_id"`
	Tried     []int64   `json:"tried"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryStore persists tried cover ids in BadgerDB.
type HistoryStore struct {
	db  *badger.DB
	now func() time.Time
}

func NewHistoryStore(db *badger.DB) *HistoryStore {
	return &HistoryStore{db: db, now: time.Now}
}

func historyKey(gameID int64) []byte {
	return []byte(historyKeyPrefix + strconv.FormatInt(gameID, 10))
}

// Load returns the game's history; a game never tried has an empty one.
func (s *HistoryStore) Load(ctx context.Context, gameID int64) (*History, error) {
	h := &History{GameID: gameID, Tried: []int64{}}
	err := s.db.View(func(txn *badger.Txn) error {
		return readHistory(txn, gameID, h)
	})
	if err != nil {
		return nil, fmt.Errorf("load cover history: %w", err)
	}
	return h, nil
}

// Tried returns the set of cover ids already used for gameID.
func (s *HistoryStore) Tried(ctx context.Context, gameID int64) (map[int64]bool, error) {
	h, err := s.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]bool, len(h.Tried))
	for _, id := range h.Tried {
		set[id] = true
	}
	return set, nil
}

// Append records coverID for gameID. Recording an id twice is a no-op.
func (s *HistoryStore) Append(ctx context.Context, gameID, coverID int64) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			h := &History{GameID: gameID, Tried: []int64{}}
			if err := readHistory(txn, gameID, h); err != nil {
				return err
			}
			for _, id := range h.Tried {
				if id == coverID {
					return nil
				}
			}
			h.Tried = append(h.Tried, coverID)
			h.UpdatedAt = s.now().UTC()

			data, err := json.Marshal(h)
			if err != nil {
				return fmt.Errorf("marshal history: %w", err)
			}
			return txn.Set(historyKey(gameID), data)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("append cover history: %w", err)
	}
	return nil
}

// Reset forgets every tried cover for gameID.
func (s *HistoryStore) Reset(ctx context.Context, gameID int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(historyKey(gameID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func readHistory(txn *badger.Txn, gameID int64, h *History) error {
	item, err := txn.Get(historyKey(gameID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, h)
	})
}
