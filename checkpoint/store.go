package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Store persists checkpoints in a Badger database. Records are keyed by
// sequence number in big-endian encoding, so the natural key order of the
// store is the checkpoint order
type Store struct {
	db *badger.DB
}

var (
	keyPrefixCheckpoint = []byte("c:")
	keyLatest           = []byte("latest")

	ErrNotFound = errors.New("checkpoint not found")
)

func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// MustOpenStoreOnDisk opens or creates the checkpoint database at the
// given directory
func MustOpenStoreOnDisk(dir string) *Store {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		panic(fmt.Errorf("can't open checkpoint store at '%s': %w", dir, err))
	}
	return NewStore(db)
}

// NewStoreInMemory is used in tests
func NewStoreInMemory() *Store {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		panic(err)
	}
	return NewStore(db)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func checkpointKey(seqNo uint64) []byte {
	ret := make([]byte, len(keyPrefixCheckpoint)+8)
	copy(ret, keyPrefixCheckpoint)
	binary.BigEndian.PutUint64(ret[len(keyPrefixCheckpoint):], seqNo)
	return ret
}

// Save writes the checkpoint and advances the latest pointer in one
// transaction
func (s *Store) Save(c *Checkpoint) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(checkpointKey(c.SequenceNo), c.Bytes()); err != nil {
			return err
		}
		var seqNoBin [8]byte
		binary.BigEndian.PutUint64(seqNoBin[:], c.SequenceNo)
		return txn.Set(keyLatest, seqNoBin[:])
	})
}

func (s *Store) Load(seqNo uint64) (*Checkpoint, error) {
	var ret *Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(seqNo))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ret, err = CheckpointFromBytes(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// LoadLatest returns the most recently saved checkpoint
func (s *Store) LoadLatest() (*Checkpoint, error) {
	var seqNo uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLatest)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupted latest checkpoint pointer")
			}
			seqNo = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Load(seqNo)
}

// ForEach iterates stored checkpoints in ascending sequence order until fun
// returns false
func (s *Store) ForEach(fun func(c *Checkpoint) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefixCheckpoint
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefixCheckpoint); it.ValidForPrefix(keyPrefixCheckpoint); it.Next() {
			var c *Checkpoint
			err := it.Item().Value(func(val []byte) error {
				var err error
				c, err = CheckpointFromBytes(val)
				return err
			})
			if err != nil {
				return err
			}
			if !fun(c) {
				return nil
			}
		}
		return nil
	})
}
