/*
Package storage provides the persistent storage of the RPC client.

# Storage Organization

The storage uses a key-value database with prefixed namespaces:

  - a/ : address → Account (keys and deployment data of local accounts)
  - c/ : address → Contract (ABI and portal of contracts the client can call)
  - t/ : tx hash → SentTx (txs already submitted to the node)

The merkle forest of the client lives in the same database under the f_
prefix, see ForestDB.
*/
package storage

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/aztec-rpc/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNotFound         = errors.New("not found")

	// Prefixes
	accountPrefix  = []byte("a/")
	contractPrefix = []byte("c/")
	sentTxPrefix   = []byte("t/")
	forestDBprefix = []byte("f_")

	cacheSize = 1000
)

// Storage holds the records of the client.
type Storage struct {
	db       db.Database
	forestDB db.Database
	lock     sync.Mutex
	cache    *lru.Cache[string, any]
}

// New creates a new Storage instance.
func New(database db.Database) *Storage {
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{
		db:       database,
		forestDB: prefixeddb.NewPrefixedDatabase(database, forestDBprefix),
		cache:    cache,
	}
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err)
	}
}

// ForestDB returns the database of the client merkle forest.
func (s *Storage) ForestDB() db.Database {
	return s.forestDB
}

func cacheKey(prefix, key []byte) string {
	return string(prefix) + string(key)
}

// setArtifact stores a record under prefix and key. Unless overwrite is set
// it returns ErrKeyAlreadyExists when the key is taken.
func (s *Storage) setArtifact(prefix, key []byte, artifact any, overwrite bool, encoding ...ArtifactEncoding) error {
	data, err := EncodeArtifact(artifact, encoding...)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if !overwrite {
		if _, err := wTx.Get(key); err == nil {
			return ErrKeyAlreadyExists
		}
	}
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	s.cache.Remove(cacheKey(prefix, key))
	return nil
}

func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Delete(key); err != nil {
		return err
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	s.cache.Remove(cacheKey(prefix, key))
	return nil
}

// getArtifact decodes the record under prefix and key into out.
func (s *Storage) getArtifact(prefix, key []byte, out any, encoding ...ArtifactEncoding) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := DecodeArtifact(data, out, encoding...); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

// iterateArtifacts calls fn with every raw record of the prefix.
func (s *Storage) iterateArtifacts(prefix []byte, fn func(key, value []byte) error) error {
	var ferr error
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, v []byte) bool {
		kcopy := append([]byte(nil), k...)
		vcopy := append([]byte(nil), v...)
		if ferr = fn(kcopy, vcopy); ferr != nil {
			return false
		}
		return true
	}); err != nil {
		return err
	}
	return ferr
}

// cachedArtifact returns the cached record of prefix and key if it has type
// T.
func cachedArtifact[T any](s *Storage, prefix, key []byte) (*T, bool) {
	val, ok := s.cache.Get(cacheKey(prefix, key))
	if !ok {
		return nil, false
	}
	r, ok := val.(*T)
	if !ok {
		log.Warnw("cache hit but type assertion failed", "expected", fmt.Sprintf("%T", r), "got", fmt.Sprintf("%T", val))
		return nil, false
	}
	return r, true
}
