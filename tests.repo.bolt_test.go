package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestBoltStore returns a new instance of bolt store in a temporary path.
func newTestBoltStore(t *testing.T) BookStorage {
	t.Helper()
	testConfig := &Config{
		BoltDB: BoltDBConfig{
			FilePath: filepath.Join(t.TempDir(), "data", "tmp.bolt.db"),
			Timeout:  5 * time.Second,
		},
	}
	client, err := GetBoltDBClient(testConfig)
	require.NoError(t, err, "failed in creating a test bolt store")
	store := NewBoltBookStorage(zap.NewNop(), &testConfig.BoltDB, client)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStore(t *testing.T) {
	runBookStorageTests(t, newTestBoltStore(t))
}

// TestBoltStore_Buckets ensures the buckets exist right after opening.
func TestBoltStore_Buckets(t *testing.T) {
	store := newTestBoltStore(t).(*boltBookStorage)
	err := store.client.View(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{boltBooksBucket, boltAuthorsBucket, boltCategoriesBucket} {
			require.NotNil(t, tx.Bucket(name), string(name))
		}
		return nil
	})
	require.NoError(t, err)
}
