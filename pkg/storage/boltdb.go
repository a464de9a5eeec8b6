package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/shardctl/shardctl/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketIndices       = []byte("indices")
	bucketNodes         = []byte("nodes")
	bucketUnassigned    = []byte("unassigned")
	bucketDesiredBalance = []byte("desired_balance")
	bucketClusterInfo   = []byte("cluster_info")
	bucketMeta          = []byte("meta")
)

// keyCurrent is the single key used by the whole-value buckets
// (unassigned, desired_balance, cluster_info) that hold exactly one record.
var keyCurrent = []byte("current")

// keySchemaVersion records the on-disk schema version in bucketMeta.
var keySchemaVersion = []byte("schema_version")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the BoltDB file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "shardctl.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketIndices,
			bucketNodes,
			bucketUnassigned,
			bucketDesiredBalance,
			bucketClusterInfo,
			bucketMeta,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b.Get(keySchemaVersion) == nil {
			return b.Put(keySchemaVersion, []byte("1"))
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Index operations

func (s *BoltStore) CreateIndex(index *types.Index) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndices)
		data, err := json.Marshal(index)
		if err != nil {
			return err
		}
		return b.Put([]byte(index.UUID), data)
	})
}

func (s *BoltStore) GetIndex(uuid string) (*types.Index, error) {
	var index types.Index
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndices)
		data := b.Get([]byte(uuid))
		if data == nil {
			return fmt.Errorf("index not found: %s", uuid)
		}
		return json.Unmarshal(data, &index)
	})
	return &index, err
}

func (s *BoltStore) GetIndexByName(name string) (*types.Index, error) {
	var found *types.Index
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndices)
		return b.ForEach(func(k, v []byte) error {
			var index types.Index
			if err := json.Unmarshal(v, &index); err != nil {
				return err
			}
			if index.Name == name {
				found = &index
			}
			return nil
		})
	})
	if err == nil && found == nil {
		return nil, fmt.Errorf("index not found: %s", name)
	}
	return found, err
}

func (s *BoltStore) ListIndices() ([]*types.Index, error) {
	var indices []*types.Index
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndices)
		return b.ForEach(func(k, v []byte) error {
			var index types.Index
			if err := json.Unmarshal(v, &index); err != nil {
				return err
			}
			indices = append(indices, &index)
			return nil
		})
	})
	return indices, err
}

func (s *BoltStore) UpdateIndex(index *types.Index) error {
	return s.CreateIndex(index)
}

func (s *BoltStore) DeleteIndex(uuid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndices).Delete([]byte(uuid))
	})
}

// Node operations

func (s *BoltStore) CreateNode(node *types.RoutingNode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return b.Put([]byte(node.ID), data)
	})
}

func (s *BoltStore) GetNode(id string) (*types.RoutingNode, error) {
	var node types.RoutingNode
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("node not found: %s", id)
		}
		return json.Unmarshal(data, &node)
	})
	return &node, err
}

func (s *BoltStore) ListNodes() ([]*types.RoutingNode, error) {
	var nodes []*types.RoutingNode
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var node types.RoutingNode
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.RoutingNode) error {
	return s.CreateNode(node)
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Delete([]byte(id))
	})
}

// Unassigned, DesiredBalance, ClusterInfo: each is a single JSON blob keyed
// by keyCurrent in its own bucket, replaced wholesale on every write.

func (s *BoltStore) SetUnassigned(shards []types.ShardRouting) error {
	return s.putSingleton(bucketUnassigned, shards)
}

func (s *BoltStore) GetUnassigned() ([]types.ShardRouting, error) {
	var shards []types.ShardRouting
	found, err := s.getSingleton(bucketUnassigned, &shards)
	if err != nil {
		return nil, err
	}
	if !found {
		return []types.ShardRouting{}, nil
	}
	return shards, nil
}

func (s *BoltStore) SetDesiredBalance(balance types.DesiredBalance) error {
	return s.putSingleton(bucketDesiredBalance, balance)
}

func (s *BoltStore) GetDesiredBalance() (types.DesiredBalance, error) {
	balance := types.EmptyDesiredBalance()
	found, err := s.getSingleton(bucketDesiredBalance, &balance)
	if err != nil {
		return types.DesiredBalance{}, err
	}
	if !found {
		return types.EmptyDesiredBalance(), nil
	}
	return balance, nil
}

func (s *BoltStore) SetClusterInfo(snapshot types.ClusterInfoSnapshot) error {
	return s.putSingleton(bucketClusterInfo, snapshot)
}

func (s *BoltStore) GetClusterInfo() (types.ClusterInfoSnapshot, error) {
	snapshot := types.EmptyClusterInfoSnapshot()
	found, err := s.getSingleton(bucketClusterInfo, &snapshot)
	if err != nil {
		return types.ClusterInfoSnapshot{}, err
	}
	if !found {
		return types.EmptyClusterInfoSnapshot(), nil
	}
	return snapshot, nil
}

func (s *BoltStore) putSingleton(bucket []byte, v interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put(keyCurrent, data)
	})
}

func (s *BoltStore) getSingleton(bucket []byte, out interface{}) (found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(keyCurrent)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	return found, err
}
