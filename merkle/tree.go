package merkle

import (
	"encoding/binary"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

const nodeCacheSize = 4096

var (
	nodeKeyPrefix  = []byte("n")
	valueKeyPrefix = []byte("v")
	sizeKey        = []byte("size")
)

// AppendTree is a dense, fixed height, append only merkle tree whose leaves
// are inserted in full subtrees of fixed height. Nodes are persisted under a
// db prefix; empty nodes are never stored and resolve to the zero hash of
// their level. Mutations must be serialised by the caller, reads may run
// concurrently with each other.
type AppendTree struct {
	name          string
	height        int
	subtreeHeight int
	// indexed trees keep a value to leaf index lookup of their leaves
	indexed bool
	// unique trees refuse non zero leaves that are already present
	unique bool

	hasher *domain.Hasher
	root   db.Database
	prefix []byte
	reader db.Reader
	zeros  []types.Fr
	cache  *lru.Cache[string, types.Fr]

	size    uint64
	rootVal types.Fr
}

type treeOptions struct {
	indexed bool
	unique  bool
}

func newAppendTree(name string, database db.Database, prefix []byte, hasher *domain.Hasher,
	height, subtreeHeight int, opts treeOptions,
) (*AppendTree, error) {
	if height <= 0 || height > 63 || subtreeHeight < 0 || subtreeHeight > height {
		return nil, fmt.Errorf("invalid tree shape for %s: height %d subtree %d", name, height, subtreeHeight)
	}
	cache, err := lru.New[string, types.Fr](nodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create node cache: %w", err)
	}
	t := &AppendTree{
		name:          name,
		height:        height,
		subtreeHeight: subtreeHeight,
		indexed:       opts.indexed || opts.unique,
		unique:        opts.unique,
		hasher:        hasher,
		root:          database,
		prefix:        prefix,
		reader:        prefixeddb.NewPrefixedReader(database, prefix),
		cache:         cache,
	}
	if t.zeros, err = zeroHashes(hasher, height); err != nil {
		return nil, err
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// zeroHashes returns the roots of the empty subtrees of each height, from 0
// to height.
func zeroHashes(hasher *domain.Hasher, height int) ([]types.Fr, error) {
	zeros := make([]types.Fr, height+1)
	for l := 0; l < height; l++ {
		next, err := hasher.HashPair(zeros[l], zeros[l])
		if err != nil {
			return nil, err
		}
		zeros[l+1] = next
	}
	return zeros, nil
}

func (t *AppendTree) load() error {
	raw, err := t.reader.Get(sizeKey)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		t.size = 0
	case err != nil:
		return fmt.Errorf("could not load %s tree size: %w", t.name, err)
	default:
		t.size = binary.BigEndian.Uint64(raw)
	}
	t.rootVal, err = t.node(t.height, 0)
	return err
}

// Name returns the tree name.
func (t *AppendTree) Name() string { return t.name }

// Height returns the tree height.
func (t *AppendTree) Height() int { return t.height }

// SubtreeHeight returns the height of the batches inserted at once.
func (t *AppendTree) SubtreeHeight() int { return t.subtreeHeight }

// Size returns the number of leaves inserted so far, padding included.
func (t *AppendTree) Size() uint64 { return t.size }

// Capacity returns the maximum number of leaves.
func (t *AppendTree) Capacity() uint64 { return 1 << t.height }

// Root returns the current root.
func (t *AppendTree) Root() types.Fr { return t.rootVal }

func nodeKey(level int, index uint64) []byte {
	k := make([]byte, 0, len(nodeKeyPrefix)+9)
	k = append(k, nodeKeyPrefix...)
	k = append(k, byte(level))
	return binary.BigEndian.AppendUint64(k, index)
}

func valueKey(v types.Fr) []byte {
	b := v.Bytes()
	return append(append([]byte{}, valueKeyPrefix...), b[:]...)
}

// node returns the committed node at level and index.
func (t *AppendTree) node(level int, index uint64) (types.Fr, error) {
	key := nodeKey(level, index)
	if v, ok := t.cache.Get(string(key)); ok {
		return v, nil
	}
	raw, err := t.reader.Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return t.zeros[level], nil
	}
	if err != nil {
		return types.Fr{}, fmt.Errorf("could not read %s node: %w", t.name, err)
	}
	v, err := types.FrFromBytes(raw)
	if err != nil {
		return types.Fr{}, err
	}
	t.cache.Add(string(key), v)
	return v, nil
}

// Leaf returns the leaf at index.
func (t *AppendTree) Leaf(index uint64) (types.Fr, error) {
	if index >= t.size {
		return types.Fr{}, fmt.Errorf("%w: leaf %d of %s tree with %d leaves", ErrIndexOutOfRange, index, t.name, t.size)
	}
	return t.node(0, index)
}

// FindLeafIndex returns the index of a leaf value, the last one if it was
// inserted more than once. Only indexed trees support it, and unique trees
// never find zero.
func (t *AppendTree) FindLeafIndex(v types.Fr) (uint64, bool, error) {
	if !t.indexed {
		return 0, false, fmt.Errorf("%s tree is not indexed", t.name)
	}
	raw, err := t.reader.Get(valueKey(v))
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

// SiblingPath returns the Height() siblings of the leaf at index, from the
// leaf level up.
func (t *AppendTree) SiblingPath(index uint64) ([]types.Fr, error) {
	if index >= t.Capacity() {
		return nil, fmt.Errorf("%w: index %d for %s tree of height %d", ErrIndexOutOfRange, index, t.name, t.height)
	}
	path := make([]types.Fr, t.height)
	for l := 0; l < t.height; l++ {
		sib, err := t.node(l, index^1)
		if err != nil {
			return nil, err
		}
		path[l] = sib
		index >>= 1
	}
	return path, nil
}

// InsertSubtree appends exactly 2^SubtreeHeight() leaves and commits them.
func (t *AppendTree) InsertSubtree(leaves []types.Fr) (types.Fr, error) {
	b := t.batch()
	if err := b.insertSubtree(leaves); err != nil {
		return types.Fr{}, err
	}
	wTx := t.root.WriteTx()
	defer wTx.Discard()
	if err := b.write(wTx); err != nil {
		return types.Fr{}, err
	}
	if err := wTx.Commit(); err != nil {
		return types.Fr{}, err
	}
	b.apply()
	return t.rootVal, nil
}

// treeBatch stages the insertions of one tree until they are written in a
// shared db transaction.
type treeBatch struct {
	tree   *AppendTree
	nodes  map[string]types.Fr
	values map[types.Fr]uint64
	meta   map[string][]byte
	size   uint64
	root   types.Fr
}

func (t *AppendTree) batch() *treeBatch {
	return &treeBatch{
		tree:   t,
		nodes:  make(map[string]types.Fr),
		values: make(map[types.Fr]uint64),
		meta:   make(map[string][]byte),
		size:   t.size,
		root:   t.rootVal,
	}
}

func (b *treeBatch) node(level int, index uint64) (types.Fr, error) {
	if v, ok := b.nodes[string(nodeKey(level, index))]; ok {
		return v, nil
	}
	return b.tree.node(level, index)
}

func (b *treeBatch) has(v types.Fr) (bool, error) {
	if _, ok := b.values[v]; ok {
		return true, nil
	}
	_, found, err := b.tree.FindLeafIndex(v)
	return found, err
}

// insertSubtree stages a full subtree and all the nodes above it.
func (b *treeBatch) insertSubtree(leaves []types.Fr) error {
	t := b.tree
	want := 1 << t.subtreeHeight
	if len(leaves) != want {
		return fmt.Errorf("%w: %s tree takes subtrees of %d leaves, got %d", ErrInvalidSubtreeSize, t.name, want, len(leaves))
	}
	if b.size+uint64(want) > t.Capacity() {
		return fmt.Errorf("%w: %s tree holds %d of %d leaves", ErrTreeFull, t.name, b.size, t.Capacity())
	}
	if t.unique {
		for _, leaf := range leaves {
			if leaf.IsZero() {
				continue
			}
			dup, err := b.has(leaf)
			if err != nil {
				return err
			}
			if dup {
				return fmt.Errorf("%w: %s", ErrDuplicateNullifier, leaf)
			}
			b.values[leaf] = 0
		}
	}

	start := b.size
	index := start
	level := append([]types.Fr(nil), leaves...)
	for l := 0; l < t.height; l++ {
		for i, v := range level {
			b.nodes[string(nodeKey(l, index+uint64(i)))] = v
		}
		if len(level) > 1 {
			next := make([]types.Fr, len(level)/2)
			for i := range next {
				parent, err := t.hasher.HashPair(level[2*i], level[2*i+1])
				if err != nil {
					return err
				}
				next[i] = parent
			}
			level = next
		} else {
			sib, err := b.node(l, index^1)
			if err != nil {
				return err
			}
			left, right := level[0], sib
			if index&1 == 1 {
				left, right = sib, level[0]
			}
			parent, err := t.hasher.HashPair(left, right)
			if err != nil {
				return err
			}
			level = []types.Fr{parent}
		}
		index >>= 1
	}
	b.nodes[string(nodeKey(t.height, 0))] = level[0]
	b.root = level[0]

	if t.indexed {
		// unique trees use zero as padding, elsewhere zero is a real value
		for i, leaf := range leaves {
			if !leaf.IsZero() || !t.unique {
				b.values[leaf] = start + uint64(i)
			}
		}
	}
	b.size += uint64(want)
	return nil
}

func (b *treeBatch) setMeta(key []byte, value []byte) {
	b.meta[string(key)] = value
}

// write stores the staged nodes, indexes and size in wTx.
func (b *treeBatch) write(wTx db.WriteTx) error {
	if b.size == b.tree.size && len(b.meta) == 0 {
		return nil
	}
	pTx := prefixeddb.NewPrefixedWriteTx(wTx, b.tree.prefix)
	for k, v := range b.nodes {
		raw := v.Bytes()
		if err := pTx.Set([]byte(k), raw[:]); err != nil {
			return err
		}
	}
	for v, index := range b.values {
		if err := pTx.Set(valueKey(v), binary.BigEndian.AppendUint64(nil, index)); err != nil {
			return err
		}
	}
	for k, v := range b.meta {
		if err := pTx.Set([]byte(k), v); err != nil {
			return err
		}
	}
	return pTx.Set(sizeKey, binary.BigEndian.AppendUint64(nil, b.size))
}

// apply publishes the batch once its transaction is committed.
func (b *treeBatch) apply() {
	for k, v := range b.nodes {
		b.tree.cache.Add(k, v)
	}
	b.tree.size = b.size
	b.tree.rootVal = b.root
}
