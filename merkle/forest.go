// Package merkle holds the merkle forest of the rollup: the append only
// private data, nullifier, contract and L1 to L2 message trees, the sparse
// public data tree, the historic roots trees and the historic blocks tree.
//
// # Storage layout
//
// All trees share one key-value database, each under its own prefix:
//   - pd/, nf/, ct/, l1/ : append only data trees (nodes, value index, size)
//   - pub/              : public data sparse tree (arbo)
//   - r/pd/ … r/pub/    : roots tree of each data tree
//   - hb/               : historic blocks tree
//   - vk/               : verification keys tree
//   - f/                : forest metadata (block number)
package merkle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
	"golang.org/x/sync/errgroup"
)

// TreeID identifies a tree of the forest.
type TreeID uint8

const (
	TreePrivateData TreeID = iota
	TreeNullifier
	TreeContract
	TreeL1ToL2Messages
	TreePublicData
	TreeHistoricBlocks
	TreeVK
	TreePrivateDataRoots
	TreeNullifierRoots
	TreeContractRoots
	TreeL1ToL2MessagesRoots
	TreePublicDataRoots
)

var treeNames = map[TreeID]string{
	TreePrivateData:         "private_data",
	TreeNullifier:           "nullifier",
	TreeContract:            "contract",
	TreeL1ToL2Messages:      "l1_to_l2_messages",
	TreePublicData:          "public_data",
	TreeHistoricBlocks:      "historic_blocks",
	TreeVK:                  "vk",
	TreePrivateDataRoots:    "private_data_roots",
	TreeNullifierRoots:      "nullifier_roots",
	TreeContractRoots:       "contract_roots",
	TreeL1ToL2MessagesRoots: "l1_to_l2_messages_roots",
	TreePublicDataRoots:     "public_data_roots",
}

func (id TreeID) String() string {
	if name, ok := treeNames[id]; ok {
		return name
	}
	return fmt.Sprintf("tree(%d)", uint8(id))
}

// rootsTreeOf maps every data tree to the tree keeping its historic roots.
var rootsTreeOf = map[TreeID]TreeID{
	TreePrivateData:    TreePrivateDataRoots,
	TreeNullifier:      TreeNullifierRoots,
	TreeContract:       TreeContractRoots,
	TreeL1ToL2Messages: TreeL1ToL2MessagesRoots,
	TreePublicData:     TreePublicDataRoots,
}

type treeSpec struct {
	prefix        string
	height        int
	subtreeHeight int
	opts          treeOptions
}

var appendTreeSpecs = map[TreeID]treeSpec{
	TreePrivateData:         {"pd/", types.PrivateDataTreeHeight, types.PrivateDataSubtreeHeight, treeOptions{}},
	TreeNullifier:           {"nf/", types.NullifierTreeHeight, types.NullifierSubtreeHeight, treeOptions{unique: true}},
	TreeContract:            {"ct/", types.ContractTreeHeight, types.ContractSubtreeHeight, treeOptions{}},
	TreeL1ToL2Messages:      {"l1/", types.L1ToL2MsgTreeHeight, types.L1ToL2MsgSubtreeHeight, treeOptions{}},
	TreeHistoricBlocks:      {"hb/", types.HistoricBlocksTreeHeight, 0, treeOptions{indexed: true}},
	TreeVK:                  {"vk/", types.VKTreeHeight, 0, treeOptions{indexed: true}},
	TreePrivateDataRoots:    {"r/pd/", types.PrivateDataTreeRootsTreeHeight, 0, treeOptions{indexed: true}},
	TreeNullifierRoots:      {"r/nf/", types.HistoricRootsTreeHeight, 0, treeOptions{indexed: true}},
	TreeContractRoots:       {"r/ct/", types.ContractTreeRootsTreeHeight, 0, treeOptions{indexed: true}},
	TreeL1ToL2MessagesRoots: {"r/l1/", types.L1ToL2MsgTreeRootsTreeHeight, 0, treeOptions{indexed: true}},
	TreePublicDataRoots:     {"r/pub/", types.HistoricRootsTreeHeight, 0, treeOptions{indexed: true}},
}

var (
	publicDataPrefix  = []byte("pub/")
	forestMetaPrefix  = []byte("f/")
	blockNumberKey    = []byte("block")
	contractKeyPrefix = []byte("a")
)

// Roots are the current roots of the forest trees.
type Roots struct {
	PrivateData    types.Fr `json:"privateDataTreeRoot"`
	Nullifier      types.Fr `json:"nullifierTreeRoot"`
	Contract       types.Fr `json:"contractTreeRoot"`
	L1ToL2Messages types.Fr `json:"l1ToL2MessagesTreeRoot"`
	PublicData     types.Fr `json:"publicDataTreeRoot"`
	HistoricBlocks types.Fr `json:"historicBlocksTreeRoot"`
}

// Reader is the read side of the forest. The forest itself and the
// snapshots passed by View implement it.
type Reader interface {
	Root(id TreeID) (types.Fr, error)
	Roots() (*Roots, error)
	Size(id TreeID) (uint64, error)
	SiblingPath(id TreeID, index uint64) ([]types.Fr, error)
	PublicDataSiblingPath(index types.Fr) ([]types.Fr, error)
	PublicDataProof(index types.Fr) (*PublicDataProof, error)
	IsNullifierRegistered(nullifier types.Fr) (bool, error)
	IsContractDeployed(address types.AztecAddress) (bool, error)
	StorageAt(index types.Fr) (types.Fr, error)
	IsHistoricRoot(id TreeID, root types.Fr) (bool, error)
	BlockNumber() uint64
}

// Forest owns all the trees of the rollup state. Mutations are serialised,
// reads run concurrently and View gives a stable snapshot for a batch of
// reads.
type Forest struct {
	mu          sync.RWMutex
	db          db.Database
	hasher      *domain.Hasher
	trees       map[TreeID]*AppendTree
	publicData  *PublicDataTree
	meta        db.Reader
	blockNumber uint64
}

var _ Reader = (*Forest)(nil)

// NewForest opens, or creates, the forest stored in database. A nil hasher
// selects domain.Default.
func NewForest(database db.Database, hasher *domain.Hasher) (*Forest, error) {
	if hasher == nil {
		hasher = domain.Default
	}
	f := &Forest{
		db:     database,
		hasher: hasher,
		trees:  make(map[TreeID]*AppendTree, len(appendTreeSpecs)),
		meta:   prefixeddb.NewPrefixedReader(database, forestMetaPrefix),
	}
	for id, spec := range appendTreeSpecs {
		t, err := newAppendTree(id.String(), database, []byte(spec.prefix), hasher, spec.height, spec.subtreeHeight, spec.opts)
		if err != nil {
			return nil, err
		}
		f.trees[id] = t
	}
	var err error
	if f.publicData, err = newPublicDataTree(database, publicDataPrefix); err != nil {
		return nil, err
	}
	raw, err := f.meta.Get(blockNumberKey)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
	case err != nil:
		return nil, err
	default:
		f.blockNumber = binary.BigEndian.Uint64(raw)
	}
	if err := f.recordInitialRoots(); err != nil {
		return nil, err
	}
	return f, nil
}

// recordInitialRoots stores the roots of the empty trees as the first
// historic roots, so transactions can be assembled against the genesis
// state.
func (f *Forest) recordInitialRoots() error {
	wTx := f.db.WriteTx()
	defer wTx.Discard()
	var batches []*treeBatch
	for id, rootsID := range rootsTreeOf {
		rootsTree := f.trees[rootsID]
		if rootsTree.Size() > 0 {
			continue
		}
		root, err := f.snapshot().Root(id)
		if err != nil {
			return err
		}
		b := rootsTree.batch()
		if err := b.insertSubtree([]types.Fr{root}); err != nil {
			return err
		}
		if err := b.write(wTx); err != nil {
			return err
		}
		batches = append(batches, b)
	}
	if len(batches) == 0 {
		return nil
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	for _, b := range batches {
		b.apply()
	}
	return nil
}

// Hasher returns the hasher of the tree nodes.
func (f *Forest) Hasher() *domain.Hasher {
	return f.hasher
}

func (f *Forest) appendTree(id TreeID) (*AppendTree, error) {
	t, ok := f.trees[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTree, id)
	}
	return t, nil
}

// InsertSubtree appends one subtree of leaves to an append only tree and
// records the new root in its roots tree.
func (f *Forest) InsertSubtree(id TreeID, leaves []types.Fr) (types.Fr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.appendTree(id)
	if err != nil {
		return types.Fr{}, err
	}
	b := t.batch()
	if err := b.insertSubtree(leaves); err != nil {
		return types.Fr{}, err
	}
	batches := []*treeBatch{b}
	if rootsID, ok := rootsTreeOf[id]; ok {
		rb := f.trees[rootsID].batch()
		if err := rb.insertSubtree([]types.Fr{b.root}); err != nil {
			return types.Fr{}, err
		}
		batches = append(batches, rb)
	}
	if err := f.commit(batches, nil); err != nil {
		return types.Fr{}, err
	}
	return b.root, nil
}

// UpdatePublicData writes value at a public leaf index and records the new
// root.
func (f *Forest) UpdatePublicData(index, value types.Fr) (types.Fr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wTx := f.db.WriteTx()
	defer wTx.Discard()
	root, err := f.publicData.updateWithTx(wTx, index, value)
	if err != nil {
		return types.Fr{}, err
	}
	rb := f.trees[TreePublicDataRoots].batch()
	if err := rb.insertSubtree([]types.Fr{root}); err != nil {
		return types.Fr{}, err
	}
	if err := f.commit([]*treeBatch{rb}, wTx); err != nil {
		return types.Fr{}, err
	}
	return root, nil
}

// RegisterVK appends a verification key hash to the VK tree and returns
// its leaf index.
func (f *Forest) RegisterVK(vkHash types.Fr) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.trees[TreeVK]
	if index, found, err := t.FindLeafIndex(vkHash); err != nil || found {
		return index, err
	}
	index := t.Size()
	b := t.batch()
	if err := b.insertSubtree([]types.Fr{vkHash}); err != nil {
		return 0, err
	}
	return index, f.commit([]*treeBatch{b}, nil)
}

// commit writes batches in wTx, or in a new transaction if wTx is nil, and
// publishes them once committed.
func (f *Forest) commit(batches []*treeBatch, wTx db.WriteTx) error {
	if wTx == nil {
		wTx = f.db.WriteTx()
		defer wTx.Discard()
	}
	for _, b := range batches {
		if err := b.write(wTx); err != nil {
			return err
		}
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("could not commit forest update: %w", err)
	}
	for _, b := range batches {
		b.apply()
	}
	return nil
}

// View runs fn against a snapshot no mutation can change while fn runs.
// fn must not call mutating methods of the forest.
func (f *Forest) View(fn func(r Reader) error) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return fn(f.snapshot())
}

func (f *Forest) snapshot() snapshot {
	return snapshot{f}
}

// Root returns the root of a tree.
func (f *Forest) Root(id TreeID) (types.Fr, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().Root(id)
}

// Roots returns the current roots.
func (f *Forest) Roots() (*Roots, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().Roots()
}

// Size returns the number of leaves of an append only tree.
func (f *Forest) Size(id TreeID) (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().Size(id)
}

// SiblingPath returns the sibling path of a leaf of an append only tree.
func (f *Forest) SiblingPath(id TreeID, index uint64) ([]types.Fr, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().SiblingPath(id, index)
}

// PublicDataSiblingPath returns the sibling path of a public leaf index.
func (f *Forest) PublicDataSiblingPath(index types.Fr) ([]types.Fr, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().PublicDataSiblingPath(index)
}

// PublicDataProof returns a proof of the value at a public leaf index.
func (f *Forest) PublicDataProof(index types.Fr) (*PublicDataProof, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().PublicDataProof(index)
}

// IsNullifierRegistered reports whether a siloed nullifier is in the
// nullifier tree.
func (f *Forest) IsNullifierRegistered(nullifier types.Fr) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().IsNullifierRegistered(nullifier)
}

// IsContractDeployed reports whether address has a leaf in the contract
// tree.
func (f *Forest) IsContractDeployed(address types.AztecAddress) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().IsContractDeployed(address)
}

// StorageAt returns the public data value at a public leaf index.
func (f *Forest) StorageAt(index types.Fr) (types.Fr, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().StorageAt(index)
}

// IsHistoricRoot reports whether root was a root of the data tree id.
func (f *Forest) IsHistoricRoot(id TreeID, root types.Fr) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot().IsHistoricRoot(id, root)
}

// BlockNumber returns the number of the last applied block.
func (f *Forest) BlockNumber() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.blockNumber
}

// snapshot implements Reader without locking; the caller holds the lock.
type snapshot struct {
	f *Forest
}

func (s snapshot) Root(id TreeID) (types.Fr, error) {
	if id == TreePublicData {
		return s.f.publicData.Root()
	}
	t, err := s.f.appendTree(id)
	if err != nil {
		return types.Fr{}, err
	}
	return t.Root(), nil
}

func (s snapshot) Roots() (*Roots, error) {
	pub, err := s.f.publicData.Root()
	if err != nil {
		return nil, err
	}
	return &Roots{
		PrivateData:    s.f.trees[TreePrivateData].Root(),
		Nullifier:      s.f.trees[TreeNullifier].Root(),
		Contract:       s.f.trees[TreeContract].Root(),
		L1ToL2Messages: s.f.trees[TreeL1ToL2Messages].Root(),
		PublicData:     pub,
		HistoricBlocks: s.f.trees[TreeHistoricBlocks].Root(),
	}, nil
}

func (s snapshot) Size(id TreeID) (uint64, error) {
	t, err := s.f.appendTree(id)
	if err != nil {
		return 0, err
	}
	return t.Size(), nil
}

func (s snapshot) SiblingPath(id TreeID, index uint64) ([]types.Fr, error) {
	t, err := s.f.appendTree(id)
	if err != nil {
		return nil, err
	}
	return t.SiblingPath(index)
}

func (s snapshot) PublicDataSiblingPath(index types.Fr) ([]types.Fr, error) {
	return s.f.publicData.SiblingPath(index)
}

func (s snapshot) PublicDataProof(index types.Fr) (*PublicDataProof, error) {
	return s.f.publicData.Proof(index)
}

func (s snapshot) IsNullifierRegistered(nullifier types.Fr) (bool, error) {
	if nullifier.IsZero() {
		return false, nil
	}
	_, found, err := s.f.trees[TreeNullifier].FindLeafIndex(nullifier)
	return found, err
}

func (s snapshot) IsContractDeployed(address types.AztecAddress) (bool, error) {
	if address.IsZero() {
		return false, nil
	}
	_, err := s.f.trees[TreeContract].reader.Get(contractKey(address))
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s snapshot) StorageAt(index types.Fr) (types.Fr, error) {
	return s.f.publicData.Get(index)
}

func (s snapshot) IsHistoricRoot(id TreeID, root types.Fr) (bool, error) {
	rootsID, ok := rootsTreeOf[id]
	if !ok {
		return false, fmt.Errorf("%w: %s has no roots tree", ErrUnknownTree, id)
	}
	_, found, err := s.f.trees[rootsID].FindLeafIndex(root)
	return found, err
}

func (s snapshot) BlockNumber() uint64 {
	return s.f.blockNumber
}

func contractKey(address types.AztecAddress) []byte {
	b := address.Bytes()
	return append(append([]byte{}, contractKeyPrefix...), b[:]...)
}

// ContractData is a contract deployed by a block.
type ContractData struct {
	Address          types.AztecAddress `json:"address"`
	Portal           types.EthAddress   `json:"portalContractAddress"`
	FunctionTreeRoot types.Fr           `json:"functionTreeRoot"`
}

// PublicWrite sets a public leaf index to a value.
type PublicWrite struct {
	Index types.Fr `json:"leafIndex"`
	Value types.Fr `json:"value"`
}

// GlobalVariables are the block level values bound into the block hash.
type GlobalVariables struct {
	ChainID     types.Fr `json:"chainId"`
	Version     types.Fr `json:"version"`
	BlockNumber uint64   `json:"blockNumber"`
	Timestamp   uint64   `json:"timestamp"`
}

// BlockUpdate is the state change of one rollup block. Each append only
// tree receives exactly one subtree, right padded with zeros.
type BlockUpdate struct {
	Globals        GlobalVariables `json:"globalVariables"`
	Commitments    []types.Fr      `json:"newCommitments"`
	Nullifiers     []types.Fr      `json:"newNullifiers"`
	Contracts      []ContractData  `json:"newContracts"`
	L1ToL2Messages []types.Fr      `json:"newL1ToL2Messages"`
	PublicWrites   []PublicWrite   `json:"newPublicDataWrites"`
}

// BlockResult is the outcome of applying a block.
type BlockResult struct {
	Number uint64   `json:"number"`
	Hash   types.Fr `json:"hash"`
	Roots  Roots    `json:"roots"`
}

// BlockHash binds the global variables of a block to the roots after it.
func BlockHash(hasher *domain.Hasher, g GlobalVariables, r *Roots) (types.Fr, error) {
	return hasher.Hash(domain.GlobalVariables,
		g.ChainID, g.Version, types.NewFr(g.BlockNumber), types.NewFr(g.Timestamp),
		r.PrivateData, r.Nullifier, r.Contract, r.L1ToL2Messages, r.PublicData)
}

func padSubtree(t *AppendTree, leaves []types.Fr) ([]types.Fr, error) {
	size := 1 << t.SubtreeHeight()
	if len(leaves) > size {
		return nil, fmt.Errorf("%w: %d leaves for the %s tree, subtree holds %d", ErrInvalidBlock, len(leaves), t.Name(), size)
	}
	return types.PadFields(leaves, size)
}

// ApplyBlock applies a block to every tree in a single database
// transaction. Either all trees change or none does.
func (f *Forest) ApplyBlock(update *BlockUpdate) (*BlockResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if update.Globals.BlockNumber != f.blockNumber+1 {
		return nil, fmt.Errorf("%w: expected block %d, got %d", ErrInvalidBlock, f.blockNumber+1, update.Globals.BlockNumber)
	}
	contractTree := f.trees[TreeContract]
	contractLeaves := make([]types.Fr, 0, len(update.Contracts))
	for _, cd := range update.Contracts {
		leaf, err := f.hasher.ContractLeaf(cd.Address, cd.Portal, cd.FunctionTreeRoot)
		if err != nil {
			return nil, err
		}
		contractLeaves = append(contractLeaves, leaf)
	}
	inputs := map[TreeID][]types.Fr{
		TreePrivateData:    update.Commitments,
		TreeNullifier:      update.Nullifiers,
		TreeContract:       contractLeaves,
		TreeL1ToL2Messages: update.L1ToL2Messages,
	}
	padded := make(map[TreeID][]types.Fr, len(inputs))
	for id, leaves := range inputs {
		p, err := padSubtree(f.trees[id], leaves)
		if err != nil {
			return nil, err
		}
		padded[id] = p
	}

	// subtrees of independent trees are hashed concurrently
	batches := make(map[TreeID]*treeBatch, len(padded))
	for id := range padded {
		batches[id] = f.trees[id].batch()
	}
	var eg errgroup.Group
	for id, b := range batches {
		eg.Go(func() error {
			return b.insertSubtree(padded[id])
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	firstContract := contractTree.Size()
	for i, cd := range update.Contracts {
		batches[TreeContract].setMeta(contractKey(cd.Address), binary.BigEndian.AppendUint64(nil, firstContract+uint64(i)))
	}

	wTx := f.db.WriteTx()
	defer wTx.Discard()
	publicRoot, err := f.publicData.Root()
	if err != nil {
		return nil, err
	}
	for _, w := range update.PublicWrites {
		if publicRoot, err = f.publicData.updateWithTx(wTx, w.Index, w.Value); err != nil {
			return nil, err
		}
	}

	roots := Roots{
		PrivateData:    batches[TreePrivateData].root,
		Nullifier:      batches[TreeNullifier].root,
		Contract:       batches[TreeContract].root,
		L1ToL2Messages: batches[TreeL1ToL2Messages].root,
		PublicData:     publicRoot,
	}
	all := make([]*treeBatch, 0, 2*len(batches)+2)
	for id, b := range batches {
		rb := f.trees[rootsTreeOf[id]].batch()
		if err := rb.insertSubtree([]types.Fr{b.root}); err != nil {
			return nil, err
		}
		all = append(all, b, rb)
	}
	pb := f.trees[TreePublicDataRoots].batch()
	if err := pb.insertSubtree([]types.Fr{publicRoot}); err != nil {
		return nil, err
	}
	blockHash, err := BlockHash(f.hasher, update.Globals, &roots)
	if err != nil {
		return nil, err
	}
	hb := f.trees[TreeHistoricBlocks].batch()
	if err := hb.insertSubtree([]types.Fr{blockHash}); err != nil {
		return nil, err
	}
	roots.HistoricBlocks = hb.root
	all = append(all, pb, hb)

	mTx := prefixeddb.NewPrefixedWriteTx(wTx, forestMetaPrefix)
	if err := mTx.Set(blockNumberKey, binary.BigEndian.AppendUint64(nil, update.Globals.BlockNumber)); err != nil {
		return nil, err
	}
	if err := f.commit(all, wTx); err != nil {
		return nil, err
	}
	f.blockNumber = update.Globals.BlockNumber
	log.Debugw("block applied",
		"number", update.Globals.BlockNumber,
		"hash", blockHash.String(),
		"commitments", len(update.Commitments),
		"nullifiers", len(update.Nullifiers),
		"contracts", len(update.Contracts),
		"publicWrites", len(update.PublicWrites))
	return &BlockResult{Number: update.Globals.BlockNumber, Hash: blockHash, Roots: roots}, nil
}
