package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

// historicTrees are the trees a tx proves membership against.
var historicTrees = []struct {
	id   merkle.TreeID
	root func(r *merkle.Roots) types.Fr
}{
	{merkle.TreePrivateData, func(r *merkle.Roots) types.Fr { return r.PrivateData }},
	{merkle.TreeNullifier, func(r *merkle.Roots) types.Fr { return r.Nullifier }},
	{merkle.TreeContract, func(r *merkle.Roots) types.Fr { return r.Contract }},
	{merkle.TreeL1ToL2Messages, func(r *merkle.Roots) types.Fr { return r.L1ToL2Messages }},
	{merkle.TreePublicData, func(r *merkle.Roots) types.Fr { return r.PublicData }},
}

// LocalConfig configures the in-process sequencer.
type LocalConfig struct {
	ChainID types.Fr
	Version types.Fr
	// TxsPerBlock defaults to types.KernelsPerBaseRollup.
	TxsPerBlock int
}

// Local is an in-process sequencer. It validates txs against its forest,
// keeps them pending and mines them into blocks.
type Local struct {
	forest   *merkle.Forest
	hasher   *domain.Hasher
	chainID  types.Fr
	version  types.Fr
	perBlock int

	mu         sync.Mutex
	pending    []*tx.Tx
	nullifiers map[types.Fr]types.TxHash
	receipts   map[types.TxHash]*TxReceipt
	messages   []types.Fr
	blocks     []*Block
	now        func() time.Time
}

var _ Node = (*Local)(nil)

// NewLocal returns a sequencer mining into forest.
func NewLocal(forest *merkle.Forest, cfg LocalConfig) *Local {
	perBlock := cfg.TxsPerBlock
	if perBlock <= 0 || perBlock > types.KernelsPerBaseRollup {
		perBlock = types.KernelsPerBaseRollup
	}
	return &Local{
		forest:     forest,
		hasher:     forest.Hasher(),
		chainID:    cfg.ChainID,
		version:    cfg.Version,
		perBlock:   perBlock,
		nullifiers: make(map[types.Fr]types.TxHash),
		receipts:   make(map[types.TxHash]*TxReceipt),
		now:        time.Now,
	}
}

// Forest returns the forest the sequencer mines into.
func (l *Local) Forest() *merkle.Forest { return l.forest }

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTxRejected, fmt.Sprintf(format, args...))
}

// validate checks a verified tx against the state. The caller holds the
// lock.
func (l *Local) validate(t *tx.Tx) error {
	txCtx := t.Request.TxContext
	if !txCtx.ChainID.Equal(l.chainID) || !txCtx.Version.Equal(l.version) {
		return rejected("tx for chain %s version %s", txCtx.ChainID, txCtx.Version)
	}
	return l.forest.View(func(r merkle.Reader) error {
		for _, h := range historicTrees {
			root := h.root(&t.HistoricRoots)
			ok, err := r.IsHistoricRoot(h.id, root)
			if err != nil {
				return err
			}
			if !ok {
				return rejected("unknown %s root %s", h.id, root)
			}
		}
		seen := make(map[types.Fr]bool, len(t.Data.NewNullifiers))
		for _, n := range t.Data.NewNullifiers {
			if seen[n] {
				return fmt.Errorf("%w: %w: %s repeated", ErrTxRejected, merkle.ErrDuplicateNullifier, n)
			}
			seen[n] = true
			if other, ok := l.nullifiers[n]; ok {
				return rejected("nullifier %s pending in tx %s", n, other)
			}
			registered, err := r.IsNullifierRegistered(n)
			if err != nil {
				return err
			}
			if registered {
				return fmt.Errorf("%w: %w: %s", ErrTxRejected, merkle.ErrDuplicateNullifier, n)
			}
		}
		return nil
	})
}

// SendTx validates t and queues it for the next block. Sending again a tx
// that is pending or mined returns its hash; a dropped tx is validated
// again.
func (l *Local) SendTx(_ context.Context, t *tx.Tx) (types.TxHash, error) {
	if t == nil {
		return types.TxHash{}, rejected("nil tx")
	}
	if err := t.Verify(l.hasher); err != nil {
		return types.TxHash{}, fmt.Errorf("%w: %w", ErrTxRejected, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.receipts[t.Hash]; ok && r.Status != TxStatusDropped {
		log.Debugw("tx already known", "hash", t.Hash.String(), "status", string(r.Status))
		return t.Hash, nil
	}
	if err := l.validate(t); err != nil {
		log.Debugw("tx rejected", "hash", t.Hash.String(), "error", err.Error())
		return types.TxHash{}, err
	}
	l.pending = append(l.pending, t)
	for _, n := range t.Data.NewNullifiers {
		l.nullifiers[n] = t.Hash
	}
	receipt := &TxReceipt{TxHash: t.Hash, Status: TxStatusPending}
	if addr, ok := t.ContractAddress(); ok {
		receipt.ContractAddress = &addr
	}
	l.receipts[t.Hash] = receipt
	log.Infow("tx accepted", "hash", t.Hash.String(), "pending", len(l.pending))
	return t.Hash, nil
}

// GetTxReceipt returns the receipt of a tx.
func (l *Local) GetTxReceipt(_ context.Context, hash types.TxHash) (*TxReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash)
	}
	cp := *r
	return &cp, nil
}

// GetBlocks returns mined blocks starting at number from.
func (l *Local) GetBlocks(_ context.Context, from uint64, limit int) ([]*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from == 0 {
		from = 1
	}
	if limit <= 0 || from > uint64(len(l.blocks)) {
		return []*Block{}, nil
	}
	end := min(from-1+uint64(limit), uint64(len(l.blocks)))
	return append([]*Block(nil), l.blocks[from-1:end]...), nil
}

// BlockNumber returns the number of the last mined block.
func (l *Local) BlockNumber(context.Context) (uint64, error) {
	return l.forest.BlockNumber(), nil
}

// AddL1ToL2Message queues a message for the next block.
func (l *Local) AddL1ToL2Message(msg types.Fr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// PendingTxs returns the number of txs waiting for a block.
func (l *Local) PendingTxs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Local) drop(t *tx.Tx, cause error) {
	r := l.receipts[t.Hash]
	r.Status = TxStatusDropped
	r.Error = cause.Error()
	for _, n := range t.Data.NewNullifiers {
		delete(l.nullifiers, n)
	}
	log.Warnw("tx dropped", "hash", t.Hash.String(), "error", cause.Error())
}

// publicWrites checks the public reads and updates of t against the state
// after the writes already in the block, and returns the writes of t.
func publicWrites(r merkle.Reader, overlay map[types.Fr]types.Fr, t *tx.Tx) ([]merkle.PublicWrite, error) {
	current := func(index types.Fr) (types.Fr, error) {
		if v, ok := overlay[index]; ok {
			return v, nil
		}
		return r.StorageAt(index)
	}
	for _, read := range t.Data.PublicDataReads {
		v, err := current(read.LeafIndex)
		if err != nil {
			return nil, err
		}
		if !v.Equal(read.Value) {
			return nil, fmt.Errorf("stale public read at %s: read %s, state has %s", read.LeafIndex, read.Value, v)
		}
	}
	local := make(map[types.Fr]types.Fr)
	writes := make([]merkle.PublicWrite, 0, len(t.Data.PublicDataUpdateRequests))
	for _, u := range t.Data.PublicDataUpdateRequests {
		v, ok := local[u.LeafIndex]
		if !ok {
			var err error
			if v, err = current(u.LeafIndex); err != nil {
				return nil, err
			}
		}
		if !v.Equal(u.OldValue) {
			return nil, fmt.Errorf("stale public write at %s: old value %s, state has %s", u.LeafIndex, u.OldValue, v)
		}
		local[u.LeafIndex] = u.NewValue
		writes = append(writes, merkle.PublicWrite{Index: u.LeafIndex, Value: u.NewValue})
	}
	for k, v := range local {
		overlay[k] = v
	}
	return writes, nil
}

// Mine builds a block with the oldest pending txs and the queued L1 to L2
// messages and applies it to the forest. Txs whose public state went stale
// are dropped. It returns nil when there was nothing to mine.
func (l *Local) Mine(ctx context.Context) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 && len(l.messages) == 0 {
		return nil, nil
	}
	update := &merkle.BlockUpdate{
		Globals: merkle.GlobalVariables{
			ChainID:     l.chainID,
			Version:     l.version,
			BlockNumber: l.forest.BlockNumber() + 1,
			Timestamp:   uint64(l.now().Unix()),
		},
	}
	var included []*tx.Tx
	overlay := make(map[types.Fr]types.Fr)
	err := l.forest.View(func(r merkle.Reader) error {
		for len(l.pending) > 0 && len(included) < l.perBlock {
			if err := ctx.Err(); err != nil {
				return err
			}
			t := l.pending[0]
			l.pending = l.pending[1:]
			writes, err := publicWrites(r, overlay, t)
			if err != nil {
				l.drop(t, err)
				continue
			}
			commitments, err := types.PadFields(t.Data.NewCommitments, types.MaxNewCommitmentsPerTx)
			if err != nil {
				l.drop(t, err)
				continue
			}
			nullifiers, err := types.PadFields(t.Data.NewNullifiers, types.MaxNewNullifiersPerTx)
			if err != nil {
				l.drop(t, err)
				continue
			}
			update.Commitments = append(update.Commitments, commitments...)
			update.Nullifiers = append(update.Nullifiers, nullifiers...)
			for _, c := range t.Data.NewContracts {
				update.Contracts = append(update.Contracts, merkle.ContractData{
					Address:          c.ContractAddress,
					Portal:           c.PortalAddress,
					FunctionTreeRoot: c.FunctionTreeRoot,
				})
			}
			update.PublicWrites = append(update.PublicWrites, writes...)
			included = append(included, t)
		}
		return nil
	})
	if err != nil {
		// the txs taken so far go back to the head of the queue
		l.pending = append(included, l.pending...)
		return nil, err
	}
	n := min(len(l.messages), types.NumberOfL1L2MessagesPerRollup)
	update.L1ToL2Messages = append([]types.Fr(nil), l.messages[:n]...)
	if len(included) == 0 && n == 0 {
		return nil, nil
	}

	res, err := l.forest.ApplyBlock(update)
	if err != nil {
		for _, t := range included {
			l.drop(t, err)
		}
		return nil, fmt.Errorf("could not apply block %d: %w", update.Globals.BlockNumber, err)
	}
	l.messages = l.messages[n:]
	block := l.record(res, update)
	for _, t := range included {
		r := l.receipts[t.Hash]
		r.Status = TxStatusMined
		r.BlockNumber = res.Number
		for _, n := range t.Data.NewNullifiers {
			delete(l.nullifiers, n)
		}
		block.TxHashes = append(block.TxHashes, t.Hash)
	}
	log.Infow("block mined",
		"number", res.Number,
		"hash", res.Hash.String(),
		"txs", len(included),
		"l1ToL2Messages", n)
	return block, nil
}

// record appends the block applied by update to the chain.
func (l *Local) record(res *merkle.BlockResult, update *merkle.BlockUpdate) *Block {
	block := &Block{Number: res.Number, Hash: res.Hash, Roots: res.Roots, Update: *update}
	l.blocks = append(l.blocks, block)
	return block
}

// Deploy mines a block that only adds contracts to the contract tree, so
// development chains can start with contracts at fixed addresses.
func (l *Local) Deploy(_ context.Context, contracts ...merkle.ContractData) (*Block, error) {
	if len(contracts) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	update := &merkle.BlockUpdate{
		Globals: merkle.GlobalVariables{
			ChainID:     l.chainID,
			Version:     l.version,
			BlockNumber: l.forest.BlockNumber() + 1,
			Timestamp:   uint64(l.now().Unix()),
		},
		Contracts: append([]merkle.ContractData(nil), contracts...),
	}
	res, err := l.forest.ApplyBlock(update)
	if err != nil {
		return nil, fmt.Errorf("could not apply block %d: %w", update.Globals.BlockNumber, err)
	}
	block := l.record(res, update)
	log.Infow("contracts deployed", "number", res.Number, "contracts", len(contracts))
	return block, nil
}

// Start mines a block every interval while there is work, until ctx is
// done.
func (l *Local) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Infow("sequencer stopped")
				return
			case <-ticker.C:
				if _, err := l.Mine(ctx); err != nil && ctx.Err() == nil {
					log.Warnw("failed to mine block", "error", err.Error())
				}
			}
		}
	}()
}
