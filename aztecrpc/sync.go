package aztecrpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/node"
)

// ErrBlockMismatch is returned when a block applied to the local forest does
// not hash to the block of the node.
var ErrBlockMismatch = errors.New("block does not match the node")

const defaultSyncBatch = 16

// Synchronizer keeps a forest up to date with the blocks of a node. It is
// needed when the forest of the client is not the forest of the node.
type Synchronizer struct {
	node   node.Node
	forest *merkle.Forest
	batch  int
}

// NewSynchronizer returns a synchronizer applying the blocks of n to forest,
// fetching batch blocks per request. A batch of 0 selects a default size.
func NewSynchronizer(n node.Node, forest *merkle.Forest, batch int) *Synchronizer {
	if batch <= 0 {
		batch = defaultSyncBatch
	}
	return &Synchronizer{node: n, forest: forest, batch: batch}
}

// Sync applies every block the forest is missing. It returns the number of
// blocks applied.
func (s *Synchronizer) Sync(ctx context.Context) (int, error) {
	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		blocks, err := s.node.GetBlocks(ctx, s.forest.BlockNumber()+1, s.batch)
		if err != nil {
			return applied, fmt.Errorf("could not fetch blocks: %w", err)
		}
		if len(blocks) == 0 {
			return applied, nil
		}
		for _, b := range blocks {
			res, err := s.forest.ApplyBlock(&b.Update)
			if err != nil {
				return applied, fmt.Errorf("could not apply block %d: %w", b.Number, err)
			}
			if !res.Hash.Equal(b.Hash) {
				return applied, fmt.Errorf("%w: block %d hashes to %s, node has %s",
					ErrBlockMismatch, b.Number, res.Hash, b.Hash)
			}
			applied++
			log.Debugw("block synced", "number", b.Number, "hash", b.Hash.String())
		}
		if len(blocks) < s.batch {
			return applied, nil
		}
	}
}

// Start syncs every interval until ctx is done.
func (s *Synchronizer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Infow("synchronizer stopped")
				return
			case <-ticker.C:
				n, err := s.Sync(ctx)
				if err != nil && ctx.Err() == nil {
					log.Warnw("failed to sync blocks", "error", err.Error())
				}
				if n > 0 {
					log.Infow("blocks synced", "count", n, "height", s.forest.BlockNumber())
				}
			}
		}
	}()
}
