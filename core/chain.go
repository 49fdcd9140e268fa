package core

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"noncepool/core/config"
	"noncepool/core/header"
	"noncepool/validator"
)

// Chain manages the local ledger: block storage, orphan/side-branch
// bookkeeping, reorgs, and the periodic difficulty retarget.
type Chain struct {
	mu             sync.RWMutex
	blocks         map[uint64]*Block
	blockHashIndex map[[32]byte]*Block
	head           uint64
	dataDir        string

	store             *BadgerStore
	genesisDifficulty uint32

	headChangeCh chan struct{}
	subscribers  []chan struct{}
	subMu        sync.RWMutex

	// Orphan pool for blocks with missing parents.
	OrphanPool map[[32]byte][]*Block
	OrphanMu   sync.RWMutex

	// Side branches for blocks that extend a different parent hash.
	sideBranches map[[32]byte][]*Block

	// Callback to request a block by parent hash from P2P.
	RequestBlockByHash func(parentHash [32]byte)
}

// NewChain creates a new chain instance, opening or loading persistent
// storage under dataDir and seeding genesis if empty.
func NewChain(dataDir string, genesisDifficulty uint32) *Chain {
	os.MkdirAll(dataDir, 0755)
	store, err := OpenBadgerStore(dataDir)
	if err != nil {
		log.Fatalf("Failed to open BadgerDB: %v", err)
	}

	chain := &Chain{
		blocks:            make(map[uint64]*Block),
		blockHashIndex:    make(map[[32]byte]*Block),
		dataDir:           dataDir,
		store:             store,
		genesisDifficulty: genesisDifficulty,
		headChangeCh:      make(chan struct{}, 16),
		subscribers:       make([]chan struct{}, 0),
		OrphanPool:        make(map[[32]byte][]*Block),
		sideBranches:      make(map[[32]byte][]*Block),
	}

	tip, err := store.GetTipHeight()
	if err == nil {
		for h := uint64(0); h <= tip; h++ {
			blk, err := store.GetBlock(h)
			if err == nil && blk != nil {
				chain.blocks[h] = blk
				chain.blockHashIndex[blk.ComputeHash()] = blk
				if h > chain.head {
					chain.head = h
				}
			}
		}
	}

	if len(chain.blocks) == 0 {
		chain.createGenesis()
	}

	return chain
}

// createGenesis seeds block 0.
func (c *Chain) createGenesis() {
	now := time.Now()
	genesis := NewBlockTemplate(0, [32]byte{}, c.genesisDifficulty, "", now)
	genesis.Seal(0, genesis.HashHex())

	c.blocks[0] = genesis
	c.blockHashIndex[genesis.ComputeHash()] = genesis
	c.head = 0
	if err := c.store.PutBlock(0, genesis); err != nil {
		log.Printf("[ERROR] Failed to persist genesis block to BadgerDB: %v", err)
	} else {
		log.Printf("🗄️  Genesis block persisted to BadgerDB")
	}
	log.Printf("📗 Created genesis block at height 0 with difficulty=%d", c.genesisDifficulty)
}

// asValidatorBlock projects a ledger Block into the shape validator.VerifyBlock
// expects.
func asValidatorBlock(b *Block) validator.Block {
	return validator.Block{
		Height:     b.Header.Height,
		PrevHash:   fmt.Sprintf("%x", b.Header.ParentHash),
		BlockData:  b.Header.BlockData,
		Nonce:      b.Header.Nonce,
		Difficulty: b.Header.Difficulty,
		Hash:       b.Header.Hash,
		Timestamp:  b.Header.Timestamp,
		Miner:      b.Header.Miner,
	}
}

// ImportBlock validates and imports a new block.
func (c *Chain) ImportBlock(block *Block) error {
	return c.importBlockInternal(block)
}

func (c *Chain) importBlockInternal(block *Block) error {
	c.mu.Lock()
	unlocked := false
	defer func() {
		if !unlocked {
			c.mu.Unlock()
		}
	}()

	if existing, exists := c.blocks[block.Header.Height]; exists {
		if existing.ComputeHash() != block.ComputeHash() && block.Header.ParentHash != c.blocks[c.head].ComputeHash() {
			parentHash := block.Header.ParentHash
			localHeadHash := c.blocks[c.head].ComputeHash()
			c.addToSideBranch(block)
			log.Printf("🌿 Block #%d from peer added to side branch (parent %x, local head %x)", block.Header.Height, parentHash[:8], localHeadHash[:8])
			c.checkReorg()
			return nil
		}
		return fmt.Errorf("block at height %d already exists", block.Header.Height)
	}

	var parent *Block
	parentFound := false
	for _, b := range c.blocks {
		if b.ComputeHash() == block.Header.ParentHash {
			parent = b
			parentFound = true
			break
		}
	}

	if !parentFound {
		c.addToOrphanPool(block)
		log.Printf("🧩 Block #%d added to orphan pool (parent %x not found in chain)", block.Header.Height, block.Header.ParentHash[:8])
		return fmt.Errorf("parent block with hash %x not found, queued in orphan pool", block.Header.ParentHash)
	}

	if parent.Header.Height != block.Header.Height-1 {
		c.addToSideBranch(block)
		log.Printf("🌿 Block #%d added to side branch (parent at height %d, block height %d)", block.Header.Height, parent.Header.Height, block.Header.Height)
		return fmt.Errorf("parent at height %d, block at %d: side branch", parent.Header.Height, block.Header.Height)
	}

	if block.Header.ParentHash != parent.ComputeHash() {
		c.addToSideBranch(block)
		log.Printf("🌿 Block #%d added to side branch (parent hash mismatch)", block.Header.Height)
		return fmt.Errorf("parent hash mismatch: expected %x, got %x (side branch)", parent.ComputeHash(), block.Header.ParentHash)
	}

	if res := validator.VerifyBlock(asValidatorBlock(block), time.Now()); !res.Valid {
		return fmt.Errorf("block #%d failed verification: %s", block.Header.Height, res.Reason)
	}

	// Retarget check runs against history already in the chain (up to
	// the parent), then the block's own difficulty field is made
	// canonical — it was already verified against its claimed value
	// above, this just folds the retargeted value into the stored block.
	if block.Header.Height%uint64(config.RetargetInterval) == 0 && block.Header.Height > 0 {
		log.Printf("🔧 Attempting difficulty retarget at height %d", block.Header.Height)
		newDifficulty := RetargetAdjust(c, block.Header.Height-1, parent.Header.Difficulty)
		block.Header.Difficulty = newDifficulty
		log.Printf("🎯 Difficulty retarget at height %d: new difficulty = %d", block.Header.Height, newDifficulty)
	} else {
		block.Header.Difficulty = parent.Header.Difficulty
	}

	c.blocks[block.Header.Height] = block
	c.blockHashIndex[block.ComputeHash()] = block
	c.head = block.Header.Height
	if err := c.store.PutBlock(block.Header.Height, block); err != nil {
		log.Printf("Failed to persist block %d: %v", block.Header.Height, err)
	} else {
		log.Printf("🗄️  Block #%d persisted to BadgerDB", block.Header.Height)
	}

	if config.PruneDepth > 0 {
		if err := c.store.PruneBlocks(config.PruneDepth, c.head); err == nil {
			log.Printf("🧹 Pruned blocks below height %d", int64(c.head)-int64(config.PruneDepth)+1)
		}
	}

	log.Printf("📗 Accepted block #%d difficulty=%d", block.Header.Height, block.Header.Difficulty)

	c.notifyHeadChange()
	c.checkReorg()

	parentHashForOrphans := block.ComputeHash()
	c.mu.Unlock()
	unlocked = true
	c.tryImportOrphans(parentHashForOrphans)
	c.mu.Lock()
	unlocked = false

	return nil
}

var orphanImportInProgress int32

// tryImportOrphans attempts to import blocks from the orphan pool that
// have this block as their parent.
func (c *Chain) tryImportOrphans(parentHash [32]byte) {
	if !atomic.CompareAndSwapInt32(&orphanImportInProgress, 0, 1) {
		log.Printf("[ORPHAN] tryImportOrphans: already in progress, skipping")
		return
	}
	defer atomic.StoreInt32(&orphanImportInProgress, 0)

	var toImport []*Block
	var toSideBranch []*Block

	c.OrphanMu.Lock()
	orphans, exists := c.OrphanPool[parentHash]
	if exists {
		delete(c.OrphanPool, parentHash)
	}
	c.OrphanMu.Unlock()

	if exists {
		c.mu.RLock()
		for _, orphan := range orphans {
			parent := c.getBlockByHash(orphan.Header.ParentHash)
			parentFound := parent != nil
			if parentFound && parent.Header.Height == orphan.Header.Height-1 {
				toImport = append(toImport, orphan)
			} else if parentFound {
				toSideBranch = append(toSideBranch, orphan)
				log.Printf("🌿 Orphan block #%d promoted to side branch (parent at height %d, block height %d)", orphan.Header.Height, parent.Header.Height, orphan.Header.Height)
			}
		}
		c.mu.RUnlock()
	}

	for _, orphan := range toImport {
		if err := c.ImportBlock(orphan); err != nil {
			log.Printf("Failed to import orphan block #%d: %v", orphan.Header.Height, err)
		} else {
			log.Printf("✅ Orphan block #%d imported by tryImportOrphans", orphan.Header.Height)
		}
	}
	for _, orphan := range toSideBranch {
		c.addToSideBranch(orphan)
	}
}

// addToOrphanPool adds a block to the orphan pool when its parent is
// missing.
func (c *Chain) addToOrphanPool(block *Block) {
	c.OrphanMu.Lock()
	watchdogDone := make(chan struct{})
	go func() {
		select {
		case <-watchdogDone:
			return
		case <-time.After(5 * time.Second):
			buf := make([]byte, 1<<16)
			runtime.Stack(buf, true)
			log.Printf("[WATCHDOG][WARN] addToOrphanPool: OrphanMu held >5s!\n%s", buf)
		}
	}()
	defer func() {
		close(watchdogDone)
		c.OrphanMu.Unlock()
	}()

	c.OrphanPool[block.Header.ParentHash] = append(c.OrphanPool[block.Header.ParentHash], block)
	log.Printf("📦 Added block #%d to orphan pool (parent: %x)", block.Header.Height, block.Header.ParentHash[:8])

	var parentHash [32]byte
	callCallback := false
	if c.RequestBlockByHash != nil {
		parentHash = block.Header.ParentHash
		callCallback = true
	}

	if callCallback {
		go c.RequestBlockByHash(parentHash)
	}
}

// addToSideBranch stores a block in the sideBranches map.
func (c *Chain) addToSideBranch(block *Block) {
	branch := c.sideBranches[block.Header.ParentHash]
	c.sideBranches[block.Header.ParentHash] = append(branch, block)
	log.Printf("🌿 Added block #%d to side branch (parent: %x, branch len: %d)", block.Header.Height, block.Header.ParentHash[:8], len(c.sideBranches[block.Header.ParentHash]))
}

// checkReorg switches to a side branch if it has overtaken the main
// chain.
func (c *Chain) checkReorg() {
	for parentHash, branch := range c.sideBranches {
		if len(branch) == 0 {
			continue
		}
		branchTip := branch[len(branch)-1]
		if branchTip.Header.Height > c.head {
			hash := branchTip.ComputeHash()
			log.Printf("🔀 Reorg: switching to side branch at height %d (tip %x)", branchTip.Header.Height, hash[0:8])
			c.reorgToBranch(parentHash, branch)
			delete(c.sideBranches, parentHash)
		}
	}
}

// reorgToBranch rolls back to the fork point and applies the new branch
// blocks.
func (c *Chain) reorgToBranch(parentHash [32]byte, branch []*Block) {
	forkHeight := branch[0].Header.Height - 1
	c.head = forkHeight
	log.Printf("↩️  Rolled back to fork height %d", forkHeight)
	for _, blk := range branch {
		c.blocks[blk.Header.Height] = blk
		c.head = blk.Header.Height
		if err := c.store.PutBlock(blk.Header.Height, blk); err != nil {
			log.Printf("Failed to persist block %d during reorg: %v", blk.Header.Height, err)
		}
		log.Printf("🔗 Reorg applied block #%d", blk.Header.Height)
	}
	log.Printf("✅ Reorg complete. New head: %d", c.head)
}

// ScanOrphanPool scans all orphans and tries to import or promote them
// if their parent is now present.
func (c *Chain) ScanOrphanPool() {
	c.OrphanMu.Lock()
	defer c.OrphanMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] Panic in ScanOrphanPool: %v", r)
			debug.PrintStack()
		}
	}()

	if len(c.OrphanPool) == 0 {
		return
	}
	log.Printf("🔍 Scanning orphan pool (%d orphans)", len(c.OrphanPool))

	orphansToProcess := make(map[[32]byte][]*Block)
	for parentHash, orphans := range c.OrphanPool {
		orphansCopy := make([]*Block, len(orphans))
		copy(orphansCopy, orphans)
		orphansToProcess[parentHash] = orphansCopy
	}
	c.OrphanPool = make(map[[32]byte][]*Block)

	go func() {
		time.Sleep(10 * time.Millisecond)
		for _, orphans := range orphansToProcess {
			c.mu.RLock()
			for _, orphan := range orphans {
				parent := c.getBlockByHash(orphan.Header.ParentHash)
				parentFound := parent != nil
				if parentFound && parent.Header.Height == orphan.Header.Height-1 {
					if err := c.ImportBlock(orphan); err != nil {
						log.Printf("Failed to import orphan block #%d during scan: %v", orphan.Header.Height, err)
					} else {
						log.Printf("✅ Orphan block #%d imported during scan", orphan.Header.Height)
					}
				} else if parentFound {
					c.addToSideBranch(orphan)
					log.Printf("🌿 Orphan block #%d promoted to side branch (parent at height %d, block height %d)", orphan.Header.Height, parent.Header.Height, orphan.Header.Height)
				}
			}
			c.mu.RUnlock()
		}
	}()
}

// StartOrphanPoolScanner starts a background goroutine to periodically
// scan the orphan pool.
func (c *Chain) StartOrphanPoolScanner(interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.ScanOrphanPool()
			case <-stopCh:
				return
			}
		}
	}()
}

// CurrentHeight returns the current chain height.
func (c *Chain) CurrentHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// Height implements core.ChainReader.
func (c *Chain) Height() uint64 {
	return c.CurrentHeight()
}

// HeaderByHeight returns the header at the given height.
func (c *Chain) HeaderByHeight(height uint64) *header.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if blk, ok := c.blocks[height]; ok {
		return &blk.Header
	}
	blk, err := c.store.GetBlock(height)
	if err == nil && blk != nil {
		c.blocks[height] = blk
		return &blk.Header
	}
	return nil
}

// BlockByHeight returns the in-memory block at the given height, or nil
// if not found.
func (c *Chain) BlockByHeight(height uint64) *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[height]
}

// SubscribeToHeadChanges returns a channel that receives notifications
// when the chain head changes.
func (c *Chain) SubscribeToHeadChanges() chan struct{} {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan struct{}, 1)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

func (c *Chain) notifyHeadChange() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// LogDiagnostics logs chain head, orphan pool, and side-branch state.
func (c *Chain) LogDiagnostics() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	log.Printf("[DIAG] Chain head: %d", c.head)
	log.Printf("[DIAG] Orphan pool size: %d", len(c.OrphanPool))
	for parentHash, branch := range c.sideBranches {
		if len(branch) == 0 {
			continue
		}
		tip := branch[len(branch)-1]
		log.Printf("[DIAG] Side branch: parent=%x tipHeight=%d len=%d", parentHash[:8], tip.Header.Height, len(branch))
	}
}

// ReindexFromDB rebuilds the in-memory block index from BadgerDB.
func (c *Chain) ReindexFromDB() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Printf("[REINDEX] Rebuilding in-memory block index from BadgerDB...")
	c.blocks = make(map[uint64]*Block)
	c.blockHashIndex = make(map[[32]byte]*Block)
	tip, err := c.store.GetTipHeight()
	if err != nil {
		if err.Error() == "Key not found" {
			log.Printf("[REINDEX][WARN] No blocks found in DB (empty chain). Will start fresh.")
			return nil
		}
		return err
	}
	for h := uint64(0); h <= tip; h++ {
		blk, err := c.store.GetBlock(h)
		if err == nil && blk != nil {
			c.blocks[h] = blk
			c.blockHashIndex[blk.ComputeHash()] = blk
			if h > c.head {
				c.head = h
			}
		}
	}
	log.Printf("[REINDEX] Done. Head: %d, blocks loaded: %d", c.head, len(c.blocks))
	return nil
}

func (c *Chain) getBlockByHash(h [32]byte) *Block {
	c.mu.RLock()
	b := c.blockHashIndex[h]
	c.mu.RUnlock()
	return b
}
