package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"noncepool/coordinator"
	"noncepool/core"
	"noncepool/core/config"
	"noncepool/net"
	"noncepool/refueler"
	"noncepool/worker"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

func main() {
	// Handle admin subcommands first; anything else runs the daemon.
	handleCLICommands()

	var (
		dataDir       = flag.String("data-dir", "data", "Directory for chain data")
		genesisDiff   = flag.Uint64("genesis-difficulty", 16, "Genesis block difficulty (leading zero bits)")
		p2pPort       = flag.Int("p2p-port", 4001, "P2P listen port")
		peerMultiaddr = flag.String("peer-multiaddr", "", "Multiaddr of peer to connect to (optional)")
		workerCount   = flag.Int("workers", 4, "Number of in-process worker slots to mine with")
		minerAddress  = flag.String("miner-address", "", "Miner identity recorded on blocks this node mines")
		validatorID   = flag.String("validator", "", "Validator identity for this node (rotate-validator admin to change)")
		distributed   = flag.Bool("distributed", false, "Dispatch chunks over libp2p gossip (net.RPCClient) instead of in-process calls, so remote worker peers can join the roster")
	)
	flag.Parse()

	log.Printf("Starting noncepoold...")
	log.Printf("Config: EpochBlocks=%d RetargetInterval=%d TargetBlockSpacingSec=%d PruneDepth=%d",
		config.EpochBlocks, config.RetargetInterval, config.TargetBlockSpacingSec, config.PruneDepth)

	chain := core.NewChain(*dataDir, uint32(*genesisDiff))
	if err := chain.ReindexFromDB(); err != nil {
		log.Fatalf("[FATAL] Failed to reindex chain from DB: %v", err)
	}
	chain.LogDiagnostics()

	if len(chain.OrphanPool) > 0 {
		log.Printf("[WARN] Orphan pool non-empty after reindex: %d orphans", len(chain.OrphanPool))
		chain.ScanOrphanPool()
	}

	blocksDir := filepath.Join(*dataDir, "blocks")
	broadcaster := core.NewLocalBroadcaster(blocksDir, chain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := net.NewP2PNode(ctx, *p2pPort, chain)
	if err != nil {
		log.Fatalf("Failed to start P2P node: %v", err)
	}
	log.Printf("P2P node started. Peer ID: %s", node.Host.ID())
	for _, addr := range node.Host.Addrs() {
		log.Printf("Listening on: %s/p2p/%s", addr, node.Host.ID())
	}

	chain.RequestBlockByHash = node.RequestBlockByHash

	stopScan := make(chan struct{})
	chain.StartOrphanPoolScanner(30*time.Second, stopScan)

	if *peerMultiaddr != "" {
		log.Printf("[P2P] Attempting to connect to peer: %s", *peerMultiaddr)
		addr, err := ma.NewMultiaddr(*peerMultiaddr)
		if err != nil {
			log.Fatalf("Invalid multiaddr: %v", err)
		}
		pi, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			log.Fatalf("Invalid AddrInfo: %v", err)
		}
		if err := node.Host.Connect(ctx, *pi); err != nil {
			log.Printf("[P2P] Failed to connect to peer: %v", err)
		} else {
			log.Printf("[P2P] Connected to peer: %s", pi.ID.String())
		}
	}

	headCh := chain.SubscribeToHeadChanges()
	go func() {
		var lastHeight uint64
		for range headCh {
			h := chain.CurrentHeight()
			if h == lastHeight {
				continue
			}
			lastHeight = h
			blk := chain.BlockByHeight(h)
			if blk == nil {
				continue
			}
			node.AnnounceHead(blk)
			chain.LogDiagnostics()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go broadcaster.ProcessBlocks()

	// Worker roster: in-process Task instances. In solo mode the
	// scheduler dispatches to them directly via InProcessClient; in
	// -distributed mode each task is instead served by a
	// net.WorkerResponder over gossip, and the scheduler dispatches via
	// net.RPCClient — the roster and tasks are identical either way,
	// only the WorkerClient wiring changes.
	tasks := make(map[string]*worker.Task)
	cache := worker.NewSolutionCache(nil)
	refuel := refueler.New(constantBudgetSource(5_000_000_000_000), nil)
	refuel.Start()

	ids := make([]string, 0, *workerCount)
	for i := 0; i < *workerCount; i++ {
		id := fmt.Sprintf("worker-%d", i)
		ids = append(ids, id)
		metrics := worker.NewMiningMetrics()
		tasks[id] = worker.NewTask(cache, metrics, nil, refuel.BudgetFunc(id))
		refuel.WatchWorker(id, 0, 0)
	}
	refuel.StartHeartbeat(ctx, 10*time.Second, stopScan)

	var client coordinator.WorkerClient
	if *distributed {
		for id := range tasks {
			if _, err := net.NewWorkerResponder(ctx, node.PubSub, id, tasks); err != nil {
				log.Fatalf("Failed to start worker responder for %s: %v", id, err)
			}
		}
		rpcClient, err := net.NewRPCClient(ctx, node.PubSub, node.Host.ID().String())
		if err != nil {
			log.Fatalf("Failed to start RPC client: %v", err)
		}
		client = rpcClient
		log.Printf("[RPC] distributed mode: dispatching %d local worker slots over gossip", len(tasks))
	} else {
		client = coordinator.NewInProcessClient(tasks)
	}
	sched := coordinator.NewState(client, nil)

	go runMiningLoop(ctx, chain, sched, ids, broadcaster, node, *minerAddress)

	if *validatorID != "" {
		store, err := core.OpenBadgerStore(*dataDir)
		if err == nil {
			if existing, _ := store.GetValidator(); existing == "" {
				_ = store.PutValidator(*validatorID)
			}
			store.Close()
		}
	}

	<-sigChan
	log.Printf("Shutting down...")
	cancel()
	close(stopScan)
}

// constantBudgetSource stands in for a real per-worker accounting
// backend: every worker reports the same healthy compute-budget
// balance. A production deployment plugs in its own refueler.BudgetSource
// (e.g. querying each worker process's reported meter).
func constantBudgetSource(budget uint64) refueler.BudgetSource {
	return func(ctx context.Context, workerID string) (uint64, error) {
		return budget, nil
	}
}

// runMiningLoop drives the scheduler against successive block
// templates at the current tip+1, importing and broadcasting whatever
// solution the scheduler latches.
func runMiningLoop(ctx context.Context, chain *core.Chain, sched *coordinator.State, ids []string, broadcaster *core.LocalBroadcaster, node *net.P2PNode, minerAddress string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[MINER] PANIC: %v\n%s", r, debug.Stack())
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var current *core.Block
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if current == nil {
			height := chain.CurrentHeight()
			parent := chain.HeaderByHeight(height)
			if parent == nil {
				time.Sleep(200 * time.Millisecond)
				continue
			}
			parentHash := parent.ComputeHash()
			current = core.NewBlockTemplate(height+1, parentHash, parent.Difficulty, minerAddress, time.Now())
			sched.Start(ids, current.Header.BlockData, current.Header.Difficulty, 0, config.ChunkBase)
			log.Printf("⛏️  Mining template for height %d difficulty=%d", current.Header.Height, current.Header.Difficulty)
		}

		select {
		case <-ticker.C:
			sched.Tick(ctx)
		case <-ctx.Done():
			return
		}

		stats := sched.Stats()
		if stats.Solution != nil {
			current.Seal(stats.Solution.Nonce, stats.Solution.Hash)
			log.Printf("🎉 Block found at height %d nonce=%d hash=%s", current.Header.Height, current.Header.Nonce, current.Header.Hash)

			if err := broadcaster.BroadcastBlock(current); err != nil {
				log.Printf("Failed to broadcast block: %v", err)
			}
			if err := chain.ImportBlock(current); err != nil {
				log.Printf("[MINER] Failed to import own block: %v", err)
			}
			_ = node.PublishBlockFromStruct(current)
			current = nil
		}
	}
}
