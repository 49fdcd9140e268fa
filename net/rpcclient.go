package net

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"noncepool/coordinator"
	"noncepool/worker"
)

// RPCClient implements coordinator.WorkerClient over libp2p gossip: it
// publishes ChunkAssignMsg/StopMsg on the shared topics and matches the
// worker's ChunkResultMsg/StopAckMsg reply by RequestID, the same
// request/response correlation p2p.go already uses for block sync
// (BlockRequest/BlockResponse).
type RPCClient struct {
	ps *pubsub.PubSub

	assignTopic *pubsub.Topic
	stopTopic   *pubsub.Topic

	mu       sync.Mutex
	pending  map[string]chan coordinator.ChunkResult
	stopAcks map[string]chan struct{}

	reqCounter uint64
	selfID     string
}

// NewRPCClient joins the chunk-assign/result/stop topics and starts the
// result/ack listener loops. selfID disambiguates request IDs across
// coordinator instances sharing the same pubsub mesh.
func NewRPCClient(ctx context.Context, ps *pubsub.PubSub, selfID string) (*RPCClient, error) {
	assignTopic, err := ps.Join(TopicChunkAssign)
	if err != nil {
		return nil, err
	}
	stopTopic, err := ps.Join(TopicStop)
	if err != nil {
		return nil, err
	}
	resultSub, err := ps.Subscribe(TopicChunkResult)
	if err != nil {
		return nil, err
	}
	ackSub, err := ps.Subscribe(TopicStop + "/ack")
	if err != nil {
		return nil, err
	}

	c := &RPCClient{
		ps:          ps,
		assignTopic: assignTopic,
		stopTopic:   stopTopic,
		pending:     make(map[string]chan coordinator.ChunkResult),
		stopAcks:    make(map[string]chan struct{}),
		selfID:      selfID,
	}

	go c.consumeResults(ctx, resultSub)
	go c.consumeStopAcks(ctx, ackSub)

	return c, nil
}

func (c *RPCClient) nextRequestID() string {
	n := atomic.AddUint64(&c.reqCounter, 1)
	return fmt.Sprintf("%s-%d", c.selfID, n)
}

// MineChunkSimple publishes a ChunkAssignMsg and blocks until the
// matching ChunkResultMsg arrives or ctx is cancelled.
func (c *RPCClient) MineChunkSimple(ctx context.Context, workerID string, blockData string, difficulty uint32, start, size uint64) (coordinator.ChunkResult, error) {
	reqID := c.nextRequestID()
	replyCh := make(chan coordinator.ChunkResult, 1)

	c.mu.Lock()
	c.pending[reqID] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	msg := ChunkAssignMsg{
		RequestID:  reqID,
		WorkerID:   workerID,
		BlockData:  blockData,
		Difficulty: difficulty,
		Start:      start,
		Size:       size,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return coordinator.ChunkResult{}, err
	}
	if err := c.assignTopic.Publish(ctx, payload); err != nil {
		return coordinator.ChunkResult{}, err
	}

	select {
	case res := <-replyCh:
		return res, nil
	case <-ctx.Done():
		return coordinator.ChunkResult{}, ctx.Err()
	}
}

// StopMining publishes a StopMsg and waits for the worker's ack.
func (c *RPCClient) StopMining(ctx context.Context, workerID string) error {
	reqID := c.nextRequestID()
	ackCh := make(chan struct{}, 1)

	c.mu.Lock()
	c.stopAcks[reqID] = ackCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.stopAcks, reqID)
		c.mu.Unlock()
	}()

	msg := StopMsg{RequestID: reqID, WorkerID: workerID}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.stopTopic.Publish(ctx, payload); err != nil {
		return err
	}

	select {
	case <-ackCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RPCClient) consumeResults(ctx context.Context, sub *pubsub.Subscription) {
	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			return
		}
		var msg ChunkResultMsg
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		c.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- coordinator.ChunkResult{Found: msg.Found, Nonce: msg.Nonce, Hash: msg.Hash, Attempts: msg.Attempts}:
		default:
		}
	}
}

func (c *RPCClient) consumeStopAcks(ctx context.Context, sub *pubsub.Subscription) {
	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			return
		}
		var msg StopAckMsg
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.stopAcks[msg.RequestID]
		c.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// WorkerResponder is the worker-side counterpart to RPCClient: it
// subscribes to TopicChunkAssign/TopicStop, filters for its own
// WorkerID, and serves each request against the local worker.Task
// roster the same way coordinator.InProcessClient does in-process.
type WorkerResponder struct {
	ps       *pubsub.PubSub
	workerID string
	tasks    map[string]*worker.Task

	resultTopic *pubsub.Topic
	ackTopic    *pubsub.Topic
}

// NewWorkerResponder joins the worker RPC topics for workerID and
// starts serving assign/stop requests against tasks.
func NewWorkerResponder(ctx context.Context, ps *pubsub.PubSub, workerID string, tasks map[string]*worker.Task) (*WorkerResponder, error) {
	assignSub, err := ps.Subscribe(TopicChunkAssign)
	if err != nil {
		return nil, err
	}
	stopSub, err := ps.Subscribe(TopicStop)
	if err != nil {
		return nil, err
	}
	resultTopic, err := ps.Join(TopicChunkResult)
	if err != nil {
		return nil, err
	}
	ackTopic, err := ps.Join(TopicStop + "/ack")
	if err != nil {
		return nil, err
	}

	w := &WorkerResponder{
		ps:          ps,
		workerID:    workerID,
		tasks:       tasks,
		resultTopic: resultTopic,
		ackTopic:    ackTopic,
	}

	go w.serveAssigns(ctx, assignSub)
	go w.serveStops(ctx, stopSub)

	return w, nil
}

func (w *WorkerResponder) serveAssigns(ctx context.Context, sub *pubsub.Subscription) {
	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			return
		}
		var msg ChunkAssignMsg
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			continue
		}
		if msg.WorkerID != w.workerID {
			continue
		}
		if _, ok := w.tasks[msg.WorkerID]; !ok {
			continue
		}

		found, nonce, hash, attempts := worker.DispatchChunkSimple(msg.BlockData, msg.Difficulty, msg.Start, msg.Size)
		resp := ChunkResultMsg{RequestID: msg.RequestID, Found: found, Nonce: nonce, Hash: hash, Attempts: attempts}
		payload, err := json.Marshal(resp)
		if err != nil {
			log.Printf("[RPC] failed to encode chunk result: %v", err)
			continue
		}
		if err := w.resultTopic.Publish(ctx, payload); err != nil {
			log.Printf("[RPC] failed to publish chunk result: %v", err)
		}
	}
}

func (w *WorkerResponder) serveStops(ctx context.Context, sub *pubsub.Subscription) {
	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			return
		}
		var msg StopMsg
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			continue
		}
		if msg.WorkerID != w.workerID {
			continue
		}
		if t, ok := w.tasks[msg.WorkerID]; ok {
			t.Stop()
		}
		ack := StopAckMsg{RequestID: msg.RequestID, WorkerID: msg.WorkerID}
		payload, err := json.Marshal(ack)
		if err != nil {
			continue
		}
		if err := w.ackTopic.Publish(ctx, payload); err != nil {
			log.Printf("[RPC] failed to publish stop ack: %v", err)
		}
	}
}
