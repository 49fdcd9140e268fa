package net

import "noncepool/core"

const (
	TopicNewHead   = "noncepool/newhead/1"
	TopicBlockReq  = "noncepool/blockreq/1"
	TopicBlockResp = "noncepool/blockresp/1"

	// Worker RPC surface, carried over gossip instead of the in-process
	// function calls coordinator.InProcessClient uses — one assign/
	// result/stop topic per cluster, requests and responses correlated
	// by RequestID so a worker only reacts to assignments addressed to
	// it and the coordinator only matches results meant for its request.
	TopicChunkAssign = "noncepool/chunkassign/1"
	TopicChunkResult = "noncepool/chunkresult/1"
	TopicStop        = "noncepool/stop/1"
)

type NewHeadMsg struct {
	Height uint64
	Hash   [32]byte
	Parent [32]byte
}

type BlockRequest struct {
	From uint64 // inclusive
	To   uint64 // inclusive, max 512 for DOS safety
}

type BlockResponse struct {
	Blocks []*core.Block // canonical block type
}

// ChunkAssignMsg carries a mine_chunk_simple dispatch to a single named
// worker over gossip; every worker subscribes to TopicChunkAssign and
// ignores assignments not addressed to its own WorkerID.
type ChunkAssignMsg struct {
	RequestID  string
	WorkerID   string
	BlockData  string
	Difficulty uint32
	Start      uint64
	Size       uint64
}

// ChunkResultMsg carries a mine_chunk_simple result back to whichever
// coordinator is waiting on RequestID.
type ChunkResultMsg struct {
	RequestID string
	Found     bool
	Nonce     uint64
	Hash      string
	Attempts  uint64
	Err       string // non-empty on a worker-side dispatch error
}

// StopMsg carries stop_advanced_mining to a single named worker.
type StopMsg struct {
	RequestID string
	WorkerID  string
}

// StopAckMsg acknowledges a StopMsg back to the requesting coordinator.
type StopAckMsg struct {
	RequestID string
	WorkerID  string
}
