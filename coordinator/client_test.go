package coordinator_test

import (
	"context"
	"testing"

	"noncepool/coordinator"
	"noncepool/worker"
)

func TestInProcessClient_UnknownWorker(t *testing.T) {
	c := coordinator.NewInProcessClient(map[string]*worker.Task{})
	_, err := c.MineChunkSimple(context.Background(), "ghost", "block", 8, 0, 100)
	if err != coordinator.ErrUnknownWorker {
		t.Fatalf("expected ErrUnknownWorker, got %v", err)
	}

	if err := c.StopMining(context.Background(), "ghost"); err != coordinator.ErrUnknownWorker {
		t.Fatalf("expected ErrUnknownWorker from StopMining, got %v", err)
	}
}

func TestInProcessClient_DispatchesAndStops(t *testing.T) {
	task := worker.NewTask(worker.NewSolutionCache(nil), worker.NewMiningMetrics(), nil, nil)
	task.Start("block", 64, 0, 10) // difficulty high enough that this tiny window won't find anything

	tasks := map[string]*worker.Task{"w1": task}
	c := coordinator.NewInProcessClient(tasks)

	res, err := c.MineChunkSimple(context.Background(), "w1", "block", 64, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found {
		t.Fatalf("did not expect a solution in a 10-wide window at difficulty 64")
	}
	if res.Nonce != 10 {
		t.Fatalf("expected next_nonce 10 in the flat alias, got %d", res.Nonce)
	}

	if err := c.StopMining(context.Background(), "w1"); err != nil {
		t.Fatalf("unexpected error stopping: %v", err)
	}
	if task.Running {
		t.Fatalf("expected task.Running false after StopMining")
	}
}
