package device

import (
	"runtime"
	"sync"
)

var numWorkers = runtime.NumCPU()

// Launch3D runs body once per thread of a grid x block launch on the
// simulated executor. Blocks are fanned out across host workers; threads
// within a block run sequentially, which keeps per-block memory access
// local. Returns only after every thread has run.
//
// A zero grid is a no-op (the caller still gets stream-ordering from the
// wrapping operation).
//
// A panic in body is re-raised on the calling goroutine once all workers
// have stopped, so the stream worker's fault guard sees it.
func Launch3D(grid, block Dim3, body func(ThreadID)) {
	grid = grid.norm()
	block = block.norm()

	gridSize := grid.Size()
	blockSize := block.Size()
	if gridSize == 0 || blockSize == 0 {
		return
	}

	workers := numWorkers
	if gridSize < workers {
		workers = gridSize
	}
	blocksPerWorker := (gridSize + workers - 1) / workers

	var (
		wg        sync.WaitGroup
		panicOnce sync.Once
		panicked  any
	)
	for w := 0; w < workers; w++ {
		startBlock := w * blocksPerWorker
		endBlock := startBlock + blocksPerWorker
		if startBlock >= gridSize {
			break
		}
		if endBlock > gridSize {
			endBlock = gridSize
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panicOnce.Do(func() { panicked = r })
				}
			}()
			for b := start; b < end; b++ {
				blockIdx := linearTo3D(b, grid)
				for t := 0; t < blockSize; t++ {
					body(ThreadID{
						BlockIdx:  blockIdx,
						ThreadIdx: linearTo3D(t, block),
						BlockDim:  block,
						GridDim:   grid,
					})
				}
			}
		}(startBlock, endBlock)
	}
	wg.Wait()
	if panicked != nil {
		panic(panicked)
	}
}
