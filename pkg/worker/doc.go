/*
Package worker runs image tasks on a fixed set of goroutines.

# Overview

Two scheduling disciplines are provided:
  - StaticWorkerPool: a fixed, pre-sorted job list is split into contiguous
    ranges with Partition and each range is handed to one worker. Workers
    share nothing until they join.
  - QueueWorkerPool: workers stay alive across many batches. A
    QueueDispatcher owns one bounded channel per worker and places tasks
    round-robin over its whole lifetime. Shutdown sends exactly one
    terminate task to every worker and waits for all of them.

No goroutine is created per task.

# Worker

A Worker moves between idle and working and ends in stopped. A task that has
been received always runs to completion; context cancellation is only
observed while the worker is idle. Panics in the processor are recovered and
reported as a types.TaskError.

# Statistics

Stats is the only state shared between queue workers. Record adds one task
under a single lock and returns the aggregate right after the update:

	stats := worker.NewStats()
	snap := stats.Record(elapsed)
	if avg, ok := snap.Average(); ok {
		fmt.Printf("%d images, %.2fs average\n", snap.Count, avg.Seconds())
	}

# Usage

	pool, err := worker.NewQueueWorkerPool(&worker.QueueWorkerPoolConfig{
		PoolSize:  4,
		QueueSize: 64,
		Processor: processor,
	})
	if err != nil {
		return err
	}
	if err := pool.Start(ctx); err != nil {
		return err
	}

	if err := pool.SubmitBatch(ctx, tasks); err != nil {
		return err
	}

	// broadcast terminate and join
	if err := pool.Shutdown(ctx); err != nil {
		return err
	}
	fmt.Println(pool.Stats().Count)
*/
package worker
