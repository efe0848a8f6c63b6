package task

// IndexQueueReader provides read-only access to the queued input indices,
// allowing workers to consume work without the ability to enqueue
type IndexQueueReader interface {
	// GetChannel returns a read-only channel for consuming indices.
	// Each index is received by exactly one reader.
	GetChannel() <-chan int
}

// IndexQueue is a buffered queue of input indices that satisfies
// IndexQueueReader. Receiving from the channel is the dequeue operation, so
// concurrent workers never get the same index twice and never lose one.
type IndexQueue struct {
	indices chan int
}

// NewFilledIndexQueue creates a closed queue holding 0..n-1 in order.
// Readers drain it and then stop.
func NewFilledIndexQueue(n int) *IndexQueue {
	indices := make(chan int, n)
	for i := 0; i < n; i++ {
		indices <- i
	}
	close(indices)
	return &IndexQueue{indices: indices}
}

// GetChannel returns a read-only channel for consuming indices
func (q *IndexQueue) GetChannel() <-chan int {
	return q.indices
}
