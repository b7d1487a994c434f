package acquisition

import (
	"slices"
	"sync"
)

// Queue holds the images waiting to be submitted, in order
type Queue struct {
	mu     sync.Mutex
	images []Image
}

// NewQueue creates an empty Queue
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends an image, as a camera capture does
func (q *Queue) Enqueue(img Image) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.images = append(q.images, img)
}

// Replace swaps the whole selection, as picking or dropping files does
func (q *Queue) Replace(images ...Image) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.images = slices.Clone(images)
}

// Images returns the queued images in order
func (q *Queue) Images() []Image {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.images)
}

// Len returns the number of queued images
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.images)
}

// Clear empties the queue
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.images = nil
}
