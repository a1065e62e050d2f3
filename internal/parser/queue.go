package parser

// Queue collects output parts during a parse. Handlers push onto the queue
// they are given; wrapping an attachment pushes onto the front.
type Queue struct {
	parts []*Part
}

// Push appends a part.
func (q *Queue) Push(p *Part) {
	q.parts = append(q.parts, p)
}

// PushFront prepends a part.
func (q *Queue) PushFront(p *Part) {
	q.parts = append([]*Part{p}, q.parts...)
}

// Front returns the first part, or nil.
func (q *Queue) Front() *Part {
	if len(q.parts) == 0 {
		return nil
	}
	return q.parts[0]
}

func (q *Queue) Len() int {
	return len(q.parts)
}

// Parts returns the queued parts in order. The slice is shared with the
// queue.
func (q *Queue) Parts() []*Part {
	return q.parts
}

// Transfer appends every part to dst and empties q.
func (q *Queue) Transfer(dst *Queue) {
	dst.parts = append(dst.parts, q.parts...)
	q.parts = nil
}

// Each calls fn for every queued part.
func (q *Queue) Each(fn func(*Part)) {
	for _, p := range q.parts {
		fn(p)
	}
}
