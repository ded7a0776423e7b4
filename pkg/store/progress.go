package store

import "sync"

// Progress is a small observable for upload progress, a fraction in
// [0, 1]. It lives outside the State snapshot because it updates far
// more often than anything subscribers project.
type Progress struct {
	mu       sync.Mutex
	value    float64
	nextID   int
	handlers map[int]func(float64)
}

// NewProgress returns a Progress at zero.
func NewProgress() *Progress {
	return &Progress{handlers: map[int]func(float64){}}
}

// Value returns the last reported fraction.
func (p *Progress) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Set reports a new fraction and notifies subscribers synchronously.
func (p *Progress) Set(v float64) {
	p.mu.Lock()
	p.value = v
	handlers := make([]func(float64), 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(v)
	}
}

// Subscribe registers fn for future updates and returns an unsubscribe
// func.
func (p *Progress) Subscribe(fn func(float64)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.handlers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}
