package auth

import "sync"

// Emitter fans state changes out to listeners. It holds its lock while
// listeners run, so events reach every listener in order.
type Emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
	order     []int
}

func NewEmitter() *Emitter {
	return &Emitter{listeners: map[int]Listener{}}
}

// Subscribe registers l and immediately delivers INITIAL_SESSION with current.
func (e *Emitter) Subscribe(l Listener, current *Session) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.order = append(e.order, id)
	l(EventInitialSession, current)
	return &subscription{emitter: e, id: id}
}

func (e *Emitter) Emit(event Event, session *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.order {
		e.listeners[id](event, session)
	}
}

// Len reports the number of active listeners.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}

func (e *Emitter) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.listeners[id]; !ok {
		return
	}
	delete(e.listeners, id)
	for i, existing := range e.order {
		if existing == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

type subscription struct {
	emitter *Emitter
	id      int
	once    sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.emitter.remove(s.id) })
}
