package hub

import "sync"

// Hub — фан-аут снапшотов по ключу (id заказа). Каждому подписчику
// снапшоты доставляются собственной горутиной строго в порядке публикации;
// порядок МЕЖДУ разными подписчиками и разными хабами не гарантируется.
// Publish после unsubscribe — no-op.
type Hub[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*subscriber[T]
}

type subscriber[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
	fn     func(T)
}

func New[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[string]map[uint64]*subscriber[T])}
}

// Subscribe регистрирует callback для ключа и возвращает unsubscribe.
// Unsubscribe идемпотентен; после него callback больше не вызывается.
func (h *Hub[T]) Subscribe(key string, fn func(T)) func() {
	return h.add(key, fn, nil)
}

// SubscribeSeed регистрирует callback и кладёт начальный снапшот первым
// в очередь подписчика. Регистрация и посев атомарны: снапшот уйдёт из
// горутины подписчика раньше любого Publish после регистрации, callback
// никогда не зовётся с двух горутин.
func (h *Hub[T]) SubscribeSeed(key string, initial T, fn func(T)) func() {
	return h.add(key, fn, []T{initial})
}

func (h *Hub[T]) add(key string, fn func(T), seed []T) func() {
	s := &subscriber[T]{fn: fn, queue: seed}
	s.cond = sync.NewCond(&s.mu)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[key] == nil {
		h.subs[key] = make(map[uint64]*subscriber[T])
	}
	h.subs[key][id] = s
	h.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if m, ok := h.subs[key]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(h.subs, key)
				}
			}
			h.mu.Unlock()
			s.close()
		})
	}
}

func (h *Hub[T]) Publish(key string, snapshot T) {
	h.mu.Lock()
	targets := make([]*subscriber[T], 0, len(h.subs[key]))
	for _, s := range h.subs[key] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.enqueue(snapshot)
	}
}

// Subscribers возвращает число активных подписок на ключ (для статистики).
func (h *Hub[T]) Subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}

func (s *subscriber[T]) enqueue(snapshot T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, snapshot)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber[T]) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		snap := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(snap)
	}
}
