package settings

import "github.com/google/uuid"

// Subscription identifies one registered listener. Unsubscribe with the token
// returned at registration; listeners attaching to a different source must
// unsubscribe from the old one first to avoid stale deliveries.
type Subscription string

// PropertyEvent reports that one property of one setting changed.
type PropertyEvent struct {
	Key      string
	Property string
}

// PropertyNotifier is implemented by containers that emit property change
// events: instance containers and container stacks.
type PropertyNotifier interface {
	SubscribePropertyChanged(fn func(PropertyEvent)) Subscription
	UnsubscribePropertyChanged(token Subscription)
}

// signal is an ordered subscription list with synchronous, deterministic
// delivery. Delivery order is registration order. Not safe for concurrent
// use; all mutation happens on the single synchronous call path.
type signal[T any] struct {
	order     []Subscription
	listeners map[Subscription]func(T)
}

func (s *signal[T]) subscribe(fn func(T)) Subscription {
	if fn == nil {
		return ""
	}
	if s.listeners == nil {
		s.listeners = map[Subscription]func(T){}
	}
	token := Subscription(uuid.NewString())
	s.order = append(s.order, token)
	s.listeners[token] = fn
	return token
}

func (s *signal[T]) unsubscribe(token Subscription) {
	if _, ok := s.listeners[token]; !ok {
		return
	}
	delete(s.listeners, token)
	for i, t := range s.order {
		if t == token {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *signal[T]) emit(event T) {
	// Snapshot so listeners may unsubscribe during delivery.
	tokens := make([]Subscription, len(s.order))
	copy(tokens, s.order)
	for _, token := range tokens {
		if fn, ok := s.listeners[token]; ok {
			fn(event)
		}
	}
}
