package session

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrDuplicateListener = errors.New("listener already registered for message")

type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through RealAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Listener is the bounded subscription for one rendered prompt.
type Listener struct {
	mu      sync.Mutex
	session Session
	timer   Timer
}

func (l *Listener) Session() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Apply feeds ev through Transition under the listener lock and keeps the result.
func (l *Listener) Apply(ev Event) (prev, next Session, effects []Effect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev = l.session
	next, effects = Transition(prev, ev)
	l.session = next
	return prev, next, effects
}

// Registry maps a rendered message id to its live listener.
type Registry struct {
	afterFunc AfterFunc

	mu        sync.Mutex
	listeners map[string]*Listener
}

func NewRegistry(afterFunc AfterFunc) *Registry {
	if afterFunc == nil {
		afterFunc = RealAfterFunc
	}
	return &Registry{
		afterFunc: afterFunc,
		listeners: make(map[string]*Listener),
	}
}

// Open registers s under key and arms its deadline. onExpire runs once the
// timeout elapses unless the listener is closed first.
func (r *Registry) Open(key string, s Session, timeout time.Duration, onExpire func(key string)) (*Listener, error) {
	l := &Listener{session: s}

	r.mu.Lock()
	if _, exists := r.listeners[key]; exists {
		r.mu.Unlock()
		return nil, errors.Wrapf(ErrDuplicateListener, "open %s", key)
	}
	r.listeners[key] = l
	r.mu.Unlock()

	l.mu.Lock()
	l.timer = r.afterFunc(timeout, func() { onExpire(key) })
	l.mu.Unlock()
	return l, nil
}

func (r *Registry) Lookup(key string) (*Listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listeners[key]
	return l, ok
}

// Close unregisters l and disarms its timer. It returns false when key is no
// longer bound to l.
func (r *Registry) Close(key string, l *Listener) bool {
	r.mu.Lock()
	current, ok := r.listeners[key]
	if !ok || current != l {
		r.mu.Unlock()
		return false
	}
	delete(r.listeners, key)
	r.mu.Unlock()

	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Sessions returns a snapshot of live sessions, oldest first.
func (r *Registry) Sessions() []Session {
	r.mu.Lock()
	listeners := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()

	out := make([]Session, 0, len(listeners))
	for _, l := range listeners {
		out = append(out, l.Session())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
