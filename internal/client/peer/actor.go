package peer

import "sync"

const inboxSize = 1024

// actor runs posted closures one at a time on its own goroutine.
type actor struct {
	inbox chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newActor() *actor {
	a := &actor{
		inbox: make(chan func(), inboxSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *actor) run() {
	defer close(a.done)
	for {
		select {
		case f := <-a.inbox:
			f()
		case <-a.quit:
			return
		}
	}
}

// post queues f. It reports false once the actor has stopped.
func (a *actor) post(f func()) bool {
	select {
	case <-a.quit:
		return false
	default:
	}
	select {
	case a.inbox <- f:
		return true
	case <-a.quit:
		return false
	}
}

// call runs f on the actor and waits for it. Never call from inside the
// actor itself.
func (a *actor) call(f func()) bool {
	finished := make(chan struct{})
	if !a.post(func() {
		defer close(finished)
		f()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-a.done:
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

func (a *actor) stop() {
	a.once.Do(func() { close(a.quit) })
	<-a.done
}
