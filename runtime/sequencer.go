package runtime

import "sync"

// sequencer hands out tickets in submission order and lets each holder
// run its broadcast only once every earlier ticket is done.
// Work done between take and wait (persistence) runs concurrently.
type sequencer struct {
	mu   sync.Mutex
	cond *sync.Cond
	next uint64
	turn uint64
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sequencer) take() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket := s.next
	s.next++
	return ticket
}

// wait blocks until ticket is the oldest one not done yet.
func (s *sequencer) wait(ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.turn != ticket {
		s.cond.Wait()
	}
}

// done waits for the ticket's turn, then passes it on.
// It must be called exactly once per ticket, even on failure.
func (s *sequencer) done(ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.turn != ticket {
		s.cond.Wait()
	}
	s.turn++
	s.cond.Broadcast()
}
