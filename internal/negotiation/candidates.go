package negotiation

import "github.com/pion/webrtc/v4"

// pendingCandidates holds remote candidates that arrived before a remote
// description was applied. It is only touched by the negotiator's loop.
type pendingCandidates struct {
	items []webrtc.ICECandidateInit
}

func (q *pendingCandidates) push(c webrtc.ICECandidateInit) {
	q.items = append(q.items, c)
}

func (q *pendingCandidates) len() int {
	return len(q.items)
}

// take returns the queued candidates in arrival order and empties the queue.
func (q *pendingCandidates) take() []webrtc.ICECandidateInit {
	items := q.items
	q.items = nil
	return items
}
