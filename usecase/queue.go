package usecase

import "github.com/giziai/digital-human/domain/entities"

// MessageQueue is the FIFO of replies awaiting playback. The head is the
// current message. Only append and head removal exist.
// It is not safe for concurrent use; Conversation guards it.
type MessageQueue struct {
	items   []entities.ReplyMessage
	lastSeq uint64
}

// Push appends messages in order, stamping each with the next sequence number
func (q *MessageQueue) Push(msgs ...entities.ReplyMessage) {
	for _, m := range msgs {
		q.lastSeq++
		m.Seq = q.lastSeq
		q.items = append(q.items, m)
	}
}

// Current returns the head of the queue
func (q *MessageQueue) Current() (entities.ReplyMessage, bool) {
	if len(q.items) == 0 {
		return entities.ReplyMessage{}, false
	}
	return q.items[0], true
}

// Pop removes exactly the head
func (q *MessageQueue) Pop() (entities.ReplyMessage, bool) {
	if len(q.items) == 0 {
		return entities.ReplyMessage{}, false
	}
	head := q.items[0]
	q.items[0] = entities.ReplyMessage{}
	q.items = q.items[1:]
	return head, true
}

// Len returns the number of queued messages including the current one
func (q *MessageQueue) Len() int {
	return len(q.items)
}
