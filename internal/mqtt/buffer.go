package mqtt

import "github.com/rs/zerolog"

// pending is a message published while the broker was unreachable.
type pending struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// outbox keeps the newest limit pending messages, oldest first, for replay
// on reconnect. A limit of 0 keeps nothing. Callers hold RealClient.mu.
type outbox struct {
	limit   int
	msgs    []pending
	dropped int // since the last take
	log     zerolog.Logger
}

func newOutbox(limit int, log zerolog.Logger) *outbox {
	if limit < 0 {
		limit = 0
	}
	return &outbox{limit: limit, msgs: make([]pending, 0, limit), log: log}
}

func (o *outbox) add(m pending) {
	if o.limit == 0 {
		o.dropped++
		return
	}
	if len(o.msgs) == o.limit {
		if o.dropped == 0 {
			o.log.Warn().Int("limit", o.limit).Msg("mqtt outbox full, dropping oldest")
		}
		copy(o.msgs, o.msgs[1:])
		o.msgs[len(o.msgs)-1] = m
		o.dropped++
		return
	}
	o.msgs = append(o.msgs, m)
}

// take empties the outbox, returning what it held and how many messages
// were dropped since the previous take.
func (o *outbox) take() ([]pending, int) {
	msgs, dropped := o.msgs, o.dropped
	if len(msgs) == 0 {
		msgs = nil
	}
	o.msgs = make([]pending, 0, o.limit)
	o.dropped = 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return len(o.msgs)
}
