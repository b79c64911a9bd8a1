package mqtt

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/nullpointer/gpio-sensor/internal/controlfile"
	"github.com/rs/zerolog"
)

// Bridge turns inbound MQTT commands into control file sessions. Each
// message opens its own session, as a shell would open the file per command.
type Bridge struct {
	file   *controlfile.File
	pub    Publisher
	topics Topics
	log    zerolog.Logger
	now    func() time.Time
}

// NewBridge creates a Bridge publishing results through pub.
func NewBridge(file *controlfile.File, pub Publisher, topics Topics, log zerolog.Logger) *Bridge {
	return &Bridge{file: file, pub: pub, topics: topics, log: log, now: time.Now}
}

// Subscriptions returns the inbound topics the bridge handles.
func (b *Bridge) Subscriptions() []string {
	return []string{b.topics.Write, b.topics.Read}
}

// Handle routes a message by topic. Unknown topics are ignored.
func (b *Bridge) Handle(topic string, payload []byte) {
	var err error
	switch topic {
	case b.topics.Write:
		err = b.HandleWrite(payload)
	case b.topics.Read:
		err = b.HandleRead(payload)
	default:
		b.log.Debug().Str("topic", topic).Msg("ignoring message")
		return
	}
	if err != nil {
		b.log.Warn().Str("topic", topic).Err(err).Msg("publish failed")
	}
}

// HandleWrite stores payload as the selector.
func (b *Bridge) HandleWrite(payload []byte) error {
	if _, err := b.file.Open().Write(payload); err != nil {
		return b.publishError("write", err)
	}
	return nil
}

// HandleRead reads the control file and publishes the delivered bytes.
// An empty payload reads with a buffer of the file capacity; otherwise the
// payload is the decimal buffer size.
func (b *Bridge) HandleRead(payload []byte) error {
	size := b.file.Capacity()
	if s := bytes.TrimSpace(payload); len(s) > 0 {
		n, err := strconv.Atoi(string(s))
		if err != nil || n < 0 {
			return b.publishError("read", fmt.Errorf("invalid size %q", s))
		}
		// Larger buffers behave the same as one of the file's capacity.
		size = min(n, size)
	}

	buf := make([]byte, size)
	n, err := b.file.Open().Read(buf)
	if err != nil {
		return b.publishError("read", err)
	}
	if err := b.pub.PublishData(buf[:n]); err != nil {
		return fmt.Errorf("publish data: %w", err)
	}
	return nil
}

func (b *Bridge) publishError(op string, opErr error) error {
	b.log.Debug().Str("op", op).Err(opErr).Msg("control file operation failed")
	if err := b.pub.PublishError(ErrorEvent{Timestamp: b.now(), Op: op, Err: opErr.Error()}); err != nil {
		return fmt.Errorf("publish error: %w", err)
	}
	return nil
}
