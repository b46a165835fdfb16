package mutator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/adascale/scaler"
	"github.com/inference-sim/adascale/scaler/roster"
)

// DefaultSubjectPrefix is the subject namespace of the cluster manager.
const DefaultSubjectPrefix = "adascale.cluster"

// Request is the payload of a membership request. Size is the pool size
// the change produces; Target is where the whole resize is heading.
type Request struct {
	Op     Op            `json:"op"`
	Size   int           `json:"size"`
	Target int           `json:"target"`
	Worker roster.Worker `json:"worker"`
}

// Reply is the cluster manager's answer. Reason is set when OK is false.
type Reply struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// NATS sends membership requests to <prefix>.addworker and
// <prefix>.removeworker and waits for a Reply.
type NATS struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
	*stepper
}

var _ scaler.ClusterMutator = (*NATS)(nil)

// NATSOption configures a NATS mutator.
type NATSOption func(*NATS)

// WithSubjectPrefix overrides DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) NATSOption {
	return func(m *NATS) {
		if prefix != "" {
			m.prefix = prefix
		}
	}
}

// WithRequestTimeout bounds each request when the caller's context has no
// deadline. Defaults to 10s.
func WithRequestTimeout(d time.Duration) NATSOption {
	return func(m *NATS) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewNATS creates a NATS mutator for a pool currently at initial workers.
// Panics if nc or r is nil, or initial < 1.
func NewNATS(nc *nats.Conn, r *roster.Roster, initial int, opts ...NATSOption) *NATS {
	if nc == nil {
		panic("mutator: NATS connection is nil")
	}
	m := &NATS{nc: nc, prefix: DefaultSubjectPrefix, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(m)
	}
	m.stepper = newStepper(r, initial, m)
	return m
}

// Resize adds or removes workers until the pool has target workers.
func (m *NATS) Resize(ctx context.Context, target int) error {
	return m.resize(ctx, target)
}

// Size returns the pool size as last acknowledged by the cluster manager.
func (m *NATS) Size() int { return m.size() }

func (m *NATS) send(ctx context.Context, c change) error {
	op, target := c.Op, c.Target
	data, err := json.Marshal(Request{Op: op, Size: c.Size, Target: target, Worker: c.Worker})
	if err != nil {
		return scaler.Rejected(target, fmt.Sprintf("encoding request: %v", err))
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	msg, err := m.nc.RequestWithContext(ctx, subject(m.prefix, op), data)
	switch {
	case err == nil:
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return scaler.Timeout(target, err)
	default:
		// Includes nats.ErrNoResponders: no cluster manager is listening.
		return scaler.Unreachable(target, err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return scaler.Rejected(target, fmt.Sprintf("%s: malformed reply: %v", op, err))
	}
	if !reply.OK {
		return scaler.Rejected(target, fmt.Sprintf("%s: %s", op, reply.Reason))
	}
	return nil
}

func subject(prefix string, op Op) string {
	return prefix + "." + string(op)
}

// Serve answers NATS membership requests with h until the returned
// subscriptions are drained or the connection closes.
func Serve(nc *nats.Conn, prefix string, h Handler) ([]*nats.Subscription, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	var subs []*nats.Subscription
	for _, op := range []Op{OpAdd, OpRemove} {
		sub, err := nc.Subscribe(subject(prefix, op), func(msg *nats.Msg) {
			reply := handle(h, msg.Data)
			data, _ := json.Marshal(reply)
			if err := msg.Respond(data); err != nil {
				logrus.Warnf("responding to %s: %v", msg.Subject, err)
			}
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribing to %s: %w", subject(prefix, op), err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func handle(h Handler, data []byte) Reply {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Reply{Reason: fmt.Sprintf("malformed request: %v", err)}
	}
	if req.Size < 0 {
		return Reply{Reason: fmt.Sprintf("invalid pool size %d", req.Size)}
	}
	var err error
	switch req.Op {
	case OpAdd:
		err = h.AddWorker(req.Size, req.Worker)
	case OpRemove:
		err = h.RemoveWorker(req.Size, req.Worker)
	default:
		err = fmt.Errorf("unknown op %q", req.Op)
	}
	if err != nil {
		return Reply{Reason: err.Error()}
	}
	return Reply{OK: true}
}
