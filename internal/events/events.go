// Package events publishes approval lifecycle events to a message broker
// so downstream consumers (audit trail, notification delivery) can react
// without polling the API.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/learngate/apiserver/types"
)

// Channels events are published on.
const (
	ChannelApprovalSubmitted = "approvals.submitted"
	ChannelApprovalDecided   = "approvals.decided"
)

// ApprovalEvent is the wire payload for both channels.
type ApprovalEvent struct {
	RequestID     string    `json:"request_id"`
	UserID        int       `json:"user_id"`
	Username      string    `json:"username"`
	ApprovalType  string    `json:"approval_type"`
	RequestedRole string    `json:"requested_role"`
	Status        string    `json:"status"`
	DecidedBy     int       `json:"decided_by,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Delivery is a broker-agnostic inbound message.
type Delivery struct {
	ID         string
	Body       []byte
	Attributes map[string]string
}

// Handler processes a delivery. Returning an error nacks the message.
type Handler func(ctx context.Context, d Delivery) error

// Broker is implemented per transport (RabbitMQ, Pub/Sub).
type Broker interface {
	Publish(ctx context.Context, channel string, body []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Publisher emits approval events. A nil Publisher (event publication
// disabled) silently drops every event.
type Publisher struct {
	broker Broker
}

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

// ApprovalSubmitted publishes a submission event for a new request.
func (p *Publisher) ApprovalSubmitted(ctx context.Context, req types.ApprovalRequest) error {
	return p.publish(ctx, ChannelApprovalSubmitted, req, 0)
}

// ApprovalDecided publishes the outcome of a decision or cancellation.
func (p *Publisher) ApprovalDecided(ctx context.Context, req types.ApprovalRequest, decidedBy int) error {
	return p.publish(ctx, ChannelApprovalDecided, req, decidedBy)
}

func (p *Publisher) publish(ctx context.Context, channel string, req types.ApprovalRequest, decidedBy int) error {
	if p == nil || p.broker == nil {
		return nil
	}
	event := ApprovalEvent{
		RequestID:     req.ID,
		UserID:        req.UserID,
		Username:      req.Username,
		ApprovalType:  req.ApprovalType,
		RequestedRole: req.RequestedRole,
		Status:        req.Status,
		DecidedBy:     decidedBy,
		OccurredAt:    time.Now(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"approval_type": req.ApprovalType,
		"status":        req.Status,
	}
	_, err = p.broker.Publish(ctx, channel, body, attrs)
	return err
}
