/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/learngate/apiserver/internal/events"
)

func TestCleanShutdown(t *testing.T) {
	if !cleanShutdown(nil) {
		t.Fatalf("nil error must read as a clean shutdown")
	}
	if !cleanShutdown(context.Canceled) {
		t.Fatalf("context cancellation must read as a clean shutdown")
	}
	if cleanShutdown(errors.New("channel closed")) {
		t.Fatalf("broker failures must not read as a clean shutdown")
	}
}

func TestLogApprovalEventDropsMalformed(t *testing.T) {
	handler := logApprovalEvent(events.ChannelApprovalSubmitted)

	// A malformed body is dropped, not nacked into a redelivery loop.
	if err := handler(context.Background(), events.Delivery{ID: "bad", Body: []byte("{")}); err != nil {
		t.Fatalf("malformed event must be dropped without error, got %v", err)
	}

	body, err := json.Marshal(events.ApprovalEvent{RequestID: "req-1", UserID: 10, Status: "pending"})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := handler(context.Background(), events.Delivery{ID: "ok", Body: body}); err != nil {
		t.Fatalf("well-formed event must ack, got %v", err)
	}
}
