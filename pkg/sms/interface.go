package sms

import "context"

// Provider sends a single transactional text message.
type Provider interface {
	Send(ctx context.Context, message *Message) (*Result, error)
}

type Message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type Result struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}
