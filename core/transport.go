package core

import "context"

// AlertMessage is one outbound alert: a batch of records rendered as a
// single plain-text body
type AlertMessage struct {
	Subject string
	Body    string
	Records []*Record
}

// Transport delivers alert messages (email, chat webhook, ...).
// Send is only ever called from the alerting sink's background goroutine.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg AlertMessage) error
	Close() error
}
