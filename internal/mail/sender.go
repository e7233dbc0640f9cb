// Package mail defines the outbound email contract the dispatcher sends
// through. The transport itself is a collaborator behind the Sender
// interface; the resend subpackage is the production implementation.
package mail

import "context"

// Message is one fully-prepared outbound email
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers prepared messages. Implementations own their transport
// credentials and timeouts.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}
