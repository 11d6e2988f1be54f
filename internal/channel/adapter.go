package channel

import "context"

// Adapter is the base interface every channel adapter must implement.
// All behavior beyond identification is expressed through optional
// capability interfaces discovered via type assertion.
type Adapter interface {
	Source() Source
}

// Sender is an adapter capable of delivering outbound messages to the
// platform. externalID addresses the remote party in platform terms.
type Sender interface {
	Send(ctx context.Context, externalID, content string, attachments []Attachment) error
}

// ReadMarker is an adapter capable of propagating read receipts to the
// platform. Channels without read receipts simply do not implement it;
// callers treat absence as success.
type ReadMarker interface {
	MarkRead(ctx context.Context, externalID string) error
}
