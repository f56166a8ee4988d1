package domain

import "github.com/google/uuid"

type SubscriberID string

// NewSubscriberID is unique per connection, not per browser.
func NewSubscriberID() SubscriberID {
	return SubscriberID(uuid.NewString())
}

// NewPublisherID is used by ingestion adapters that have no connection id of their own.
func NewPublisherID() PublisherID {
	return PublisherID(uuid.NewString())
}
