package domain

type ConversationType string

const (
	ConversationTypeDM    ConversationType = "DM"
	ConversationTypeGroup ConversationType = "GROUP"
)

// MessageState tracks the optimistic-send lifecycle of a locally created
// message. Confirmed messages carry a server id and StateConfirmed.
type MessageState string

const (
	StatePending   MessageState = "PENDING"
	StateConfirmed MessageState = "CONFIRMED"
	StateFailed    MessageState = "FAILED"
)
