package domain

import "time"

// ContentTypeText is the content type tag used when a sender does not supply one.
const ContentTypeText = "text"

// Message is the envelope of a chat message. It owns exactly one content row
// which shares its id.
type Message struct {
	ID        int64           `json:"id"`
	SendID    int64           `json:"send_id"`
	ReceiveID int64           `json:"receive_id"`
	SentTime  time.Time       `json:"sent_time"`
	Content   *MessageContent `json:"content,omitempty"`
}

// MessageContent is the payload of a message.
type MessageContent struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}
