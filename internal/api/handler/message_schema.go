package handler

// sentTimeLayout renders times as hour:minute day-month-year.
const sentTimeLayout = "15:04 02-01-2006"

// sendMessageRequest binds from either a JSON body or a form.
type sendMessageRequest struct {
	SendID      int64  `json:"send_id"      form:"send_id"`
	ReceiveID   int64  `json:"receive_id"   form:"receive_id"   validate:"required,gt=0"`
	ContentType string `json:"content_type" form:"content_type"`
	Content     string `json:"content"      form:"content"      validate:"required"`
}

type conversationEntryResponse struct {
	ID        int64  `json:"id"`
	SendID    int64  `json:"send_id"`
	ReceiveID int64  `json:"receive_id"`
	SentTime  string `json:"sent_time"`
}
