package httpdto

type SendMessageRequest struct {
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls"`
}

type SendMessageResponse struct {
	LocalSeq  int64  `json:"local_seq"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

type StartDirectRequest struct {
	PeerID string `json:"peer_id"`
}

type StartDirectResponse struct {
	ConversationID string `json:"conversation_id"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

type BadgeResponse struct {
	Unread          int    `json:"unread"`
	ConnectionState string `json:"connection_state"`
}
