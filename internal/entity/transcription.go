package entity

type TranscribeRequest struct {
	Audio    []byte `json:"-"`
	MimeType string `json:"-"`
}

type TranscribeResponse struct {
	Text string `json:"text"`
}
