package application

// ShareTextDTO carries the composed share payload and its content marker for
// the external sharing mechanism.
type ShareTextDTO struct {
	Text        string `json:"text"`
	ContentType string `json:"contentType"`
}
