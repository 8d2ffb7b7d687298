package wire

// TTSEnvelope is the synthesized-audio reply; audioContent rides at the top
// level rather than inside data.
type TTSEnvelope struct {
	Cmd          string  `json:"cmd"`
	Status       int     `json:"status"`
	OK           bool    `json:"ok"`
	AudioContent *string `json:"audioContent"`
	Message      string  `json:"message,omitempty"`
	ToastType    string  `json:"toastType,omitempty"`
	ToastMessage string  `json:"toastMessage,omitempty"`
}
