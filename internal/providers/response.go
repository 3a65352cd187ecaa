package providers

// ResponseBody is the OpenAI Responses API response shape, shared by the
// synchronous client and the batch result reconciler. Depending on the
// path that produced it, the text may arrive either as a direct
// output_text field or inside the structured output list.
type ResponseBody struct {
	ID         string           `json:"id"`
	Model      string           `json:"model"`
	Status     string           `json:"status,omitempty"`
	OutputText string           `json:"output_text,omitempty"`
	Output     []ResponseOutput `json:"output,omitempty"`
	Error      *ResponseError   `json:"error,omitempty"`
}

// ResponseOutput is one entry of the structured output list.
type ResponseOutput struct {
	Type    string            `json:"type"`
	Role    string            `json:"role,omitempty"`
	Content []ResponseContent `json:"content,omitempty"`
}

// ResponseContent is one content block inside an output message.
type ResponseContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ResponseError is the in-body error report.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Text locates the produced text, preferring the direct output_text
// field and falling back to the first text-bearing message in the
// structured output list. ok is false if neither shape yields text.
func (r *ResponseBody) Text() (text string, ok bool) {
	if r.OutputText != "" {
		return r.OutputText, true
	}
	for _, out := range r.Output {
		if out.Type != "" && out.Type != "message" {
			continue
		}
		for _, c := range out.Content {
			if c.Type == "output_text" && c.Text != "" {
				return c.Text, true
			}
		}
	}
	return "", false
}
