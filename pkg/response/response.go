// Package response defines the JSON envelope every API response is wrapped in.
package response

// Envelope is {"success": ..., "message": ..., "data": ...}.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(message string, data interface{}) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

func Error(message string) Envelope {
	return Envelope{Success: false, Message: message}
}

// ErrorWithData carries structured detail, e.g. per-field validation messages.
func ErrorWithData(message string, data interface{}) Envelope {
	return Envelope{Success: false, Message: message, Data: data}
}
