package entity

import "encoding/json"

// Action is an inbound request from a connection.
type Action struct {
	Name    string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the outbound shape for both replies and game updates.
type Response struct {
	Error   bool   `json:"error"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Message string `json:"message,omitempty"`
}

func Success(responseType string, payload any) Response {
	return Response{
		Type:    responseType,
		Payload: payload,
	}
}

func Failure(responseType string, err error) Response {
	return Response{
		Error:   true,
		Type:    responseType,
		Message: err.Error(),
	}
}
