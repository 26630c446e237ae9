// Package minerd serves the cgminer API wire protocol and provides an
// in-memory simulated miner for local development and tests.
package minerd

import "time"

// Request is one decoded client frame. Parameter is the cgminer JSON form;
// the pipe form ("cmd|param") arrives inside Command.
type Request struct {
	Command   string `json:"command"`
	Parameter string `json:"parameter,omitempty"`
}

// Status letters used in the STATUS envelope.
const (
	StatusSuccess = "S"
	StatusInfo    = "I"
	StatusWarning = "W"
	StatusError   = "E"
	StatusFatal   = "F"
)

// Status is the first element of every cgminer reply.
type Status struct {
	Status      string `json:"STATUS"`
	When        int64  `json:"When"`
	Code        int    `json:"Code"`
	Msg         string `json:"Msg"`
	Description string `json:"Description"`
}

// Response is a cgminer reply: a STATUS list, an optional named section, and an id.
type Response map[string]any

func newResponse(status Status, section string, records []map[string]any) Response {
	resp := Response{
		"STATUS": []Status{status},
		"id":     1,
	}
	if section != "" {
		if records == nil {
			records = []map[string]any{}
		}
		resp[section] = records
	}
	return resp
}

// ErrorResponse builds a bare error reply.
func ErrorResponse(now time.Time, description string, code int, msg string) Response {
	return newResponse(Status{
		Status:      StatusError,
		When:        now.Unix(),
		Code:        code,
		Msg:         msg,
		Description: description,
	}, "", nil)
}
