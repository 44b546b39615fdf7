package events

import (
	"encoding/json"
	"time"
)

const (
	TypeRunStarted  = "run_started"
	TypeRunFinished = "run_finished"
	TypeJobPosted   = "job_posted"
	TypeJobFailed   = "job_failed"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func MakeEvent(reqID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// JobPosted is the payload of TypeJobPosted and TypeJobFailed.
type JobPosted struct {
	RunID    string `json:"run_id"`
	Identity string `json:"identity"`
	Source   string `json:"source"`
	Title    string `json:"title"`
	Company  string `json:"company,omitempty"`
	Error    string `json:"error,omitempty"`
}
