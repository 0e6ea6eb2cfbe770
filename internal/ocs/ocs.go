// Package ocs implements the legacy Open Collaboration Services status
// envelope. Older federation servers wrap every API response in this
// envelope and report outcome through meta.statuscode instead of the HTTP
// status line.
package ocs

import "encoding/json"

// Status codes that count as success. 100 is the OCS v1 convention, 200 the
// OCS v2 one; remotes of either generation may answer with either.
const (
	StatusOKv1 = 100
	StatusOKv2 = 200
)

// Envelope is the outer wrapper of an OCS response.
type Envelope struct {
	OCS Body `json:"ocs"`
}

// Body holds the response meta and payload.
type Body struct {
	Meta Meta            `json:"meta"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Meta carries the OCS status of a response.
type Meta struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statuscode"`
	Message    string `json:"message,omitempty"`
}

// Success reports whether the envelope's status code signals success.
func (e *Envelope) Success() bool {
	return e.OCS.Meta.StatusCode == StatusOKv1 || e.OCS.Meta.StatusCode == StatusOKv2
}

// Parse decodes an OCS envelope from a response body.
func Parse(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
