package protocol

import (
	"encoding/json"
)

// Response values shared by every request/reply pair.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Data store verbs.
const (
	ActionCreate = "create"
	ActionQuery  = "query"
	ActionSearch = "search"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Data store record types.
const (
	TypeUser    = "user"
	TypeRoom    = "room"
	TypeGameLog = "gamelog"
)

// Failure reasons of a search that matched nothing.
const (
	ReasonNoUsers = "no user online"
	ReasonNoRooms = "no available room"
)

// Request is a coordinator -> data store RPC.
// query uses ID (preferred) or Name, delete uses Name, create/update carry Data.
type Request struct {
	Action     string          `json:"action"`
	Type       string          `json:"type"`
	ID         *int            `json:"id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Visibility string          `json:"visibility,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Response is the reply shape used by both the data store and the lobby.
type Response struct {
	Response string          `json:"response"`
	Reason   string          `json:"reason,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	ID       *int            `json:"id,omitempty"`
}

// OK reports whether the response is a success.
func (r Response) OK() bool {
	return r.Response == StatusSuccess
}

// Success builds a success reply. A nil data omits the field.
func Success(data any) Response {
	if data == nil {
		return Response{Response: StatusSuccess}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Failure("unexpected error")
	}
	return Response{Response: StatusSuccess, Data: raw}
}

// Created builds the success reply of a create verb.
func Created(id int) Response {
	return Response{Response: StatusSuccess, ID: &id}
}

// Failure builds a failed reply with the given reason.
func Failure(reason string) Response {
	return Response{Response: StatusFailed, Reason: reason}
}
