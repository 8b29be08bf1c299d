package notes

import "time"

type OkResponse struct {
	Header
	Origin
}

func NewOkResponse(origin Origin) *OkResponse {
	return &OkResponse{Header: newHeader(ResponseType, CmdOk), Origin: origin}
}

// ProtocolErrorResponse is sent by a peer that could not understand a request.
type ProtocolErrorResponse struct {
	Header
	Origin
}

func NewProtocolErrorResponse(origin Origin) *ProtocolErrorResponse {
	return &ProtocolErrorResponse{Header: newHeader(ResponseType, CmdProtocolError), Origin: origin}
}

// InternalErrorResponse is sent by a peer that failed to execute a request.
type InternalErrorResponse struct {
	Header
	Origin
	Message string
}

func NewInternalErrorResponse(origin Origin, message string) *InternalErrorResponse {
	return &InternalErrorResponse{Header: newHeader(ResponseType, CmdInternalError), Origin: origin, Message: message}
}

// PingResponse reports how long the matching PingRequest took to arrive, in milliseconds.
type PingResponse struct {
	Header
	Origin
	Elapsed int64
}

func NewPingResponse(origin Origin, request *PingRequest, now time.Time) *PingResponse {
	resp := &PingResponse{
		Header:  newHeader(ResponseType, CmdPing),
		Origin:  origin,
		Elapsed: now.Sub(request.SentAt()).Milliseconds(),
	}
	Correlate(resp, request)
	return resp
}

type GetResponse struct {
	Header
	Origin
	Option GetOption
	Value  string
}

func NewGetResponse(origin Origin, option GetOption, value string) *GetResponse {
	return &GetResponse{Header: newHeader(ResponseType, CmdGet), Origin: origin, Option: option, Value: value}
}

// StatsResponse carries the current throughput figures of a peer.
type StatsResponse struct {
	Header
	Origin
	ChildCount int32
	// Role is the name of the role the reporting process plays, e.g. "sender".
	Role      string
	RoleInfo  string
	StatsType StatsType
	Timestamp string
	Count     int64
	Rate      float64
	Latency   float64
}

func NewStatsResponse(origin Origin) *StatsResponse {
	return &StatsResponse{Header: newHeader(ResponseType, CmdStats), Origin: origin}
}

type UserCommand1Response struct {
	Header
	Origin
	Message string
}

func NewUserCommand1Response(origin Origin, message string) *UserCommand1Response {
	return &UserCommand1Response{Header: newHeader(ResponseType, CmdUserCommand1), Origin: origin, Message: message}
}
