package notes

import "time"

// Requests without a payload.
type (
	StartReceiverRequest struct{ Header }
	StopReceiverRequest  struct{ Header }
	StartSenderRequest   struct{ Header }
	StopSenderRequest    struct{ Header }
	StopInspectorRequest struct{ Header }
	StartAgentRequest    struct{ Header }
	StopAgentRequest     struct{ Header }
	FlushRequest         struct{ Header }
	HaltRequest          struct{ Header }
	StatsRequest         struct{ Header }
	StopTestRequest      struct{ Header }
	StopWorkerRequest    struct{ Header }
	GroupLeaveRequest    struct{ Header }
)

func NewStartReceiverRequest() *StartReceiverRequest {
	return &StartReceiverRequest{newHeader(RequestType, CmdStartReceiver)}
}

func NewStopReceiverRequest() *StopReceiverRequest {
	return &StopReceiverRequest{newHeader(RequestType, CmdStopReceiver)}
}

func NewStartSenderRequest() *StartSenderRequest {
	return &StartSenderRequest{newHeader(RequestType, CmdStartSender)}
}

func NewStopSenderRequest() *StopSenderRequest {
	return &StopSenderRequest{newHeader(RequestType, CmdStopSender)}
}

func NewStopInspectorRequest() *StopInspectorRequest {
	return &StopInspectorRequest{newHeader(RequestType, CmdStopInspector)}
}

func NewStartAgentRequest() *StartAgentRequest {
	return &StartAgentRequest{newHeader(RequestType, CmdStartAgent)}
}

func NewStopAgentRequest() *StopAgentRequest {
	return &StopAgentRequest{newHeader(RequestType, CmdStopAgent)}
}

func NewFlushRequest() *FlushRequest {
	return &FlushRequest{newHeader(RequestType, CmdFlush)}
}

func NewHaltRequest() *HaltRequest {
	return &HaltRequest{newHeader(RequestType, CmdHalt)}
}

func NewStatsRequest() *StatsRequest {
	return &StatsRequest{newHeader(RequestType, CmdStats)}
}

func NewStopTestRequest() *StopTestRequest {
	return &StopTestRequest{newHeader(RequestType, CmdStopTest)}
}

func NewStopWorkerRequest() *StopWorkerRequest {
	return &StopWorkerRequest{newHeader(RequestType, CmdStopWorker)}
}

func NewGroupLeaveRequest() *GroupLeaveRequest {
	return &GroupLeaveRequest{newHeader(RequestType, CmdGroupLeave)}
}

// StartInspectorRequest starts the inspector named by Payload, e.g. "ArtemisInspector".
type StartInspectorRequest struct {
	Header
	Payload string
}

func NewStartInspectorRequest(payload string) *StartInspectorRequest {
	return &StartInspectorRequest{Header: newHeader(RequestType, CmdStartInspector), Payload: payload}
}

// StartWorkerRequest starts the named worker implementation on a peer.
type StartWorkerRequest struct {
	Header
	WorkerName string
}

func NewStartWorkerRequest(workerName string) *StartWorkerRequest {
	return &StartWorkerRequest{Header: newHeader(RequestType, CmdStartWorker), WorkerName: workerName}
}

// SetRequest changes one test parameter on the peers that receive it.
type SetRequest struct {
	Header
	Option SetOption
	Value  string
}

func NewSetRequest(option SetOption, value string) *SetRequest {
	return &SetRequest{Header: newHeader(RequestType, CmdSet), Option: option, Value: value}
}

type GetRequest struct {
	Header
	Option GetOption
}

func NewGetRequest(option GetOption) *GetRequest {
	return &GetRequest{Header: newHeader(RequestType, CmdGet), Option: option}
}

// PingRequest carries the time it was created so that the peer can report the elapsed time back.
type PingRequest struct {
	Header
	Sec  int64
	USec int64
}

func NewPingRequest(now time.Time) *PingRequest {
	return &PingRequest{
		Header: newHeader(RequestType, CmdPing),
		Sec:    now.Unix(),
		USec:   int64(now.Nanosecond() / 1000),
	}
}

// SentAt returns the creation time carried in the request.
func (r *PingRequest) SentAt() time.Time {
	return time.Unix(r.Sec, r.USec*1000)
}

type AgentSourceRequest struct {
	Header
	SourceURL string
	Branch    string
}

func NewAgentSourceRequest(sourceURL, branch string) *AgentSourceRequest {
	return &AgentSourceRequest{Header: newHeader(RequestType, CmdAgentSource), SourceURL: sourceURL, Branch: branch}
}

// LogRequest asks a single peer to transfer its logs. TypeName is only sent when Location is LogAny.
type LogRequest struct {
	Header
	Target   PeerInfo
	Location LogLocation
	TypeName string
}

func NewLogRequest(target PeerInfo, location LogLocation, typeName string) *LogRequest {
	return &LogRequest{
		Header:   newHeader(RequestType, CmdLog),
		Target:   target,
		Location: location,
		TypeName: typeName,
	}
}

// DrainRequest asks a receiver to consume whatever is left on the broker.
type DrainRequest struct {
	Header
	Target        PeerInfo
	Duration      string
	URL           string
	ParallelCount string
	WorkerName    string
}

func NewDrainRequest(target PeerInfo, duration, url, parallelCount, workerName string) *DrainRequest {
	return &DrainRequest{
		Header:        newHeader(RequestType, CmdDrain),
		Target:        target,
		Duration:      duration,
		URL:           url,
		ParallelCount: parallelCount,
		WorkerName:    workerName,
	}
}

type GroupJoinRequest struct {
	Header
	GroupName  string
	MemberName string
}

func NewGroupJoinRequest(groupName, memberName string) *GroupJoinRequest {
	return &GroupJoinRequest{Header: newHeader(RequestType, CmdGroupJoin), GroupName: groupName, MemberName: memberName}
}

// RoleAssignRequest turns a generic worker into the given role.
type RoleAssignRequest struct {
	Header
	Target PeerInfo
	Role   Role
}

func NewRoleAssignRequest(target PeerInfo, role Role) *RoleAssignRequest {
	return &RoleAssignRequest{Header: newHeader(RequestType, CmdRoleAssign), Target: target, Role: role}
}

type RoleUnassignRequest struct {
	Header
	Target PeerInfo
}

func NewRoleUnassignRequest(target PeerInfo) *RoleUnassignRequest {
	return &RoleUnassignRequest{Header: newHeader(RequestType, CmdRoleUnassign), Target: target}
}

// StartTestRequest announces a test execution to the peers.
type StartTestRequest struct {
	Header
	Info TestExecutionInfo
}

func NewStartTestRequest(info TestExecutionInfo) *StartTestRequest {
	return &StartTestRequest{Header: newHeader(RequestType, CmdStartTest), Info: info}
}

// UserCommand1Request asks an agent to execute a command.
type UserCommand1Request struct {
	Header
	Option int64
	Value  string
}

// ExecuteCommandOption is the only option understood by agents.
const ExecuteCommandOption int64 = 0

func NewUserCommand1Request(command string) *UserCommand1Request {
	return &UserCommand1Request{Header: newHeader(RequestType, CmdUserCommand1), Option: ExecuteCommandOption, Value: command}
}
