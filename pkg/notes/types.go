package notes

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
)

// NoteType is the first discriminator of every note on the wire.
type NoteType int16

const (
	RequestType      NoteType = 0
	ResponseType     NoteType = 1
	NotificationType NoteType = 2
)

func (t NoteType) String() string {
	switch t {
	case RequestType:
		return "request"
	case ResponseType:
		return "response"
	case NotificationType:
		return "notification"
	default:
		return fmt.Sprintf("NoteType(%d)", int16(t))
	}
}

// Command is the closed set of actions a note can carry. The numeric values are part of the wire format.
type Command int64

const (
	CmdStartReceiver       Command = 0
	CmdStopReceiver        Command = 1
	CmdStartSender         Command = 2
	CmdStopSender          Command = 3
	CmdStartInspector      Command = 4
	CmdStopInspector       Command = 5
	CmdFlush               Command = 6
	CmdSet                 Command = 7
	CmdStats               Command = 8
	CmdHalt                Command = 9
	CmdPing                Command = 10
	CmdOk                  Command = 11
	CmdProtocolError       Command = 12
	CmdInternalError       Command = 13
	CmdAbnormalDisconnect  Command = 14
	CmdNotifyFail          Command = 15
	CmdNotifySuccess       Command = 16
	CmdGet                 Command = 17
	CmdStartAgent          Command = 18
	CmdStopAgent           Command = 19
	CmdAgentSource         Command = 21
	CmdLog                 Command = 22
	CmdDrain               Command = 23
	CmdNotifyDrainComplete Command = 24
	CmdGroupJoin           Command = 25
	CmdGroupLeave          Command = 26
	CmdRoleAssign          Command = 27
	CmdRoleUnassign        Command = 28
	CmdStartTest           Command = 29
	CmdUserCommand1        Command = 30
	CmdStopTest            Command = 31
	CmdStartWorker         Command = 32
	CmdStopWorker          Command = 33
)

var commandNames = map[Command]string{
	CmdStartReceiver:       "start-receiver",
	CmdStopReceiver:        "stop-receiver",
	CmdStartSender:         "start-sender",
	CmdStopSender:          "stop-sender",
	CmdStartInspector:      "start-inspector",
	CmdStopInspector:       "stop-inspector",
	CmdFlush:               "flush",
	CmdSet:                 "set",
	CmdStats:               "stats",
	CmdHalt:                "halt",
	CmdPing:                "ping",
	CmdOk:                  "ok",
	CmdProtocolError:       "protocol-error",
	CmdInternalError:       "internal-error",
	CmdAbnormalDisconnect:  "abnormal-disconnect",
	CmdNotifyFail:          "notify-fail",
	CmdNotifySuccess:       "notify-success",
	CmdGet:                 "get",
	CmdStartAgent:          "start-agent",
	CmdStopAgent:           "stop-agent",
	CmdAgentSource:         "agent-source",
	CmdLog:                 "log",
	CmdDrain:               "drain",
	CmdNotifyDrainComplete: "notify-drain-complete",
	CmdGroupJoin:           "group-join",
	CmdGroupLeave:          "group-leave",
	CmdRoleAssign:          "role-assign",
	CmdRoleUnassign:        "role-unassign",
	CmdStartTest:           "start-test",
	CmdUserCommand1:        "user-command-1",
	CmdStopTest:            "stop-test",
	CmdStartWorker:         "start-worker",
	CmdStopWorker:          "stop-worker",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int64(c))
}

// Role identifies what a peer does in a test. The codes are shared with the data files written by workers.
type Role int32

const (
	RoleOther         Role = 0
	RoleSender        Role = 1
	RoleReceiver      Role = 2
	RoleInspector     Role = 3
	RoleAgent         Role = 4
	RoleExporter      Role = 5
	RoleReportsServer Role = 6
)

var roleNames = map[Role]string{
	RoleOther:         "other",
	RoleSender:        "sender",
	RoleReceiver:      "receiver",
	RoleInspector:     "inspector",
	RoleAgent:         "agent",
	RoleExporter:      "exporter",
	RoleReportsServer: "reports-server",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int32(r))
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// IsWorker is true for the roles that take part in moving messages through the broker under test.
func (r Role) IsWorker() bool {
	return r == RoleSender || r == RoleReceiver
}

// ParseRole converts a role name, as used in configuration files and topic names, to a Role.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return RoleOther, errors.WithStack(&maestroerrors.ErrInvalidArgument{
		Name:    "role",
		Value:   s,
		Message: "unknown role",
	})
}

// SetOption selects which test parameter a SetRequest changes.
type SetOption int64

const (
	SetBroker              SetOption = 0
	SetDurationType        SetOption = 1
	SetLogLevel            SetOption = 2
	SetParallelCount       SetOption = 3
	SetMessageSize         SetOption = 4
	SetThrottle            SetOption = 5
	SetRate                SetOption = 6
	SetFCL                 SetOption = 7
	SetManagementInterface SetOption = 8
	SetVariableSize        SetOption = 9
)

func (o SetOption) valid() bool {
	return o >= SetBroker && o <= SetVariableSize
}

func (o SetOption) String() string {
	switch o {
	case SetBroker:
		return "brokerUri"
	case SetDurationType:
		return "duration"
	case SetLogLevel:
		return "logLevel"
	case SetParallelCount:
		return "parallelCount"
	case SetMessageSize:
		return "messageSize"
	case SetThrottle:
		return "throttle"
	case SetRate:
		return "rate"
	case SetFCL:
		return "fcl"
	case SetManagementInterface:
		return "managementInterface"
	case SetVariableSize:
		return "variableSize"
	default:
		return fmt.Sprintf("SetOption(%d)", int64(o))
	}
}

// GetOption selects which value a GetRequest asks a peer for.
type GetOption int64

const (
	GetDataServer GetOption = 0
)

// LogLocation tells a peer which of its log directories to transfer.
type LogLocation int32

const (
	LogAny            LogLocation = 0
	LogLastSuccessful LogLocation = 1
	LogLastFailed     LogLocation = 2
)

func (l LogLocation) valid() bool {
	return l >= LogAny && l <= LogLastFailed
}

func (l LogLocation) String() string {
	switch l {
	case LogAny:
		return "any"
	case LogLastSuccessful:
		return "last-successful"
	case LogLastFailed:
		return "last-failed"
	default:
		return fmt.Sprintf("LogLocation(%d)", int32(l))
	}
}

// StatsType distinguishes the stats reported by different worker implementations.
type StatsType int16

const (
	StatsWorker    StatsType = 0
	StatsInspector StatsType = 1
)
