package notes

import (
	"bytes"
	"fmt"
	"math"
	"reflect"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
)

// Wire layout:
//
//	[int16 noteType][int64 command][string correlationId][string messageId][command fields...]
//
// Integers use the compact MessagePack encoding so that peers using other MessagePack implementations
// can read them back regardless of the declared width. Field order is fixed per note. Roles travel as
// their names. Nil is never a valid field value.

type body interface {
	Note
	encodeBody(w *writer)
	decodeBody(r *reader)
}

// registry is the closed set of valid (NoteType, Command) pairs.
var registry = map[NoteType]map[Command]func() body{
	RequestType: {
		CmdStartReceiver:  func() body { return &StartReceiverRequest{} },
		CmdStopReceiver:   func() body { return &StopReceiverRequest{} },
		CmdStartSender:    func() body { return &StartSenderRequest{} },
		CmdStopSender:     func() body { return &StopSenderRequest{} },
		CmdStartInspector: func() body { return &StartInspectorRequest{} },
		CmdStopInspector:  func() body { return &StopInspectorRequest{} },
		CmdFlush:          func() body { return &FlushRequest{} },
		CmdSet:            func() body { return &SetRequest{} },
		CmdStats:          func() body { return &StatsRequest{} },
		CmdHalt:           func() body { return &HaltRequest{} },
		CmdPing:           func() body { return &PingRequest{} },
		CmdGet:            func() body { return &GetRequest{} },
		CmdStartAgent:     func() body { return &StartAgentRequest{} },
		CmdStopAgent:      func() body { return &StopAgentRequest{} },
		CmdAgentSource:    func() body { return &AgentSourceRequest{} },
		CmdLog:            func() body { return &LogRequest{} },
		CmdDrain:          func() body { return &DrainRequest{} },
		CmdGroupJoin:      func() body { return &GroupJoinRequest{} },
		CmdGroupLeave:     func() body { return &GroupLeaveRequest{} },
		CmdRoleAssign:     func() body { return &RoleAssignRequest{} },
		CmdRoleUnassign:   func() body { return &RoleUnassignRequest{} },
		CmdStartTest:      func() body { return &StartTestRequest{} },
		CmdUserCommand1:   func() body { return &UserCommand1Request{} },
		CmdStopTest:       func() body { return &StopTestRequest{} },
		CmdStartWorker:    func() body { return &StartWorkerRequest{} },
		CmdStopWorker:     func() body { return &StopWorkerRequest{} },
	},
	ResponseType: {
		CmdOk:            func() body { return &OkResponse{} },
		CmdProtocolError: func() body { return &ProtocolErrorResponse{} },
		CmdInternalError: func() body { return &InternalErrorResponse{} },
		CmdPing:          func() body { return &PingResponse{} },
		CmdGet:           func() body { return &GetResponse{} },
		CmdStats:         func() body { return &StatsResponse{} },
		CmdLog:           func() body { return &LogResponse{} },
		CmdUserCommand1:  func() body { return &UserCommand1Response{} },
	},
	NotificationType: {
		CmdNotifySuccess:       func() body { return &TestSuccessfulNotification{} },
		CmdNotifyFail:          func() body { return &TestFailedNotification{} },
		CmdAbnormalDisconnect:  func() body { return &AbnormalDisconnectNotification{} },
		CmdNotifyDrainComplete: func() body { return &DrainCompleteNotification{} },
	},
}

// IsValid reports whether t and c form one of the pairs understood by the codec.
func IsValid(t NoteType, c Command) bool {
	_, ok := registry[t][c]
	return ok
}

// Encode serializes n.
func Encode(n Note) ([]byte, error) {
	h := n.NoteHeader()
	ctor, ok := registry[h.Type][h.Command]
	if !ok {
		return nil, errors.WithStack(&maestroerrors.ErrInvalidArgument{
			Name:    "note",
			Value:   h.String(),
			Message: "not a valid note type and command pair",
		})
	}
	b, ok := n.(body)
	if !ok || reflect.TypeOf(n) != reflect.TypeOf(ctor()) {
		return nil, errors.WithStack(&maestroerrors.ErrInvalidArgument{
			Name:    "note",
			Value:   fmt.Sprintf("%T", n),
			Message: fmt.Sprintf("cannot be encoded as %s", h),
		})
	}

	var buf bytes.Buffer
	w := &writer{enc: msgpack.NewEncoder(&buf)}
	w.int(int64(h.Type))
	w.int(int64(h.Command))
	w.str(h.Correlation.CorrelationID)
	w.str(h.Correlation.MessageID)
	b.encodeBody(w)
	if w.err != nil {
		return nil, errors.Wrapf(w.err, "encoding %s", h)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a note from payload. Any violation of the wire layout, including unknown
// discriminators and trailing bytes, yields an *maestroerrors.ErrMalformedNote and no note.
func Decode(payload []byte) (Note, error) {
	src := bytes.NewReader(payload)
	r := &reader{dec: msgpack.NewDecoder(src)}

	t := NoteType(r.int16("noteType"))
	if r.err != nil {
		return nil, r.err
	}
	commands, ok := registry[t]
	if !ok {
		return nil, malformed("noteType", t, "unknown note type")
	}
	c := Command(r.int64("command"))
	if r.err != nil {
		return nil, r.err
	}
	ctor, ok := commands[c]
	if !ok {
		return nil, malformed("command", c, fmt.Sprintf("unknown command for %s notes", t))
	}

	n := ctor()
	h := n.NoteHeader()
	h.Type = t
	h.Command = c
	h.Correlation.CorrelationID = r.str("correlationId")
	h.Correlation.MessageID = r.str("messageId")
	n.decodeBody(r)
	if r.err != nil {
		return nil, r.err
	}
	if src.Len() > 0 {
		return nil, malformed("payload", src.Len(), fmt.Sprintf("trailing bytes after %s", h))
	}
	return n, nil
}

func malformed(field string, value interface{}, message string) error {
	return errors.WithStack(&maestroerrors.ErrMalformedNote{Field: field, Value: value, Message: message})
}

type writer struct {
	enc *msgpack.Encoder
	err error
}

func (w *writer) int(v int64) {
	if w.err == nil {
		w.err = w.enc.EncodeInt(v)
	}
}

func (w *writer) str(v string) {
	if w.err == nil {
		w.err = w.enc.EncodeString(v)
	}
}

func (w *writer) bytes(v []byte) {
	if v == nil {
		// EncodeBytes writes nil for a nil slice.
		v = []byte{}
	}
	if w.err == nil {
		w.err = w.enc.EncodeBytes(v)
	}
}

func (w *writer) float(v float64) {
	if w.err == nil {
		w.err = w.enc.EncodeFloat64(v)
	}
}

func (w *writer) bool(v bool) {
	if w.err == nil {
		w.err = w.enc.EncodeBool(v)
	}
}

// reader keeps the first error it runs into; later reads are no-ops.
type reader struct {
	dec *msgpack.Decoder
	err error
}

func (r *reader) fail(field string, err error) {
	if r.err == nil {
		r.err = malformed(field, nil, err.Error())
	}
}

func isInt(c byte) bool {
	return msgpcode.IsFixedNum(c) || (c >= msgpcode.Uint8 && c <= msgpcode.Int64)
}

func isFloat(c byte) bool {
	return c == msgpcode.Float || c == msgpcode.Double
}

func isBool(c byte) bool {
	return c == msgpcode.False || c == msgpcode.True
}

// expect checks the family of the next value before it is decoded. The decoder would otherwise turn a nil
// into a zero value.
func (r *reader) expect(field, kind string, family func(byte) bool) bool {
	if r.err != nil {
		return false
	}
	c, err := r.dec.PeekCode()
	if err != nil {
		r.fail(field, err)
		return false
	}
	if !family(c) {
		r.err = malformed(field, fmt.Sprintf("0x%02x", c), "expected "+kind)
		return false
	}
	return true
}

func (r *reader) int(field string, min, max int64) int64 {
	if !r.expect(field, "an integer", isInt) {
		return 0
	}
	v, err := r.dec.DecodeInt64()
	if err != nil {
		r.fail(field, err)
		return 0
	}
	if v < min || v > max {
		r.err = malformed(field, v, "value out of range")
		return 0
	}
	return v
}

func (r *reader) int16(field string) int16 {
	return int16(r.int(field, math.MinInt16, math.MaxInt16))
}

func (r *reader) int32(field string) int32 {
	return int32(r.int(field, math.MinInt32, math.MaxInt32))
}

func (r *reader) int64(field string) int64 {
	return r.int(field, math.MinInt64, math.MaxInt64)
}

func (r *reader) str(field string) string {
	if !r.expect(field, "a string", msgpcode.IsString) {
		return ""
	}
	v, err := r.dec.DecodeString()
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) bytes(field string) []byte {
	if !r.expect(field, "binary data", msgpcode.IsBin) {
		return nil
	}
	v, err := r.dec.DecodeBytes()
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) float(field string) float64 {
	if !r.expect(field, "a float", isFloat) {
		return 0
	}
	v, err := r.dec.DecodeFloat64()
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) bool(field string) bool {
	if !r.expect(field, "a boolean", isBool) {
		return false
	}
	v, err := r.dec.DecodeBool()
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *reader) role(field string) Role {
	name := r.str(field)
	if r.err != nil {
		return RoleOther
	}
	role, err := ParseRole(name)
	if err != nil {
		r.err = malformed(field, name, "unknown role")
	}
	return role
}

// Shared field groups.

func (h *Header) encodeBody(*writer) {}

func (h *Header) decodeBody(*reader) {}

// Origin precedes the fields of every response and notification: id, name, role, host.
func (o *Origin) encodeOrigin(w *writer) {
	w.str(o.ID)
	encodePeer(w, o.Peer)
}

func (o *Origin) decodeOrigin(r *reader) {
	o.ID = r.str("id")
	o.Peer = decodePeer(r, "")
}

func encodePeer(w *writer, p PeerInfo) {
	w.str(p.Name)
	w.str(p.Role.String())
	w.str(p.Host)
}

func decodePeer(r *reader, prefix string) PeerInfo {
	var p PeerInfo
	p.Name = r.str(prefix + "name")
	p.Role = r.role(prefix + "role")
	p.Host = r.str(prefix + "host")
	return p
}

func encodeTest(w *writer, t Test) {
	w.int(int64(t.TestNumber))
	w.int(int64(t.Iteration))
	w.str(t.Name)
	w.str(t.ScriptName)
	w.str(t.Details.Description)
	w.str(t.Details.Comments)
}

func decodeTest(r *reader) Test {
	return Test{
		TestNumber: r.int32("test.number"),
		Iteration:  r.int32("test.iteration"),
		Name:       r.str("test.name"),
		ScriptName: r.str("test.script"),
		Details: TestDetails{
			Description: r.str("test.description"),
			Comments:    r.str("test.comments"),
		},
	}
}

// Requests.

func (n *StartInspectorRequest) encodeBody(w *writer) { w.str(n.Payload) }

func (n *StartInspectorRequest) decodeBody(r *reader) { n.Payload = r.str("payload") }

func (n *StartWorkerRequest) encodeBody(w *writer) { w.str(n.WorkerName) }

func (n *StartWorkerRequest) decodeBody(r *reader) { n.WorkerName = r.str("workerName") }

func (n *SetRequest) encodeBody(w *writer) {
	w.int(int64(n.Option))
	w.str(n.Value)
}

func (n *SetRequest) decodeBody(r *reader) {
	n.Option = SetOption(r.int64("option"))
	if r.err == nil && !n.Option.valid() {
		r.err = malformed("option", n.Option, "unknown set option")
	}
	n.Value = r.str("value")
}

func (n *GetRequest) encodeBody(w *writer) { w.int(int64(n.Option)) }

func (n *GetRequest) decodeBody(r *reader) {
	n.Option = GetOption(r.int64("option"))
	if r.err == nil && n.Option != GetDataServer {
		r.err = malformed("option", n.Option, "unknown get option")
	}
}

func (n *PingRequest) encodeBody(w *writer) {
	w.int(n.Sec)
	w.int(n.USec)
}

func (n *PingRequest) decodeBody(r *reader) {
	n.Sec = r.int64("sec")
	n.USec = r.int64("usec")
}

func (n *AgentSourceRequest) encodeBody(w *writer) {
	w.str(n.SourceURL)
	w.str(n.Branch)
}

func (n *AgentSourceRequest) decodeBody(r *reader) {
	n.SourceURL = r.str("sourceUrl")
	n.Branch = r.str("branch")
}

func (n *LogRequest) encodeBody(w *writer) {
	encodePeer(w, n.Target)
	w.int(int64(n.Location))
	if n.Location == LogAny {
		w.str(n.TypeName)
	}
}

func (n *LogRequest) decodeBody(r *reader) {
	n.Target = decodePeer(r, "target.")
	n.Location = LogLocation(r.int32("locationType"))
	if r.err == nil && !n.Location.valid() {
		r.err = malformed("locationType", n.Location, "unknown log location")
	}
	if n.Location == LogAny {
		n.TypeName = r.str("typeName")
	}
}

func (n *DrainRequest) encodeBody(w *writer) {
	encodePeer(w, n.Target)
	w.str(n.Duration)
	w.str(n.URL)
	w.str(n.ParallelCount)
	w.str(n.WorkerName)
}

func (n *DrainRequest) decodeBody(r *reader) {
	n.Target = decodePeer(r, "target.")
	n.Duration = r.str("duration")
	n.URL = r.str("url")
	n.ParallelCount = r.str("parallelCount")
	n.WorkerName = r.str("workerName")
}

func (n *GroupJoinRequest) encodeBody(w *writer) {
	w.str(n.GroupName)
	w.str(n.MemberName)
}

func (n *GroupJoinRequest) decodeBody(r *reader) {
	n.GroupName = r.str("groupName")
	n.MemberName = r.str("memberName")
}

func (n *RoleAssignRequest) encodeBody(w *writer) {
	encodePeer(w, n.Target)
	w.str(n.Role.String())
}

func (n *RoleAssignRequest) decodeBody(r *reader) {
	n.Target = decodePeer(r, "target.")
	n.Role = r.role("role")
}

func (n *RoleUnassignRequest) encodeBody(w *writer) { encodePeer(w, n.Target) }

func (n *RoleUnassignRequest) decodeBody(r *reader) { n.Target = decodePeer(r, "target.") }

func (n *StartTestRequest) encodeBody(w *writer) {
	encodeTest(w, n.Info.Test)
	w.bool(n.Info.SutDetails != nil)
	if sut := n.Info.SutDetails; sut != nil {
		w.int(int64(sut.ID))
		w.str(sut.Name)
		w.str(sut.Version)
		w.str(sut.JvmVersion)
		w.str(sut.OtherInfo)
		w.str(sut.Tags)
		w.str(sut.LabName)
		w.str(sut.TestTags)
	}
}

func (n *StartTestRequest) decodeBody(r *reader) {
	n.Info.Test = decodeTest(r)
	if r.bool("hasSutDetails") {
		n.Info.SutDetails = &SutDetails{
			ID:         r.int32("sut.id"),
			Name:       r.str("sut.name"),
			Version:    r.str("sut.version"),
			JvmVersion: r.str("sut.jvmVersion"),
			OtherInfo:  r.str("sut.otherInfo"),
			Tags:       r.str("sut.tags"),
			LabName:    r.str("sut.labName"),
			TestTags:   r.str("sut.testTags"),
		}
	}
}

func (n *UserCommand1Request) encodeBody(w *writer) {
	w.int(n.Option)
	w.str(n.Value)
}

func (n *UserCommand1Request) decodeBody(r *reader) {
	n.Option = r.int64("option")
	if r.err == nil && n.Option != ExecuteCommandOption {
		r.err = malformed("option", n.Option, "unknown user command option")
	}
	n.Value = r.str("value")
}

// Responses.

func (n *OkResponse) encodeBody(w *writer) { n.encodeOrigin(w) }

func (n *OkResponse) decodeBody(r *reader) { n.decodeOrigin(r) }

func (n *ProtocolErrorResponse) encodeBody(w *writer) { n.encodeOrigin(w) }

func (n *ProtocolErrorResponse) decodeBody(r *reader) { n.decodeOrigin(r) }

func (n *InternalErrorResponse) encodeBody(w *writer) {
	n.encodeOrigin(w)
	w.str(n.Message)
}

func (n *InternalErrorResponse) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.Message = r.str("message")
}

func (n *PingResponse) encodeBody(w *writer) {
	n.encodeOrigin(w)
	w.int(n.Elapsed)
}

func (n *PingResponse) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.Elapsed = r.int64("elapsed")
}

func (n *GetResponse) encodeBody(w *writer) {
	n.encodeOrigin(w)
	w.int(int64(n.Option))
	w.str(n.Value)
}

func (n *GetResponse) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.Option = GetOption(r.int64("option"))
	if r.err == nil && n.Option != GetDataServer {
		r.err = malformed("option", n.Option, "unknown get option")
	}
	n.Value = r.str("value")
}

func (n *StatsResponse) encodeBody(w *writer) {
	n.encodeOrigin(w)
	w.int(int64(n.ChildCount))
	w.str(n.Role)
	w.str(n.RoleInfo)
	w.int(int64(n.StatsType))
	w.str(n.Timestamp)
	w.int(n.Count)
	w.float(n.Rate)
	w.float(n.Latency)
}

func (n *StatsResponse) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.ChildCount = r.int32("childCount")
	n.Role = r.str("statsRole")
	n.RoleInfo = r.str("roleInfo")
	n.StatsType = StatsType(r.int16("statsType"))
	n.Timestamp = r.str("timestamp")
	n.Count = r.int64("count")
	n.Rate = r.float("rate")
	n.Latency = r.float("latency")
}

func (n *LogResponse) encodeBody(w *writer) {
	n.encodeOrigin(w)
	w.int(int64(n.Location))
	w.str(n.FileName)
	w.int(int64(n.Index))
	w.int(int64(n.Total))
	w.int(n.FileSize)
	w.str(n.FileHash)
	w.bytes(n.Data)
}

func (n *LogResponse) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.Location = LogLocation(r.int32("locationType"))
	if r.err == nil && !n.Location.valid() {
		r.err = malformed("locationType", n.Location, "unknown log location")
	}
	n.FileName = r.str("fileName")
	n.Index = r.int32("index")
	n.Total = r.int32("total")
	n.FileSize = r.int64("fileSize")
	n.FileHash = r.str("fileHash")
	n.Data = r.bytes("data")
	if r.err == nil && (n.Total < 1 || n.Index < 0 || n.Index >= n.Total) {
		r.err = malformed("index", n.Index, fmt.Sprintf("fragment index outside of [0, %d)", n.Total))
	}
}

func (n *UserCommand1Response) encodeBody(w *writer) {
	n.encodeOrigin(w)
	w.str(n.Message)
}

func (n *UserCommand1Response) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.Message = r.str("message")
}

// Notifications.

func (n *TestSuccessfulNotification) encodeBody(w *writer) {
	n.encodeOrigin(w)
	encodeTest(w, n.Test)
	w.str(n.Message)
}

func (n *TestSuccessfulNotification) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.Test = decodeTest(r)
	n.Message = r.str("message")
}

func (n *TestFailedNotification) encodeBody(w *writer) {
	n.encodeOrigin(w)
	encodeTest(w, n.Test)
	w.str(n.Message)
}

func (n *TestFailedNotification) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.Test = decodeTest(r)
	n.Message = r.str("message")
}

func (n *AbnormalDisconnectNotification) encodeBody(w *writer) {
	n.encodeOrigin(w)
	w.str(n.Message)
}

func (n *AbnormalDisconnectNotification) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.Message = r.str("message")
}

func (n *DrainCompleteNotification) encodeBody(w *writer) {
	n.encodeOrigin(w)
	w.bool(n.Successful)
	w.str(n.Message)
}

func (n *DrainCompleteNotification) decodeBody(r *reader) {
	n.decodeOrigin(r)
	n.Successful = r.bool("successful")
	n.Message = r.str("message")
}
