// Package notes contains the messages exchanged between the maestro coordinator and its workers,
// together with the binary codec used to put them on the wire.
//
// Every message is a Note. A Note pairs one NoteType with one Command; the set of valid pairs is closed
// and is enforced by the codec in both directions.
package notes

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/maestro-performance/maestro-go/internal/common/util"
)

// Note is implemented by every concrete request, response and notification in this package.
type Note interface {
	// NoteHeader returns the discriminators and correlation shared by all notes.
	NoteHeader() *Header
	// HasNext is true while a multipart note still has parts to be sent after the current one.
	HasNext() bool
	// Next advances a multipart note to its next part.
	Next()
	sealed()
}

// MessageCorrelation links a response to the request that caused it.
type MessageCorrelation struct {
	CorrelationID string
	MessageID     string
}

// NewCorrelation returns a random correlation for a new outstanding request.
func NewCorrelation() MessageCorrelation {
	return MessageCorrelation{
		CorrelationID: uuid.NewString(),
		MessageID:     util.NewULID(),
	}
}

func (c MessageCorrelation) IsZero() bool {
	return c.CorrelationID == "" && c.MessageID == ""
}

// Header is embedded in every note.
type Header struct {
	Type        NoteType
	Command     Command
	Correlation MessageCorrelation
}

func newHeader(t NoteType, c Command) Header {
	return Header{Type: t, Command: c, Correlation: NewCorrelation()}
}

func (h *Header) NoteHeader() *Header { return h }

func (h *Header) HasNext() bool { return false }

func (h *Header) Next() {}

func (h *Header) sealed() {}

func (h *Header) String() string {
	return fmt.Sprintf("%s/%s[%s]", h.Type, h.Command, h.Correlation.CorrelationID)
}

// Correlate copies the correlation of request into response.
func Correlate(response Note, request Note) {
	response.NoteHeader().Correlation = request.NoteHeader().Correlation
}

// CorrelatesTo reports whether response was correlated with request.
func CorrelatesTo(response Note, request Note) bool {
	c := response.NoteHeader().Correlation
	return !c.IsZero() && c == request.NoteHeader().Correlation
}

// PeerInfo identifies a remote peer.
type PeerInfo struct {
	Role Role
	Name string
	Host string
}

// Key is the identity used to aggregate results per peer.
func (p PeerInfo) Key() string {
	return p.Name + "@" + p.Host
}

func (p PeerInfo) String() string {
	return fmt.Sprintf("%s (%s)", p.Key(), p.Role)
}

// Origin is the identity block carried by every response and notification.
type Origin struct {
	ID   string
	Peer PeerInfo
}

// Originator is implemented by the notes that carry the identity of the peer that sent them.
type Originator interface {
	Note
	OriginInfo() Origin
}

func (o *Origin) OriginInfo() Origin { return *o }

// TestDetails is free form text describing a test.
type TestDetails struct {
	Description string
	Comments    string
}

// Test identifies one execution of a test. TestNumber may hold one of the Next or Last sentinels until the
// report collaborator resolves it.
type Test struct {
	TestNumber int32
	Iteration  int32
	Name       string
	ScriptName string
	Details    TestDetails
}

const (
	// NextTestNumber asks the report collaborator to allocate a new test number.
	NextTestNumber int32 = -1
	// LastTestNumber reuses the most recent test number.
	LastTestNumber int32 = -2
)

// SutDetails describes the system under test.
type SutDetails struct {
	ID         int32
	Name       string
	Version    string
	JvmVersion string
	OtherInfo  string
	Tags       string
	LabName    string
	TestTags   string
}

// UnspecifiedSutID marks SutDetails that were not registered upfront.
const UnspecifiedSutID int32 = -1

// TestExecutionInfo is sent to every peer when a test starts.
type TestExecutionInfo struct {
	Test       Test
	SutDetails *SutDetails
}
