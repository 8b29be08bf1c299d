// Package topics builds the pub/sub topic names used by maestro.
//
// Every name lives below a fixed root:
//
//	/mpt/all-daemons          broadcast to every worker
//	/mpt/<role>               every worker with the given role
//	/mpt/<role>/<role>/<host> one worker, addressed by role and host
//	/mpt/maestro              responses for the coordinator
//	/mpt/notifications        test outcome and other notifications
//	/mpt/logs                 log transfer responses
package topics

import (
	"strings"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

const (
	Root          = "/mpt"
	AllDaemons    = Root + "/all-daemons"
	Maestro       = Root + "/maestro"
	Notifications = Root + "/notifications"
	Logs          = Root + "/logs"
)

// scopes are the roles that have a topic of their own.
var scopes = map[notes.Role]string{
	notes.RoleSender:    "sender",
	notes.RoleReceiver:  "receiver",
	notes.RoleInspector: "inspector",
	notes.RoleAgent:     "agent",
	notes.RoleOther:     "worker",
}

// ForRole is the topic shared by every peer with the given role. Roles without a scope of their own, such as
// the reports server, are only reachable through the broadcast topic.
func ForRole(role notes.Role) string {
	if scope, ok := scopes[role]; ok {
		return Root + "/" + scope
	}
	return AllDaemons
}

// ForPeer is the directed topic of a single peer. Peers sharing role and host share the topic, so requests
// sent here also carry the identity of the addressee.
func ForPeer(peer notes.PeerInfo) string {
	scope, ok := scopes[peer.Role]
	if !ok {
		scope = peer.Role.String()
	}
	return Root + "/" + scope + "/" + scope + "/" + sanitize(peer.Host)
}

// Subscriptions lists the topics a worker with the given identity listens on.
func Subscriptions(peer notes.PeerInfo) []string {
	subs := []string{AllDaemons}
	if role := ForRole(peer.Role); role != AllDaemons {
		subs = append(subs, role)
	}
	return append(subs, ForPeer(peer))
}

// CoordinatorSubscriptions lists the topics the coordinator listens on.
func CoordinatorSubscriptions() []string {
	return []string{Maestro, Notifications, Logs}
}

// ReplyTopic is where a worker publishes a note it sends to the coordinator.
func ReplyTopic(n notes.Note) string {
	switch n.(type) {
	case *notes.LogResponse:
		return Logs
	}
	if n.NoteHeader().Type == notes.NotificationType {
		return Notifications
	}
	return Maestro
}

// IsAddressee reports whether a worker with identity self should act on a directed request meant for target.
// An empty name in target matches every worker on the host with that role.
func IsAddressee(self, target notes.PeerInfo) bool {
	if target.Host != self.Host {
		return false
	}
	if target.Role != self.Role && target.Role != notes.RoleOther {
		return false
	}
	return target.Name == "" || target.Name == self.Name
}

// sanitize keeps host names from introducing topic levels or wildcards.
func sanitize(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_", "*", "_", ">", "_").Replace(s)
}
