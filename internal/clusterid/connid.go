package clusterid

import (
	"fmt"
	"strings"
)

// ConnId identifies an in-flight session for RPCs that continue an
// existing call (remote_ice, close, restart_ice, set_answer, delete). Its
// wire form is "<node_id>-<session_tag>"; everything but the node id is
// opaque to the gateway.
type ConnId struct {
	NodeId     string
	SessionTag string
}

// String renders the canonical wire form of a ConnId.
func (c ConnId) String() string {
	return c.NodeId + "-" + c.SessionTag
}

// ParseConnId parses the wire form of a ClusterConnId. The node id is
// taken up to the first hyphen; everything after it is the session tag,
// which may itself contain hyphens.
func ParseConnId(s string) (ConnId, error) {
	i := strings.IndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		return ConnId{}, fmt.Errorf("clusterid: malformed conn id %q", s)
	}
	return ConnId{NodeId: s[:i], SessionTag: s[i+1:]}, nil
}
