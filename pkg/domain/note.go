package domain

import (
	"encoding/json"
	"fmt"
)

// RestartSeverity totally orders the restart-on conditions a dependency
// group subscribes to: None < Error < Restart < Refresh < Any.
type RestartSeverity int

const (
	SeverityNone RestartSeverity = iota
	SeverityError
	SeverityRestart
	SeverityRefresh
	SeverityAny
)

func (s RestartSeverity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityError:
		return "error"
	case SeverityRestart:
		return "restart"
	case SeverityRefresh:
		return "refresh"
	case SeverityAny:
		return "any"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// NoteKind identifies which of the three note shapes a Note carries.
type NoteKind string

const (
	NoteKindStateChange      NoteKind = "state_change"
	NoteKindAdminReq         NoteKind = "admin_req"
	NoteKindRestarterRequest NoteKind = "restarter_req"
)

// StateChangeSubType is the sub-type carried by a StateChange note.
type StateChangeSubType string

const (
	StateChangeOnline   StateChangeSubType = "online"
	StateChangeOffline  StateChangeSubType = "offline"
	StateChangeDisabled StateChangeSubType = "disabled"
)

// AdminReqSubType is the sub-type carried by an AdminReq note.
type AdminReqSubType string

const (
	AdminReqEnable  AdminReqSubType = "enable"
	AdminReqDisable AdminReqSubType = "disable"
	AdminReqRestart AdminReqSubType = "restart"
)

// RestarterRequestSubType is the sub-type carried by a RestarterRequest note.
type RestarterRequestSubType string

const (
	RestarterRequestStart RestarterRequestSubType = "start"
	RestarterRequestStop  RestarterRequestSubType = "stop"
)

// Note is a single typed message carried on the Note Bus. It is a
// tagged variant rather than three distinct Go types: exactly one of
// the Sub fields is meaningful, selected by Kind.
type Note struct {
	Kind   NoteKind
	Path   ServicePath
	Sub    string
	Reason RestartSeverity
}

// NewStateChange builds a StateChange note.
func NewStateChange(path ServicePath, sub StateChangeSubType, reason RestartSeverity) Note {
	return Note{Kind: NoteKindStateChange, Path: path, Sub: string(sub), Reason: reason}
}

// NewAdminReq builds an AdminReq note.
func NewAdminReq(path ServicePath, sub AdminReqSubType, reason RestartSeverity) Note {
	return Note{Kind: NoteKindAdminReq, Path: path, Sub: string(sub), Reason: reason}
}

// NewRestarterRequest builds a RestarterRequest note.
func NewRestarterRequest(path ServicePath, sub RestarterRequestSubType, reason RestartSeverity) Note {
	return Note{Kind: NoteKindRestarterRequest, Path: path, Sub: string(sub), Reason: reason}
}

// StateChangeSub returns the note's sub-type as a StateChangeSubType. Only
// meaningful when Kind == NoteKindStateChange.
func (n Note) StateChangeSub() StateChangeSubType { return StateChangeSubType(n.Sub) }

// AdminReqSub returns the note's sub-type as an AdminReqSubType. Only
// meaningful when Kind == NoteKindAdminReq.
func (n Note) AdminReqSub() AdminReqSubType { return AdminReqSubType(n.Sub) }

// RestarterRequestSub returns the note's sub-type as a
// RestarterRequestSubType. Only meaningful when
// Kind == NoteKindRestarterRequest.
func (n Note) RestarterRequestSub() RestarterRequestSubType { return RestarterRequestSubType(n.Sub) }

// wireNote is the exact wire envelope: {"kind","sub","path":{"svc","inst"},"reason"}.
type wireNote struct {
	Kind   NoteKind `json:"kind"`
	Sub    string   `json:"sub"`
	Path   wirePath `json:"path"`
	Reason int      `json:"reason"`
}

type wirePath struct {
	Svc  string  `json:"svc"`
	Inst *string `json:"inst"`
}

// MarshalJSON produces the bit-exact Note envelope.
func (n Note) MarshalJSON() ([]byte, error) {
	w := wireNote{
		Kind:   n.Kind,
		Sub:    n.Sub,
		Reason: int(n.Reason),
		Path:   wirePath{Svc: n.Path.Service},
	}
	if n.Path.HasInstance() {
		inst := n.Path.Instance
		w.Path.Inst = &inst
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the bit-exact Note envelope.
func (n *Note) UnmarshalJSON(data []byte) error {
	var w wireNote
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	path := ServicePath{Service: w.Path.Svc}
	if w.Path.Inst != nil {
		path.Instance = *w.Path.Inst
	}
	n.Kind = w.Kind
	n.Sub = w.Sub
	n.Path = path
	n.Reason = RestartSeverity(w.Reason)
	return nil
}
