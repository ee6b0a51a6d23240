package model

// OpState là một bước trong state machine của Mutation Coordinator:
// Requested → LocalApplied → RemoteAttempted → {RemoteAcked | RemoteFailed}
// → RecalculationTriggered → Done
type OpState string

const (
	StateRequested              OpState = "requested"
	StateLocalApplied           OpState = "local_applied"
	StateRemoteAttempted        OpState = "remote_attempted"
	StateRemoteAcked            OpState = "remote_acked"
	StateRemoteFailed           OpState = "remote_failed"
	StateRecalculationTriggered OpState = "recalculation_triggered"
	StateDone                   OpState = "done"
)

type OpKind string

const (
	OpAdd    OpKind = "add"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// RemoteOutcome là kết quả ghi xuống store
type RemoteOutcome string

const (
	RemoteAcked   RemoteOutcome = "acked"
	RemoteFailed  RemoteOutcome = "failed"
	RemoteSkipped RemoteOutcome = "skipped"
	// RemoteQueued: store còn write cũ hơn cho cùng record trong pending
	// queue, write mới được xếp phía sau thay vì gửi trực tiếp
	RemoteQueued RemoteOutcome = "queued"
)

// MutationResult: RemoteFailed vẫn là thành công ở phía user (PartialFailure)
type MutationResult struct {
	Op        OpKind        `json:"op"`
	ID        string        `json:"id"`
	Book      *Book         `json:"book,omitempty"`
	States    []OpState     `json:"states"`
	Remote    RemoteOutcome `json:"remote"`
	RemoteErr error         `json:"-"`
	Queued    bool          `json:"queued"`
	Recalc    []string      `json:"recalculate,omitempty"`
}

func (r *MutationResult) Transition(s OpState) {
	r.States = append(r.States, s)
}

// Partial: local đã ghi, remote thất bại
func (r *MutationResult) Partial() bool {
	return r.Remote == RemoteFailed
}

func (r *MutationResult) Final() OpState {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}
