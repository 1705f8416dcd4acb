package domain

// NoticeKind classifies what the coordinator reports to its local user.
type NoticeKind string

const (
	NoticeStateChanged    NoticeKind = "state-changed"
	NoticeFormChanged     NoticeKind = "form-changed"
	NoticeIncomingCall    NoticeKind = "incoming-call"
	NoticeCallDeclined    NoticeKind = "call-declined"
	NoticeReviewCompleted NoticeKind = "review-completed"
	NoticeRemoteScreen    NoticeKind = "remote-screen"
	NoticeRemoteSummary   NoticeKind = "remote-summary"
	NoticeError           NoticeKind = "error"
)

// Notice is a local-only notification. Only the fields relevant to Kind are set.
type Notice struct {
	Kind    NoticeKind
	State   CallState
	Form    FormRecord
	Screen  bool
	Summary CallSummary
	Err     error
}
