package chatrelay

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single conversation message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions is the caller-supplied completion request.
type ChatOptions struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

// Identity describes the authenticated caller. It is resolved out-of-band
// by upstream auth middleware and attached to the request before the relay
// sees it.
type Identity struct {
	ID       string
	Username string
	Groups   []string
}

// QuotaTarget is the entity token consumption is billed against: a user,
// or a (user, course) pair when CourseID is set.
type QuotaTarget struct {
	UserID   string
	CourseID string
}

// Key returns a stable string form of the target, usable as a map or
// storage key.
func (t QuotaTarget) Key() string {
	if t.CourseID == "" {
		return t.UserID
	}
	return t.UserID + "/" + t.CourseID
}

// Quota is a point-in-time view of a target's consumption counters.
// A nil UsageLimit means unlimited.
type Quota struct {
	UsageCount int64
	UsageLimit *int64
}

// Exceeded reports whether the target has reached its usage limit.
func (q Quota) Exceeded() bool {
	return q.UsageLimit != nil && q.UsageCount >= *q.UsageLimit
}

// Event is a single upstream stream event. One event may carry zero or
// more choice fragments.
type Event struct {
	Choices []EventChoice `json:"choices"`
}

// EventChoice is one choice within an upstream event.
type EventChoice struct {
	Delta Delta `json:"delta"`
}

// Delta is the incremental content of a streaming choice.
type Delta struct {
	Content string `json:"content,omitempty"`
}

// Status is the terminal state of a stream session.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusUpstreamError
	StatusClientAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusUpstreamError:
		return "upstream-error"
	case StatusClientAborted:
		return "client-aborted"
	default:
		return "unknown"
	}
}

// Int64Ptr returns a pointer to the given int64.
func Int64Ptr(v int64) *int64 { return &v }
