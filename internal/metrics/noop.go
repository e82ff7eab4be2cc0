package metrics

// NoopRecorder does nothing. All methods are safe to call.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) RecordCartMutation(string) {}

func (n *NoopRecorder) RecordRefresh(string, bool) {}

func (n *NoopRecorder) RecordForcedLogout(string) {}

func (n *NoopRecorder) RecordLogin(string, bool) {}

var _ Recorder = (*NoopRecorder)(nil)
