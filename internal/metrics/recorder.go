package metrics

// Recorder is the port for recording client-side metrics.
// PrometheusRecorder is used when metrics are enabled, NoopRecorder otherwise.
type Recorder interface {
	// RecordCartMutation records one applied cart intent (add, remove, update, clear).
	RecordCartMutation(op string)

	// RecordRefresh records a token refresh attempt by the path that triggered it.
	RecordRefresh(source string, success bool)

	// RecordForcedLogout records a logout the user did not ask for.
	RecordForcedLogout(reason string)

	// RecordLogin records a login attempt by method (password, register, oauth).
	RecordLogin(method string, success bool)
}
