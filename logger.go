package hashcache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger the engines write to. Adapters for zap,
// logrus and slog live under log/. A nil Options.Logger disables logging.
//
// Engines log at Debug for lazy expiry and forgiving reads, Warn when a
// record is left without its TTL, Info when a Redis engine starts or closes.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// keyFields is the common shape of engine log lines: the storage key plus an
// optional cause.
func keyFields(key string, err error) Fields {
	f := Fields{"key": key}
	if err != nil {
		f["err"] = err.Error()
	}
	return f
}
