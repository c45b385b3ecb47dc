package core

// Logger reports messages and errors.
// args may contain errors, map[string]interface{} of extra fields and the user.User the event is about.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
