// Package env provides types to interact with the environment setup.
package env

import "os"

// Server specific.
const (
	// Listen is the address the protocol server accepts clients on.
	Listen = "MARIONETTE_LISTEN"

	// ListenerListen is the address serving the remote listener websocket
	// hub and the metrics endpoint.
	ListenerListen = "MARIONETTE_LISTENER_LISTEN"

	// Framing selects how packets are delimited on the wire, either length
	// (len:json) or newline.
	Framing = "MARIONETTE_FRAMING"

	// MaxConnections limits the number of concurrently connected clients.
	// Zero means no limit.
	MaxConnections = "MARIONETTE_MAX_CONNECTIONS"
)

// Application specific.
const (
	// AppName is the name of the application reported to clients, Firefox
	// or B2G.
	AppName = "MARIONETTE_APP_NAME"

	// Device is the device type reported in the session capabilities.
	Device = "MARIONETTE_DEVICE"

	// ScriptTimeout is the default script timeout of new sessions in
	// milliseconds.
	ScriptTimeout = "MARIONETTE_SCRIPT_TIMEOUT_MS"

	// NewSessionTimeout bounds how long newSession waits for the content
	// listener to register, in milliseconds.
	NewSessionTimeout = "MARIONETTE_NEW_SESSION_TIMEOUT_MS"

	// TempDir is where imported scripts are persisted.
	TempDir = "MARIONETTE_TEMP_DIR"
)

// Logging and tracing.
const (
	// LogLevel is the logrus level of the process logger.
	LogLevel = "MARIONETTE_LOG_LEVEL"

	// LogCategoryFilter is a regexp limiting debug output to the matching
	// log categories.
	LogCategoryFilter = "MARIONETTE_LOG_CATEGORY_FILTER"

	// LogNoColor disables colored console output.
	LogNoColor = "MARIONETTE_LOG_NO_COLOR"

	// TraceStdout prints command spans to stderr.
	TraceStdout = "MARIONETTE_TRACE_STDOUT"

	// TraceEndpoint is the OTLP over HTTP endpoint spans are exported to.
	TraceEndpoint = "MARIONETTE_TRACE_ENDPOINT"

	// TraceInsecure disables TLS towards TraceEndpoint.
	TraceInsecure = "MARIONETTE_TRACE_INSECURE"
)

// LookupFunc defines a function to look up a key from the environment.
type LookupFunc func(key string) (string, bool)

// EmptyLookup is a LookupFunc that always returns "" and false.
func EmptyLookup(_ string) (string, bool) { return "", false }

// Lookup is a LookupFunc that uses os.LookupEnv.
func Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// ConstLookup is a LookupFunc that always returns the given value and true
// if the key matches the given key. Otherwise it returns "" and false.
func ConstLookup(k, v string) LookupFunc {
	return func(key string) (string, bool) {
		if key == k {
			return v, true
		}
		return "", false
	}
}

// MapLookup is a LookupFunc backed by m.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}
