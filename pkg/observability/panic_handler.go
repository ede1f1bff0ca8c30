package observability

import "runtime/debug"

// RecoverPanic turns a panic in the surrounding function into an error-level
// log entry and lets the function return normally. Meant for deferred use in
// background jobs, where an escaped panic would take down the daemon:
//
//	defer observability.RecoverPanic(logger, "session sweep")
//
// The entry carries the panic value, the job name and the stack trace. HTTP
// handlers are covered by the recovery middleware instead.
func RecoverPanic(logger *Logger, job string) {
	v := recover()
	if v == nil {
		return
	}
	logger.WithFields(map[string]any{
		"panic": v,
		"job":   job,
		"stack": string(debug.Stack()),
	}).Error("panic recovered")
}
