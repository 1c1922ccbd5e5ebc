package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (E100-E199)
	// ============================================

	"E101": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Detail:     "The configuration file passed with --config does not exist.",
		Suggestion: "Run 'wsbroadcast config --init' to write a default wsbroadcast.yaml",
	},
	"E102": {
		Category:   CategoryConfig,
		Message:    "Invalid config file",
		Detail:     "The configuration file could not be parsed as YAML.",
		Suggestion: "Check wsbroadcast.yaml for indentation and type errors",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "Broadcast ports must be between 1 and 65535 and listed once.",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Invalid server limits",
		Detail:   "Payload, backpressure and queue limits must be positive.",
	},
	"E105": {
		Category: CategoryConfig,
		Message:  "Invalid log settings",
		Detail:   "log.level must be debug, info, warn or error; log.format must be text or json.",
	},
	"E106": {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "A WSBROADCAST_ environment variable could not be parsed.",
	},
	"E107": {
		Category:   CategoryConfig,
		Message:    "Invalid Redis input",
		Detail:     "The Redis input needs a redis:// URL and at least one channel.",
		Suggestion: "Set redis.channels or remove redis.url",
	},

	// ============================================
	// Server and Pool Errors (E200-E299)
	// ============================================

	"E201": {
		Category:   CategoryServer,
		Message:    "Port bind failed",
		Detail:     "The broadcast server could not listen on its port. Another process may already be bound to it.",
		Suggestion: "Stop the other process or choose a different port",
	},
	"E202": {
		Category: CategoryServer,
		Message:  "Event loop failed",
		Detail:   "A broadcast server's event loop ended with an error. The server is not restarted.",
	},
	"E203": {
		Category: CategoryPool,
		Message:  "Pool closed",
		Detail:   "The server pool has been shut down and no longer creates servers.",
	},
	"E204": {
		Category: CategoryPool,
		Message:  "Invalid pool port",
		Detail:   "The pool only manages ports between 1 and 65535.",
	},
	"E205": {
		Category: CategoryServer,
		Message:  "Admin server failed",
		Detail:   "The admin HTTP server serving /metrics and /healthz stopped unexpectedly.",
	},
	"E206": {
		Category:   CategoryRuntime,
		Message:    "Redis source failed",
		Detail:     "The Redis pub/sub input could not connect or its subscription ended with an error.",
		Suggestion: "Check redis.url and that the Redis server is reachable",
	},

	// ============================================
	// CLI Errors (E300-E399)
	// ============================================

	"E301": {
		Category: CategoryCLI,
		Message:  "Invalid argument",
	},
	"E302": {
		Category:   CategoryCLI,
		Message:    "Connection failed",
		Detail:     "Could not open a WebSocket connection to the broadcast server.",
		Suggestion: "Check that 'wsbroadcast serve' is running and listening on the port",
	},
	"E303": {
		Category: CategoryCLI,
		Message:  "Input read failed",
		Detail:   "Reading messages from standard input failed.",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
