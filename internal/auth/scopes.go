package auth

// Known OAuth scopes used by the performance service.
const (
	ScopePerformanceRead  = "perf:read"
	ScopePerformanceWrite = "perf:write"
)
