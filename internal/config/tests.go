package config

var standardTests = []TestDefinition{
	{Name: "json", Endpoint: "/json", Script: "json.lua", Description: "JSON serialization"},
	{Name: "plaintext", Endpoint: "/plaintext", Script: "plaintext.lua", Description: "Plaintext response"},
	{Name: "db", Endpoint: "/db", Script: "db.lua", Description: "Single database query"},
	{Name: "queries", Endpoint: "/queries", Script: "queries.lua", Description: "Multiple database queries"},
	{Name: "complex_routing", Endpoint: "/complex-routing/1/test/param1/param2", Script: "routing.lua", Description: "Parameterized routing"},
	{Name: "template_simple", Endpoint: "/template-simple", Script: "template_simple.lua", Description: "Simple template rendering"},
	{Name: "template_complex", Endpoint: "/template-complex", Script: "template_complex.lua", Description: "Complex template rendering"},
	{Name: "session_write", Endpoint: "/session-write", Script: "session_write.lua", Description: "Session write"},
	{Name: "session_read", Endpoint: "/session-read", Script: "session_read.lua", Description: "Session read"},
}

var profileTests = []TestDefinition{
	{Name: "json", Endpoint: "/json", Script: "json.lua", Description: "JSON serialization"},
	{Name: "plaintext", Endpoint: "/plaintext", Script: "plaintext.lua", Description: "Plaintext response"},
	{Name: "db", Endpoint: "/db", Script: "db.lua", Description: "Single database query"},
	{Name: "complex_routing", Endpoint: "/complex-routing/1/test/param1/param2", Script: "routing.lua", Description: "Parameterized routing"},
	{Name: "middleware", Endpoint: "/middleware", Script: "middleware.lua", Description: "Middleware chain"},
	{Name: "serialization", Endpoint: "/serialization", Script: "serialization.lua", Description: "Object serialization"},
	{Name: "cpu_intensive", Endpoint: "/cpu-intensive", Script: "cpu_intensive.lua", Description: "CPU bound handler"},
}

var energyTests = []TestDefinition{
	{Name: "json", Endpoint: "/json", Script: "json.lua", Description: "JSON serialization"},
	{Name: "plaintext", Endpoint: "/plaintext", Script: "plaintext.lua", Description: "Plaintext response"},
	{Name: "db", Endpoint: "/db", Script: "db.lua", Description: "Single database query"},
	{Name: "cpu_intensive", Endpoint: "/cpu-intensive", Script: "cpu_intensive.lua", Description: "CPU bound handler"},
}

// DefaultTests is the built-in test set for a mode, used when the config
// does not list its own.
func DefaultTests(mode Mode) []TestDefinition {
	var src []TestDefinition
	switch mode {
	case ModeEnergy:
		src = energyTests
	case ModeProfile:
		src = profileTests
	case ModeQuick:
		// Quick mode only ever runs the first test.
		src = profileTests[:1]
	default:
		src = standardTests
	}
	out := make([]TestDefinition, len(src))
	copy(out, src)
	return out
}
