// Echos is a runtime authorization broker for autonomous agents.
//
// It sits between agents and the side-effecting actions they attempt and
// renders an allow, block, or ask-a-human verdict for every event, based on
// per-agent policy templates with hot reload, scoped authorization tokens,
// deterministic fault injection, and a broadcast timeline for observers.
//
// Usage:
//
//	# Start the daemon with the default configuration
//	echosd run
//
//	# Start with a custom configuration file
//	echosd run --config /etc/echos/config.yaml
//
//	# Validate configuration and policy templates without starting
//	echosd validate
//
//	# Show version information
//	echosd version
package main

func main() {
	Execute()
}
