// Verdict is a decision table rule engine.
//
// Rules are decision tables: ordered condition rows over typed request
// fields, solved first-match-wins into a typed response. Verdict solves
// tables from the command line, runs their test fixtures, versions
// published tables and serves them over HTTP.
//
// Usage:
//
//	# Solve one request against a table file
//	verdict solve --table tables/health.yaml --request '{"age": 30, "income": 42000}'
//
//	# Solve a JSON Lines file of requests in parallel
//	verdict bulk --table tables/health.yaml --requests requests.jsonl
//
//	# Run a table's test fixtures
//	verdict test --table tables/health.yaml --format junit
//
//	# Validate every table in a directory
//	verdict lint --dir tables/
//
//	# Manage Dynamic Values
//	verdict values set income_cap 50000
//
//	# Query the decision log
//	verdict logs query --slug health-plans --limit 100
//
//	# Serve the workspace over HTTP
//	verdict serve --config verdict.yaml
package main

func main() {
	Execute()
}
