// Package ruletest runs rule tests against a decision table.
//
// A Test pairs a request with the response fields it is expected to produce.
// Critical tests gate publishing: a workspace refuses to publish a rule while
// any critical test fails. Suites are plain YAML files:
//
//	tests:
//	  - name: young chronic monthly
//	    critical: true
//	    request:
//	      age: 25
//	      chronic: true
//	    expect:
//	      recommended_plan: HSA
//
// Only the fields listed under expect are compared; other response fields
// are ignored.
package ruletest
