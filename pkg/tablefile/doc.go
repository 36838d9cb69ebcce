// Package tablefile reads and writes decision tables as YAML documents.
//
// # Format
//
//	name: Health Insurance Account Selector
//	slug: health-insurance
//	settings:
//	  require_fallback: true
//	request:
//	  - {name: age, type: number}
//	  - {name: chronic, type: boolean}
//	response:
//	  - {name: recommended_plan, type: string, default: Unknown}
//	values:
//	  max_deductible: 1000
//	rows:
//	  - match: all
//	    when:
//	      age: {between: [18, 35]}
//	      chronic: true
//	      deductible_preference: {between: [500, $max_deductible]}
//	    then:
//	      recommended_plan: HSA
//	  - then:
//	      recommended_plan: Unknown
//	tests:
//	  - name: young chronic
//	    request: {age: 25, chronic: true}
//	    expect: {recommended_plan: HSA}
//
// Conditions under when keep their order. A bare scalar means equals. A
// string operand starting with $ references a Dynamic Value; write $$ for a
// literal leading dollar sign. A row without when is the fallback row.
package tablefile
