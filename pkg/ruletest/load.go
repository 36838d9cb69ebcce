package ruletest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSuite reads a YAML test suite from path.
func LoadSuite(path string) ([]Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test suite: %w", err)
	}
	return ParseSuite(data)
}

// ParseSuite decodes a YAML test suite.
func ParseSuite(data []byte) ([]Test, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse test suite: %w", err)
	}
	for i, tc := range suite.Tests {
		if tc.Name == "" {
			return nil, fmt.Errorf("test %d: name is required", i)
		}
		if len(tc.Expect) == 0 && !tc.ExpectNoMatch {
			return nil, fmt.Errorf("test %q: expect or expect_no_match is required", tc.Name)
		}
	}
	return suite.Tests, nil
}
