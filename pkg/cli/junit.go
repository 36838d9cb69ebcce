package cli

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"mercator-hq/verdict/pkg/ruletest"
)

type junitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

func writeJUnit(w io.Writer, suite string, report *ruletest.Report) error {
	out := junitSuite{
		Name:     suite,
		Tests:    len(report.Results),
		Failures: report.Failed,
		Time:     seconds(report.Duration.Seconds()),
		Cases:    make([]junitCase, 0, len(report.Results)),
	}

	for _, res := range report.Results {
		tc := junitCase{
			Name:      res.Test.Name,
			ClassName: suite,
			Time:      seconds(res.Duration.Seconds()),
		}
		if !res.Passed {
			tc.Failure = failureOf(res)
		}
		out.Cases = append(out.Cases, tc)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func failureOf(res ruletest.Result) *junitFailure {
	kind := "mismatch"
	if res.Test.Critical {
		kind = "critical"
	}
	if res.Error != "" {
		return &junitFailure{Message: res.Error, Type: kind, Body: res.Error}
	}

	var body strings.Builder
	for _, m := range res.Mismatches {
		fmt.Fprintf(&body, "%s: expected %v, got %v\n", m.Field, m.Expected, m.Actual)
	}
	return &junitFailure{
		Message: fmt.Sprintf("%d field(s) differ", len(res.Mismatches)),
		Type:    kind,
		Body:    body.String(),
	}
}

func seconds(s float64) string {
	return fmt.Sprintf("%.6f", s)
}
