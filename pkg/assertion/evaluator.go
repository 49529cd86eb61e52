// Package assertion compares ExpectedResult matchers against an observed
// HTTP response. Evaluation is pure: no side effects, no I/O.
package assertion

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// Response is the minimal observed-response shape the evaluator needs.
// The HTTP step executor builds one of these from the actual response
// before calling Evaluate.
type Response struct {
	Status  int
	Headers map[string]string // request headers actually sent, for header assertions
	Body    []byte
}

// Evaluate compares expected against resp and returns one AssertionResult
// per configured constraint, in a fixed order: status, status range, body
// substrings, JSON fields, headers.
func Evaluate(expected models.ExpectedResult, resp Response) []models.AssertionResult {
	var results []models.AssertionResult

	if expected.Status != nil {
		results = append(results, evalStatus(*expected.Status, resp.Status))
	}
	if expected.StatusRange != nil {
		results = append(results, evalStatusRange(*expected.StatusRange, resp.Status))
	}
	for _, substr := range expected.BodyContains {
		results = append(results, evalBodyContains(substr, resp.Body))
	}

	var doc any
	var parseErr error
	if len(expected.Fields) > 0 {
		parseErr = json.Unmarshal(resp.Body, &doc)
	}
	for path, matcher := range expected.Fields {
		results = append(results, evalField(path, matcher, doc, parseErr))
	}

	for _, h := range expected.Headers {
		results = append(results, evalHeader(h, resp.Headers))
	}

	return results
}

func evalStatus(expected, actual int) models.AssertionResult {
	passed := expected == actual
	return models.AssertionResult{
		Type:     "status",
		Expected: strconv.Itoa(expected),
		Actual:   strconv.Itoa(actual),
		Passed:   passed,
		Message:  msgIfFailed(passed, fmt.Sprintf("expected status %d, got %d", expected, actual)),
	}
}

func evalStatusRange(r models.StatusRange, actual int) models.AssertionResult {
	passed := actual >= r.Min && actual <= r.Max
	return models.AssertionResult{
		Type:     "statusRange",
		Expected: fmt.Sprintf("[%d,%d]", r.Min, r.Max),
		Actual:   strconv.Itoa(actual),
		Passed:   passed,
		Message:  msgIfFailed(passed, fmt.Sprintf("expected status in [%d,%d], got %d", r.Min, r.Max, actual)),
	}
}

func evalBodyContains(substr string, body []byte) models.AssertionResult {
	passed := strings.Contains(string(body), substr)
	return models.AssertionResult{
		Type:     "bodyContains",
		Expected: substr,
		Passed:   passed,
		Message:  msgIfFailed(passed, fmt.Sprintf("body does not contain %q", substr)),
	}
}

func evalHeader(h models.Header, actualHeaders map[string]string) models.AssertionResult {
	var actual string
	var found bool
	for k, v := range actualHeaders {
		if strings.EqualFold(k, h.Name) {
			actual, found = v, true
			break
		}
	}
	passed := found && actual == h.Value
	return models.AssertionResult{
		Type:     "header",
		Field:    h.Name,
		Expected: h.Value,
		Actual:   actual,
		Passed:   passed,
		Message:  msgIfFailed(passed, fmt.Sprintf("header %q: expected %q, got %q", h.Name, h.Value, actual)),
	}
}

func evalField(path string, matcher models.FieldMatcher, doc any, parseErr error) models.AssertionResult {
	base := models.AssertionResult{
		Type:     string(matcher.Type),
		Field:    path,
		Expected: matcher.String(),
	}

	if parseErr != nil {
		base.Passed = matcher.Type == models.MatcherIsNull
		base.Message = msgIfFailed(base.Passed, "response body is not valid JSON: "+parseErr.Error())
		return base
	}

	value, present := lookup(doc, path)
	base.Actual = stringify(value)
	if !present {
		base.Actual = ""
	}

	switch matcher.Type {
	case models.MatcherExact:
		base.Passed = present && stringify(value) == matcher.Value
	case models.MatcherAnyPresent:
		base.Passed = !isJSONNull(value, present)
	case models.MatcherNotNull:
		base.Passed = !isJSONNull(value, present)
	case models.MatcherIsNull:
		base.Passed = isJSONNull(value, present)
	case models.MatcherRegex:
		base.Passed = present && evalRegex(matcher.Pattern, stringify(value))
	case models.MatcherGreaterThan:
		n, ok := asNumber(value)
		base.Passed = present && ok && n > matcher.Number
	case models.MatcherLessThan:
		n, ok := asNumber(value)
		base.Passed = present && ok && n < matcher.Number
	case models.MatcherOneOf:
		base.Passed = present && containsString(matcher.Values, stringify(value))
	default:
		base.Passed = false
		base.Message = "unknown matcher type: " + string(matcher.Type)
		return base
	}

	if !base.Passed && base.Message == "" {
		base.Message = fmt.Sprintf("field %q failed matcher %s (actual=%q)", path, matcher, base.Actual)
	}
	return base
}

// evalRegex follows the regexp engine's own semantics — no implicit ^...$
// anchoring is applied. A caller wanting an anchored match must write
// ^...$ itself.
func evalRegex(pattern, value string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func msgIfFailed(passed bool, msg string) string {
	if passed {
		return ""
	}
	return msg
}

// AllPassed reports whether every assertion in results passed.
func AllPassed(results []models.AssertionResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
