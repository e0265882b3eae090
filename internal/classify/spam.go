package classify

import (
	"regexp"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultSpamThreshold is the threshold reported when no spam source is
// present.
const defaultSpamThreshold = 5.0

// Spam status values.
const (
	SpamStatusYes     = "yes"
	SpamStatusNo      = "no"
	SpamStatusUnknown = "unknown"
)

// SpamResult is the normalized spam signal extracted from a message.
type SpamResult struct {
	Status       string
	Score        float64
	Threshold    float64
	Report       string
	StatusHeader string
}

// scanVerdict is the pre-computed spam-engine verdict shape embedded in
// connection or transaction notes by the acceptance stage.
type scanVerdict struct {
	Score     float64  `json:"score"`
	Threshold float64  `json:"threshold"`
	IsSpam    bool     `json:"is_spam"`
	Rules     []string `json:"rules"`
}

// spamStatusRe matches the conventional X-Spam-Status header:
// "Yes, score=7.2 required=5.0 tests=..."
var spamStatusRe = regexp.MustCompile(`(?i)^(yes|no)\b.*?score=(-?[0-9.]+).*?required=([0-9.]+)`)

// ExtractSpam derives the spam signal for a message. Sources are tried
// in priority order: transaction-scoped verdict, connection-scoped
// verdict, then header-based inference. With no source present the
// result is status unknown, score 0, threshold 5.
func ExtractSpam(connNotes, txnNotes string, headers map[string]string) SpamResult {
	if res, ok := verdictFromNotes(txnNotes); ok {
		return res
	}
	if res, ok := verdictFromNotes(connNotes); ok {
		return res
	}
	if res, ok := verdictFromHeaders(headers); ok {
		return res
	}
	return SpamResult{
		Status:    SpamStatusUnknown,
		Score:     0.0,
		Threshold: defaultSpamThreshold,
	}
}

// verdictFromNotes parses a scan verdict embedded as JSON in free-text
// notes. Notes that are not a verdict are simply skipped.
func verdictFromNotes(notes string) (SpamResult, bool) {
	notes = strings.TrimSpace(notes)
	if notes == "" || !strings.HasPrefix(notes, "{") {
		return SpamResult{}, false
	}

	var v scanVerdict
	if err := json.Unmarshal([]byte(notes), &v); err != nil {
		return SpamResult{}, false
	}
	if v.Threshold == 0 {
		v.Threshold = defaultSpamThreshold
	}

	status := SpamStatusNo
	if v.IsSpam {
		status = SpamStatusYes
	}
	return SpamResult{
		Status:    status,
		Score:     v.Score,
		Threshold: v.Threshold,
		Report:    strings.Join(v.Rules, ", "),
	}, true
}

// verdictFromHeaders infers the verdict from X-Spam-Status, optionally
// overridden by a separate numeric X-Spam-Score header.
func verdictFromHeaders(headers map[string]string) (SpamResult, bool) {
	statusLine := headerValue(headers, "X-Spam-Status")
	if statusLine == "" {
		return SpamResult{}, false
	}

	m := spamStatusRe.FindStringSubmatch(strings.TrimSpace(statusLine))
	if m == nil {
		return SpamResult{}, false
	}

	res := SpamResult{
		Status:       strings.ToLower(m[1]),
		Threshold:    defaultSpamThreshold,
		Report:       headerValue(headers, "X-Spam-Report"),
		StatusHeader: statusLine,
	}
	if score, err := strconv.ParseFloat(m[2], 64); err == nil {
		res.Score = score
	}
	if required, err := strconv.ParseFloat(m[3], 64); err == nil {
		res.Threshold = required
	}

	if override := headerValue(headers, "X-Spam-Score"); override != "" {
		if score, err := strconv.ParseFloat(strings.TrimSpace(override), 64); err == nil {
			res.Score = score
		}
	}

	return res, true
}

// headerValue looks up a header by name, case-insensitively. Decoded
// header maps preserve key case as received.
func headerValue(headers map[string]string, name string) string {
	if headers == nil {
		return ""
	}
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
