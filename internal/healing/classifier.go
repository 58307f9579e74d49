package healing

import "regexp"

type classifyRule struct {
	errorType ErrorType
	pattern   *regexp.Regexp
}

// classifyRules is checked in order; the first match wins. Anything
// unmatched is ErrorUnknown. Patterns are case-insensitive and search
// the whole failure text, so a shell command's combined output can
// carry the matching phrase anywhere.
var classifyRules = []classifyRule{
	{ErrorTransientNetwork, regexp.MustCompile(`(?i)(connection (refused|reset|closed)|no such host|dns|network is unreachable|timeout|timed out|deadline exceeded|temporarily unavailable|temporary failure|broken pipe|unexpected eof|tls handshake)`)},
	{ErrorRateLimit, regexp.MustCompile(`(?i)(\b429\b|too many requests|rate limit)`)},
	{ErrorBuildFailure, regexp.MustCompile(`(?i)(build (failed|error)|compilation (failed|error)|compile error|syntax error|npm err!|cannot find (module|package)|undefined reference)`)},
	{ErrorAuthFailure, regexp.MustCompile(`(?i)(\b401\b|\b403\b|unauthorized|forbidden|invalid (credentials|token|api key)|permission denied|access denied|authentication failed)`)},
	{ErrorResourceExhausted, regexp.MustCompile(`(?i)(out of memory|oom.?kill|no space left|disk (full|quota)|quota exceeded|resource exhausted|too many open files|memory limit)`)},
}

// Classify maps a failure to its ErrorType from the error's text.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorUnknown
	}
	return ClassifyText(err.Error())
}

// ClassifyText maps raw failure text to an ErrorType.
func ClassifyText(text string) ErrorType {
	for _, rule := range classifyRules {
		if rule.pattern.MatchString(text) {
			return rule.errorType
		}
	}
	return ErrorUnknown
}
