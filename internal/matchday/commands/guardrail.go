package commands

import "regexp"

// namedSecretPatterns matches well-known credential formats that should never
// appear in a team chat regardless of context. Each pattern is intentionally
// specific (vendor prefix + sufficient length) to keep the false-positive
// rate low.
var namedSecretPatterns = []*regexp.Regexp{
	// OpenAI API key — classic and project variants
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\bsk-proj-[A-Za-z0-9_\-]{20,}\b`),
	// Anthropic
	regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_\-]{20,}\b`),
	// AWS access key ID
	regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`),
	// GitHub tokens (personal, OAuth, fine-grained)
	regexp.MustCompile(`\bghp_[A-Za-z0-9]{36,}\b`),
	regexp.MustCompile(`\bgho_[A-Za-z0-9]{36,}\b`),
	regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}\b`),
	// Matrix access tokens
	regexp.MustCompile(`\bsyt_[A-Za-z0-9_\-]{20,}\b`),
}

// genericSecretPatterns catches high-entropy strings that are unlikely to
// appear in normal team chatter. Only checked for non-command messages to
// avoid false positives from legitimate command arguments.
var genericSecretPatterns = []*regexp.Regexp{
	// Long base64 segment. 48+ chars avoids SHA-1 hex false positives while
	// still catching real API tokens.
	regexp.MustCompile(`[A-Za-z0-9+/]{48,}={0,2}`),
	// Long lowercase hex (SHA-256 and longer tokens).
	regexp.MustCompile(`[0-9a-f]{48,}`),
}

// LooksLikeSecret reports whether body appears to contain a credential that
// has no business being in a team chat message. When isCommand is true only
// the named vendor patterns are checked so command arguments are not falsely
// rejected.
func LooksLikeSecret(body string, isCommand bool) bool {
	for _, re := range namedSecretPatterns {
		if re.MatchString(body) {
			return true
		}
	}
	if !isCommand {
		for _, re := range genericSecretPatterns {
			if re.MatchString(body) {
				return true
			}
		}
	}
	return false
}

// SecretGuardrailMessage is the reply sent when a message is rejected by the
// secret-in-chat guardrail.
const SecretGuardrailMessage = "⛔ That looks like a credential. " +
	"I won't process secrets from chat — they would be visible in room history to the whole team."
