package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const redacted = "[REDACTED]"

// redactionPolicy masks credentials outright and replaces party identifiers with a
// short salted digest, so lines about the same account still correlate.
type redactionPolicy struct {
	redact []string
	hash   []string
	salt   string
}

func defaultPolicy(salt string) *redactionPolicy {
	return &redactionPolicy{
		redact: []string{"password", "secret", "token", "authorization", "api_key", "apikey", "dsn", "email"},
		hash:   []string{"customer_id", "account_id", "person_id"},
		salt:   salt,
	}
}

func (p *redactionPolicy) apply(kv []any) []any {
	out := make([]any, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			out = append(out, kv[i])
			break
		}
		key := stringify(kv[i])
		out = append(out, key, p.value(strings.ToLower(strings.TrimSpace(key)), kv[i+1]))
	}
	return out
}

func (p *redactionPolicy) value(key string, val any) any {
	if key != "" {
		if containsAny(key, p.redact) {
			return redacted
		}
		if containsAny(key, p.hash) {
			return p.digest(val)
		}
	}
	switch v := val.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = p.value(strings.ToLower(strings.TrimSpace(k)), inner)
		}
		return out
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = p.value("", inner)
		}
		return out
	default:
		return val
	}
}

func (p *redactionPolicy) digest(val any) string {
	raw := stringify(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(p.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func containsAny(key string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(key, n) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
