// headers/redact/redact.go
package redact

import "strings"

// sensitiveKeys lists header and log field names whose values carry credentials.
// Matching is case-insensitive.
var sensitiveKeys = map[string]bool{
	"accesstoken":   true,
	"access_token":  true,
	"refreshtoken":  true,
	"refresh_token": true,
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// IsSensitiveKey reports whether values stored under key must be hidden from logs.
func IsSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// RedactSensitiveHeaderData redacts sensitive data based on the hideSensitiveData flag.
func RedactSensitiveHeaderData(hideSensitiveData bool, key, value string) string {
	if hideSensitiveData && IsSensitiveKey(key) {
		return "REDACTED"
	}
	return value
}
