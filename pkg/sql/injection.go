package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionMatch describes a caller-supplied value that libinjection
// classified as an SQL fragment.
type InjectionMatch struct {
	Name        string
	Fingerprint string
}

// DetectInjection checks a value that is about to be used as a lookup key.
// It returns nil for clean values.
func DetectInjection(name, value string) *InjectionMatch {
	if value == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionMatch{Name: name, Fingerprint: string(fingerprint)}
}
