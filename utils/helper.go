package utils

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// Default region for recipient numbers without an international prefix.
var CountryCode = "BR"

// NormalizePhoneNumber returns the E.164 form ("+5511999990000") so the same
// recipient always maps to one conversation history thread. Numbers arrive
// both as national digits and as international digits without the "+"
// ("5511999990000"); when the national parse is invalid, retry the number as
// an international one before rejecting it.
func NormalizePhoneNumber(phoneNumber, countryCode string) (string, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)

	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err == nil && libphonenumber.IsValidNumber(p) {
		return libphonenumber.Format(p, libphonenumber.E164), nil
	}

	if !strings.HasPrefix(phoneNumber, "+") {
		if p, retryErr := libphonenumber.Parse("+"+phoneNumber, countryCode); retryErr == nil && libphonenumber.IsValidNumber(p) {
			return libphonenumber.Format(p, libphonenumber.E164), nil
		}
	}

	if err != nil {
		return "", err
	}
	return "", fmt.Errorf("phone number is not valid")
}

func UniqueSlice[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func SplitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
