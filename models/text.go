package models

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// NormalizeText collapses all whitespace runs into single spaces and trims the result
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Truncate shortens text to maxLength runes and appends "..." when it was cut
func Truncate(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxLength])) + "..."
}

// TitleFormatter strips a channel prefix (e.g. "Artist - ") from video titles
type TitleFormatter struct {
	prefix *regexp.Regexp
}

// NewTitleFormatter compiles the prefix pattern. An empty pattern disables stripping.
func NewTitleFormatter(pattern string) (*TitleFormatter, error) {
	if pattern == "" {
		return &TitleFormatter{}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &TitleFormatter{prefix: re}, nil
}

func (f *TitleFormatter) Format(title string) string {
	cleaned := NormalizeText(title)
	if f == nil || f.prefix == nil {
		return cleaned
	}
	loc := f.prefix.FindStringIndex(cleaned)
	if loc == nil || loc[0] != 0 {
		return cleaned
	}
	return cleaned[loc[1]:]
}
