package utils

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/stoewer/go-strcase"
)

const (
	DateLayoutISO   = "2006-01-02"
	DateLayoutShort = "Jan 2, 2006"
	DateLayoutFull  = "January 2, 2006"
	DateLayoutMonth = "January 2006"
)

// ParseDate parses a YYYY-MM-DD date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayoutISO, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// FormatDate renders s with layout. Empty input is "N/A".
func FormatDate(s, layout string) string {
	if s == "" {
		return "N/A"
	}
	t, err := ParseDate(s)
	if err != nil {
		return "Invalid date"
	}
	return t.Format(layout)
}

// FormatRelativeDate renders s relative to now, e.g. "3 days ago".
func FormatRelativeDate(s string, now time.Time) string {
	if s == "" {
		return "N/A"
	}
	t, err := ParseDate(s)
	if err != nil {
		return "Invalid date"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Initials returns up to two upper-case initials of name, or "U" when empty.
func Initials(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return "U"
	}
	letters := lo.Map(words, func(w string, _ int) string {
		r, _ := utf8.DecodeRuneInString(w)
		return string(r)
	})
	initials := []rune(strings.ToUpper(strings.Join(letters, "")))
	if len(initials) > 2 {
		initials = initials[:2]
	}
	return string(initials)
}

// Truncate shortens text to n runes followed by "...".
func Truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}

// Slugify returns a URL-friendly form of text.
func Slugify(text string) string {
	return strcase.KebabCase(strings.TrimSpace(text))
}

// FormatFileSize renders a byte count, e.g. "5.0 MiB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}

// ObjectName builds a storage object name from an uploaded file name: a slug of
// the base name, a unique prefix and the lower-cased extension.
func ObjectName(prefix, fileName, unique string) string {
	ext := strings.ToLower(path.Ext(fileName))
	base := Slugify(strings.TrimSuffix(path.Base(fileName), path.Ext(fileName)))
	if base == "" {
		base = "photo"
	}
	return fmt.Sprintf("%s/%s-%s%s", strings.Trim(prefix, "/"), unique, base, ext)
}

// Percentage renders part/total as a whole percentage, or "--%" when total is zero.
func Percentage(part, total int) string {
	if total <= 0 {
		return "--%"
	}
	return fmt.Sprintf("%d%%", (part*100+total/2)/total)
}
