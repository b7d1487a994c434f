package table

import (
	"regexp"
	"strings"
)

// PrimaryKeyName is the well-known name of the vendor column
const PrimaryKeyName = "shop_name"

// Headers returns the distinct field names across all records in first-seen order,
// with the primary column moved to the front. It is recomputed on every call.
func (d *Dataset) Headers() []string {
	if d == nil {
		return []string{}
	}

	seen := make(map[string]struct{})
	headers := make([]string, 0)
	for _, rec := range d.records {
		for _, k := range rec.keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			headers = append(headers, k)
		}
	}

	if i := primaryIndex(headers); i > 0 {
		primary := headers[i]
		copy(headers[1:i+1], headers[:i])
		headers[0] = primary
	}
	return headers
}

// PrimaryColumn returns the column used to group rows by vendor, if any.
// Headers from Dataset.Headers already carry it at index 0.
func PrimaryColumn(headers []string) (string, bool) {
	i := primaryIndex(headers)
	if i < 0 {
		return "", false
	}
	return headers[i], true
}

// IsPrimary reports whether a field name looks like a shop or vendor column.
// A name such as "shopping_list" matches too.
func IsPrimary(header string) bool {
	lower := strings.ToLower(header)
	return strings.Contains(lower, "shop") || strings.Contains(lower, "vendor") || header == PrimaryKeyName
}

func primaryIndex(headers []string) int {
	for i, h := range headers {
		if IsPrimary(h) {
			return i
		}
	}
	return -1
}

var wordStart = regexp.MustCompile(`\b[a-z]`)

// HeaderLabel turns a field name into a column title: "shop_name" becomes "Shop Name".
// Only a lowercase ASCII letter that starts a word is upper-cased; everything else is kept.
func HeaderLabel(header string) string {
	spaced := strings.ReplaceAll(header, "_", " ")
	return wordStart.ReplaceAllStringFunc(spaced, strings.ToUpper)
}

// HeaderLabels maps HeaderLabel over headers
func HeaderLabels(headers []string) []string {
	labels := make([]string, len(headers))
	for i, h := range headers {
		labels[i] = HeaderLabel(h)
	}
	return labels
}
