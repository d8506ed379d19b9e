package repository

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
)

// newDocument wraps payload in the stored envelope. Count is the element
// count for slices and maps, 1 for any other non-nil payload.
func newDocument(source string, payload interface{}, now time.Time) (*models.Document, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	count := 0
	if payload != nil {
		v := reflect.ValueOf(payload)
		for v.Kind() == reflect.Ptr && !v.IsNil() {
			v = v.Elem()
		}
		switch v.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			count = v.Len()
		case reflect.Ptr:
		default:
			count = 1
		}
	}

	return &models.Document{
		Timestamp: now.UTC(),
		Source:    source,
		Version:   models.DocumentVersion,
		Count:     count,
		Data:      data,
	}, nil
}

// validateKey accepts {category}/{date}[/{symbol}] style keys made of
// non-empty segments without path traversal.
func validateKey(op, namespace, key string) error {
	if namespace == "" || strings.ContainsAny(namespace, `/\.`) {
		return errs.Newf(errs.KindInvalid, op, "invalid namespace %q", namespace)
	}
	if key == "" {
		return errs.Newf(errs.KindInvalid, op, "empty key")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `\`) {
			return errs.Newf(errs.KindInvalid, op, "invalid key %q", key)
		}
	}
	return nil
}

func expired(doc *models.Document, maxAge time.Duration, now time.Time) bool {
	return maxAge > 0 && now.Sub(doc.Timestamp) > maxAge
}
