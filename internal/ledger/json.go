package ledger

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReadJSON loads key and decodes it into T. The bool is false when the key
// does not exist, in which case the zero T is returned.
func ReadJSON[T any](ctx context.Context, l *Ledger, key string) (T, bool, error) {
	var out T
	doc, exists, err := l.Read(ctx, key)
	if err != nil || !exists {
		return out, exists, err
	}
	if err := json.Unmarshal(doc.Body, &out); err != nil {
		return out, false, fmt.Errorf("ledger: decode %s: %w", key, err)
	}
	return out, true, nil
}

// UpdateJSON is Update over a JSON-encoded T. fn receives a freshly decoded
// value on every attempt and mutates it in place.
func UpdateJSON[T any](ctx context.Context, l *Ledger, key string, fn func(v *T, exists bool) error) error {
	_, err := l.Update(ctx, key, func(current []byte, exists bool) ([]byte, error) {
		var v T
		if exists {
			if err := json.Unmarshal(current, &v); err != nil {
				return nil, fmt.Errorf("ledger: decode %s: %w", key, err)
			}
		}
		if err := fn(&v, exists); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	return err
}
