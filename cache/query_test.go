package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockQueryCache for testing GetOrFetch function
type mockQueryCache struct {
	result  any
	err     error
	keys       []string
	deleted    []string
	batches    int
	invalidErr error
}

func (m *mockQueryCache) GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error) {
	return m.result, m.err
}

func (m *mockQueryCache) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockQueryCache) InvalidateKeys(ctx context.Context, keys []string) error {
	if m.invalidErr != nil {
		return m.invalidErr
	}
	m.batches++
	m.deleted = append(m.deleted, keys...)
	return nil
}

func (m *mockQueryCache) Keys(ctx context.Context) []string {
	return m.keys
}

func TestGetOrFetch_NilInterface(t *testing.T) {
	mock := &mockQueryCache{result: nil}

	type SomeInterface interface {
		DoSomething() string
	}

	result, err := GetOrFetch[SomeInterface](context.Background(), mock, "test-key", func(ctx context.Context) (SomeInterface, error) {
		return nil, nil
	})

	if err != nil {
		t.Errorf("expected no error but got: %v", err)
	}

	if result != nil {
		t.Errorf("expected nil result but got: %v", result)
	}
}

func TestGetOrFetch_NilPointer(t *testing.T) {
	mock := &mockQueryCache{result: (*string)(nil)}

	result, err := GetOrFetch[*string](context.Background(), mock, "test-key", func(ctx context.Context) (*string, error) {
		return nil, nil
	})

	if err != nil {
		t.Errorf("expected no error but got: %v", err)
	}

	if result != nil {
		t.Errorf("expected nil result but got: %v", result)
	}
}

func TestGetOrFetch_TypeAssertionFailure(t *testing.T) {
	mock := &mockQueryCache{result: "wrong-type"}

	result, err := GetOrFetch[int](context.Background(), mock, "test-key", func(ctx context.Context) (int, error) {
		return 42, nil
	})

	if !errors.Is(err, ErrInvalidResultType) {
		t.Errorf("expected ErrInvalidResultType but got: %v", err)
	}

	if result != 0 {
		t.Errorf("expected zero value (0) but got: %v", result)
	}
}

func TestGetOrFetch_Error(t *testing.T) {
	boom := errors.New("boom")
	mock := &mockQueryCache{err: boom}

	_, err := GetOrFetch[string](context.Background(), mock, "test-key", func(ctx context.Context) (string, error) {
		return "", nil
	})

	if !errors.Is(err, boom) {
		t.Errorf("expected fetch error but got: %v", err)
	}
}

func TestGetOrFetch_ValidResult(t *testing.T) {
	expectedValue := "test-value"
	mock := &mockQueryCache{result: expectedValue}

	result, err := GetOrFetch[string](context.Background(), mock, "test-key", func(ctx context.Context) (string, error) {
		return expectedValue, nil
	})

	if err != nil {
		t.Errorf("expected no error but got: %v", err)
	}

	if result != expectedValue {
		t.Errorf("expected '%s' but got: '%s'", expectedValue, result)
	}
}

func TestDeleteMatching(t *testing.T) {
	mock := &mockQueryCache{keys: []string{"users::List", "users::Get::1", "orders::List"}}

	removed := DeleteMatching(context.Background(), mock, func(keys []string) []string {
		var selected []string
		for _, k := range keys {
			if strings.HasPrefix(k, "users::") {
				selected = append(selected, k)
			}
		}
		return selected
	})

	if removed != 2 {
		t.Errorf("expected 2 removals, got %d", removed)
	}
	if len(mock.deleted) != 2 || mock.batches != 1 {
		t.Errorf("expected 2 keys deleted in one batch, got %v in %d batches", mock.deleted, mock.batches)
	}

	if removed := DeleteMatching(context.Background(), mock, func([]string) []string { return nil }); removed != 0 || mock.batches != 1 {
		t.Errorf("expected an empty selection to skip the cache, got %d removals, %d batches", removed, mock.batches)
	}

	failing := &mockQueryCache{keys: []string{"a"}, invalidErr: errors.New("unavailable")}
	if removed := DeleteMatching(context.Background(), failing, func(keys []string) []string { return keys }); removed != 0 {
		t.Errorf("expected a rejected batch to count nothing, got %d", removed)
	}
}

func TestGetOrFetch_NilFetch(t *testing.T) {
	_, err := GetOrFetch[string](context.Background(), &mockQueryCache{}, "test-key", nil)
	if !errors.Is(err, ErrNilFetch) {
		t.Errorf("expected ErrNilFetch but got: %v", err)
	}
}

func TestNewQueryCache(t *testing.T) {
	ctx := context.Background()

	qc, err := NewQueryCache(DefaultConfig().Query)
	if err != nil {
		t.Fatalf("NewQueryCache: %v", err)
	}

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return 7, nil
	}

	for i := 0; i < 2; i++ {
		v, err := GetOrFetch(ctx, qc, "answer", fetch)
		if err != nil || v != 7 {
			t.Fatalf("GetOrFetch() = %v, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected one fetch, got %d", calls)
	}

	if _, err := NewQueryCache(QueryConfig{}); err == nil {
		t.Error("expected error for empty query config")
	}
}
