package di

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-tenant-cache/cache"
)

func TestConcurrentAccess(t *testing.T) {
	config := cache.DefaultConfig()
	config.Query.EarlyRefresh = nil
	container := newContainer(t, config)

	mockRepo := newUserRepository()
	cachedRepo := NewCachedRepository[User](container, mockRepo)

	tenants := []string{"acme", "globex", "initech"}
	for _, tenant := range tenants {
		ctx := cache.WithTenant(context.Background(), tenant)
		for i := 0; i < 100; i++ {
			_, _ = mockRepo.Create(ctx, User{ID: fmt.Sprintf("user-%d", i), Name: tenant})
		}
	}

	const numGoroutines = 50
	const operationsPerGoroutine = 20

	var g errgroup.Group
	for w := 0; w < numGoroutines; w++ {
		workerID := w
		g.Go(func() error {
			tenant := tenants[workerID%len(tenants)]
			ctx := cache.WithTenant(context.Background(), tenant)

			for j := 0; j < operationsPerGoroutine; j++ {
				userID := fmt.Sprintf("user-%d", (workerID*operationsPerGoroutine+j)%100)

				user, err := cachedRepo.GetByID(ctx, userID)
				if err != nil {
					return fmt.Errorf("worker %d operation %d GetByID failed: %w", workerID, j, err)
				}
				if user.Name != tenant {
					return fmt.Errorf("worker %d read %s from tenant %s", workerID, user.Name, tenant)
				}

				if j%5 == 0 {
					if _, total, err := cachedRepo.List(ctx); err != nil || total != 100 {
						return fmt.Errorf("worker %d List failed: total %d, %v", workerID, total, err)
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if calls := mockRepo.getCallCount("GetByID"); calls >= numGoroutines*operationsPerGoroutine {
		t.Errorf("Expected repeated reads to be served from cache, got %d base GetByID calls", calls)
	}
}

func BenchmarkKeySerializationPerformance(b *testing.B) {
	serializer := cache.NewDefaultKeySerializer()

	testCases := []struct {
		name string
		args []any
	}{
		{
			name: "simple_args",
			args: []any{"test-id", 123, true},
		},
		{
			name: "complex_struct",
			args: []any{User{ID: "bench-user", Name: "Benchmark User", Email: "bench@example.com", CreateTs: time.Now().Unix()}},
		},
		{
			name: "slice_args",
			args: []any{[]string{"a", "b", "c"}, []int{1, 2, 3, 4, 5}},
		},
		{
			name: "map_args",
			args: []any{map[string]any{"key1": "value1", "key2": 42, "key3": true}},
		},
	}

	for _, tc := range testCases {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = serializer.SerializeKey("GetByID", tc.args...)
			}
		})
	}
}

func BenchmarkCachedVsBaseRepository(b *testing.B) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		b.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Close()

	mockRepo := newUserRepository()
	cachedRepo := NewCachedRepository[User](container, mockRepo)
	ctx := cache.WithTenant(context.Background(), "bench")

	for i := 0; i < 1000; i++ {
		_, _ = mockRepo.Create(ctx, User{ID: fmt.Sprintf("bench-user-%d", i)})
	}
	for i := 0; i < 1000; i++ {
		_, _ = cachedRepo.GetByID(ctx, fmt.Sprintf("bench-user-%d", i))
	}

	b.Run("base_repository_GetByID", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = mockRepo.GetByID(ctx, fmt.Sprintf("bench-user-%d", i%1000))
		}
	})

	b.Run("cached_repository_GetByID_cache_hit", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = cachedRepo.GetByID(ctx, fmt.Sprintf("bench-user-%d", i%1000))
		}
	})

	b.Run("concurrent_cache_hits", func(b *testing.B) {
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				_, _ = cachedRepo.GetByID(ctx, fmt.Sprintf("bench-user-%d", i%1000))
				i++
			}
		})
	})
}

func BenchmarkServiceGetSet(b *testing.B) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		b.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Close()

	svc := container.Service()
	ctx := context.Background()
	opts := cache.ForTenant("bench")

	for i := 0; i < 1000; i++ {
		_ = svc.Set(ctx, fmt.Sprintf("key-%d", i), i, opts)
	}

	b.Run("get_hit", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			svc.Get(ctx, fmt.Sprintf("key-%d", i%1000), opts)
		}
	})

	b.Run("set", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = svc.Set(ctx, fmt.Sprintf("key-%d", i%1000), i, opts)
		}
	})
}
