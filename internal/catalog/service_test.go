package catalog

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/agromaq/crm-api/internal/access"
	"github.com/agromaq/crm-api/internal/auth"
	"github.com/agromaq/crm-api/internal/common"
)

type fakeStore struct {
	products  []Product
	listCalls int
	getCalls  int
}

func (f *fakeStore) ListProducts(_ context.Context, search string, _ int) ([]Product, error) {
	f.listCalls++
	if search == "" {
		return f.products, nil
	}
	out := []Product{}
	for _, p := range f.products {
		if p.Name == search || p.Code == search {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (Product, error) {
	f.getCalls++
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func reader() auth.Principal {
	return auth.Principal{UserID: "u1", Permissions: access.NewSet([]string{"products:read"})}
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func sampleProducts() []Product {
	category := "Implementos"
	return []Product{
		{ID: "p1", Code: "RAS-24", Name: "Rastra 24 discos", Price: 18500, Category: &category},
		{ID: "p2", Code: "SEM-08", Name: "Sembradora 8 surcos", Price: 25000, Category: &category},
	}
}

func TestListRequiresPermission(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	p := auth.Principal{UserID: "u1", Permissions: access.NewSet([]string{"quotes:read"})}
	_, err := svc.List(context.Background(), p, "")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "FORBIDDEN", appErr.Code)
}

func TestListCachesUnfilteredResults(t *testing.T) {
	store := &fakeStore{products: sampleProducts()}
	svc := NewService(store, testCache(t))

	first, err := svc.List(context.Background(), reader(), "")
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := svc.List(context.Background(), reader(), "")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.listCalls, "second read should come from cache")
}

func TestListSearchBypassesCache(t *testing.T) {
	store := &fakeStore{products: sampleProducts()}
	svc := NewService(store, testCache(t))

	got, err := svc.List(context.Background(), reader(), "RAS-24")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "p1", got[0].ID)

	_, err = svc.List(context.Background(), reader(), "RAS-24")
	require.NoError(t, err)
	require.Equal(t, 2, store.listCalls)
}

func TestGetUsesDetailCache(t *testing.T) {
	store := &fakeStore{products: sampleProducts()}
	svc := NewService(store, testCache(t))

	got, err := svc.Get(context.Background(), reader(), "p2")
	require.NoError(t, err)
	require.Equal(t, "Sembradora 8 surcos", got.Name)

	_, err = svc.Get(context.Background(), reader(), "p2")
	require.NoError(t, err)
	require.Equal(t, 1, store.getCalls)
}

func TestGetUnknownProduct(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	_, err := svc.Get(context.Background(), reader(), "missing")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}
