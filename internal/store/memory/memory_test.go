package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
	"dukkan/backend/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, New())
}

func TestNewSeededHasCatalog(t *testing.T) {
	s := NewSeeded()
	products := store.NewCollection[domain.Product](s, domain.CollectionProducts)

	all, err := products.All(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "prd-0001", all[0].ID)
	assert.True(t, all[0].Active)
	assert.False(t, all[0].CreatedAt.IsZero())
}

func TestReturnedDocumentsDoNotAliasStorage(t *testing.T) {
	s := New()
	ctx := context.Background()

	doc, err := s.Add(ctx, "things", store.Document(`{"id":"t1","name":"x"}`))
	require.NoError(t, err)
	for i := range doc {
		doc[i] = ' '
	}

	again, err := s.GetByID(ctx, "things", "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", store.ID(again))
}
