package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artisanhq/atelier/internal/cache"
	"github.com/artisanhq/atelier/internal/models"
)

type fakeObjectStorage struct {
	objects map[string][]byte
	removed []string
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) Upload(_ context.Context, bucket, objectPath string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+objectPath] = data
	return nil
}

func (f *fakeObjectStorage) Remove(_ context.Context, bucket, objectPath string) error {
	delete(f.objects, bucket+"/"+objectPath)
	f.removed = append(f.removed, bucket+"/"+objectPath)
	return nil
}

func setupArtworkService(t *testing.T) (*ArtworkService, *fakeObjectStorage, *models.User, *models.Product) {
	t.Helper()

	db := setupServiceDB(t)
	store := cache.NewMemoryStore()
	objects := newFakeObjectStorage()

	users, err := NewUserService(db)
	require.NoError(t, err)
	user, err := users.Create(context.Background(), RegisterInput{
		Email:    "artist@example.com",
		Password: "pw",
	})
	require.NoError(t, err)

	products, err := NewProductService(db, store)
	require.NoError(t, err)
	product, err := products.Create(context.Background(), "Canvas", 1800)
	require.NoError(t, err)

	svc, err := NewArtworkService(db, objects, store)
	require.NoError(t, err)

	return svc, objects, user, product
}

func uploadInput(product *models.Product) CreateArtworkInput {
	return CreateArtworkInput{
		Title:       "Morning Light",
		Description: "oil on canvas",
		FileName:    "morning-light.png",
		ContentType: "image/png",
		Size:        4,
		Reader:      bytes.NewReader([]byte{0x89, 'P', 'N', 'G'}),
		Products: []ArtworkProductInput{
			{ProductID: product.ID, Enabled: true, Margin: 250},
		},
	}
}

func TestCreateArtworkStoresImageAndPairings(t *testing.T) {
	ctx := context.Background()
	svc, objects, user, product := setupArtworkService(t)

	artwork, err := svc.Create(ctx, user.ID, uploadInput(product))
	require.NoError(t, err)
	require.Equal(t, "Morning Light", artwork.Title)
	require.True(t, strings.HasPrefix(artwork.ImagePath, "users/"+user.ID+"/"))
	require.True(t, strings.HasSuffix(artwork.ImagePath, ".png"))

	_, stored := objects.objects[DefaultArtworkBucket+"/"+artwork.ImagePath]
	require.True(t, stored, "image must be uploaded to object storage")

	require.Len(t, artwork.Products, 1)
	require.Equal(t, product.ID, artwork.Products[0].ProductID)
	require.EqualValues(t, 250, artwork.Products[0].Margin)
	require.NotNil(t, artwork.Products[0].Product)
	require.EqualValues(t, 2050, artwork.Products[0].FinalPrice(artwork.Products[0].Product.BasePrice))
}

func TestCreateArtworkRejectsNegativeMargin(t *testing.T) {
	ctx := context.Background()
	svc, _, user, product := setupArtworkService(t)

	input := uploadInput(product)
	input.Products[0].Margin = -10

	_, err := svc.Create(ctx, user.ID, input)
	require.Error(t, err)
}

func TestCreateArtworkRejectsUnknownProduct(t *testing.T) {
	ctx := context.Background()
	svc, _, user, product := setupArtworkService(t)

	input := uploadInput(product)
	input.Products = append(input.Products, ArtworkProductInput{ProductID: "missing"})

	_, err := svc.Create(ctx, user.ID, input)
	require.Error(t, err)
}

func TestUpdateReplacesProductPairings(t *testing.T) {
	ctx := context.Background()
	svc, _, user, product := setupArtworkService(t)

	artwork, err := svc.Create(ctx, user.ID, uploadInput(product))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, user.ID, artwork.ID, UpdateArtworkInput{
		Products: []ArtworkProductInput{
			{ProductID: product.ID, Enabled: false, Margin: 400},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Products, 1)
	require.False(t, updated.Products[0].Enabled)
	require.EqualValues(t, 400, updated.Products[0].Margin)

	// An empty (non-nil) selection clears all pairings.
	cleared, err := svc.Update(ctx, user.ID, artwork.ID, UpdateArtworkInput{
		Products: []ArtworkProductInput{},
	})
	require.NoError(t, err)
	require.Empty(t, cleared.Products)
}

func TestDeleteRemovesRowAndStoredObject(t *testing.T) {
	ctx := context.Background()
	svc, objects, user, product := setupArtworkService(t)

	artwork, err := svc.Create(ctx, user.ID, uploadInput(product))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, user.ID, artwork.ID))

	_, err = svc.GetByID(ctx, user.ID, artwork.ID)
	require.ErrorIs(t, err, ErrArtworkNotFound)

	require.Contains(t, objects.removed, DefaultArtworkBucket+"/"+artwork.ImagePath)

	list, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestArtworkOwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	svc, _, user, product := setupArtworkService(t)

	artwork, err := svc.Create(ctx, user.ID, uploadInput(product))
	require.NoError(t, err)

	_, err = svc.GetByID(ctx, "someone-else", artwork.ID)
	require.ErrorIs(t, err, ErrArtworkNotFound)

	require.ErrorIs(t, svc.Delete(ctx, "someone-else", artwork.ID), ErrArtworkNotFound)
}
