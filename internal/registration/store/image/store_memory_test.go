package image

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

type ImageStoreSuite struct {
	suite.Suite
	store *InMemoryImageStore
}

func TestImageStoreSuite(t *testing.T) {
	suite.Run(t, new(ImageStoreSuite))
}

func (s *ImageStoreSuite) SetupTest() {
	s.store = New()
}

func (s *ImageStoreSuite) TestPutAndGet() {
	ctx := context.Background()
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	ref, err := s.store.Put(ctx, "image/jpeg", data)
	s.Require().NoError(err)
	s.False(ref.ID.IsNil())
	s.Equal(4, ref.Size)

	data[0] = 0x00
	blob, err := s.store.Get(ctx, ref.ID)
	s.Require().NoError(err)
	s.Equal(byte(0xFF), blob.Data[0], "store keeps its own copy")
	s.Equal("image/jpeg", blob.ContentType)
}

func (s *ImageStoreSuite) TestEmptyImageRejected() {
	_, err := s.store.Put(context.Background(), "image/png", nil)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *ImageStoreSuite) TestRelease() {
	ctx := context.Background()
	ref, err := s.store.Put(ctx, "image/png", []byte("png-bytes"))
	s.Require().NoError(err)

	s.store.Release(ref.ID)
	s.store.Release(ref.ID)
	s.store.Release(id.NewImageID())

	_, err = s.store.Get(ctx, ref.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	count, bytes := s.store.Stats()
	s.Zero(count)
	s.Zero(bytes)
}
