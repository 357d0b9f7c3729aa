package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joseph-ayodele/fieldmedia/internal/entity"
)

type MediaRepository struct {
	mock.Mock
}

func (m *MediaRepository) Create(ctx context.Context, media *entity.Media) (bool, error) {
	args := m.Called(ctx, media)
	return args.Bool(0), args.Error(1)
}

func (m *MediaRepository) GetByID(ctx context.Context, id string) (*entity.Media, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Media), args.Error(1)
}

func (m *MediaRepository) ApplyProcessing(ctx context.Context, id string, p entity.Processing) error {
	args := m.Called(ctx, id, p)
	return args.Error(0)
}

func (m *MediaRepository) MarkFailed(ctx context.Context, id, msg string) error {
	args := m.Called(ctx, id, msg)
	return args.Error(0)
}

func (m *MediaRepository) ListByJob(ctx context.Context, businessID, jobID string) ([]*entity.Media, error) {
	args := m.Called(ctx, businessID, jobID)
	return args.Get(0).([]*entity.Media), args.Error(1)
}

func (m *MediaRepository) FindByContentHash(ctx context.Context, businessID, hash, excludeID string) (*entity.Media, error) {
	args := m.Called(ctx, businessID, hash, excludeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Media), args.Error(1)
}
