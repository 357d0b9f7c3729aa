package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joseph-ayodele/fieldmedia/internal/processor"
)

type Publisher struct {
	mock.Mock
}

func (m *Publisher) PublishProcess(ctx context.Context, req processor.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *Publisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
