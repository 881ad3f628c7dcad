package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// NotifierMock stands in for the websocket hub.
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Unicast(username string, payload any) bool {
	args := m.Called(username, payload)
	return args.Bool(0)
}

func (m *NotifierMock) Broadcast(payload any) int {
	args := m.Called(payload)
	return args.Int(0)
}

func (m *NotifierMock) Online() []string {
	args := m.Called()
	var names []string
	if val := args.Get(0); val != nil {
		names = val.([]string)
	}
	return names
}
