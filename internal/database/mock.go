package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateUser(username string, createdAt time.Time) (User, error) {
	args := m.Called(username, createdAt)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUser(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdateUser(params UpdateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) SearchUsers(query, excludeUsername string) ([]User, error) {
	args := m.Called(query, excludeUsername)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) AddChatPartner(username, partner string) error {
	args := m.Called(username, partner)
	return args.Error(0)
}
func (m *MockRepository) CreateMessage(msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockRepository) GetMessages(conversationId string, limit int) ([]Message, error) {
	args := m.Called(conversationId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
