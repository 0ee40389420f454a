package services

import (
	"github.com/stretchr/testify/mock"
)

type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogTransfer(transactionID, fromAccount, toAccount string, amount int64, kind string) {
	m.Called(transactionID, fromAccount, toAccount, amount, kind)
}

func (m *MockAuditLogger) LogTransition(bookingID, event, fromStatus, toStatus string) {
	m.Called(bookingID, event, fromStatus, toStatus)
}

func (m *MockAuditLogger) LogVerification(paymentID, adminID, action string) {
	m.Called(paymentID, adminID, action)
}

func (m *MockAuditLogger) LogError(reference, subject string, err error) {
	m.Called(reference, subject, err)
}
