package services

import (
	"context"
	"testing"

	"gorm.io/gorm"

	testutil "github.com/artisanhq/atelier/internal/database/testutil"
	"github.com/artisanhq/atelier/pkg/mail"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

type recordingMailer struct {
	messages []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}
