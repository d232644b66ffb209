package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/internal/storetest"
	"github.com/roomledger/backend/pkg/idx"
	"github.com/roomledger/backend/pkg/queue"
)

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) EnqueueEmail(ctx context.Context, p queue.EmailPayload) error {
	return m.Called(ctx, p).Error(0)
}

func onlyLog(t *testing.T, store *storetest.Memory) *models.EmailLog {
	t.Helper()
	logs, err := store.ListRecentEmailLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	return logs[0]
}

func TestDispatchSync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	msg := Message{To: "a@example.com", Subject: "Hi", Text: "hello"}
	uid := idx.New()

	t.Run("success marks the log sent", func(t *testing.T) {
		store := storetest.New()
		m := &mockMailer{}
		m.On("Send", ctx, msg).Return(nil).Once()

		require.NoError(t, NewDispatcher(store, m, nil).Dispatch(ctx, &uid, models.EmailTypeAccountActivation, msg))
		m.AssertExpectations(t)

		l := onlyLog(t, store)
		assert.Equal(t, models.EmailLogStatusSent, l.Status)
		assert.NotNil(t, l.SentAt)
		assert.Equal(t, uid, *l.UserID)
	})

	t.Run("failure marks the log failed and returns the error", func(t *testing.T) {
		store := storetest.New()
		m := &mockMailer{}
		m.On("Send", ctx, msg).Return(errors.New("connection refused")).Once()

		err := NewDispatcher(store, m, nil).Dispatch(ctx, nil, models.EmailTypeAccountActivation, msg)
		require.Error(t, err)

		l := onlyLog(t, store)
		assert.Equal(t, models.EmailLogStatusFailed, l.Status)
		assert.Equal(t, "connection refused", l.ErrorMessage)
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	msg := Message{To: "a@example.com", Subject: "Hi", Text: "hello", HTML: "<p>hello</p>"}

	t.Run("enqueued email stays pending", func(t *testing.T) {
		store := storetest.New()
		q := &mockQueue{}
		q.On("EnqueueEmail", ctx, mock.MatchedBy(func(p queue.EmailPayload) bool {
			return p.RecipientEmail == msg.To && p.BodyHTML == msg.HTML && p.EmailLogID != ""
		})).Return(nil).Once()

		d := NewAsyncDispatcher(store, q, nil)
		assert.True(t, d.Queued())
		assert.False(t, NewDispatcher(store, nil, nil).Queued())

		require.NoError(t, d.Dispatch(ctx, nil, models.EmailTypeAccountActivation, msg))
		q.AssertExpectations(t)
		assert.Equal(t, models.EmailLogStatusPending, onlyLog(t, store).Status)
	})

	t.Run("enqueue failure is a dispatch failure", func(t *testing.T) {
		store := storetest.New()
		q := &mockQueue{}
		q.On("EnqueueEmail", ctx, mock.Anything).Return(errors.New("redis down")).Once()

		require.Error(t, NewAsyncDispatcher(store, q, nil).Dispatch(ctx, nil, models.EmailTypeAccountActivation, msg))
		assert.Equal(t, models.EmailLogStatusFailed, onlyLog(t, store).Status)
	})
}

func TestRenderActivation(t *testing.T) {
	t.Parallel()

	link := "https://rooms.example.com/activate/MDFI/abc.def/"
	msg, err := RenderActivation("a@example.com", ActivationData{Username: "<alice>", Link: link, TTLHours: 72})
	require.NoError(t, err)
	assert.Equal(t, ActivationSubject, msg.Subject)
	assert.Contains(t, msg.Text, link)
	assert.Contains(t, msg.Text, "72 hours")
	assert.Contains(t, msg.HTML, `href="`+link+`"`)
	assert.Contains(t, msg.HTML, "&lt;alice&gt;")
	assert.NotContains(t, msg.HTML, "<alice>")
}

func TestSMTPMailer(t *testing.T) {
	t.Parallel()

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, User: "u", Password: "p", From: "noreply@example.com", FromName: "Rooms"})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	err := m.Send(context.Background(), Message{To: "a@example.com", Subject: "Activate", Text: "plain", HTML: "<b>html</b>"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, []string{"a@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Activate\r\n")
	assert.Contains(t, gotMsg, "multipart/alternative")
	assert.Contains(t, gotMsg, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=utf-8")
	assert.True(t, strings.HasSuffix(gotMsg, "--\r\n"))

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("535 auth failed") }
	require.Error(t, m.Send(context.Background(), Message{To: "a@example.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.Send(ctx, Message{To: "a@example.com"}), context.Canceled)
}
