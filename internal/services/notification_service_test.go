package services

import (
	"context"
	"net/smtp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopcredito/solicitudes-backend/internal/config"
	"github.com/coopcredito/solicitudes-backend/internal/models"
)

type sentMail struct {
	addr string
	to   []string
	msg  string
}

type mailbox struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *mailbox) send(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{addr: addr, to: to, msg: string(msg)})
	return nil
}

func newNotificationService(t *testing.T, smtpHost string) (*NotificationService, *mailbox, *AuthService) {
	t.Helper()
	db := newTestDB(t)
	cfg := testConfig()
	cfg.Email = config.EmailConfig{SMTPHost: smtpHost, SMTPPort: "2525", FromEmail: "creditos@coop.test", FromName: "Créditos"}

	box := &mailbox{}
	svc := NewNotificationService(db, cfg)
	svc.send = box.send
	return svc, box, NewAuthService(db, cfg, nil)
}

func TestNotifyStateChange(t *testing.T) {
	svc, box, auth := newNotificationService(t, "smtp.coop.test")
	registered := registerUser(t, auth, "ana.gomez")
	ctx := context.Background()

	solicitud := &models.SolicitudCredito{NumeroSolicitud: "SOL-2026-000007", OwnerUsername: "ana.gomez"}
	solicitud.ID = registered.User.ID

	require.NoError(t, svc.NotifyStateChange(ctx, solicitud, "", models.EstadoPostulado, "Solicitud registrada"))
	require.NoError(t, svc.NotifyStateChange(ctx, solicitud, models.EstadoPostulado, models.EstadoEnRevision, "Cambio de estado a En revisión"))

	require.Len(t, box.sent, 2)
	assert.Equal(t, "smtp.coop.test:2525", box.sent[0].addr)
	assert.Equal(t, []string{"ana.gomez@coop.test"}, box.sent[0].to)
	assert.Contains(t, box.sent[0].msg, "Subject: Solicitud SOL-2026-000007 registrada")
	assert.Contains(t, box.sent[1].msg, "Subject: Solicitud SOL-2026-000007: EN_REVISION")
	assert.Contains(t, box.sent[1].msg, "From: Créditos <creditos@coop.test>")

	notifications, err := svc.ListForUser(ctx, "ana.gomez", false, 0)
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	types := []string{notifications[0].Type, notifications[1].Type}
	assert.ElementsMatch(t, []string{"solicitud_created", "state_change"}, types)
}

func TestNotifyStateChangeWithoutAccount(t *testing.T) {
	svc, box, _ := newNotificationService(t, "smtp.coop.test")
	ctx := context.Background()

	solicitud := &models.SolicitudCredito{NumeroSolicitud: "SOL-2026-000008", OwnerUsername: "integracion"}
	require.NoError(t, svc.NotifyStateChange(ctx, solicitud, models.EstadoPostulado, models.EstadoEnRevision, "x"))

	assert.Empty(t, box.sent)
	notifications, err := svc.ListForUser(ctx, "integracion", true, 10)
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestEmailSkippedWithoutSMTP(t *testing.T) {
	svc, box, auth := newNotificationService(t, "")
	registered := registerUser(t, auth, "ana.gomez")

	require.NoError(t, svc.SendWelcomeEmail(registered.User))
	require.NoError(t, svc.SendUserStatusChange(registered.User, models.UserStatusActive, "revisión"))
	assert.Empty(t, box.sent)
}

func TestMarkRead(t *testing.T) {
	svc, _, _ := newNotificationService(t, "")
	ctx := context.Background()

	solicitud := &models.SolicitudCredito{NumeroSolicitud: "SOL-2026-000009", OwnerUsername: "ana.gomez"}
	require.NoError(t, svc.NotifyStateChange(ctx, solicitud, "", models.EstadoPostulado, "Solicitud registrada"))

	unread, err := svc.ListForUser(ctx, "ana.gomez", true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	err = svc.MarkRead(ctx, "luis.perez", unread[0].ID)
	assert.Equal(t, ErrCodeNotFound, CodeOf(err), "only the recipient can mark it")

	require.NoError(t, svc.MarkRead(ctx, "ana.gomez", unread[0].ID))
	unread, err = svc.ListForUser(ctx, "ana.gomez", true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
