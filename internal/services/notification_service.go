// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/config"
	"github.com/coopcredito/solicitudes-backend/internal/models"
)

type NotificationService struct {
	db     *gorm.DB
	config *config.Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
		send:   smtp.SendMail,
	}
}

// NotifyStateChange tells the owner that the application moved to a new state.
// An empty from marks the creation event.
func (s *NotificationService) NotifyStateChange(ctx context.Context, solicitud *models.SolicitudCredito, from, to models.EstadoCodigo, description string) error {
	templateType := "state_change"
	title := fmt.Sprintf("Solicitud %s: %s", solicitud.NumeroSolicitud, to)
	if from == "" {
		templateType = "solicitud_created"
		title = fmt.Sprintf("Solicitud %s registrada", solicitud.NumeroSolicitud)
	}

	notification := &models.Notification{
		RecipientUsername:   solicitud.OwnerUsername,
		Type:                templateType,
		Title:               title,
		Message:             description,
		Status:              models.NotificationStatusUnread,
		RelatedResourceType: "solicitud",
		RelatedResourceID:   &solicitud.ID,
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	var owner models.User
	if err := s.db.WithContext(ctx).Where("username = ?", solicitud.OwnerUsername).First(&owner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Applications created by integrations may have no local account
			return nil
		}
		return fmt.Errorf("failed to fetch owner: %w", err)
	}

	data := map[string]interface{}{
		"FullName":    owner.FullName,
		"Numero":      solicitud.NumeroSolicitud,
		"From":        from,
		"To":          to,
		"Description": description,
		"DetailURL":   fmt.Sprintf("%s/solicitudes/%s", s.config.Frontend.BaseURL, solicitud.ID),
	}

	tmpl := s.getEmailTemplate(templateType)
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	subject, err := s.renderTemplate(tmpl.Subject, data)
	if err != nil {
		return fmt.Errorf("failed to render email subject: %w", err)
	}

	return s.sendEmail(owner.Email, subject, body)
}

func (s *NotificationService) SendWelcomeEmail(user *models.User) error {
	tmpl := s.getEmailTemplate("welcome")

	data := map[string]interface{}{
		"FullName": user.FullName,
		"Username": user.Username,
		"LoginURL": s.config.Frontend.BaseURL + "/login",
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, tmpl.Subject, body)
}

func (s *NotificationService) SendUserStatusChange(user *models.User, oldStatus models.UserStatus, reason string) error {
	tmpl := s.getEmailTemplate("user_status")

	data := map[string]interface{}{
		"FullName":  user.FullName,
		"OldStatus": oldStatus,
		"Status":    user.Status,
		"Reason":    reason,
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, tmpl.Subject, body)
}

// ListForUser returns the newest notifications of a user.
func (s *NotificationService) ListForUser(ctx context.Context, username string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Where("recipient_username = ?", username)
	if unreadOnly {
		query = query.Where("status = ?", models.NotificationStatusUnread)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	return notifications, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, username string, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_username = ?", id, username).
		Updates(map[string]interface{}{
			"status":  models.NotificationStatusRead,
			"read_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "notification", ID: id.String()}
	}
	return nil
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Debug("SMTP not configured, skipping email")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	from := s.config.Email.FromEmail
	if s.config.Email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.Email.FromName, s.config.Email.FromEmail)
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", from, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return s.send(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"welcome": {
			Subject: "Bienvenido a la cooperativa",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hola {{.FullName}}</h2>
	<p>Tu usuario <strong>{{.Username}}</strong> fue creado. Ya puedes radicar tu solicitud de crédito.</p>
	<a href="{{.LoginURL}}">Ingresar</a>
</body>
</html>`,
		},
		"solicitud_created": {
			Subject: "Solicitud {{.Numero}} registrada",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hola {{.FullName}}</h2>
	<p>Recibimos tu solicitud de crédito <strong>{{.Numero}}</strong>. Te avisaremos cada vez que cambie de estado.</p>
	<a href="{{.DetailURL}}">Ver solicitud</a>
</body>
</html>`,
		},
		"user_status": {
			Subject: "Actualización de tu cuenta",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hola {{.FullName}}</h2>
	<p>El estado de tu cuenta cambió de {{.OldStatus}} a <strong>{{.Status}}</strong>.</p>
	{{if .Reason}}<p>Motivo: {{.Reason}}</p>{{end}}
</body>
</html>`,
		},
		"state_change": {
			Subject: "Solicitud {{.Numero}}: {{.To}}",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hola {{.FullName}}</h2>
	<p>Tu solicitud <strong>{{.Numero}}</strong> pasó de {{.From}} a <strong>{{.To}}</strong>.</p>
	<p>{{.Description}}</p>
	<a href="{{.DetailURL}}">Ver solicitud</a>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	return EmailTemplate{
		Subject: "Notificación",
		Body:    "<p>{{.Description}}</p>",
	}
}
