package providers

import (
	"bytes"
	"fmt"
	"html/template"
)

// ReminderData parameterizes the renewal reminder email. Message is the classification
// message shown in the subject and the alert box.
type ReminderData struct {
	Name         string
	Message      string
	Expired      bool
	SubscribedOn string
	ExpiresOn    string
	RenewURL     string
	SupportEmail string
	Year         int
}

func (d ReminderData) Subject() string {
	return "⚠️ " + d.Message
}

var reminderTemplate = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html dir="ltr" lang="es">
  <head>
    <meta charset="UTF-8" />
    <style>
      body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
      .container { max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f9fafb; }
      .header { background-color: #dc2626; color: white; padding: 20px; border-radius: 8px 8px 0 0; text-align: center; }
      .content { background-color: white; padding: 30px; border-radius: 0 0 8px 8px; }
      .alert-box { background-color: #fef2f2; border-left: 4px solid #dc2626; padding: 15px; margin: 20px 0; border-radius: 4px; }
      .info { background-color: #f3f4f6; padding: 15px; border-radius: 4px; margin: 15px 0; }
      .button { display: inline-block; background-color: #2563eb; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin-top: 20px; }
      .footer { text-align: center; color: #6b7280; font-size: 12px; margin-top: 30px; padding-top: 20px; border-top: 1px solid #e5e7eb; }
    </style>
  </head>
  <body>
    <div class="container">
      <div class="header"><h1>⚠️ Notificación de Suscripción</h1></div>
      <div class="content">
        <h2>Hola {{.Name}},</h2>
        {{if .Expired}}<p>Tu suscripción al CRM Victoria ha vencido.</p>{{else}}<p>Tu suscripción al CRM Victoria está próxima a vencer.</p>{{end}}
        <div class="alert-box"><strong>{{.Message}}</strong></div>
        <div class="info">
          <p><strong>Fechas importantes:</strong></p>
          <p>📅 <strong>Suscrito desde:</strong> {{.SubscribedOn}}</p>
          <p>📅 <strong>Vencimiento:</strong> {{.ExpiresOn}}</p>
        </div>
        <p>Para evitar interrupciones en el servicio, te recomendamos renovar tu suscripción cuanto antes.</p>
        <a href="{{.RenewURL}}" class="button">Renovar Suscripción</a>
        <p style="margin-top: 30px; color: #6b7280;">Si tienes preguntas, contacta a nuestro equipo de soporte: {{.SupportEmail}}</p>
        <div class="footer">
          <p>Este es un mensaje automático de Victoria CRM. Por favor, no respondas a este correo.</p>
          <p>&copy; {{.Year}} Victoria CRM. Todos los derechos reservados.</p>
        </div>
      </div>
    </div>
  </body>
</html>
`))

// RenderReminder returns the subject and HTML body for a reminder.
func RenderReminder(d ReminderData) (string, string, error) {
	var buf bytes.Buffer
	if err := reminderTemplate.Execute(&buf, d); err != nil {
		return "", "", fmt.Errorf("failed to render reminder template: %w", err)
	}
	return d.Subject(), buf.String(), nil
}
