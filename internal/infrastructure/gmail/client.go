package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/pkg/config"
)

// Máximo de mensajes por corrida de ingesta.
const maxMessagesPerRun = 100

// Ensure Client implements reconciliation.MailClient.
var _ reconciliation.MailClient = (*Client)(nil)

// Client adaptador del puerto MailClient sobre la API de Gmail.
// Usa una service account con domain-wide delegation: el buzón a leer se pasa
// como userID en cada llamada.
type Client struct {
	svc *gmailapi.Service
}

// NewClient construye el cliente con las credenciales de la configuración.
func NewClient(ctx context.Context, cfg config.MailConfig) (*Client, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(gmailapi.GmailReadonlyScope))

	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("crear servicio gmail: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListMessages devuelve los IDs de mensajes que satisfacen la consulta.
func (c *Client) ListMessages(ctx context.Context, account, query string) ([]string, error) {
	resp, err := c.svc.Users.Messages.List(account).
		Q(query).
		MaxResults(maxMessagesPerRun).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listar mensajes: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetMessage obtiene cabeceras, snippet y metadatos de adjuntos de un mensaje.
func (c *Client) GetMessage(ctx context.Context, account, messageID string) (*reconciliation.MailMessage, error) {
	msg, err := c.svc.Users.Messages.Get(account, messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("obtener mensaje %s: %w", messageID, err)
	}

	out := &reconciliation.MailMessage{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		Snippet:    msg.Snippet,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				out.Sender = h.Value
			case "subject":
				out.Subject = h.Value
			}
		}
		collectAttachments(msg.Payload, &out.Attachments)
	}
	return out, nil
}

// GetAttachment descarga los bytes de un adjunto por ID.
func (c *Client) GetAttachment(ctx context.Context, account, messageID, attachmentID string) ([]byte, error) {
	att, err := c.svc.Users.Messages.Attachments.Get(account, messageID, attachmentID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("obtener adjunto: %w", err)
	}
	data, err := decodeAttachmentData(att.Data)
	if err != nil {
		return nil, fmt.Errorf("decodificar adjunto: %w", err)
	}
	return data, nil
}

// decodeAttachmentData decodifica el cuerpo base64 URL-safe de un adjunto.
// Gmail entrega el payload a veces con padding y a veces sin él; se normaliza
// sin padding antes de decodificar.
func decodeAttachmentData(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// GetAttachmentByName re-obtiene un adjunto por nombre de archivo. Los IDs de
// adjunto de Gmail no sobreviven entre sesiones; el nombre dentro del mensaje sí.
func (c *Client) GetAttachmentByName(ctx context.Context, account, messageID, filename string) ([]byte, error) {
	msg, err := c.GetMessage(ctx, account, messageID)
	if err != nil {
		return nil, err
	}
	for _, att := range msg.Attachments {
		if att.Filename == filename {
			return c.GetAttachment(ctx, account, messageID, att.ID)
		}
	}
	return nil, fmt.Errorf("adjunto %q no encontrado en el mensaje %s", filename, messageID)
}

// collectAttachments recorre el árbol MIME acumulando los adjuntos con nombre.
func collectAttachments(part *gmailapi.MessagePart, out *[]reconciliation.MailAttachment) {
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		*out = append(*out, reconciliation.MailAttachment{
			ID:       part.Body.AttachmentId,
			Filename: part.Filename,
			MimeType: part.MimeType,
			Size:     part.Body.Size,
		})
	}
	for _, child := range part.Parts {
		collectAttachments(child, out)
	}
}
