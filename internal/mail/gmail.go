package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/invoice-organizer/internal/common"
)

// MaxAttachmentSize is the largest attachment we download (25MB).
const MaxAttachmentSize = 25 * 1024 * 1024

const user = "me"

// Gmail implements Fetcher and Labeler over the Gmail API.
type Gmail struct {
	svc    *gmail.UsersService
	logger *slog.Logger

	mu     sync.Mutex
	labels map[string]string // name -> id
}

// NewGmail builds a client from an OAuth client credentials file and a stored
// token file, both JSON as written by Google's tooling.
func NewGmail(ctx context.Context, credentialsFile, tokenFile string, logger *slog.Logger) (*Gmail, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "read gmail credentials", err)
	}
	conf, err := google.ConfigFromJSON(creds, gmail.GmailModifyScope)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "parse gmail credentials", err)
	}
	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, err
	}
	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, tok))
	return NewGmailWithOptions(ctx, logger, option.WithHTTPClient(client))
}

// NewGmailWithOptions builds a client from raw API options.
func NewGmailWithOptions(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*Gmail, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Gmail{svc: svc.Users, logger: logger, labels: map[string]string{}}, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "no gmail token found at "+path, err)
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "invalid gmail token file", err)
	}
	return tok, nil
}

// FetchAttachments lists every message matching q and downloads its PDFs.
func (g *Gmail) FetchAttachments(ctx context.Context, q Query) ([]Attachment, []DashboardInvoice, error) {
	query := q.String()
	log := g.logger.With("query", query)
	log.Info("mail.fetch.start")

	var ids []string
	call := g.svc.Messages.List(user).Q(query)
	if q.MaxResults > 0 {
		call = call.MaxResults(q.MaxResults)
	}
	err := call.Pages(ctx, func(res *gmail.ListMessagesResponse) error {
		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}
		if q.MaxResults > 0 && int64(len(ids)) >= q.MaxResults {
			return errStopPaging
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopPaging) {
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}

	var atts []Attachment
	var dash []DashboardInvoice
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return atts, dash, err
		}
		msg, err := g.svc.Messages.Get(user, id).Format("full").Context(ctx).Do()
		if err != nil {
			return atts, dash, fmt.Errorf("get message %s: %w", id, err)
		}
		a, d, err := collect(msg, func(attachmentID string) ([]byte, error) {
			return g.attachment(ctx, id, attachmentID)
		})
		if err != nil {
			return atts, dash, err
		}
		atts = append(atts, a...)
		if d != nil {
			dash = append(dash, *d)
		}
	}

	log.Info("mail.fetch.ok", "messages", len(ids), "attachments", len(atts), "dashboard", len(dash))
	return atts, dash, nil
}

var errStopPaging = errors.New("stop paging")

func (g *Gmail) attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	body, err := g.svc.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get attachment %s: %w", attachmentID, err)
	}
	if body.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", body.Size, MaxAttachmentSize)
	}
	return decodeBase64(body.Data)
}

// collect pulls PDF parts out of msg. A message without PDFs that reads like an
// invoice comes back as a dashboard invoice.
func collect(msg *gmail.Message, fetch func(attachmentID string) ([]byte, error)) ([]Attachment, *DashboardInvoice, error) {
	received := time.UnixMilli(msg.InternalDate).UTC()
	var atts []Attachment
	var walkErr error
	walkParts(msg.Payload, func(part *gmail.MessagePart) {
		if walkErr != nil || part.Filename == "" || part.Body == nil || !IsPDF(part.Filename, part.MimeType) {
			return
		}
		var data []byte
		var err error
		switch {
		case part.Body.AttachmentId != "":
			data, err = fetch(part.Body.AttachmentId)
		case part.Body.Data != "":
			data, err = decodeBase64(part.Body.Data)
		default:
			return
		}
		if err != nil {
			walkErr = fmt.Errorf("message %s part %s: %w", msg.Id, part.PartId, err)
			return
		}
		atts = append(atts, Attachment{
			MessageID: msg.Id,
			Filename:  part.Filename,
			MimeType:  part.MimeType,
			Received:  received,
			Data:      data,
		})
	})
	if walkErr != nil {
		return nil, nil, walkErr
	}
	if len(atts) > 0 {
		return atts, nil, nil
	}

	subject, from, date := header(msg, "Subject"), header(msg, "From"), header(msg, "Date")
	if !LooksLikeInvoice(subject, msg.Snippet, from) {
		return nil, nil, nil
	}
	return nil, &DashboardInvoice{
		MessageID:              msg.Id,
		Subject:                subject,
		From:                   from,
		Date:                   date,
		Snippet:                msg.Snippet,
		RequiresManualDownload: true,
	}, nil
}

// ApplyLabel adds the named label to a message, creating the label on first use.
func (g *Gmail) ApplyLabel(ctx context.Context, messageID, label string) error {
	id, err := g.labelID(ctx, label)
	if err != nil {
		return err
	}
	_, err = g.svc.Messages.Modify(user, messageID, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{id},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("label message %s: %w", messageID, err)
	}
	g.logger.Debug("mail.label.ok", "message_id", messageID, "label", label)
	return nil
}

func (g *Gmail) labelID(ctx context.Context, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.labels[name]; ok {
		return id, nil
	}
	res, err := g.svc.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}
	for _, l := range res.Labels {
		if strings.EqualFold(l.Name, name) {
			g.labels[name] = l.Id
			return l.Id, nil
		}
	}
	created, err := g.svc.Labels.Create(user, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %s: %w", name, err)
	}
	g.logger.Info("mail.label.created", "label", name, "id", created.Id)
	g.labels[name] = created.Id
	return created.Id, nil
}

func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, sub := range part.Parts {
		walkParts(sub, fn)
	}
}

func header(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeBase64 accepts the URL alphabet the API uses, padded or not, and falls
// back to the standard alphabet.
func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode attachment data: %w", err)
	}
	return data, nil
}
