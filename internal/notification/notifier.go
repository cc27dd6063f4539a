package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"authlog-service/internal/config"
	"authlog-service/internal/models"
	"authlog-service/internal/util"
)

// Payload is the channel-independent content of an alert. Channel senders
// render it however their medium wants.
type Payload struct {
	Subject    string   `json:"subject"`
	Title      string   `json:"title"`
	Lines      []string `json:"lines"`
	Suspicious bool     `json:"suspicious"`
}

// Sender delivers a rendered alert over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, recipient string, payload Payload) error
}

// RecipientResolver maps a subject to its notification address. Returning
// an empty string skips user delivery for that subject.
type RecipientResolver func(ctx context.Context, subject models.Subject) (string, error)

// Notifier fans alerts out to the configured channels. Delivery is best
// effort: failures are logged per channel and never surface to callers, so
// a dead SMTP relay cannot fail a login.
type Notifier struct {
	config        *config.Config
	senders       []Sender
	adminWebhooks Sender
	resolver      RecipientResolver
	logger        *zap.Logger
}

func NewNotifier(cfg *config.Config, senders []Sender, adminWebhooks Sender, resolver RecipientResolver, logger *zap.Logger) *Notifier {
	return &Notifier{
		config:        cfg,
		senders:       senders,
		adminWebhooks: adminWebhooks,
		resolver:      resolver,
		logger:        logger,
	}
}

// LoginAlert notifies the subject about a recorded login. The processor has
// already applied the only-on-suspicious gate; this method just delivers.
func (n *Notifier) LoginAlert(ctx context.Context, record *models.AuthLog, suspicious bool) {
	title := "New login to your account"
	if suspicious {
		title = "Suspicious login to your account"
	}

	payload := Payload{
		Subject:    n.config.Notification.Subject,
		Title:      title,
		Suspicious: suspicious,
		Lines: []string{
			"Time: " + record.CreatedAt.Format(time.RFC1123),
			"Location: " + record.FormattedLocation(),
			"Device: " + record.DeviceSummary(),
			"IP address: " + record.IPAddress,
		},
	}
	if record.IsNewDevice {
		payload.Lines = append(payload.Lines, "This login came from a device not seen before.")
	}
	if record.IsNewLocation {
		payload.Lines = append(payload.Lines, "This login came from a location not seen before.")
	}

	n.deliverToSubject(ctx, record.Subject(), payload)
}

// SessionHijackAlert notifies the subject and the configured admins that a
// session failed its integrity check and was terminated.
func (n *Notifier) SessionHijackAlert(ctx context.Context, subject models.Subject, rc models.RequestContext) {
	payload := Payload{
		Subject:    "Session security alert",
		Title:      "Your session was terminated",
		Suspicious: true,
		Lines: []string{
			"Time: " + time.Now().UTC().Format(time.RFC1123),
			"A request in your session did not match the device that signed in.",
			"The session was closed as a precaution. Please sign in again.",
			"IP address: " + rc.IP,
		},
	}

	guard := n.config.SessionTrack.Fingerprint
	if guard.NotifyUser {
		n.deliverToSubject(ctx, subject, payload)
	}
	if guard.NotifyAdmins {
		n.deliverToAdmins(ctx, subject, payload)
	}
}

func (n *Notifier) deliverToSubject(ctx context.Context, subject models.Subject, payload Payload) {
	recipient := ""
	if n.resolver != nil && !subject.IsZero() {
		resolved, err := n.resolver(ctx, subject)
		if err != nil {
			n.logger.Warn("failed to resolve notification recipient",
				util.String("subject", subject.String()),
				util.ErrorField(err))
		} else {
			recipient = resolved
		}
	}

	n.fanOut(ctx, n.senders, []string{recipient}, payload)
}

func (n *Notifier) deliverToAdmins(ctx context.Context, subject models.Subject, payload Payload) {
	payload.Lines = append(payload.Lines, "Affected account: "+subject.String())

	var mail Sender
	for _, s := range n.senders {
		if s.Name() == "mail" {
			mail = s
		}
	}
	if mail != nil && len(n.config.Notification.AdminEmails) > 0 {
		n.fanOut(ctx, []Sender{mail}, n.config.Notification.AdminEmails, payload)
	}
	if n.adminWebhooks != nil && len(n.config.Notification.AdminWebhooks) > 0 {
		n.fanOut(ctx, []Sender{n.adminWebhooks}, n.config.Notification.AdminWebhooks, payload)
	}
}

// fanOut delivers one payload across channels and recipients concurrently.
// Each delivery failure is logged on its own; none abort the rest.
func (n *Notifier) fanOut(ctx context.Context, senders []Sender, recipients []string, payload Payload) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, sender := range senders {
		for _, recipient := range recipients {
			sender, recipient := sender, recipient
			g.Go(func() error {
				if err := sender.Send(gctx, recipient, payload); err != nil {
					n.logger.Warn("notification delivery failed",
						util.String("channel", sender.Name()),
						util.ErrorField(err))
				}
				return nil
			})
		}
	}

	// Errors are swallowed per delivery above; Wait only joins the group.
	if err := g.Wait(); err != nil {
		n.logger.Error("notification fan-out aborted", util.ErrorField(err))
	}
}

func formatBody(payload Payload) string {
	body := payload.Title + "\n\n"
	for _, line := range payload.Lines {
		body += line + "\n"
	}
	return body
}

func renderText(payload Payload) string {
	return fmt.Sprintf("%s\n%s", payload.Subject, formatBody(payload))
}
