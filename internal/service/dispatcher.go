package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clubportal/internal/model"
	"clubportal/pkg/mailer"
	"clubportal/pkg/metrics"
)

// DefaultSendDelay spaces consecutive sends to keep the provider's
// per-second burst rate in bounds. The serialization is deliberate.
const DefaultSendDelay = time.Second

// Transport is the outbound email provider.
type Transport interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// EmailSink appends to the email log; the quota is computed from it.
type EmailSink interface {
	Insert(ctx context.Context, e model.EmailLogEntry) error
}

// Result is the structured outcome of one dispatch batch. Dispatch never
// fails as a whole: quota exhaustion and per-recipient transport failures
// are reported here, not raised.
type Result struct {
	Sent    int      `json:"sent"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Dispatcher sends the email copies of a notification, sequentially, under
// the daily quota.
type Dispatcher struct {
	quota     *QuotaTracker
	log       EmailSink
	transport Transport
	delay     time.Duration
	logger    *zap.Logger
}

func NewDispatcher(quota *QuotaTracker, log EmailSink, transport Transport, delay time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		quota:     quota,
		log:       log,
		transport: transport,
		delay:     delay,
		logger:    logger,
	}
}

// Send emails the notification to every eligible recipient. Recipients who
// opted out of email or are no longer active are skipped but keep their
// in-app delivery record. The batch is truncated to the remaining daily
// quota; excess recipients are counted as skipped with an explanatory
// error rather than silently dropped.
func (d *Dispatcher) Send(ctx context.Context, n *model.Notification, run *model.Run, recipients []model.Member) Result {
	var res Result

	eligible := make([]model.Member, 0, len(recipients))
	for _, m := range recipients {
		if m.Emailable() {
			eligible = append(eligible, m)
		}
	}
	if dropped := len(recipients) - len(eligible); dropped > 0 {
		res.Skipped += dropped
		metrics.RecordEmailsSkipped("opted_out", dropped)
		d.logger.Info("Recipients without email delivery skipped",
			zap.String("notification_id", n.ID),
			zap.Int("count", dropped),
		)
	}

	if len(eligible) == 0 {
		return res
	}

	status, err := d.quota.CanSend(ctx)
	if err != nil {
		res.Skipped += len(eligible)
		res.Errors = append(res.Errors, fmt.Sprintf("quota check failed: %v", err))
		d.logger.Error("Quota check failed, batch skipped",
			zap.String("notification_id", n.ID),
			zap.Error(err),
		)
		return res
	}

	if !status.Allowed {
		res.Skipped += len(eligible)
		res.Errors = append(res.Errors,
			fmt.Sprintf("daily email quota exhausted (%d/%d), %d recipient(s) skipped", status.Total, status.Total, len(eligible)))
		metrics.RecordEmailsSkipped("quota_exhausted", len(eligible))
		d.logger.Warn("Daily email quota exhausted",
			zap.String("notification_id", n.ID),
			zap.Int("skipped", len(eligible)),
		)
		return res
	}

	if len(eligible) > status.Remaining {
		excess := len(eligible) - status.Remaining
		res.Skipped += excess
		res.Errors = append(res.Errors,
			fmt.Sprintf("daily email limit reached: %d recipient(s) skipped (quota remaining %d of %d)", excess, status.Remaining, status.Total))
		metrics.RecordEmailsSkipped("daily_limit", excess)
		d.logger.Warn("Dispatch batch truncated to remaining quota",
			zap.String("notification_id", n.ID),
			zap.Int("remaining", status.Remaining),
			zap.Int("skipped", excess),
		)
		eligible = eligible[:status.Remaining]
	}

	for i, m := range eligible {
		subject, htmlBody, textBody := renderNotification(n, run, m)

		err := d.transport.Send(ctx, mailer.Message{
			ToName:  m.Name,
			ToEmail: m.Email,
			Subject: subject,
			HTML:    htmlBody,
			Text:    textBody,
		})
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("send to %s failed: %v", m.Email, err))
			metrics.RecordEmailFailure("notification")
			d.logger.Error("Email send failed",
				zap.String("notification_id", n.ID),
				zap.String("to", m.Email),
				zap.Error(err),
			)
		} else {
			res.Sent++
			metrics.RecordEmailSent("notification")
			if err := d.log.Insert(ctx, model.EmailLogEntry{RecipientID: m.ID, Subject: subject}); err != nil {
				// The email went out; a log miss only loosens the quota.
				d.logger.Warn("Failed to append email log",
					zap.String("notification_id", n.ID),
					zap.Int("recipient_id", m.ID),
					zap.Error(err),
				)
			}
		}

		if i < len(eligible)-1 && d.delay > 0 {
			time.Sleep(d.delay)
		}
	}

	return res
}

// SendDirect delivers a single standing-obligation email (the digest path),
// bypassing the quota gate and the email log.
func (d *Dispatcher) SendDirect(ctx context.Context, m model.Member, subject, htmlBody, textBody string) error {
	err := d.transport.Send(ctx, mailer.Message{
		ToName:  m.Name,
		ToEmail: m.Email,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		metrics.RecordEmailFailure("digest")
		return err
	}
	metrics.RecordEmailSent("digest")
	return nil
}

// Delay exposes the configured inter-message delay for callers that run
// their own send loops.
func (d *Dispatcher) Delay() time.Duration {
	return d.delay
}
