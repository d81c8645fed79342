package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/resilience"
)

const (
	queueGroup = "classifiers"

	headerEvent   = "Photo-Event"
	headerPhotoID = "Photo-Id"
	// headerMsgID lets a JetStream stream on the subject drop republished events.
	headerMsgID = "Nats-Msg-Id"

	eventIngested = "ingested"
)

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// DrainTimeout bounds the final flush after the subscription drains.
	DrainTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	if o.RetryOnFailedConnect == nil {
		retry := true
		o.RetryOnFailedConnect = &retry
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 5 * time.Second
	}
	return o
}

// Queue announces newly ingested photos on one subject. The payload is the
// decimal photo id; headers repeat it for tooling that inspects messages.
type Queue struct {
	conn    *nats.Conn
	subject string
	opts    Options
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, domain.WrapError(domain.ErrConfig, "nats queue", fmt.Errorf("subject is empty"))
	}
	opts := options.withDefaults()

	conn, err := nats.Connect(
		url,
		nats.Name("sd-photo-assistant"),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(*opts.RetryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "subject", subject, "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "connect nats", err)
	}
	return &Queue{conn: conn, subject: subject, opts: opts}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func ingestedMessage(subject string, photoID int64) *nats.Msg {
	id := strconv.FormatInt(photoID, 10)
	msg := nats.NewMsg(subject)
	msg.Data = []byte(id)
	msg.Header.Set(headerEvent, eventIngested)
	msg.Header.Set(headerPhotoID, id)
	msg.Header.Set(headerMsgID, "photo-"+eventIngested+"-"+id)
	return msg
}

func (q *Queue) PublishPhotoIngested(ctx context.Context, photoID int64) error {
	msg := ingestedMessage(q.subject, photoID)
	publish := func(context.Context, int) error {
		return q.conn.PublishMsg(msg)
	}

	var err error
	if q.opts.ResilienceExecutor != nil {
		_, err = q.opts.ResilienceExecutor.Execute(ctx, "nats.publish", publish, publishPolicy)
	} else {
		err = publish(ctx, 1)
	}
	return publishError(photoID, err)
}

// SubscribePhotoIngested joins the classifier queue group and blocks until ctx
// is done. Messages in flight finish before it returns.
func (q *Queue) SubscribePhotoIngested(ctx context.Context, handler func(context.Context, int64) error) error {
	var handled, failed, rejected atomic.Int64
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		photoID, err := photoIDFrom(msg)
		if err != nil {
			rejected.Add(1)
			slog.Warn("nats_message_rejected", "subject", msg.Subject, "error", err)
			return
		}
		handled.Add(1)
		if err := handler(ctx, photoID); err != nil {
			failed.Add(1)
			slog.Error("photo_event_handler_failed", "photo_id", photoID, "error", err)
		}
	})
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "nats subscribe", err)
	}
	if err := q.conn.Flush(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "nats flush", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(q.opts.DrainTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	slog.Info("nats_subscription_drained",
		"subject", q.subject,
		"handled", handled.Load(),
		"failed", failed.Load(),
		"rejected", rejected.Load(),
	)
	return nil
}

// photoIDFrom reads the id from the payload. Messages tagged with another
// event type are rejected.
func photoIDFrom(msg *nats.Msg) (int64, error) {
	if event := msg.Header.Get(headerEvent); event != "" && event != eventIngested {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse photo event", fmt.Errorf("unexpected event %q", event))
	}
	return ParsePhotoID(msg.Data)
}

func ParsePhotoID(data []byte) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse photo event", fmt.Errorf("payload %q", string(data)))
	}
	return id, nil
}
