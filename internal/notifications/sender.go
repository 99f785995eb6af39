package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

// Multicast is one notification addressed to many device tokens.
type Multicast struct {
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data"`
	Tokens []string          `json:"tokens"`
}

// BatchReport is the gateway's per-token verdict, aggregated.
type BatchReport struct {
	SuccessCount int
	FailureCount int
	Failures     []TokenFailure
}

// TokenFailure is one token the gateway rejected.
type TokenFailure struct {
	Token string
	Error string
}

// Sender submits a multicast to a push gateway. An error means the request
// as a whole failed; per-token rejections are reported in BatchReport.
type Sender interface {
	SendMulticast(ctx context.Context, msg Multicast) (*BatchReport, error)
}

// BuildMulticast renders the event-start notification for ev.
func BuildMulticast(ev Event, tokens []string) Multicast {
	return Multicast{
		Title: notificationTitle,
		Body:  fmt.Sprintf("The event \"%s\" will start soon.", ev.Name),
		Data: map[string]string{
			"eventId":     strconv.FormatInt(ev.ID, 10),
			"type":        notificationType,
			"clickAction": clickAction,
		},
		Tokens: tokens,
	}
}

// LogSender logs every multicast instead of sending it. Used when no
// gateway is configured so the rest of the pipeline still runs.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a LogSender writing to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendMulticast(_ context.Context, msg Multicast) (*BatchReport, error) {
	if len(msg.Tokens) == 0 {
		return nil, ErrNoTokens
	}
	s.logger.Info("Push send (log gateway)",
		"tokens", len(msg.Tokens), "title", msg.Title, "body", msg.Body,
		"event_id", msg.Data["eventId"])
	return &BatchReport{SuccessCount: len(msg.Tokens)}, nil
}
