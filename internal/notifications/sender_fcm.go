package notifications

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// fcmMaxTokens is the FCM limit on tokens per multicast request.
const fcmMaxTokens = 500

type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender sends push notifications via Firebase Cloud Messaging.
type FCMSender struct {
	client multicastClient
	logger *slog.Logger
}

// NewFCMSender creates an FCM sender from a service account credentials
// file. An empty file falls back to application default credentials.
func NewFCMSender(ctx context.Context, credentialsFile, projectID string, logger *slog.Logger) (*FCMSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	return &FCMSender{client: client, logger: logger}, nil
}

// SendMulticast sends msg to all its tokens. Token lists above the FCM
// request limit are split into several requests; the reports are merged.
// A failed request counts its whole chunk as per-token failures and the
// remaining chunks are still sent. An error is returned only when no chunk
// was delivered, so a partial delivery is never reported as a failed send.
func (s *FCMSender) SendMulticast(ctx context.Context, msg Multicast) (*BatchReport, error) {
	if s == nil {
		return nil, ErrSenderDisabled
	}
	if len(msg.Tokens) == 0 {
		return nil, ErrNoTokens
	}

	report := &BatchReport{}
	delivered := 0
	var firstErr error
	for start := 0; start < len(msg.Tokens); start += fcmMaxTokens {
		end := min(start+fcmMaxTokens, len(msg.Tokens))
		chunk := msg.Tokens[start:end]

		resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: chunk,
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: msg.Data,
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					ClickAction: msg.Data["clickAction"],
				},
			},
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Warn("FCM chunk failed", "offset", start, "tokens", len(chunk), "error", err)
			report.FailureCount += len(chunk)
			for _, tok := range chunk {
				report.Failures = append(report.Failures, TokenFailure{Token: tok, Error: err.Error()})
			}
			continue
		}
		delivered++

		report.SuccessCount += resp.SuccessCount
		report.FailureCount += resp.FailureCount
		for i, r := range resp.Responses {
			if r == nil || r.Success || i >= len(chunk) {
				continue
			}
			reason := "unknown"
			if r.Error != nil {
				reason = r.Error.Error()
			}
			report.Failures = append(report.Failures, TokenFailure{Token: chunk[i], Error: reason})
		}
	}

	if delivered == 0 {
		return report, fmt.Errorf("send multicast: %w", firstErr)
	}

	s.logger.Debug("FCM multicast sent",
		"tokens", len(msg.Tokens), "success", report.SuccessCount, "failure", report.FailureCount)
	return report, nil
}
