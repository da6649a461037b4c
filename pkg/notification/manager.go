package notification

import (
	"fmt"
)

// NotificationManager routes notices to registered notifiers using the
// template registered for the notice type and channel.
type NotificationManager struct {
	notifiers map[NotificationSystem]Notifier
	registry  map[NoticeType]map[NotificationSystem]NoticeTemplate
}

// NewNotificationManager creates an empty manager.
func NewNotificationManager() *NotificationManager {
	return &NotificationManager{
		notifiers: make(map[NotificationSystem]Notifier),
		registry:  make(map[NoticeType]map[NotificationSystem]NoticeTemplate),
	}
}

// RegisterNotifier registers a notifier for a delivery channel.
func (nm *NotificationManager) RegisterNotifier(system NotificationSystem, notifier Notifier) {
	nm.notifiers[system] = notifier
}

// RegisterNotification registers the template used for a notice type on a
// channel.
func (nm *NotificationManager) RegisterNotification(noticeType NoticeType, system NotificationSystem, template NoticeTemplate) error {
	if noticeType == "" || system == "" {
		return fmt.Errorf("invalid input: notice type and system cannot be empty")
	}

	if _, exists := nm.registry[noticeType]; !exists {
		nm.registry[noticeType] = make(map[NotificationSystem]NoticeTemplate)
	}
	nm.registry[noticeType][system] = template
	return nil
}

// Send delivers a notice through the given channel.
func (nm *NotificationManager) Send(noticeType NoticeType, system NotificationSystem, notification NotificationData) error {
	systemTemplates, exists := nm.registry[noticeType]
	if !exists {
		return fmt.Errorf("no templates registered for notice type: %s", noticeType)
	}

	template, exists := systemTemplates[system]
	if !exists {
		return fmt.Errorf("no template registered for system %s under notice type %s", system, noticeType)
	}

	notifier, exists := nm.notifiers[system]
	if !exists {
		return fmt.Errorf("no notifier registered for system: %s", system)
	}

	return notifier.Send(noticeType, notification, template)
}

// NotificationManagerOption configures a NotificationManager.
type NotificationManagerOption func(*NotificationManager) error

// WithSMTP adds an email notifier with the provided SMTP configuration.
func WithSMTP(config SMTPConfig) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		emailNotifier, err := NewEmailNotifier(config)
		if err != nil {
			return err
		}
		nm.RegisterNotifier(EmailSystem, emailNotifier)
		return nil
	}
}

// WithTwilio adds an SMS notifier with the provided Twilio configuration.
func WithTwilio(config TwilioConfig) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		nm.RegisterNotifier(SMSSystem, NewSMSNotifier(config))
		return nil
	}
}

// WithDefaultTemplates registers the verification-code templates on both
// channels.
func WithDefaultTemplates() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		templates := []struct {
			noticeType NoticeType
			system     NotificationSystem
			template   NoticeTemplate
		}{
			{TwoFactorCode, SMSSystem, NoticeTemplate{
				Text: "Your Spendlyzer verification code is: {{.Code}}",
			}},
			{TwoFactorCode, EmailSystem, NoticeTemplate{
				Subject: "Your verification code",
				Text:    "Your Spendlyzer verification code is: {{.Code}}\n\nThis code expires in 10 minutes.",
			}},
			{TwoFactorSetupCode, SMSSystem, NoticeTemplate{
				Text: "Your Spendlyzer setup code is: {{.Code}}",
			}},
			{TwoFactorSetupCode, EmailSystem, NoticeTemplate{
				Subject: "Confirm your two-factor setup",
				Text:    "Your Spendlyzer setup code is: {{.Code}}\n\nThis code expires in 10 minutes.",
			}},
		}

		for _, t := range templates {
			if err := nm.RegisterNotification(t.noticeType, t.system, t.template); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewNotificationManagerWithOptions creates a manager with the provided
// options applied.
func NewNotificationManagerWithOptions(opts ...NotificationManagerOption) (*NotificationManager, error) {
	nm := NewNotificationManager()
	for _, opt := range opts {
		if err := opt(nm); err != nil {
			return nil, err
		}
	}
	return nm, nil
}
