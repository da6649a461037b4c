package notification

// NotificationSystem is a delivery channel (email, SMS).
type NotificationSystem string

// NoticeType identifies a kind of notice sent to users.
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"
	SMSSystem   NotificationSystem = "sms"

	// TwoFactorCode is the code delivered during login verification.
	TwoFactorCode NoticeType = "two_factor_code"
	// TwoFactorSetupCode is the code delivered while enabling a method.
	TwoFactorSetupCode NoticeType = "two_factor_setup_code"
)

// NotificationData carries the per-send parameters.
type NotificationData struct {
	To   string            // email address or phone number
	Body string            // optional pre-rendered body, overrides the template
	Data map[string]string // template variables
}

// NoticeTemplate holds the renderable content for a notice.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// Notifier delivers a notice through one channel.
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
