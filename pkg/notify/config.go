package notify

// Config holds the outbound email configuration.
// Postmark tokens are optional so development setups can fall back to DevMailer.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"NOTIFY_SENDER_EMAIL,required"`
	SupportEmail         string `env:"NOTIFY_SUPPORT_EMAIL,required"`
	ProductName          string `env:"NOTIFY_PRODUCT_NAME" envDefault:"billingkit"`
	DevOutputDir         string `env:"NOTIFY_DEV_OUTPUT_DIR" envDefault:"./var/mail"`
}

// PostmarkEnabled reports whether both Postmark tokens are set.
func (c Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
