package billingsync

// Config holds the Paddle credentials.
type Config struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	// CustomDataKey is the custom_data field carrying the local subscription id.
	CustomDataKey string `env:"PADDLE_CUSTOM_DATA_KEY" envDefault:"subscription_id"`
}
