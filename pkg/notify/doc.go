// Package notify emails tenants about billing events.
//
// A Sink consumes dispatch intents, renders the kinds it knows into an email
// with a Renderer, resolves the tenant's billing contact and hands the message
// to a Mailer. Two mailers ship with the package: a Postmark mailer for
// production and DevMailer, which writes messages to disk.
//
//	sink, err := notify.NewSinkFromConfig(cfg, notify.RecipientFunc(lookupBillingEmail))
//	if err != nil {
//		return err
//	}
//	queue := dispatch.NewQueue(sink)
//
// Content templating is deliberately small. Applications with their own
// templates supply a Renderer or override single kinds with WithTemplate.
package notify
