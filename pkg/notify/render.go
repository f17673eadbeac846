package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"slices"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"golang.org/x/text/language"

	"github.com/dmitrymomot/billingkit/pkg/dispatch"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// Content is the rendered form of an intent.
type Content struct {
	Subject string
	HTML    string
	Tag     string
}

// Renderer turns an intent into email content. ok is false for kinds the
// renderer does not notify about.
type Renderer interface {
	Render(ctx context.Context, intent dispatch.Intent) (content Content, ok bool, err error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, intent dispatch.Intent) (Content, bool, error)

func (f RendererFunc) Render(ctx context.Context, intent dispatch.Intent) (Content, bool, error) {
	return f(ctx, intent)
}

// View is the data passed to templates.
type View struct {
	Product        string
	PlanID         string
	PreviousPlanID string
	Feature        string
	Metric         string
	Threshold      string
	Usage          string
	Limit          string
	Amount         string
	EffectiveAt    string
	OfferEffect    string
	Reason         string
}

type template struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// TemplateRenderer renders a fixed set of intent kinds with Go templates.
type TemplateRenderer struct {
	product   string
	lang      language.Tag
	templates map[dispatch.Kind]template
}

// RendererOption configures a TemplateRenderer.
type RendererOption func(*TemplateRenderer)

// WithLanguage sets the locale used for amounts.
func WithLanguage(tag language.Tag) RendererOption {
	return func(r *TemplateRenderer) { r.lang = tag }
}

// WithTemplate overrides or adds the templates for one kind.
// Panics when either template fails to parse.
func WithTemplate(kind dispatch.Kind, subject, body string) RendererOption {
	t := mustTemplate(string(kind), subject, body)
	return func(r *TemplateRenderer) { r.templates[kind] = t }
}

// NewTemplateRenderer returns a renderer with the built-in templates.
func NewTemplateRenderer(product string, opts ...RendererOption) *TemplateRenderer {
	r := &TemplateRenderer{
		product:   product,
		lang:      language.English,
		templates: make(map[dispatch.Kind]template, len(defaultTemplates)),
	}
	for kind, t := range defaultTemplates {
		r.templates[kind] = mustTemplate(string(kind), t[0], t[1])
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kinds lists the intent kinds this renderer produces content for.
func (r *TemplateRenderer) Kinds() []dispatch.Kind {
	kinds := make([]dispatch.Kind, 0, len(r.templates))
	for k := range r.templates {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func (r *TemplateRenderer) Render(_ context.Context, intent dispatch.Intent) (Content, bool, error) {
	t, ok := r.templates[intent.Kind]
	if !ok {
		return Content{}, false, nil
	}
	view := r.view(intent)

	var subject bytes.Buffer
	if err := t.subject.Execute(&subject, view); err != nil {
		return Content{}, true, errors.Join(ErrRenderFailed, err)
	}
	var body bytes.Buffer
	if err := t.body.Execute(&body, view); err != nil {
		return Content{}, true, errors.Join(ErrRenderFailed, err)
	}
	return Content{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    body.String(),
		Tag:     strings.ReplaceAll(string(intent.Kind), ".", "-"),
	}, true, nil
}

func (r *TemplateRenderer) view(intent dispatch.Intent) View {
	v := View{
		Product:        r.product,
		PlanID:         intent.Attr(dispatch.AttrPlanID),
		PreviousPlanID: intent.Attr(dispatch.AttrPreviousPlanID),
		Feature:        intent.Attr(dispatch.AttrFeature),
		Metric:         intent.Attr(dispatch.AttrMetric),
		Threshold:      intent.Attr(dispatch.AttrThreshold),
		Usage:          intent.Attr(dispatch.AttrUsage),
		Limit:          intent.Attr(dispatch.AttrLimit),
		OfferEffect:    strings.ReplaceAll(intent.Attr(dispatch.AttrOfferEffect), "_", " "),
		Reason:         intent.Attr(dispatch.AttrReason),
	}
	if raw := intent.Attr(dispatch.AttrAmount); raw != "" {
		if amount, err := strconv.ParseInt(raw, 10, 64); err == nil {
			v.Amount = plan.Money{Amount: amount, Currency: intent.Attr(dispatch.AttrCurrency)}.Format(r.lang)
		}
	}
	if raw := intent.Attr(dispatch.AttrEffectiveAt); raw != "" {
		if at, err := time.Parse(time.RFC3339, raw); err == nil {
			v.EffectiveAt = at.UTC().Format("January 2, 2006")
		}
	}
	return v
}

func mustTemplate(name, subject, body string) template {
	s, err := texttemplate.New(name + ".subject").Parse(subject)
	if err != nil {
		panic(fmt.Errorf("notify: parse subject template %s: %w", name, err))
	}
	b, err := htmltemplate.New(name + ".html").Parse(body)
	if err != nil {
		panic(fmt.Errorf("notify: parse body template %s: %w", name, err))
	}
	return template{subject: s, body: b}
}

// subject, body
var defaultTemplates = map[dispatch.Kind][2]string{
	dispatch.KindThresholdCrossed: {
		`You have used {{.Threshold}}% of your {{.Feature}} allowance`,
		`<p>Your {{.Product}} workspace has used {{.Usage}} of {{.Limit}} {{.Metric}} for {{.Feature}}.</p>` +
			`<p>Upgrade your plan to avoid interruptions.</p>`,
	},
	dispatch.KindTrialEnded: {
		`Your {{.Product}} trial has ended`,
		`<p>Your trial of the {{.PlanID}} plan has ended.</p>` +
			`{{if .Amount}}<p>Your first payment of {{.Amount}} is due now.</p>{{end}}`,
	},
	dispatch.KindSubscriptionCancelled: {
		`Your {{.Product}} subscription has been cancelled`,
		`<p>Your {{.PlanID}} subscription is cancelled.</p>` +
			`{{if .EffectiveAt}}<p>You keep access until {{.EffectiveAt}}.</p>{{end}}`,
	},
	dispatch.KindOfferCreated: {
		`Before you go: an offer to keep {{.Product}}`,
		`<p>We would like to offer you a {{.OfferEffect}} on your {{.PlanID}} plan.</p>` +
			`{{if .EffectiveAt}}<p>The offer is valid until {{.EffectiveAt}}.</p>{{end}}`,
	},
	dispatch.KindSubscriptionExpired: {
		`Your {{.Product}} subscription has expired`,
		`<p>Your subscription has ended and your workspace is back on the free plan.</p>`,
	},
	dispatch.KindPlanChanged: {
		`Your {{.Product}} plan is changing to {{.PlanID}}`,
		`<p>Your plan changes from {{.PreviousPlanID}} to {{.PlanID}}{{if .EffectiveAt}} on {{.EffectiveAt}}{{end}}.</p>` +
			`{{if .Amount}}<p>Amount due: {{.Amount}}.</p>{{end}}`,
	},
	dispatch.KindRenewalDue: {
		`Your {{.Product}} subscription renewed`,
		`<p>Your {{.PlanID}} subscription renewed{{if .EffectiveAt}} on {{.EffectiveAt}}{{end}}.</p>` +
			`{{if .Amount}}<p>Amount due: {{.Amount}}.</p>{{end}}`,
	},
}
