package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// TenantID records the tenant identifier under the key "tenant_id".
// If id is nil, it returns an empty Attr.
func TenantID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("tenant_id", id)
}

// SubscriptionID records the subscription identifier under the key "subscription_id".
// If id is nil, it returns an empty Attr.
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// OfferID records the retention offer identifier under the key "offer_id".
// If id is nil, it returns an empty Attr.
func OfferID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("offer_id", id)
}

func PlanID(id string) slog.Attr {
	return slog.String("plan_id", id)
}

func Feature(name string) slog.Attr {
	return slog.String("feature", name)
}

func Metric(name string) slog.Attr {
	return slog.String("metric", name)
}

// State records a subscription state under the key "state".
func State(state string) slog.Attr {
	return slog.String("state", state)
}

// Command records the lifecycle command being executed.
func Command(name string) slog.Attr {
	return slog.String("command", name)
}

// Intent records the kind of an outbound side-effect intent.
func Intent(kind string) slog.Attr {
	return slog.String("intent", kind)
}

// Threshold records a usage alert threshold in percent.
func Threshold(percent int) slog.Attr {
	return slog.Int("threshold", percent)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
