package reconcile

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/huntyio/membership/app/models"
	"github.com/huntyio/membership/internal/pkg/treli"
)

// productMonths maps sellable product names to their billing period.
var productMonths = map[string]int{
	"Hunty Pro Mensual":        1,
	"Hunty Pro Trimestral UP.": 3,
	"Hunty Pro Trimestral":     3,
	"Hunty Pro Semestral":      6,
	"Hunty Pro Anual":          12,
}

// ProductMonths returns the billing period of a product and whether it is known.
func ProductMonths(name string) (int, bool) {
	n, ok := productMonths[name]
	return n, ok
}

// AddMonths adds n calendar months, clamping to the last day of the target
// month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return first.AddDate(0, 0, d-1)
}

// NextPaymentDate is paidAt plus the product's billing period. Unknown
// products renew on the payment date itself.
func NextPaymentDate(itemName string, paidAt time.Time) time.Time {
	n, _ := ProductMonths(itemName)
	return AddMonths(paidAt, n)
}

// Classify routes an event to a pipeline. Only payment events for a known
// product take the payment pipeline; everything else is treated as a
// subscription lifecycle event.
func Classify(ev *treli.WebhookEvent) string {
	if !ev.IsPaymentEvent() {
		return models.PipelineSubscription
	}
	name := ev.ItemName()
	if _, ok := productMonths[name]; ok {
		return models.PipelinePayment
	}
	log.Warnf("[Reconcile] %s for unknown product %q routed to the subscription pipeline", ev.EventType, strings.TrimSpace(name))
	return models.PipelineSubscription
}
