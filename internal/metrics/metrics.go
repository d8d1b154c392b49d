package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InquiriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "site_inquiries_created_total",
		Help: "Inquiries stored by the inquiry repository.",
	})

	InquiryMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_inquiry_mutations_total",
		Help: "Admin inquiry mutations by operation and outcome.",
	}, []string{"op", "result"})

	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "site_inquiry_feed_subscribers",
		Help: "Active inquiry change feed subscriptions.",
	})

	NotificationsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "site_admin_notifications_emitted_total",
		Help: "Notifications synthesised from new inquiries.",
	})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_emails_sent_total",
		Help: "Outgoing emails by result.",
	}, []string{"result"})

	AdminSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "site_admin_sessions",
		Help: "Connected admin dashboard sessions.",
	})
)

// Result returns the label value for an operation outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
