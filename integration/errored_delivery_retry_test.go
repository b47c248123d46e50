//go:build integration
// +build integration

package integration

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	h "peopleops/webhook-outbox-relay/integration/http"
	"peopleops/webhook-outbox-relay/outbox"
)

func TestErroredDeliveryIsRescheduledWithBackoff(t *testing.T) {
	purgeOutboxTables()
	h.Reset()

	Convey("Given a destination that is temporarily unavailable", t, func() {
		h.FailNextRequests("/hooks/crm", 1)

		e := &outbox.Entry{
			TenantId:    "acme",
			EventType:   "EMPLOYEE_CREATED",
			Destination: "crm",
			Payload:     encodeTestEnvelope(`{"employeeId": "e-200"}`),
		}
		insertOutboxEntries([]*outbox.Entry{e})

		Convey("When a dispatch pass runs", func() {
			runDispatchPass(cfg)

			Convey("Then the entry is rescheduled for a later attempt", func() {
				stored := getOutboxEntry(e.Id)
				So(stored, ShouldNotBeNil)
				So(stored.Status, ShouldEqual, outbox.StatusPending)
				So(stored.Attempts, ShouldEqual, 1)
				So(stored.LastError.Valid, ShouldBeTrue)
				So(stored.NextAttemptAt.Time.After(time.Now()), ShouldBeTrue)

				Convey("And it is delivered once the destination recovers and the entry is due", func() {
					makeEntryDue(e.Id)
					runDispatchPass(cfg)

					So(h.WebhookCount("/hooks/crm"), ShouldEqual, 1)

					stored = getOutboxEntry(e.Id)
					So(stored.Status, ShouldEqual, outbox.StatusCompleted)
				})
			})
		})
	})
}

func TestExhaustedDeliveryMovesToDeadLetterStore(t *testing.T) {
	purgeOutboxTables()
	h.Reset()

	Convey("Given a notification on its final permitted attempt", t, func() {
		h.FailNextRequests("/hooks/crm", 1)

		e := &outbox.Entry{
			TenantId:    "acme",
			EventType:   "EMPLOYEE_CREATED",
			Destination: "crm",
			Payload:     encodeTestEnvelope(`{"employeeId": "e-201"}`),
			Attempts:    4,
		}
		insertOutboxEntries([]*outbox.Entry{e})

		Convey("When the delivery fails again", func() {
			runDispatchPass(cfg)

			Convey("Then the entry moves to the dead letter store", func() {
				So(outboxEntryExists(e.Id), ShouldBeFalse)
				So(deadLetterEntryExists(e.Id), ShouldBeTrue)
			})
		})
	})
}
