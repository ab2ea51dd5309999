// Package notifier delivers status-change messages to the configured chat.
//
// Delivery is synchronous: Deliver returns once the message was sent or every
// retry failed. Sends are paced by a token bucket and retried with jittered
// exponential backoff. Every final outcome is logged, counted, published on
// the event bus and, when storage is enabled, appended to the journal.
//
// A failed delivery is reported as *DeliveryError. Callers log it and carry
// on; it never means the poll cycle itself failed.
package notifier
