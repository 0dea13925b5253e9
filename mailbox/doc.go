// Package mailbox implements a durable, at-least-once inter-agent mailbox
// on top of a Redis-streams-compatible log.
//
// Each agent owns one inbox stream. Peers deposit MailboxMessage values into
// that stream with SendMessage; the owning agent consumes them through a
// registered set of handlers via MailboxService. Messages delivered but not
// yet acknowledged before a restart are reclaimed by the recovery engine the
// next time the service for that agent starts.
package mailbox
