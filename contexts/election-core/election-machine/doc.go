// Package electionmachine implements the commit/reveal election state machine
// inside the election-core context.
//
// The module owns the full election lifecycle: creation, pause control,
// write-once participant registration, exactly-once commitment casting inside
// an inclusive voting window, and the one-way all-or-nothing reveal that
// produces the tally. Business rules live in the application/domain layers;
// infrastructure stays behind ports and adapters, and notifications leave the
// module only through the transactional outbox.
package electionmachine
