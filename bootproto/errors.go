package bootproto

// nackReason classifies why a command was NACKed, for logging only — the
// wire only ever carries a single NACK byte, never a reason code, matching
// spec.md's error taxonomy (errors do not persist across commands and the
// host learns only "this command failed").
type nackReason string

const (
	reasonArgument nackReason = "invalid-argument"
	reasonCRC      nackReason = "crc-mismatch"
	reasonFlash    nackReason = "flash-error"
	reasonTimeout  nackReason = "timeout"
)
