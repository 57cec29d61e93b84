package safety

// Options carries the safety-related flags shared by all commands.
type Options struct {
	// DryRun means no mutating backend call may be issued.
	DryRun bool
	// Yes skips confirmation prompts.
	Yes bool
}
