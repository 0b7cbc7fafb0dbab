package job

// Request identifies one unit of work: an input object and an output
// prefix, both as gs:// locators. Values are never mutated after creation.
type Request struct {
	SourceLocator      string `json:"source_locator"`
	DestinationLocator string `json:"destination_locator"`
}

// Response is the acknowledgment returned to the submitter. Completion is
// observed through the lifecycle tracker and the run store, not through
// this value.
type Response struct{}
