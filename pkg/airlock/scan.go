package airlock

import (
	"context"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/engine"
)

// VerdictNoThreats is the scanner verdict for a clean blob. Any other
// verdict string is treated as a threat.
const VerdictNoThreats = "No threats found"

// blobURIPattern extracts the storage account, container and blob path from
// a scanned blob URI. The container name is the airlock request id.
var blobURIPattern = regexp.MustCompile(`^https://(.*?)\.blob\.core\.windows\.net/(.*?)/(.*)$`)

// ScanResultEvent is the inbound malware-scan outcome for one uploaded blob.
type ScanResultEvent struct {
	BlobURI string `json:"blobUri"`
	Verdict string `json:"verdict"`
}

// StepResultEvent reports a completed processing stage back to the event
// stream after a scan verdict has been applied.
type StepResultEvent struct {
	CompletedStep string `json:"completed_step"`
	NewStatus     Status `json:"new_status"`
	RequestID     string `json:"request_id"`
}

// completedStepSubmitted names the stage a scan verdict concludes.
const completedStepSubmitted = "submitted"

// ScanProcessor turns scan verdicts into status transitions.
type ScanProcessor struct {
	machine         *StateMachine
	scanningEnabled bool
	logger          zerolog.Logger
}

// NewScanProcessor creates a verdict processor. scanningEnabled mirrors the
// deployment configuration: when scanning is disabled no scanner should
// exist, so any verdict arriving is a control-plane misconfiguration.
func NewScanProcessor(machine *StateMachine, scanningEnabled bool, logger zerolog.Logger) *ScanProcessor {
	return &ScanProcessor{
		machine:         machine,
		scanningEnabled: scanningEnabled,
		logger:          logger.With().Str("component", "airlock_scan").Logger(),
	}
}

// RequestIDFromBlobURI extracts the airlock request id from a scanned blob
// URI, which is its container name.
func RequestIDFromBlobURI(blobURI string) (string, error) {
	match := blobURIPattern.FindStringSubmatch(blobURI)
	if match == nil {
		return "", engine.NewValidationError("malformed blob uri in scan result: "+blobURI, nil)
	}
	return match[2], nil
}

// Process applies a scan verdict to the request the scanned blob belongs
// to. A clean verdict moves the request to in_review; any other verdict
// moves it to blocking_in_progress. A verdict arriving while scanning is
// disabled is a configuration error and the event must not be consumed
// silently.
func (p *ScanProcessor) Process(ctx context.Context, event ScanResultEvent, user engine.User) (*StepResultEvent, error) {
	if !p.scanningEnabled {
		return nil, engine.NewConfigurationError("received a scan result while malware scanning is disabled", nil)
	}

	requestID, err := RequestIDFromBlobURI(event.BlobURI)
	if err != nil {
		return nil, err
	}

	newStatus := StatusBlockingInProgress
	if event.Verdict == VerdictNoThreats {
		newStatus = StatusInReview
	} else {
		p.logger.Warn().
			Str("request_id", requestID).
			Str("verdict", event.Verdict).
			Msg("scan verdict reported threats, blocking request")
	}

	if _, err := p.machine.UpdateStatus(ctx, requestID, newStatus, user, "scan verdict: "+event.Verdict); err != nil {
		return nil, err
	}

	return &StepResultEvent{
		CompletedStep: completedStepSubmitted,
		NewStatus:     newStatus,
		RequestID:     requestID,
	}, nil
}
