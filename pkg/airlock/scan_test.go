package airlock

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/engine"
)

func scanFixture(t *testing.T, scanningEnabled bool) (*ScanProcessor, *mockStore, *AirlockRequest) {
	t.Helper()
	machine, store, _ := newFixture()
	request := draftRequest(t, machine)
	if _, err := machine.UpdateStatus(context.Background(), request.ID, StatusSubmitted, requestUser(), ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	return NewScanProcessor(machine, scanningEnabled, zerolog.Nop()), store, request
}

func blobURIFor(requestID string) string {
	return "https://stalimextre.blob.core.windows.net/" + requestID + "/data/export.csv"
}

func TestRequestIDFromBlobURI(t *testing.T) {
	got, err := RequestIDFromBlobURI("https://stalimextre.blob.core.windows.net/req-123/some/path.bin")
	if err != nil {
		t.Fatalf("RequestIDFromBlobURI() error = %v", err)
	}
	if got != "req-123" {
		t.Errorf("request id = %s, want req-123", got)
	}

	if _, err := RequestIDFromBlobURI("https://example.org/not/a/blob"); !engine.IsValidation(err) {
		t.Fatalf("RequestIDFromBlobURI() malformed uri error = %v, want validation", err)
	}
}

func TestProcessCleanVerdictMovesToInReview(t *testing.T) {
	processor, store, request := scanFixture(t, true)

	result, err := processor.Process(context.Background(), ScanResultEvent{
		BlobURI: blobURIFor(request.ID),
		Verdict: VerdictNoThreats,
	}, requestUser())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.NewStatus != StatusInReview {
		t.Errorf("new status = %s, want %s", result.NewStatus, StatusInReview)
	}
	if result.CompletedStep != "submitted" {
		t.Errorf("completed step = %s, want submitted", result.CompletedStep)
	}
	if result.RequestID != request.ID {
		t.Errorf("request id = %s, want %s", result.RequestID, request.ID)
	}
	if stored := store.requests[request.ID]; stored.Status != StatusInReview {
		t.Errorf("stored status = %s, want %s", stored.Status, StatusInReview)
	}
}

func TestProcessThreatVerdictBlocksRequest(t *testing.T) {
	processor, store, request := scanFixture(t, true)

	result, err := processor.Process(context.Background(), ScanResultEvent{
		BlobURI: blobURIFor(request.ID),
		Verdict: "Malware detected: EICAR-Test-File",
	}, requestUser())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.NewStatus != StatusBlockingInProgress {
		t.Errorf("new status = %s, want %s", result.NewStatus, StatusBlockingInProgress)
	}
	if stored := store.requests[request.ID]; stored.Status != StatusBlockingInProgress {
		t.Errorf("stored status = %s, want %s", stored.Status, StatusBlockingInProgress)
	}
}

func TestProcessWithScanningDisabledIsConfigurationError(t *testing.T) {
	processor, store, request := scanFixture(t, false)

	_, err := processor.Process(context.Background(), ScanResultEvent{
		BlobURI: blobURIFor(request.ID),
		Verdict: VerdictNoThreats,
	}, requestUser())
	if !engine.IsConfiguration(err) {
		t.Fatalf("Process() error = %v, want configuration", err)
	}
	if stored := store.requests[request.ID]; stored.Status != StatusSubmitted {
		t.Errorf("stored status = %s, want untouched %s", stored.Status, StatusSubmitted)
	}
}

func TestProcessUnknownRequest(t *testing.T) {
	processor, _, _ := scanFixture(t, true)

	_, err := processor.Process(context.Background(), ScanResultEvent{
		BlobURI: blobURIFor("no-such-request"),
		Verdict: VerdictNoThreats,
	}, requestUser())
	if !engine.IsNotFound(err) {
		t.Fatalf("Process() error = %v, want not_found", err)
	}
}
