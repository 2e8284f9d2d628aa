package verification

// EvidenceType tags the evidence a step collects.
type EvidenceType string

const (
	EvidenceIdentity EvidenceType = "identity"
	EvidenceAddress  EvidenceType = "address"
	EvidenceSelfie   EvidenceType = "selfie"
)

// CaptureMode is how a step acquires its evidence.
type CaptureMode int

const (
	CaptureFile CaptureMode = iota
	CaptureLive
)

// Step is one stage of the verification flow.
type Step struct {
	Number      int
	Title       string
	Description string
	Evidence    EvidenceType
	Capture     CaptureMode
}

// StepCount is the number of steps; the final one triggers submission.
const StepCount = 3

var steps = [StepCount]Step{
	{
		Number:      1,
		Title:       "Proof of Identity",
		Description: "Upload Verified ID (National/State ID, Drivers' Licence, Voter Card, etc)",
		Evidence:    EvidenceIdentity,
		Capture:     CaptureFile,
	},
	{
		Number:      2,
		Title:       "Proof of Address",
		Description: "Upload Utility Bill or Bank Statement",
		Evidence:    EvidenceAddress,
		Capture:     CaptureFile,
	},
	{
		Number:      3,
		Title:       "Selfie",
		Description: "Capture a live selfie with a clear face and good lighting.",
		Evidence:    EvidenceSelfie,
		Capture:     CaptureLive,
	},
}

// Steps returns a copy of the ordered step list.
func Steps() []Step {
	out := make([]Step, StepCount)
	copy(out, steps[:])
	return out
}

func stepAt(n int) Step {
	return steps[n-1]
}
