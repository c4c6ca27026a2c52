// Package status maps backend verification state onto the five stages
// shown to the user and follows a verification until it settles.
package status

import (
	"github.com/google/uuid"

	"github.com/dharsanguruparan/propshield/internal/model"
)

// StageState is the display state of one stage.
type StageState string

const (
	StagePending    StageState = "pending"
	StageProcessing StageState = "processing"
	StageCompleted  StageState = "completed"
	StageFailed     StageState = "failed"
)

// StageNames are the fixed pipeline stages in order.
var StageNames = [5]string{
	"Document Upload",
	"OCR Processing",
	"Data Validation",
	"Fraud Analysis",
	"Report Generation",
}

// Stage is one row of the progress view.
type Stage struct {
	Name  string     `json:"name"`
	State StageState `json:"state"`
}

// Progress is the derived view of a verification.
type Progress struct {
	VerificationID uuid.UUID                `json:"verificationId"`
	Status         model.VerificationStatus `json:"status"`
	RiskRating     model.RiskRating         `json:"riskRating"`
	FraudScore     *float64                 `json:"fraudScore,omitempty"`
	ReportURL      string                   `json:"reportUrl,omitempty"`
	Stages         [5]Stage                 `json:"stages"`
	Percent        int                      `json:"percent"`
}

// Terminal reports whether the verification will not change any more.
func (p Progress) Terminal() bool { return p.Status.Terminal() }

// Current returns the index of the first stage that is not completed, or
// len(Stages) when all are.
func (p Progress) Current() int {
	for i, s := range p.Stages {
		if s.State != StageCompleted {
			return i
		}
	}
	return len(p.Stages)
}

func (p Progress) same(o Progress) bool {
	return p.Status == o.Status &&
		p.RiskRating == o.RiskRating &&
		p.Stages == o.Stages &&
		p.Percent == o.Percent &&
		p.ReportURL == o.ReportURL
}

const stageWeight = 100 / len(StageNames)

// Derive computes the stage view from the verification and its documents.
// The phase is the first stage whose backend condition is unmet:
//
//	0 Document Upload    no documents yet
//	1 OCR Processing     some document OCR not completed
//	2 Data Validation    no fraud score yet
//	3 Fraud Analysis     scored but no risk bucket yet
//	4 Report Generation  verification not completed
//
// A failed verification or a failed OCR marks the phase stage failed.
func Derive(v *model.Verification, docs []model.Document) Progress {
	p := Progress{
		VerificationID: v.ID,
		Status:         v.Status,
		RiskRating:     v.RiskRating,
		FraudScore:     v.FraudScore,
		ReportURL:      v.ReportURL,
	}
	for i, name := range StageNames {
		p.Stages[i] = Stage{Name: name, State: StagePending}
	}

	ocrDone, ocrFailed := 0, false
	for _, d := range docs {
		switch d.OCRStatus {
		case model.OCRCompleted:
			ocrDone++
		case model.OCRFailed:
			ocrFailed = true
		}
	}

	phase := len(StageNames)
	switch {
	case v.Status == model.VerificationCompleted:
	case len(docs) == 0:
		phase = 0
	case ocrDone < len(docs):
		phase = 1
	case v.FraudScore == nil:
		phase = 2
	case !v.RiskRating.IsScored():
		phase = 3
	default:
		phase = 4
	}

	for i := 0; i < phase; i++ {
		p.Stages[i].State = StageCompleted
	}
	p.Percent = phase * stageWeight
	if phase == 1 {
		p.Percent += ocrDone * stageWeight / len(docs)
	}
	if phase < len(StageNames) {
		state := StageProcessing
		if v.Status == model.VerificationFailed || (phase == 1 && ocrFailed) {
			state = StageFailed
		}
		p.Stages[phase].State = state
	}
	return p
}
