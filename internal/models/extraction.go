package models

// ExtractionType selects which field schema the extraction prompt requests.
type ExtractionType string

const (
	ExtractionRepairDetails    ExtractionType = "repair_details"
	ExtractionPartsInventory   ExtractionType = "parts_inventory"
	ExtractionLaborHours       ExtractionType = "labor_hours"
	ExtractionCustomerInfo     ExtractionType = "customer_info"
	ExtractionDamageAssessment ExtractionType = "damage_assessment"
	ExtractionCustom           ExtractionType = "custom"
)

// ExtractionTypes lists every supported type in display order.
var ExtractionTypes = []ExtractionType{
	ExtractionRepairDetails,
	ExtractionPartsInventory,
	ExtractionLaborHours,
	ExtractionCustomerInfo,
	ExtractionDamageAssessment,
	ExtractionCustom,
}

func (t ExtractionType) Valid() bool {
	for _, known := range ExtractionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// CustomSchema replaces the default field catalogue for custom extractions.
type CustomSchema struct {
	Fields      []string `json:"fields"`
	Description string   `json:"description"`
}

type ExtractionRequest struct {
	Transcript   string
	Type         ExtractionType
	CustomSchema *CustomSchema
}

type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ExtractionValidation summarises how many expected fields were filled.
type ExtractionValidation struct {
	Valid          bool    `json:"isValid"`
	Coverage       float64 `json:"coverage"`
	FilledFields   int     `json:"filledFields"`
	ExpectedFields int     `json:"expectedFields"`
}

type ExtractionResult struct {
	Success          bool                 `json:"success"`
	Data             map[string]any       `json:"extractedData"`
	Confidence       float64              `json:"confidence"`
	Type             ExtractionType       `json:"extractionType"`
	ProcessingTimeMs int64                `json:"processingTime"`
	Usage            *TokenUsage          `json:"tokensUsed,omitempty"`
	Validation       ExtractionValidation `json:"validation"`
}

// BatchItem is one transcript submitted for batch extraction.
type BatchItem struct {
	ID   string
	Text string
}

// BatchItemResult is the outcome for one batch item. Exactly one of Result
// and Error is set.
type BatchItemResult struct {
	ID     string
	Result *ExtractionResult
	Error  string
}

// BatchResult holds per-item outcomes in input order.
type BatchResult struct {
	Items            []BatchItemResult
	ProcessingTimeMs int64
}

func (b *BatchResult) Counts() (succeeded, failed int) {
	for _, item := range b.Items {
		if item.Error != "" {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}
