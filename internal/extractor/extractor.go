package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"transcript-parser/internal/domain"
)

// ErrSchema reports a model answer that does not match the seven-field case
// schema. It is distinct from upstream transport failures.
var ErrSchema = errors.New("extraction response does not match case schema")

var requiredKeys = []string{
	"customer_name",
	"contact_info",
	"order_number",
	"product_name",
	"date_of_purchase",
	"issue_description",
	"preferred_resolution",
}

const promptTemplate = `Extract the following fields from the customer service transcript:

Fields to extract:
- Customer Name
- Contact Info (email or phone)
- Order Number
- Product Name
- Date of Purchase (even if the customer says "received on" or "got it on", infer this as the date of purchase)
- Issue Description
- Preferred Resolution

Always infer the most accurate values, even if indirectly stated. If a field is truly not provided, write "Not provided in transcript".

Return the output as valid JSON in the exact format.

Transcript:
%s

%s`

const formatInstructions = `Format the output as a single JSON object with exactly these keys and string values:
{"customer_name": "...", "contact_info": "...", "order_number": "...", "product_name": "...", "date_of_purchase": "...", "issue_description": "...", "preferred_resolution": "..."}
Do not include any other keys, commentary or markdown.`

// Extractor turns a transcript into a CaseRecord with one model call,
// retrying with a reprompt when the answer fails schema validation.
type Extractor struct {
	model       domain.ChatModel
	maxAttempts int
}

func New(model domain.ChatModel, maxAttempts int) *Extractor {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Extractor{model: model, maxAttempts: maxAttempts}
}

// Extract sends the full transcript with the schema-constrained prompt and
// parses the answer strictly. Every returned record has all seven fields
// populated, with the sentinel standing in for absent values.
func (e *Extractor) Extract(ctx context.Context, t domain.Transcript) (domain.CaseRecord, error) {
	base := fmt.Sprintf(promptTemplate, t.Text, formatInstructions)
	var lastParseErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		prompt := base
		if attempt > 0 {
			prompt = fmt.Sprintf("%s\n\nYour previous response could not be parsed (%v). Respond with only the JSON object.", base, lastParseErr)
		}
		answer, err := e.model.Generate(ctx, []domain.Turn{{Role: domain.RoleUser, Content: prompt}})
		if err != nil {
			return domain.CaseRecord{}, fmt.Errorf("field extraction: %w", err)
		}
		record, err := ParseRecord(answer)
		if err == nil {
			return record, nil
		}
		lastParseErr = err
	}
	return domain.CaseRecord{}, fmt.Errorf("%w: %v", ErrSchema, lastParseErr)
}

// ParseRecord validates a model answer against the seven-field schema.
// Markdown code fences are tolerated; missing or extra keys are not.
func ParseRecord(answer string) (domain.CaseRecord, error) {
	raw := extractJSONObject(answer)
	if raw == "" {
		return domain.CaseRecord{}, errors.New("no JSON object in response")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return domain.CaseRecord{}, fmt.Errorf("invalid JSON: %v", err)
	}
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return domain.CaseRecord{}, fmt.Errorf("missing key %q", key)
		}
	}
	if len(fields) != len(requiredKeys) {
		for key := range fields {
			if !isRequiredKey(key) {
				return domain.CaseRecord{}, fmt.Errorf("unexpected key %q", key)
			}
		}
	}
	var record domain.CaseRecord
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&record); err != nil {
		return domain.CaseRecord{}, fmt.Errorf("invalid field value: %v", err)
	}
	fillSentinels(&record)
	return record, nil
}

func isRequiredKey(key string) bool {
	for _, k := range requiredKeys {
		if k == key {
			return true
		}
	}
	return false
}

func fillSentinels(r *domain.CaseRecord) {
	for _, f := range []*string{
		&r.CustomerName, &r.ContactInfo, &r.OrderNumber, &r.ProductName,
		&r.DateOfPurchase, &r.IssueDescription, &r.PreferredResolution,
	} {
		if strings.TrimSpace(*f) == "" {
			*f = domain.Sentinel
		}
	}
}

// extractJSONObject returns the outermost {...} slice of the answer,
// skipping any surrounding prose or markdown fences.
func extractJSONObject(answer string) string {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end <= start {
		return ""
	}
	return answer[start : end+1]
}
