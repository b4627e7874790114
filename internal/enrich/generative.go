package enrich

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/internal/safety"
	"github.com/substancewiki/catalog-cli/pkg/anthropic"
)

// GenerativeResult is the outcome of one generative enrichment attempt.
// A failed status may still carry data: content-filtered output is
// returned but downgraded so callers can tell clean from filtered.
type GenerativeResult struct {
	Status   model.StageStatus
	Data     *model.GenerativeDraft
	Filtered bool
	Err      string
}

const generativeSystemPrompt = `You are a harm-reduction encyclopedia writer. Given a substance name and description, produce a JSON object with exactly these string fields: "summary", "effects", "duration", "onset", "risks", "interactions", "legal_status", "history", plus a "sources" array of citation strings.

Rules:
- Respond with the JSON object only, no prose before or after.
- Qualitative information only. Never include quantitative dosage amounts, purchasing or sourcing information, or synthesis instructions.
- Write in a neutral, factual register suitable for a reference wiki.
- If a field is genuinely unknown, write a short sentence saying so rather than leaving it empty.`

const correctivePrompt = `Your previous reply was not a valid JSON object with the required fields. Respond again with only the JSON object: string fields "summary", "effects", "duration", "onset", "risks", "interactions", "legal_status", "history", and a "sources" array of strings.`

// GenerativeConnector produces qualitative draft content via the
// configured completion model. It never returns an error: every failure
// mode is folded into the result status.
type GenerativeConnector struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	checker   safety.Checker
}

// NewGenerativeConnector wraps an Anthropic client. A nil client means no
// credential is configured, a valid operating mode in which every call
// reports skipped.
func NewGenerativeConnector(client anthropic.Client, modelID string, maxTokens int64, timeout time.Duration, checker safety.Checker) *GenerativeConnector {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if checker == nil {
		checker = safety.NewRuleChecker()
	}
	return &GenerativeConnector{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		timeout:   timeout,
		checker:   checker,
	}
}

// Enrich requests a structured draft for the named substance. Malformed
// output triggers exactly one corrective retry; a second failure yields
// failed with no data. Flagged free-text fields are replaced by their
// cleaned variants and the status downgraded from ok to failed, so data
// is returned either way but callers can tell the difference.
func (g *GenerativeConnector) Enrich(ctx context.Context, name, description, context_ string) GenerativeResult {
	if g == nil || g.client == nil {
		return GenerativeResult{Status: model.StageSkipped}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var prompt strings.Builder
	prompt.WriteString("Substance: ")
	prompt.WriteString(name)
	if description != "" {
		prompt.WriteString("\nDescription: ")
		prompt.WriteString(description)
	}
	if context_ != "" {
		prompt.WriteString("\nKnown chemistry: ")
		prompt.WriteString(context_)
	}

	messages := []anthropic.Message{{Role: "user", Content: prompt.String()}}

	raw, err := g.complete(ctx, messages)
	if err != nil {
		return GenerativeResult{Status: model.StageFailed, Err: err.Error()}
	}

	draft, parseErr := parseDraft(raw)
	if parseErr != nil {
		zap.L().Debug("enrich: malformed generative output, retrying once",
			zap.String("substance", name),
			zap.Error(parseErr),
		)
		messages = append(messages,
			anthropic.Message{Role: "assistant", Content: raw},
			anthropic.Message{Role: "user", Content: correctivePrompt},
		)
		raw, err = g.complete(ctx, messages)
		if err != nil {
			return GenerativeResult{Status: model.StageFailed, Err: err.Error()}
		}
		draft, parseErr = parseDraft(raw)
		if parseErr != nil {
			return GenerativeResult{Status: model.StageFailed, Err: parseErr.Error()}
		}
	}

	// Post-hoc content filter on every free-text field: defense in depth
	// on top of the provider instruction.
	filtered := g.filterDraft(draft, name)

	result := GenerativeResult{Status: model.StageOK, Data: draft}
	if filtered {
		result.Status = model.StageFailed
		result.Filtered = true
		result.Err = "content filter flagged one or more fields"
	}
	return result
}

func (g *GenerativeConnector) complete(ctx context.Context, messages []anthropic.Message) (string, error) {
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    generativeSystemPrompt,
		Messages:  messages,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// draftError is a plain-string error; eris stack wrapping adds nothing to
// parse failures surfaced only as status text.
type draftError string

func (e draftError) Error() string { return string(e) }

// parseDraft extracts and validates the JSON object from model output.
func parseDraft(raw string) (*model.GenerativeDraft, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, draftError("no JSON object in output")
	}

	var draft model.GenerativeDraft
	if err := json.Unmarshal([]byte(raw[start:end+1]), &draft); err != nil {
		return nil, draftError("invalid JSON: " + err.Error())
	}

	missing := missingFields(&draft)
	if len(missing) > 0 {
		return nil, draftError("missing fields: " + strings.Join(missing, ", "))
	}
	return &draft, nil
}

func missingFields(d *model.GenerativeDraft) []string {
	var missing []string
	for name, value := range map[string]string{
		"summary":      d.Summary,
		"effects":      d.Effects,
		"duration":     d.Duration,
		"onset":        d.Onset,
		"risks":        d.Risks,
		"interactions": d.Interactions,
		"legal_status": d.LegalStatus,
		"history":      d.History,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// filterDraft runs every free-text field through the content-safety
// checker, replacing flagged fields with their cleaned variants. Returns
// true if anything was flagged.
func (g *GenerativeConnector) filterDraft(d *model.GenerativeDraft, name string) bool {
	flagged := false
	for _, field := range []*string{
		&d.Summary, &d.Effects, &d.Duration, &d.Onset,
		&d.Risks, &d.Interactions, &d.LegalStatus, &d.History,
	} {
		res := g.checker.Check(*field)
		if !res.Passed {
			flagged = true
			*field = res.Clean
			zap.L().Warn("enrich: content filter flagged generative field",
				zap.String("substance", name),
				zap.Strings("violations", res.Violations),
			)
		}
	}
	return flagged
}
