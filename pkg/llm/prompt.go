package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You assign sports officials to games. You receive one game and a list of referees who already satisfy every hard constraint (level, distance, availability, workload, rest).
Rank the referees from best to worst fit for the game.
Answer with a single JSON object and nothing else:
{"rankings":[{"referee_id":"<id>","score":<0..1>,"reason":"<short reason>"}],"rationale":"<one paragraph>"}
Only use referee ids from the list. Omit referees you would not assign.`

type promptPayload struct {
	Game         GameContext     `json:"game"`
	Candidates   []CandidateInfo `json:"candidates"`
	Instructions string          `json:"instructions,omitempty"`
	Comments     []string        `json:"comments,omitempty"`
}

// BuildPrompt renders the user message for a rank request
func BuildPrompt(req RankRequest) (string, error) {
	payload := promptPayload{
		Game:         req.Game,
		Candidates:   req.Candidates,
		Instructions: strings.TrimSpace(req.RulePrompt),
		Comments:     req.Comments,
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}
	return string(body), nil
}

// ParseRanking extracts the ranking JSON from model output. Unknown and duplicate referee
// ids are ignored and scores are clipped to [0,1]. Output with no usable ranking is
// ErrMalformed
func ParseRanking(content string, candidates []CandidateInfo) (RankResponse, error) {
	body := strings.TrimSpace(content)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return RankResponse{}, fmt.Errorf("%w: no JSON object in output", ErrMalformed)
	}

	var raw RankResponse
	if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
		return RankResponse{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.RefereeID] = true
	}
	seen := make(map[string]bool, len(raw.Rankings))
	out := RankResponse{Rationale: strings.TrimSpace(raw.Rationale)}
	for _, r := range raw.Rankings {
		if !known[r.RefereeID] || seen[r.RefereeID] {
			continue
		}
		seen[r.RefereeID] = true
		if r.Score < 0 {
			r.Score = 0
		}
		if r.Score > 1 {
			r.Score = 1
		}
		out.Rankings = append(out.Rankings, r)
	}
	if len(out.Rankings) == 0 {
		return RankResponse{}, fmt.Errorf("%w: no known referee ids in ranking", ErrMalformed)
	}
	return out, nil
}
