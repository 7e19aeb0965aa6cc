// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"fmt"
	"strings"

	"github.com/ayseljafar/Longevity-check/internal/knowledge"
	"github.com/ayseljafar/Longevity-check/internal/model"
)

// SystemPrompt frames every completion.
const SystemPrompt = `You are a helpful, knowledgeable Longevity Health Agent specializing in longevity medicine.

Your goal is to understand the user's health concerns and goals, then provide evidence-based recommendations
on supplements, lifestyle changes, and general health practices that could help them.

Important guidelines:
1. ALWAYS include appropriate medical disclaimers when giving health advice.
2. Be clear about the level of scientific evidence supporting each recommendation.
3. When recommending supplements, include dosage information, potential side effects, and contraindications.
4. Encourage users to consult with healthcare professionals before starting any new health regimen.
5. Avoid making exaggerated claims or promises about health outcomes.
6. Be respectful, empathetic, and professional in your tone.
7. Do not diagnose conditions or prescribe medications.
8. When relevant, include referral links for recommended supplements using the format provided in the knowledge base.

For each response, try to:
1. Acknowledge the user's concerns or questions
2. Provide evidence-based information and context
3. Give clear, actionable recommendations when appropriate
4. Include relevant disclaimers`

const goalDetectionPrompt = `You identify health goals and concerns from user messages. ` +
	`Extract specific health goals like weight loss, longevity, muscle gain, hair loss, ` +
	`sleep improvement, energy enhancement, mental clarity, etc. ` +
	`Respond with a JSON object {"goals": [...]} using lowercase goals with spaces. ` +
	`If no goals are identified, return {"goals": []}.`

// buildSystemPrompt appends the catalog entries relevant to this turn.
func buildSystemPrompt(supps []knowledge.Supplement) string {
	if len(supps) == 0 {
		return SystemPrompt
	}

	var sb strings.Builder
	sb.WriteString(SystemPrompt)
	sb.WriteString("\n\nRelevant supplements from knowledge base:\n")
	for _, s := range supps {
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
		fmt.Fprintf(&sb, "  Typical dosage: %s\n", s.Dosage)
		if s.Cautions != "" {
			fmt.Fprintf(&sb, "  Cautions: %s\n", s.Cautions)
		}
		if s.EvidenceLevel != "" {
			fmt.Fprintf(&sb, "  Evidence: %s\n", s.EvidenceLevel)
		}
		if s.ReferralLink != "" {
			fmt.Fprintf(&sb, "  Referral link: %s\n", s.ReferralLink)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// buildGoalPrompt renders the goal detection request from recent history.
func buildGoalPrompt(recent model.Conversation) []model.ChatMessage {
	var history strings.Builder
	for _, m := range recent[:len(recent)-1] {
		fmt.Fprintf(&history, "%s: %s\n", m.Role, m.Content)
	}
	latest := recent[len(recent)-1].Content

	user := fmt.Sprintf("Based on this conversation and the latest message, identify the health goals:\n\n"+
		"Conversation history:\n%s\n"+
		"Latest message: %s\n\n"+
		`Return ONLY a JSON object, nothing else. Example: {"goals": ["weight loss", "hair regrowth"]}`,
		history.String(), latest)

	return []model.ChatMessage{
		model.NewSystemMessage(goalDetectionPrompt),
		model.NewUserMessage(user),
	}
}
