package a2a

import (
	"fmt"
	"strings"
)

const cardVersion = "1.0.0"

// BuildCard assembles an agent's discovery card. One skill per allowed
// tool plus the baseline conversation skill.
func BuildCard(baseURL, appName, agentID, agentName, description string, toolNames []string) *AgentCard {
	skills := make([]Skill, 0, len(toolNames)+1)
	for _, tool := range toolNames {
		skills = append(skills, Skill{
			ID:          tool,
			Name:        tool,
			Description: fmt.Sprintf("Can use the %s tool", tool),
			Tags:        []string{"tool"},
		})
	}
	skills = append(skills, Skill{
		ID:          "conversation",
		Name:        "conversation",
		Description: "General conversational capability",
		Tags:        []string{"chat"},
	})

	return &AgentCard{
		Name:            agentName,
		Description:     description,
		URL:             fmt.Sprintf("%s/a2a/agents/%s", strings.TrimRight(baseURL, "/"), agentID),
		Version:         cardVersion,
		ProtocolVersion: ProtocolVersion,
		Capabilities: Capabilities{
			Streaming:              true,
			PushNotifications:      false,
			StateTransitionHistory: false,
		},
		Skills:             skills,
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Provider:           CardProvider{Organization: appName},
	}
}
